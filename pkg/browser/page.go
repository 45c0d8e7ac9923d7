package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// ChatPage drives a chat web UI in a single tab.
type ChatPage struct {
	process *ProcessManager
	browser *rod.Browser
	page    *rod.Page
	profile Profile
	logger  zerolog.Logger
}

// Launch starts Chrome for profile and opens a blank tab.
func Launch(ctx context.Context, profile Profile, logger zerolog.Logger) (*ChatPage, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	profile = profile.withDefaults()

	pm := NewProcessManager(profile, logger)
	if err := pm.SpawnChrome(ctx); err != nil {
		return nil, err
	}

	// The launch context only bounds startup; the browser outlives it.
	b, err := pm.ConnectCDP(context.Background())
	if err != nil {
		pm.KillChrome()
		return nil, err
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		pm.KillChrome()
		return nil, &BrowserError{
			Code:    ErrCodeBrowserCrash,
			Message: fmt.Sprintf("Failed to create page: %v", err),
		}
	}

	return &ChatPage{
		process: pm,
		browser: b,
		page:    page,
		profile: profile,
		logger:  logger.With().Str("component", "browser").Logger(),
	}, nil
}

// Navigate loads url and waits for the load event.
func (c *ChatPage) Navigate(ctx context.Context, url string) error {
	p := c.page.Context(ctx).Timeout(defaultNavigateWait)

	if err := p.Navigate(url); err != nil {
		return &BrowserError{
			Code:    ErrCodeNavigation,
			Message: fmt.Sprintf("Failed to navigate to %s: %v", url, err),
		}
	}
	if err := p.WaitLoad(); err != nil {
		return &BrowserError{
			Code:    ErrCodeTimeout,
			Message: fmt.Sprintf("Page load timeout: %v", err),
		}
	}
	return nil
}

// Submit types prompt into the first visible, enabled input and sends it,
// clicking the send button when present and pressing Enter otherwise.
func (c *ChatPage) Submit(ctx context.Context, prompt string) error {
	p := c.page.Context(ctx)

	if _, err := p.Timeout(defaultInputWait).Element(c.profile.InputSelector); err != nil {
		return &BrowserError{
			Code:    ErrCodeElementNotFound,
			Message: fmt.Sprintf("Message input not found: %s", c.profile.InputSelector),
		}
	}

	field, err := c.findInput(p)
	if err != nil {
		return err
	}

	if err := field.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to focus input: %w", err)
	}
	if err := field.Input(prompt); err != nil {
		return fmt.Errorf("failed to type prompt: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(defaultTypePause):
	}

	if c.clickSend(p) {
		return nil
	}

	c.logger.Info().Msg("Send button not found, pressing Enter")
	if err := p.Keyboard.Type(input.Enter); err != nil {
		return fmt.Errorf("failed to press enter: %w", err)
	}
	return nil
}

func (c *ChatPage) findInput(p *rod.Page) (*rod.Element, error) {
	elements, err := p.Elements(c.profile.InputSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to query inputs: %w", err)
	}

	for _, el := range elements {
		visible, err := el.Visible()
		if err != nil || !visible {
			continue
		}
		disabled, err := el.Attribute("disabled")
		if err != nil || disabled != nil {
			continue
		}
		return el, nil
	}

	return nil, &BrowserError{
		Code:    ErrCodeElementNotFound,
		Message: fmt.Sprintf("No visible message input: %s", c.profile.InputSelector),
	}
}

func (c *ChatPage) clickSend(p *rod.Page) bool {
	has, btn, err := p.Has(c.profile.SendSelector)
	if err != nil || !has {
		return false
	}
	if visible, err := btn.Visible(); err != nil || !visible {
		return false
	}
	return btn.Click(proto.InputMouseButtonLeft, 1) == nil
}

// WaitForReply blocks until at least one assistant message exists.
func (c *ChatPage) WaitForReply(ctx context.Context, timeout time.Duration) error {
	if _, err := c.page.Context(ctx).Timeout(timeout).Element(c.profile.ReplySelector); err != nil {
		return &BrowserError{
			Code:    ErrCodeTimeout,
			Message: fmt.Sprintf("No reply after %s", timeout),
		}
	}
	return nil
}

// LastReply returns the text of the last assistant message, or "" if none.
func (c *ChatPage) LastReply(ctx context.Context) (string, error) {
	elements, err := c.page.Context(ctx).Elements(c.profile.ReplySelector)
	if err != nil {
		return "", fmt.Errorf("failed to query replies: %w", err)
	}
	if elements.Empty() {
		return "", nil
	}
	return elements.Last().Text()
}

// Close closes the browser and kills Chrome.
func (c *ChatPage) Close() error {
	err := c.browser.Close()
	c.process.KillChrome()
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}
