package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/warden/internal/observability"
	"github.com/harun/warden/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultReplyTimeout = 30 * time.Second
	DefaultSettleDelay  = 2 * time.Second
)

// ChatPage is the slice of a chat web page the browser session drives.
type ChatPage interface {
	Navigate(ctx context.Context, url string) error
	Submit(ctx context.Context, prompt string) error
	WaitForReply(ctx context.Context, timeout time.Duration) error
	LastReply(ctx context.Context) (string, error)
	Close() error
}

// PageOpener launches a browser and returns its chat page.
type PageOpener func(ctx context.Context) (ChatPage, error)

// BrowserOptions configures a BrowserSession.
type BrowserOptions struct {
	ChatURL           string
	RotateAfterTokens int
	ReplyTimeout      time.Duration
	SettleDelay       time.Duration
	Poller            *Poller
}

// BrowserSession talks to a chat UI through a real browser page.
type BrowserSession struct {
	opts   BrowserOptions
	opener PageOpener
	poller *Poller
	sleep  func(ctx context.Context, d time.Duration) error
	logger zerolog.Logger

	mu   sync.Mutex
	page ChatPage

	counters *counters
}

// NewBrowserSession creates a session that opens pages with opener.
func NewBrowserSession(opts BrowserOptions, opener PageOpener, logger zerolog.Logger) *BrowserSession {
	observability.EnsureRegistered()

	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = DefaultReplyTimeout
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	poller := opts.Poller
	if poller == nil {
		poller = DefaultPoller()
	}
	sleep := poller.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	return &BrowserSession{
		opts:     opts,
		opener:   opener,
		poller:   poller,
		sleep:    sleep,
		logger:   logger.With().Str("component", "session").Str("kind", KindBrowser).Logger(),
		counters: newCounters(opts.RotateAfterTokens),
	}
}

func (s *BrowserSession) Kind() string { return KindBrowser }

func (s *BrowserSession) State() State { return s.counters.state(KindBrowser) }

func (s *BrowserSession) ShouldRotate() bool { return s.counters.shouldRotate() }

// Open launches the browser and navigates to the chat URL.
func (s *BrowserSession) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page != nil {
		return nil
	}

	page, err := s.opener(ctx)
	if err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	if err := page.Navigate(ctx, s.opts.ChatURL); err != nil {
		_ = page.Close()
		return fmt.Errorf("failed to open chat page: %w", err)
	}

	s.page = page
	s.counters.messages.Store(0)
	s.counters.open.Store(true)

	s.logger.Info().Str("url", s.opts.ChatURL).Msg("Browser session ready")
	return nil
}

// Close closes the page. An in-flight exchange fails on its next page call.
func (s *BrowserSession) Close() error {
	s.mu.Lock()
	page := s.page
	s.page = nil
	s.mu.Unlock()

	s.counters.open.Store(false)
	if page == nil {
		return nil
	}

	if err := page.Close(); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	s.logger.Info().Msg("Browser session closed")
	return nil
}

func (s *BrowserSession) currentPage() (ChatPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return nil, ErrNotOpen
	}
	return s.page, nil
}

// SendAndAwait submits prompt and returns the settled assistant reply.
func (s *BrowserSession) SendAndAwait(ctx context.Context, prompt string) (reply string, err error) {
	ctx, span := tracing.StartSpan(ctx, "warden.session", "session.browser.exchange",
		attribute.Int("prompt_chars", len(prompt)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RecordExchange(KindBrowser, err == nil, int(s.counters.messages.Load()))
		span.End()
	}()

	page, err := s.currentPage()
	if err != nil {
		return "", err
	}

	s.logger.Info().Int("chars", len(prompt)).Msg("Sending prompt")

	if err := page.Submit(ctx, prompt); err != nil {
		return "", fmt.Errorf("failed to submit prompt: %w", err)
	}

	// No reply element yet means the UI never started answering; read
	// whatever is there instead of polling.
	if err := page.WaitForReply(ctx, s.opts.ReplyTimeout); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Warn().Err(err).Msg("Timed out waiting for reply to start")
		reply, err = page.LastReply(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read reply: %w", err)
		}
		s.counters.messages.Add(1)
		return reply, nil
	}

	if err := s.sleep(ctx, s.opts.SettleDelay); err != nil {
		return "", err
	}

	reply, settled, err := s.poller.Poll(ctx, page.LastReply)
	if err != nil {
		return "", fmt.Errorf("failed to read reply: %w", err)
	}
	observability.RecordSettle(settled)
	span.SetAttributes(attribute.Bool("settled", settled), attribute.Int("reply_chars", len(reply)))
	if !settled {
		s.logger.Warn().Int("chars", len(reply)).Msg("Reply did not settle before timeout")
	}

	s.counters.messages.Add(1)
	s.logger.Info().Int("chars", len(reply)).Msg("Reply received")
	return reply, nil
}

// Rotate starts a fresh conversation by reloading the chat URL.
func (s *BrowserSession) Rotate(ctx context.Context) error {
	page, err := s.currentPage()
	if err != nil {
		return err
	}

	s.logger.Info().Msg("Rotating conversation")
	// The counter resets even when navigation fails.
	s.counters.messages.Store(0)
	observability.RecordRotation(KindBrowser)

	if err := page.Navigate(ctx, s.opts.ChatURL); err != nil {
		return fmt.Errorf("failed to start new conversation: %w", err)
	}
	return nil
}
