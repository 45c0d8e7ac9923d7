package session

import (
	"context"
	"fmt"
	"os"

	"github.com/harun/warden/pkg/browser"
	"github.com/rs/zerolog"
)

// BrowserConfig selects and tunes the browser-backed session.
type BrowserConfig struct {
	ChatURL       string
	ProfileDir    string
	ChromePath    string
	Headless      bool
	NoSandbox     bool
	InputSelector string
	SendSelector  string
	ReplySelector string
}

// APIConfig selects and tunes the API-backed session.
type APIConfig struct {
	Provider     string
	Model        string
	BaseURL      string
	APIKey       string
	APIKeyEnv    string
	Temperature  *float64
	MaxTokens    int
	SystemPrompt string
}

// Config is everything New needs to build a session.
type Config struct {
	Kind              string
	RotateAfterTokens int
	Browser           BrowserConfig
	API               APIConfig
}

// Factory builds a fresh session for each controller start.
type Factory func() (Session, error)

// New builds the session variant named by cfg.Kind.
func New(cfg Config, logger zerolog.Logger) (Session, error) {
	switch cfg.Kind {
	case KindBrowser, "":
		if cfg.Browser.ChatURL == "" {
			return nil, fmt.Errorf("browser session requires a chat url")
		}
		profile := browser.Profile{
			ChatURL:       cfg.Browser.ChatURL,
			UserDataDir:   cfg.Browser.ProfileDir,
			ChromePath:    cfg.Browser.ChromePath,
			Headless:      cfg.Browser.Headless,
			NoSandbox:     cfg.Browser.NoSandbox,
			InputSelector: cfg.Browser.InputSelector,
			SendSelector:  cfg.Browser.SendSelector,
			ReplySelector: cfg.Browser.ReplySelector,
		}
		opener := func(ctx context.Context) (ChatPage, error) {
			return browser.Launch(ctx, profile, logger)
		}
		return NewBrowserSession(BrowserOptions{
			ChatURL:           cfg.Browser.ChatURL,
			RotateAfterTokens: cfg.RotateAfterTokens,
		}, opener, logger), nil

	case KindAPI:
		apiKey := cfg.API.APIKey
		if apiKey == "" && cfg.API.APIKeyEnv != "" {
			apiKey = os.Getenv(cfg.API.APIKeyEnv)
		}
		provider, err := NewProvider(cfg.API.Provider, apiKey, cfg.API.BaseURL)
		if err != nil {
			return nil, err
		}
		return NewAPISession(APIOptions{
			Model:             cfg.API.Model,
			SystemPrompt:      cfg.API.SystemPrompt,
			Temperature:       cfg.API.Temperature,
			MaxTokens:         cfg.API.MaxTokens,
			RotateAfterTokens: cfg.RotateAfterTokens,
		}, provider, logger), nil

	default:
		return nil, fmt.Errorf("unknown session kind: %s", cfg.Kind)
	}
}

// NewFactory returns a Factory that calls New with cfg.
func NewFactory(cfg Config, logger zerolog.Logger) Factory {
	return func() (Session, error) {
		return New(cfg, logger)
	}
}
