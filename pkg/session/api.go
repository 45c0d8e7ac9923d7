package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/harun/warden/internal/observability"
	"github.com/harun/warden/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultSystemPrompt = "You are an experienced fraud and operations analyst."
	DefaultTemperature  = 0.3
)

// APIOptions configures an APISession.
type APIOptions struct {
	Model             string
	SystemPrompt      string
	// Temperature nil means DefaultTemperature; zero is a valid setting.
	Temperature       *float64
	MaxTokens         int
	RotateAfterTokens int
}

// APISession keeps a conversation with a request/response provider.
// A reply is complete when the call returns; there is no polling.
type APISession struct {
	opts     APIOptions
	provider Provider
	logger   zerolog.Logger

	mu      sync.Mutex
	history []Message

	counters *counters
}

// NewAPISession creates a session backed by provider.
func NewAPISession(opts APIOptions, provider Provider, logger zerolog.Logger) *APISession {
	observability.EnsureRegistered()

	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.Temperature == nil {
		t := DefaultTemperature
		opts.Temperature = &t
	}

	return &APISession{
		opts:     opts,
		provider: provider,
		logger: logger.With().
			Str("component", "session").
			Str("kind", KindAPI).
			Str("provider", provider.Name()).
			Logger(),
		counters: newCounters(opts.RotateAfterTokens),
	}
}

func (s *APISession) Kind() string { return KindAPI }

func (s *APISession) State() State { return s.counters.state(KindAPI) }

func (s *APISession) ShouldRotate() bool { return s.counters.shouldRotate() }

// Open checks that the provider is reachable.
func (s *APISession) Open(ctx context.Context) error {
	if err := s.provider.Ping(ctx); err != nil {
		return fmt.Errorf("failed to open api session: %w", err)
	}

	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
	s.counters.messages.Store(0)
	s.counters.open.Store(true)

	s.logger.Info().Str("model", s.opts.Model).Msg("API session ready")
	return nil
}

func (s *APISession) Close() error {
	s.counters.open.Store(false)
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
	return nil
}

// SendAndAwait sends prompt with the conversation so far and records both turns.
func (s *APISession) SendAndAwait(ctx context.Context, prompt string) (reply string, err error) {
	ctx, span := tracing.StartSpan(ctx, "warden.session", "session.api.exchange",
		attribute.String("provider", s.provider.Name()),
		attribute.String("model", s.opts.Model),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RecordExchange(KindAPI, err == nil, int(s.counters.messages.Load()))
		span.End()
	}()

	if !s.counters.open.Load() {
		return "", ErrNotOpen
	}

	s.mu.Lock()
	messages := make([]Message, 0, len(s.history)+1)
	messages = append(messages, s.history...)
	s.mu.Unlock()
	messages = append(messages, Message{Role: "user", Content: prompt})

	s.logger.Info().Int("chars", len(prompt)).Int("turns", len(messages)).Msg("Sending prompt")

	reply, err = s.provider.Complete(ctx, Request{
		Model:       s.opts.Model,
		System:      s.opts.SystemPrompt,
		Messages:    messages,
		Temperature: *s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", s.provider.Name(), err)
	}

	s.mu.Lock()
	s.history = append(messages, Message{Role: "assistant", Content: reply})
	s.mu.Unlock()
	s.counters.messages.Add(1)

	s.logger.Info().Int("chars", len(reply)).Msg("Reply received")
	return reply, nil
}

// Rotate drops the conversation history.
func (s *APISession) Rotate(ctx context.Context) error {
	if !s.counters.open.Load() {
		return ErrNotOpen
	}

	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
	s.counters.messages.Store(0)
	observability.RecordRotation(KindAPI)

	s.logger.Info().Msg("Conversation rotated")
	return nil
}

// History returns a copy of the current conversation.
func (s *APISession) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.history...)
}
