package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/harun/warden/pkg/browser"
	"github.com/harun/warden/pkg/cron"
	"github.com/harun/warden/pkg/prompt"
	"github.com/rs/zerolog"
)

// Validator validates configuration values
type Validator struct {
	now func() time.Time
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// ValidateCron checks that expr parses and fires at least once.
func (v *Validator) ValidateCron(expr, tz string) error {
	if _, err := cron.NextRun(expr, tz, v.now()); err != nil {
		return err
	}
	return nil
}

// ValidateURL checks for an absolute http(s) URL
func (v *Validator) ValidateURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s: invalid URL %q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: unsupported scheme %q", field, u.Scheme)
	}
	return nil
}

// ValidateSelector rejects empty or script-bearing CSS selectors
func (v *Validator) ValidateSelector(field, selector string) error {
	if selector == "" {
		return nil // Use default
	}
	if !browser.IsValidSelector(selector) {
		return fmt.Errorf("%s: invalid selector %q", field, selector)
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("max tokens must be >= 0, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	if _, err := zerolog.ParseLevel(level); err != nil || level == "" {
		return fmt.Errorf("invalid log level: %q", level)
	}
	return nil
}

// ValidateLogFormat validates log format
func (v *Validator) ValidateLogFormat(format string) error {
	if format == "" || contains(logFormats, format) {
		return nil
	}
	return fmt.Errorf("invalid log format: %s (must be one of: %s)", format, strings.Join(logFormats, ", "))
}

// ValidatePrompts compiles the configured templates.
func (v *Validator) ValidatePrompts(defs map[string]prompt.Definition) error {
	if _, err := prompt.NewBuilder(nil, defs, zerolog.Nop()); err != nil {
		return err
	}
	return nil
}

// ValidateConfig performs comprehensive validation. Unlike Config.Validate
// it reports every problem, including per-entry cron errors that only
// disable the entry at runtime.
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := cfg.Validate(); err != nil {
		errors = append(errors, err)
	}

	for i, task := range cfg.Tasks {
		if !task.Enabled {
			continue
		}
		if err := v.ValidateCron(task.Cron, task.TZ); err != nil {
			errors = append(errors, fmt.Errorf("task %d (%s): %w", i, task.Name, err))
		}
	}

	if err := v.ValidatePrompts(cfg.Prompts); err != nil {
		errors = append(errors, err)
	}

	b := cfg.Session.Browser
	if err := v.ValidateURL("session.browser.chat_url", b.ChatURL); err != nil {
		errors = append(errors, err)
	}
	for field, sel := range map[string]string{
		"session.browser.input_selector": b.InputSelector,
		"session.browser.send_selector":  b.SendSelector,
		"session.browser.reply_selector": b.ReplySelector,
	} {
		if err := v.ValidateSelector(field, sel); err != nil {
			errors = append(errors, err)
		}
	}

	api := cfg.Session.API
	if err := v.ValidateURL("session.api.base_url", api.BaseURL); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateTemperature(api.Temperature); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateMaxTokens(api.MaxTokens); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateURL("data_source.base_url", cfg.DataSource.BaseURL); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateLogFormat(cfg.Logging.Format); err != nil {
		errors = append(errors, err)
	}

	return errors
}
