package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/harun/warden/pkg/cron"
	"github.com/harun/warden/pkg/prompt"
)

// Config represents the main Warden configuration
type Config struct {
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Scheduled tasks
	Tasks []cron.EntryConfig `json:"tasks" mapstructure:"tasks"`

	// Prompt templates, keyed by task name
	Prompts map[string]prompt.Definition `json:"prompts" mapstructure:"prompts"`

	Session     SessionConfig     `json:"session" mapstructure:"session"`
	DataSource  DataSourceConfig  `json:"data_source" mapstructure:"data_source"`
	ExchangeLog ExchangeLogConfig `json:"exchange_log" mapstructure:"exchange_log"`
	Control     ControlConfig     `json:"control" mapstructure:"control"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
	Tracing     TracingConfig     `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// AgentConfig tunes the worker loop
type AgentConfig struct {
	CheckIntervalSeconds int `json:"check_interval_seconds" mapstructure:"check_interval_seconds"`
	RotateAfterTokens    int `json:"rotate_after_tokens" mapstructure:"rotate_after_tokens"`
}

// CheckInterval returns the configured check interval
func (a AgentConfig) CheckInterval() time.Duration {
	return time.Duration(a.CheckIntervalSeconds) * time.Second
}

// SessionConfig selects the session backend
type SessionConfig struct {
	Kind    string               `json:"kind" mapstructure:"kind"` // browser, api
	Browser BrowserSessionConfig `json:"browser" mapstructure:"browser"`
	API     APISessionConfig     `json:"api" mapstructure:"api"`
}

// BrowserSessionConfig holds Chrome and chat page settings
type BrowserSessionConfig struct {
	ChatURL       string `json:"chat_url" mapstructure:"chat_url"`
	ProfileDir    string `json:"profile_dir" mapstructure:"profile_dir"`
	ChromePath    string `json:"chrome_path" mapstructure:"chrome_path"`
	Headless      bool   `json:"headless" mapstructure:"headless"`
	NoSandbox     bool   `json:"no_sandbox" mapstructure:"no_sandbox"`
	InputSelector string `json:"input_selector" mapstructure:"input_selector"`
	SendSelector  string `json:"send_selector" mapstructure:"send_selector"`
	ReplySelector string `json:"reply_selector" mapstructure:"reply_selector"`
}

// APISessionConfig holds LLM provider settings
type APISessionConfig struct {
	Provider     string  `json:"provider" mapstructure:"provider"` // openai, ollama, anthropic
	Model        string  `json:"model" mapstructure:"model"`
	BaseURL      string  `json:"base_url" mapstructure:"base_url"`
	APIKey       string  `json:"api_key" mapstructure:"api_key"`
	APIKeyEnv    string  `json:"api_key_env" mapstructure:"api_key_env"`
	Temperature  float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens    int     `json:"max_tokens" mapstructure:"max_tokens"`
	SystemPrompt string  `json:"system_prompt" mapstructure:"system_prompt"`
}

// DataSourceConfig points at the read-only business API
type DataSourceConfig struct {
	BaseURL        string `json:"base_url" mapstructure:"base_url"`
	TokenEnv       string `json:"token_env" mapstructure:"token_env"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// ExchangeLogConfig holds exchange log destinations
type ExchangeLogConfig struct {
	Dir    string `json:"dir" mapstructure:"dir"`
	SQLite string `json:"sqlite" mapstructure:"sqlite"`
}

// ControlConfig holds control API server configuration
type ControlConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`

	// Required in X-Warden-Secret on mutating requests when set
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// Addr returns host:port
func (c ControlConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	Format    string `json:"format" mapstructure:"format"` // console, json
	File      string `json:"file" mapstructure:"file"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// TracingConfig toggles the OpenTelemetry tracer provider
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// Session kinds and providers accepted by Validate.
var (
	sessionKinds = []string{"browser", "api"}
	providers    = []string{"openai", "ollama", "anthropic"}
	logFormats   = []string{"console", "json"}
)

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			CheckIntervalSeconds: 300,
			RotateAfterTokens:    8000,
		},
		Tasks:   []cron.EntryConfig{},
		Prompts: map[string]prompt.Definition{},
		Session: SessionConfig{
			Kind: "browser",
			Browser: BrowserSessionConfig{
				ChatURL: "https://chatgpt.com/",
			},
			API: APISessionConfig{
				Provider:    "ollama",
				Model:       "mistral",
				Temperature: 0.3,
			},
		},
		DataSource: DataSourceConfig{
			TokenEnv:       "ROTA_VERDE_AGENT_TOKEN",
			TimeoutSeconds: 20,
		},
		Control: ControlConfig{
			Host: "127.0.0.1",
			Port: 8765,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "console",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			ServiceName: "warden",
			SampleRatio: 1,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Agent.CheckIntervalSeconds < 0 {
		return fmt.Errorf("agent.check_interval_seconds must be >= 0")
	}
	if c.Agent.RotateAfterTokens < 0 {
		return fmt.Errorf("agent.rotate_after_tokens must be >= 0")
	}

	seen := make(map[string]bool, len(c.Tasks))
	for i, task := range c.Tasks {
		if task.Name == "" {
			return fmt.Errorf("task %d: name is required", i)
		}
		if seen[task.Name] {
			return fmt.Errorf("duplicate task name: %s", task.Name)
		}
		seen[task.Name] = true
	}

	kind := c.Session.Kind
	if kind == "" {
		kind = "browser"
	}
	if !contains(sessionKinds, kind) {
		return fmt.Errorf("invalid session kind: %s (must be: browser, api)", c.Session.Kind)
	}
	if kind == "browser" && c.Session.Browser.ChatURL == "" {
		return fmt.Errorf("session.browser.chat_url is required for browser sessions")
	}
	if kind == "api" && !contains(providers, c.Session.API.Provider) {
		return fmt.Errorf("invalid session provider: %s (must be: openai, ollama, anthropic)", c.Session.API.Provider)
	}

	if c.DataSource.TimeoutSeconds < 0 {
		return fmt.Errorf("data_source.timeout_seconds must be >= 0")
	}
	if c.Control.Port < 0 || c.Control.Port > 65535 {
		return fmt.Errorf("invalid control port: %d", c.Control.Port)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
