package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// WARDEN_AGENT_CHECK_INTERVAL_SECONDS.
const EnvPrefix = "WARDEN"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// DefaultPath returns $HOME/.warden/warden.json
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".warden", "warden.json")
}

// Load loads the configuration from file and environment
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to get home directory")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if ext := strings.TrimPrefix(filepath.Ext(configPath), "."); ext == "" {
		v.SetConfigType("json")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	// A missing file means defaults plus environment.
	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyPaths(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers scalar defaults so environment overrides apply
// even when the file omits a key.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("agent.check_interval_seconds", d.Agent.CheckIntervalSeconds)
	v.SetDefault("agent.rotate_after_tokens", d.Agent.RotateAfterTokens)

	v.SetDefault("session.kind", d.Session.Kind)
	v.SetDefault("session.browser.chat_url", d.Session.Browser.ChatURL)
	v.SetDefault("session.browser.profile_dir", "")
	v.SetDefault("session.browser.chrome_path", "")
	v.SetDefault("session.browser.headless", d.Session.Browser.Headless)
	v.SetDefault("session.api.provider", d.Session.API.Provider)
	v.SetDefault("session.api.model", d.Session.API.Model)
	v.SetDefault("session.api.base_url", "")
	v.SetDefault("session.api.api_key", "")
	v.SetDefault("session.api.api_key_env", "")
	v.SetDefault("session.api.temperature", d.Session.API.Temperature)

	v.SetDefault("data_source.base_url", "")
	v.SetDefault("data_source.token_env", d.DataSource.TokenEnv)
	v.SetDefault("data_source.timeout_seconds", d.DataSource.TimeoutSeconds)

	v.SetDefault("exchange_log.dir", "")
	v.SetDefault("exchange_log.sqlite", "")

	v.SetDefault("control.host", d.Control.Host)
	v.SetDefault("control.port", d.Control.Port)
	v.SetDefault("control.shared_secret", "")

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.redaction", d.Logging.Redaction)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)

	v.SetDefault("data_dir", "")
}

// applyPaths fills directories that default relative to DataDir.
func applyPaths(cfg *Config) error {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".warden")
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "warden.log")
	}
	if cfg.Logging.AuditFile == "" {
		cfg.Logging.AuditFile = filepath.Join(cfg.DataDir, "audit.log")
	}
	if cfg.ExchangeLog.Dir == "" {
		cfg.ExchangeLog.Dir = filepath.Join(cfg.DataDir, "exchanges")
	}
	if cfg.Session.Browser.ProfileDir == "" {
		cfg.Session.Browser.ProfileDir = filepath.Join(cfg.DataDir, "chrome-profile")
	}
	return nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to get home directory")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("agent", cfg.Agent)
	v.Set("tasks", cfg.Tasks)
	v.Set("prompts", cfg.Prompts)
	v.Set("session", cfg.Session)
	v.Set("data_source", cfg.DataSource)
	v.Set("exchange_log", cfg.ExchangeLog)
	v.Set("control", cfg.Control)
	v.Set("logging", cfg.Logging)
	v.Set("tracing", cfg.Tracing)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	return DefaultPath()
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
