package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog"
)

// ProcessManager owns the Chrome process for one profile.
type ProcessManager struct {
	profile   Profile
	launcher  *launcher.Launcher
	cdpURL    string
	mu        sync.RWMutex
	isRunning bool
	logger    zerolog.Logger
}

// NewProcessManager creates a process manager for profile.
func NewProcessManager(profile Profile, logger zerolog.Logger) *ProcessManager {
	return &ProcessManager{
		profile: profile,
		logger:  logger.With().Str("component", "browser").Logger(),
	}
}

// SpawnChrome launches Chrome with the persistent user data directory.
func (pm *ProcessManager) SpawnChrome(ctx context.Context) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.isRunning {
		return nil
	}

	if err := pm.ensureUserDataDir(); err != nil {
		return &BrowserError{
			Code:    ErrCodeConfiguration,
			Message: fmt.Sprintf("Failed to create user data directory: %v", err),
		}
	}

	l := launcher.New().
		Context(ctx).
		Headless(pm.profile.Headless).
		UserDataDir(pm.profile.UserDataDir).
		Set("disable-blink-features", "AutomationControlled")

	if pm.profile.CDPPort != 0 {
		l = l.RemoteDebuggingPort(pm.profile.CDPPort)
	}
	if pm.profile.NoSandbox {
		l = l.NoSandbox(true)
	}
	if pm.profile.ChromePath != "" {
		l = l.Bin(pm.profile.ChromePath)
	}

	url, err := l.Launch()
	if err != nil {
		return &BrowserError{
			Code:    ErrCodeBrowserCrash,
			Message: fmt.Sprintf("Failed to launch Chrome: %v", err),
		}
	}

	pm.launcher = l
	pm.cdpURL = url
	pm.isRunning = true

	pm.logger.Info().
		Str("user_data_dir", pm.profile.UserDataDir).
		Bool("headless", pm.profile.Headless).
		Msg("Chrome launched")
	return nil
}

// ConnectCDP connects rod to the launched Chrome.
func (pm *ProcessManager) ConnectCDP(ctx context.Context) (*rod.Browser, error) {
	pm.mu.RLock()
	cdpURL := pm.cdpURL
	pm.mu.RUnlock()

	if cdpURL == "" {
		return nil, &BrowserError{
			Code:    ErrCodeConfiguration,
			Message: "CDP URL not set",
		}
	}

	browser := rod.New().ControlURL(cdpURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, &BrowserError{
			Code:    ErrCodeBrowserCrash,
			Message: fmt.Sprintf("Failed to connect to CDP: %v", err),
		}
	}

	return browser, nil
}

// KillChrome terminates the Chrome process. The profile directory is kept.
func (pm *ProcessManager) KillChrome() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if !pm.isRunning {
		return
	}

	if pm.launcher != nil {
		pm.launcher.Kill()
		pm.launcher = nil
	}
	pm.cdpURL = ""
	pm.isRunning = false
}

// IsRunning reports whether Chrome was launched and not yet killed.
func (pm *ProcessManager) IsRunning() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.isRunning
}

// UserDataDir returns the resolved profile directory.
func (pm *ProcessManager) UserDataDir() string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.profile.UserDataDir
}

func (pm *ProcessManager) ensureUserDataDir() error {
	if pm.profile.UserDataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		pm.profile.UserDataDir = filepath.Join(home, ".warden", "chrome-profile")
	}

	return os.MkdirAll(pm.profile.UserDataDir, 0755)
}
