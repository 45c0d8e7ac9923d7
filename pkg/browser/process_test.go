package browser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProcessManager(t *testing.T) {
	pm := NewProcessManager(Profile{ChatURL: "https://chatgpt.com/"}, zerolog.New(os.Stdout).Level(zerolog.Disabled))
	assert.NotNil(t, pm)
	assert.False(t, pm.IsRunning())

	// Killing a process that never started is a no-op.
	pm.KillChrome()
	assert.False(t, pm.IsRunning())
}

func TestEnsureUserDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "profile")
	pm := NewProcessManager(Profile{UserDataDir: dir}, zerolog.New(os.Stdout).Level(zerolog.Disabled))

	require.NoError(t, pm.ensureUserDataDir())
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, dir, pm.UserDataDir())
}

func TestConnectCDPWithoutLaunch(t *testing.T) {
	pm := NewProcessManager(Profile{}, zerolog.New(os.Stdout).Level(zerolog.Disabled))

	_, err := pm.ConnectCDP(context.Background())
	require.Error(t, err)
	be, ok := err.(*BrowserError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeConfiguration, be.Code)
}

func TestLaunchRejectsInvalidProfile(t *testing.T) {
	_, err := Launch(context.Background(), Profile{ChatURL: "ftp://example.com"}, zerolog.New(os.Stdout).Level(zerolog.Disabled))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unsupported URL scheme")
}
