package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/harun/warden/internal/config"
	"github.com/harun/warden/pkg/cron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		out, err := execute(t, "start", "--help")
		require.NoError(t, err)
		assert.Contains(t, out, "Start the Warden daemon service")
		assert.Contains(t, out, "--no-agent")
	})

	t.Run("invalid config is rejected", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "warden.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"session":{"kind":"carrier-pigeon"},"data_dir":"`+dir+`"}`), 0644))

		_, err := execute(t, "--config", path, "start")
		assert.ErrorContains(t, err, "invalid configuration")
	})

	t.Run("refuses a live daemon", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "warden.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"data_dir":"`+dir+`"}`), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "warden.pid"), []byte(strconv.Itoa(os.Getpid())), 0644))

		_, err := execute(t, "--config", path, "start")
		assert.ErrorContains(t, err, "already running")
	})
}

func TestConfigWarnings(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Empty(t, configWarnings(cfg))

	cfg.Tasks = []cron.EntryConfig{{Name: "broken", Cron: "not a cron", Enabled: true}}
	warnings := configWarnings(cfg)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Error(), "broken")
}

func TestIsRunning(t *testing.T) {
	dir := t.TempDir()

	t.Run("no pid file", func(t *testing.T) {
		assert.False(t, isRunning(filepath.Join(dir, "nonexistent.pid")))
	})

	t.Run("invalid pid file", func(t *testing.T) {
		pidFile := filepath.Join(dir, "invalid.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte("invalid"), 0644))
		assert.False(t, isRunning(pidFile))
	})

	t.Run("live process", func(t *testing.T) {
		pidFile := filepath.Join(dir, "self.pid")
		require.NoError(t, os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0644))
		assert.True(t, isRunning(pidFile))
	})
}
