package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/harun/warden/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console json", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := newWithConsole(Config{Level: "debug", Console: true}, &buf)
		require.NoError(t, err)
		defer l.Close()

		l.Component("agent").Debug().Str("task", "fraud_analysis").Msg("Executing task")
		out := buf.String()
		assert.Contains(t, out, `"component":"agent"`)
		assert.Contains(t, out, `"task":"fraud_analysis"`)
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := newWithConsole(Config{Level: "loud", Console: true}, &buf)
		require.NoError(t, err)

		assert.Equal(t, zerolog.InfoLevel, l.GetZerolog().GetLevel())
		l.GetZerolog().Debug().Msg("hidden")
		assert.Empty(t, buf.String())
	})

	t.Run("file with redaction", func(t *testing.T) {
		tmpDir := t.TempDir()
		logFile := filepath.Join(tmpDir, "logs", "warden.log")

		l, err := New(Config{Level: "info", File: logFile, Redaction: true})
		require.NoError(t, err)

		l.GetZerolog().Info().Str("auth", "Bearer abc.def.ghi").Msg("Calling data source")
		require.NoError(t, l.Close())

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "Calling data source")
		assert.NotContains(t, string(content), "abc.def.ghi")
		assert.Contains(t, string(content), redacted)
	})
}

func TestFromSettings(t *testing.T) {
	lc := config.DefaultConfig().Logging
	lc.File = "/tmp/warden.log"

	cfg := FromSettings(lc, true)
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, "/tmp/warden.log", cfg.File)

	lc.Format = "json"
	assert.False(t, FromSettings(lc, false).Pretty)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 100, cfg.MaxSize)
}
