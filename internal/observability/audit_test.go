package observability

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/warden/internal/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAuditLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		lines = append(lines, m)
	}
	return lines
}

func TestAuditLogger_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, InitAuditLogger(path))
	t.Cleanup(func() { _ = GetAuditLogger().Close() })

	ctx := tracing.WithRunID(context.Background(), "run-1")
	RecordControlAudit(ctx, "pause", "127.0.0.1:5000", false, nil)
	RecordConfigAudit(context.Background(), "reload_schedules", "config-watcher", map[string]interface{}{
		"tasks": []string{"daily_report"},
	})

	lines := readAuditLines(t, path)
	require.Len(t, lines, 2)

	assert.Equal(t, "control", lines[0]["kind"])
	assert.Equal(t, "pause", lines[0]["action"])
	assert.Equal(t, false, lines[0]["ok"])
	assert.Equal(t, "run-1", lines[0]["run_id"])
	assert.NotContains(t, lines[0], "metadata")

	assert.Equal(t, "config", lines[1]["kind"])
	assert.Equal(t, true, lines[1]["ok"])
	assert.NotContains(t, lines[1], "run_id")
	assert.Equal(t, map[string]any{"tasks": []any{"daily_report"}}, lines[1]["metadata"])
}

func TestInitAuditLogger_ReplacesPrevious(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	require.NoError(t, InitAuditLogger(first))
	RecordControlAudit(context.Background(), "start", "", true, nil)

	require.NoError(t, InitAuditLogger(second))
	t.Cleanup(func() { _ = GetAuditLogger().Close() })
	RecordControlAudit(context.Background(), "stop", "", true, nil)

	assert.Len(t, readAuditLines(t, first), 1)
	lines := readAuditLines(t, second)
	require.Len(t, lines, 1)
	assert.Equal(t, "stop", lines[0]["action"])
	assert.NotContains(t, lines[0], "actor")
}

func TestInitAuditLogger_BadPath(t *testing.T) {
	err := InitAuditLogger(filepath.Join(t.TempDir(), "missing", "audit.log"))
	assert.Error(t, err)
}

func TestAuditLogger_CloseIsIdempotent(t *testing.T) {
	require.NoError(t, InitAuditLogger(filepath.Join(t.TempDir(), "audit.log")))
	a := GetAuditLogger()
	require.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}
