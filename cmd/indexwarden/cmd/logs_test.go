package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestLog writes slog-style JSON lines and returns the file path.
func writeTestLog(t *testing.T, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warden.log")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func logLine(level, msg string) string {
	return fmt.Sprintf(`{"time":%q,"level":%q,"msg":%q}`,
		time.Now().UTC().Format(time.RFC3339Nano), level, msg)
}

func TestLogsCmd_MissingFile(t *testing.T) {
	// Given: an explicit path that does not exist

	// When: running logs --file
	_, err := runInTempDir(t, t.TempDir(), "logs", "--file", "/nonexistent/warden.log")

	// Then: it should report the missing file
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log file not found")
}

func TestLogsCmd_TailsFile(t *testing.T) {
	// Given: a log file with a few entries
	path := writeTestLog(t, []string{
		logLine("INFO", "warden_started"),
		logLine("INFO", "audit_run_complete"),
		logLine("WARN", "outbox_entry_exhausted"),
	})

	// When: tailing it
	output, err := runInTempDir(t, t.TempDir(), "logs", "--file", path, "--no-color")

	// Then: all entries show up
	require.NoError(t, err)
	assert.Contains(t, output, "warden_started")
	assert.Contains(t, output, "audit_run_complete")
	assert.Contains(t, output, "outbox_entry_exhausted")
}

func TestLogsCmd_LimitsLines(t *testing.T) {
	// Given: more entries than the requested tail
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = logLine("INFO", fmt.Sprintf("event_%d", i))
	}
	path := writeTestLog(t, lines)

	// When: tailing the last 2
	output, err := runInTempDir(t, t.TempDir(), "logs", "--file", path, "-n", "2", "--no-color")

	// Then: only the newest entries show
	require.NoError(t, err)
	assert.NotContains(t, output, "event_7")
	assert.Contains(t, output, "event_8")
	assert.Contains(t, output, "event_9")
}

func TestLogsCmd_LevelFilter(t *testing.T) {
	// Given: mixed-level entries
	path := writeTestLog(t, []string{
		logLine("DEBUG", "noisy_detail"),
		logLine("INFO", "routine_event"),
		logLine("ERROR", "dispatch_failed"),
	})

	// When: filtering at warn
	output, err := runInTempDir(t, t.TempDir(), "logs", "--file", path, "--level", "warn", "--no-color")

	// Then: only the error survives
	require.NoError(t, err)
	assert.NotContains(t, output, "noisy_detail")
	assert.NotContains(t, output, "routine_event")
	assert.Contains(t, output, "dispatch_failed")
}

func TestLogsCmd_PatternFilter(t *testing.T) {
	// Given: entries with distinct messages
	path := writeTestLog(t, []string{
		logLine("INFO", "audit_run_complete"),
		logLine("INFO", "worker_pass_complete"),
	})

	// When: filtering by regex
	output, err := runInTempDir(t, t.TempDir(), "logs", "--file", path, "--filter", "audit_.*", "--no-color")

	// Then: only matching entries show
	require.NoError(t, err)
	assert.Contains(t, output, "audit_run_complete")
	assert.NotContains(t, output, "worker_pass_complete")
}

func TestLogsCmd_InvalidPattern(t *testing.T) {
	// Given: a log file
	path := writeTestLog(t, []string{logLine("INFO", "event")})

	// When: passing a broken regex
	_, err := runInTempDir(t, t.TempDir(), "logs", "--file", path, "--filter", "[unclosed")

	// Then: it should reject it before reading anything
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}
