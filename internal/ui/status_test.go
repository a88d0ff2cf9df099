package ui

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusInfo_Zero(t *testing.T) {
	// Given: zero-valued status info
	info := StatusInfo{}

	// Then: all fields are zero/empty
	assert.Empty(t, info.ArchivePath)
	assert.Equal(t, 0, info.Documents)
	assert.Equal(t, 0, info.StaleDocuments)
	assert.Equal(t, 0, info.OutboxPending)
	assert.Empty(t, info.AuditRuns)
}

func TestStatusInfo_JSONSerialization(t *testing.T) {
	// Given: populated status info
	info := StatusInfo{
		ArchivePath:     "/data/.indexwarden",
		Documents:       100,
		StaleDocuments:  5,
		SchemaVersion:   3,
		AnalyzerVersion: "v2-4f6a1c0d",
		OutboxPending:   12,
		OutboxExhausted: 1,
		QueueDepth:      4,
		ArchiveSize:     1024 * 1024,
		TokenSize:       2 * 1024 * 1024,
		TrigramSize:     512 * 1024,
		TotalSize:       3*1024*1024 + 512*1024,
		DaemonStatus:    "running",
	}

	// When: serializing to JSON
	data, err := json.Marshal(info)
	require.NoError(t, err)

	// Then: JSON is valid and contains expected fields
	var parsed map[string]any
	err = json.Unmarshal(data, &parsed)
	require.NoError(t, err)

	assert.Equal(t, "/data/.indexwarden", parsed["archive_path"])
	assert.Equal(t, float64(100), parsed["documents"])
	assert.Equal(t, float64(5), parsed["stale_documents"])
	assert.Equal(t, float64(12), parsed["outbox_pending"])
	assert.Equal(t, "running", parsed["daemon_status"])
}

func TestStatusRenderer_Render_Basic(t *testing.T) {
	// Given: status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, false)

	// When: rendering status info
	info := StatusInfo{
		ArchivePath:     "/data/.indexwarden",
		Documents:       50,
		StaleDocuments:  2,
		SchemaVersion:   3,
		AnalyzerVersion: "v2-4f6a1c0d",
		OutboxPending:   7,
		QueueDepth:      1,
		ArchiveSize:     512 * 1024,
		TokenSize:       1024 * 1024,
		TrigramSize:     256 * 1024,
		TotalSize:       1792 * 1024,
		DaemonStatus:    "running",
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: output contains key information
	output := buf.String()
	assert.Contains(t, output, "Archive Status: /data/.indexwarden")
	assert.Contains(t, output, "50")
	assert.Contains(t, output, "v3")
	assert.Contains(t, output, "v2-4f6a1c0d")
	assert.Contains(t, output, "Outbox:")
	assert.Contains(t, output, "Storage:")
	assert.Contains(t, output, "running")
}

func TestStatusRenderer_Render_AuditHistory(t *testing.T) {
	// Given: status renderer with no color
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering with recent audit runs (oldest first)
	info := StatusInfo{
		ArchivePath: "/data/.indexwarden",
		AuditRuns: []AuditRunInfo{
			{StartedAt: time.Now().Add(-2 * time.Hour), Outcome: "clean"},
			{StartedAt: time.Now().Add(-1 * time.Hour), Outcome: "findings", Findings: 4, Repaired: 4},
			{StartedAt: time.Now().Add(-5 * time.Minute), Outcome: "clean"},
		},
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: audit section shows the last run and a drift sparkline
	output := buf.String()
	assert.Contains(t, output, "Audit:")
	assert.Contains(t, output, "Last run:")
	assert.Contains(t, output, "clean")
	assert.Contains(t, output, "minutes ago")
	assert.Contains(t, output, "Drift:")
	// Sparkline has one bar per run
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "Drift:") {
			bars := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "Drift:"))
			assert.Equal(t, 3, len([]rune(bars)))
		}
	}
}

func TestStatusRenderer_Render_LastRunFindings(t *testing.T) {
	// Given: status renderer with no color
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: the most recent run had findings
	info := StatusInfo{
		ArchivePath: "/data/.indexwarden",
		AuditRuns: []AuditRunInfo{
			{StartedAt: time.Now().Add(-1 * time.Minute), Outcome: "findings", Findings: 6, Repaired: 5},
		},
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: findings and repair counts are shown
	output := buf.String()
	assert.Contains(t, output, "Findings:  6 (5 repaired)")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	// Given: status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, false)

	// When: rendering as JSON
	info := StatusInfo{
		ArchivePath: "/data/.indexwarden",
		Documents:   25,
		QueueDepth:  3,
		AuditRuns: []AuditRunInfo{
			{StartedAt: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC), Outcome: "clean"},
		},
	}

	err := r.RenderJSON(info)
	require.NoError(t, err)

	// Then: output is valid JSON
	var parsed StatusInfo
	err = json.Unmarshal(buf.Bytes(), &parsed)
	require.NoError(t, err)
	assert.Equal(t, "/data/.indexwarden", parsed.ArchivePath)
	assert.Equal(t, 25, parsed.Documents)
	require.Len(t, parsed.AuditRuns, 1)
	assert.Equal(t, "clean", parsed.AuditRuns[0].Outcome)
}

func TestStatusRenderer_NoColor(t *testing.T) {
	// Given: status renderer with noColor
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering
	info := StatusInfo{
		ArchivePath:     "/data/.indexwarden",
		StaleDocuments:  3,
		OutboxExhausted: 2,
		DaemonStatus:    "running",
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: no ANSI codes in output
	output := buf.String()
	assert.NotContains(t, output, "\x1b[")
	assert.NotContains(t, output, "\033[")
}

func TestStatusRenderer_DaemonStopped(t *testing.T) {
	// Given: status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, false)

	// When: rendering with stopped daemon
	info := StatusInfo{
		ArchivePath:  "/data/.indexwarden",
		DaemonStatus: "stopped",
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: shows stopped status
	output := buf.String()
	assert.Contains(t, output, "stopped")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{1024 * 1024 * 1024, "1.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := FormatBytes(tt.bytes)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestStatusRenderer_StorageSizes(t *testing.T) {
	// Given: status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true) // noColor for easier assertion

	// When: rendering with storage sizes
	info := StatusInfo{
		ArchivePath: "/data/.indexwarden",
		ArchiveSize: 512 * 1024,
		TokenSize:   10 * 1024 * 1024,
		TrigramSize: 2 * 1024 * 1024,
		TotalSize:   12*1024*1024 + 512*1024,
	}

	err := r.Render(info)
	require.NoError(t, err)

	// Then: sizes are human-readable
	output := buf.String()
	assert.Contains(t, output, "KB") // Archive size
	assert.Contains(t, output, "MB") // Token artifact size
}

func TestRenderSeries(t *testing.T) {
	t.Run("empty series", func(t *testing.T) {
		assert.Empty(t, RenderSeries(nil, 40))
	})

	t.Run("flat series renders baseline", func(t *testing.T) {
		out := RenderSeries([]float64{0, 0, 0}, 40)
		assert.Equal(t, strings.Repeat(string(SparklineChars[0]), 3), out)
	})

	t.Run("peak renders full block", func(t *testing.T) {
		out := RenderSeries([]float64{0, 8}, 40)
		runes := []rune(out)
		require.Len(t, runes, 2)
		assert.Equal(t, SparklineChars[0], runes[0])
		assert.Equal(t, SparklineChars[len(SparklineChars)-1], runes[1])
	})

	t.Run("keeps most recent values at width", func(t *testing.T) {
		series := make([]float64, 50)
		out := RenderSeries(series, 40)
		assert.Equal(t, 40, len([]rune(out)))
	})
}

func TestFormatTime(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"just now", now.Add(-30 * time.Second), "just now"},
		{"minutes ago", now.Add(-5 * time.Minute), "5 minutes ago"},
		{"one hour ago", now.Add(-90 * time.Minute), "1 hour ago"},
		{"days ago", now.Add(-49 * time.Hour), "2 days ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatTime(tt.t))
		})
	}
}
