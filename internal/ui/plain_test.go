package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_UpdateProgress_OutputFormat(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: updating progress
	r.UpdateProgress(ProgressEvent{
		Stage:           StageIndexing,
		Current:         50,
		Total:           100,
		CurrentDocument: "notes/alpha.md",
	})

	// Then: output is correctly formatted
	output := buf.String()
	assert.Contains(t, output, "[INDEX]")
	assert.Contains(t, output, "50/100")
	assert.Contains(t, output, "notes/alpha.md")
}

func TestPlainRenderer_UpdateProgress_NoANSICodes(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: rendering progress through all stages
	stages := []Stage{StageScanning, StageIndexing, StageConfirming, StageSweeping, StageComplete}
	for _, stage := range stages {
		r.UpdateProgress(ProgressEvent{
			Stage:   stage,
			Current: 50,
			Total:   100,
			Message: "Processing...",
		})
	}

	// Then: output contains no ANSI escape codes
	output := buf.String()
	assert.NotContains(t, output, "\x1b[", "should not contain ANSI escape codes")
	assert.NotContains(t, output, "\033[", "should not contain ANSI escape codes")
}

func TestPlainRenderer_UpdateProgress_WithMessage(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: updating with message instead of document
	r.UpdateProgress(ProgressEvent{
		Stage:   StageConfirming,
		Current: 100,
		Total:   200,
		Message: "Stamping freshness...",
	})

	// Then: message is shown
	output := buf.String()
	assert.Contains(t, output, "[STAMP]")
	assert.Contains(t, output, "Stamping freshness...")
}

func TestPlainRenderer_UpdateProgress_ZeroTotal(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: updating with zero total (unknown count)
	r.UpdateProgress(ProgressEvent{
		Stage:   StageScanning,
		Total:   0,
		Message: "Enumerating documents...",
	})

	// Then: shows message without count
	output := buf.String()
	assert.Contains(t, output, "[SCAN]")
	assert.Contains(t, output, "Enumerating documents...")
	assert.NotContains(t, output, "0/0")
}

func TestPlainRenderer_AddError_Error(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: adding an error
	r.AddError(ErrorEvent{
		Document: "notes/broken.md",
		Err:      errors.New("token artifact write failed"),
		IsWarn:   false,
	})

	// Then: error is formatted correctly
	output := buf.String()
	assert.Contains(t, output, "ERROR:")
	assert.Contains(t, output, "notes/broken.md")
	assert.Contains(t, output, "token artifact write failed")
}

func TestPlainRenderer_AddError_Warning(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: adding a warning
	r.AddError(ErrorEvent{
		Document: "notes/large.md",
		Err:      errors.New("confirm lost to concurrent write"),
		IsWarn:   true,
	})

	// Then: warning is formatted correctly
	output := buf.String()
	assert.Contains(t, output, "WARN:")
	assert.Contains(t, output, "notes/large.md")
	assert.Contains(t, output, "confirm lost to concurrent write")
}

func TestPlainRenderer_AddError_NoDocument(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: adding error without document
	r.AddError(ErrorEvent{
		Err:    errors.New("archive connection failed"),
		IsWarn: false,
	})

	// Then: error shows without document prefix
	output := buf.String()
	assert.Contains(t, output, "ERROR:")
	assert.Contains(t, output, "archive connection failed")
}

func TestPlainRenderer_Complete_Basic(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: completing
	r.Complete(CompletionStats{
		Documents: 100,
		Orphans:   3,
		Duration:  5 * time.Second,
		Errors:    0,
		Warnings:  0,
	})

	// Then: summary is shown
	output := buf.String()
	assert.Contains(t, output, "Complete:")
	assert.Contains(t, output, "100 documents indexed")
	assert.Contains(t, output, "3 orphans swept")
	assert.Contains(t, output, "5s")
}

func TestPlainRenderer_Complete_WithErrors(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: completing with errors
	r.Complete(CompletionStats{
		Documents: 95,
		Orphans:   1,
		Duration:  10 * time.Second,
		Errors:    3,
		Warnings:  2,
	})

	// Then: error summary is included
	output := buf.String()
	assert.Contains(t, output, "Complete:")
	assert.Contains(t, output, "95 documents")
	assert.Contains(t, output, "3 errors")
	assert.Contains(t, output, "2 warnings")
}

func TestPlainRenderer_Complete_WithRacedConfirms(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: completing with confirms lost to concurrent writes
	r.Complete(CompletionStats{
		Documents: 50,
		Raced:     2,
		Duration:  3 * time.Second,
	})

	// Then: the race note is shown
	output := buf.String()
	assert.Contains(t, output, "2 confirms lost to concurrent writes")
}

func TestPlainRenderer_Complete_StageBreakdown(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: completing with stage timings
	r.Complete(CompletionStats{
		Documents: 200,
		Orphans:   4,
		Duration:  12 * time.Second,
		Stages: StageTimings{
			Scan:    1 * time.Second,
			Index:   8 * time.Second,
			Confirm: 2 * time.Second,
			Sweep:   1 * time.Second,
		},
		AnalyzerVersion: "v2-4f6a1c0d",
	})

	// Then: stage breakdown and analyzer version are shown
	output := buf.String()
	assert.Contains(t, output, "Stage Breakdown:")
	assert.Contains(t, output, "Scan:")
	assert.Contains(t, output, "documents enumerated")
	assert.Contains(t, output, "Index:")
	assert.Contains(t, output, "200 documents @ 25.0/sec")
	assert.Contains(t, output, "Stamp:")
	assert.Contains(t, output, "freshness confirmed")
	assert.Contains(t, output, "Sweep:")
	assert.Contains(t, output, "orphans removed")
	assert.Contains(t, output, "Analyzer: v2-4f6a1c0d")
}

func TestPlainRenderer_Complete_NoANSICodes(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: completing
	r.Complete(CompletionStats{
		Documents: 100,
		Orphans:   5,
		Duration:  5 * time.Second,
		Errors:    2,
		Warnings:  1,
	})

	// Then: no ANSI codes in output
	output := buf.String()
	assert.NotContains(t, output, "\x1b[")
	assert.NotContains(t, output, "\033[")
}

func TestPlainRenderer_StartStop(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: starting and stopping
	ctx := context.Background()
	err := r.Start(ctx)
	require.NoError(t, err)

	err = r.Stop()
	require.NoError(t, err)
}

func TestPlainRenderer_ThreadSafe(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: concurrent updates
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(n int) {
			r.UpdateProgress(ProgressEvent{
				Stage:   StageIndexing,
				Current: n,
				Total:   100,
			})
			r.AddError(ErrorEvent{
				Document: "notes/test.md",
				Err:      errors.New("test"),
				IsWarn:   n%2 == 0,
			})
			done <- true
		}(i)
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}

	// Then: no panic, output is written
	output := buf.String()
	assert.NotEmpty(t, output)
}

func TestPlainRenderer_AllStages(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: going through all stages
	stages := []struct {
		stage Stage
		icon  string
	}{
		{StageScanning, "SCAN"},
		{StageIndexing, "INDEX"},
		{StageConfirming, "STAMP"},
		{StageSweeping, "SWEEP"},
	}

	for _, s := range stages {
		r.UpdateProgress(ProgressEvent{
			Stage:   s.stage,
			Current: 50,
			Total:   100,
		})
	}

	// Then: all stage icons appear
	output := buf.String()
	for _, s := range stages {
		assert.Contains(t, output, "["+s.icon+"]")
	}
}

func TestPlainRenderer_LongDocumentID(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: updating with a long document identifier
	longID := strings.Repeat("very/", 20) + "deep/note.md"
	r.UpdateProgress(ProgressEvent{
		Stage:           StageIndexing,
		Current:         1,
		Total:           10,
		CurrentDocument: longID,
	})

	// Then: full identifier is shown (no truncation in plain mode)
	output := buf.String()
	assert.Contains(t, output, "deep/note.md")
}
