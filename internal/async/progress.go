// Package async provides background processing infrastructure for indexwarden.
package async

import (
	"sync"
	"time"
)

// RebuildStatus represents the overall rebuild state.
type RebuildStatus string

const (
	// StatusRebuilding indicates a rebuild is in progress.
	StatusRebuilding RebuildStatus = "rebuilding"
	// StatusReady indicates the rebuild is complete and artifacts are consistent.
	StatusReady RebuildStatus = "ready"
	// StatusError indicates the rebuild failed with an error.
	StatusError RebuildStatus = "error"
)

// RebuildStage represents the current stage of a full rebuild.
type RebuildStage string

const (
	// StageScanning indicates the document enumeration phase.
	StageScanning RebuildStage = "scanning"
	// StageIndexing indicates the artifact write phase.
	StageIndexing RebuildStage = "indexing"
	// StageConfirming indicates the freshness stamping phase.
	StageConfirming RebuildStage = "confirming"
	// StageSweeping indicates the orphan sweep phase.
	StageSweeping RebuildStage = "sweeping"
)

// RebuildProgressSnapshot is an immutable snapshot of rebuild progress.
type RebuildProgressSnapshot struct {
	Status             string  `json:"status"`
	Stage              string  `json:"stage"`
	DocumentsTotal     int     `json:"documents_total"`
	DocumentsProcessed int     `json:"documents_processed"`
	OrphansTotal       int     `json:"orphans_total"`
	OrphansSwept       int     `json:"orphans_swept"`
	ProgressPct        float64 `json:"progress_pct"`
	ElapsedSeconds     int     `json:"elapsed_seconds"`
	ErrorMessage       string  `json:"error_message,omitempty"`
}

// RebuildProgress provides thread-safe tracking of rebuild progress.
type RebuildProgress struct {
	mu sync.RWMutex

	status             RebuildStatus
	stage              RebuildStage
	documentsTotal     int
	documentsProcessed int
	orphansTotal       int
	orphansSwept       int
	startTime          time.Time
	errorMessage       string
}

// NewRebuildProgress creates a new progress tracker initialized for a rebuild.
func NewRebuildProgress() *RebuildProgress {
	return &RebuildProgress{
		status:    StatusRebuilding,
		stage:     StageScanning,
		startTime: time.Now(),
	}
}

// SetStage updates the current rebuild stage and resets the total count.
func (p *RebuildProgress) SetStage(stage RebuildStage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.documentsTotal = total
}

// UpdateDocuments updates the number of processed documents.
func (p *RebuildProgress) UpdateDocuments(processed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.documentsProcessed = processed
}

// SetOrphansTotal sets the number of orphaned index entries found.
func (p *RebuildProgress) SetOrphansTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.orphansTotal = total
}

// UpdateOrphans updates the number of swept orphan entries.
func (p *RebuildProgress) UpdateOrphans(swept int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.orphansSwept = swept
}

// SetError marks the rebuild as failed with an error message.
func (p *RebuildProgress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = message
}

// SetReady marks the rebuild as complete.
func (p *RebuildProgress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
}

// IsRebuilding returns true if the rebuild is still in progress.
func (p *RebuildProgress) IsRebuilding() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusRebuilding
}

// Snapshot returns an immutable copy of the current progress state.
func (p *RebuildProgress) Snapshot() RebuildProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var progressPct float64
	if p.documentsTotal > 0 {
		progressPct = float64(p.documentsProcessed) / float64(p.documentsTotal) * 100.0
	}

	return RebuildProgressSnapshot{
		Status:             string(p.status),
		Stage:              string(p.stage),
		DocumentsTotal:     p.documentsTotal,
		DocumentsProcessed: p.documentsProcessed,
		OrphansTotal:       p.orphansTotal,
		OrphansSwept:       p.orphansSwept,
		ProgressPct:        progressPct,
		ElapsedSeconds:     int(time.Since(p.startTime).Seconds()),
		ErrorMessage:       p.errorMessage,
	}
}
