package cmd

import (
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/indexwarden/internal/async"
	"github.com/Aman-CERP/indexwarden/internal/config"
	"github.com/Aman-CERP/indexwarden/internal/index"
	"github.com/Aman-CERP/indexwarden/internal/signature"
	"github.com/Aman-CERP/indexwarden/internal/store"
)

// pipeline bundles the archive, artifacts, and analyzer that the pipeline
// commands (serve, worker, rebuild, outbox drain) all open the same way.
type pipeline struct {
	Root    string
	Cfg     *config.Config
	Archive *store.Archive

	// Artifacts is nil unless requested; status and audit manage artifact
	// access themselves.
	Artifacts []index.Artifact

	Calc *signature.Calculator
	Eval *signature.Evaluator

	lock *async.FileLock
}

// pipelineOptions selects what openPipeline acquires beyond the archive.
type pipelineOptions struct {
	// lock acquires the archive file lock. Commands that write to the
	// index artifacts must hold it; the token index has a single writer.
	lock bool
	// artifacts opens the token and trigram artifacts read-write.
	artifacts bool
}

// openPipeline locates the archive from the working directory and opens it
// with the merged configuration. On success the caller owns the pipeline
// and must Close it.
func openPipeline(opts pipelineOptions) (*pipeline, error) {
	root, err := config.FindArchiveRoot(".")
	if err != nil {
		return nil, err
	}
	return openPipelineAt(root, opts)
}

// openPipelineAt is openPipeline with the root already known.
func openPipelineAt(root string, opts pipelineOptions) (*pipeline, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	if !fileExists(config.ArchiveDBPath(root)) {
		return nil, fmt.Errorf("archive at %s is not initialized (run 'indexwarden init')", root)
	}

	p := &pipeline{Root: root, Cfg: cfg}

	if opts.lock {
		lock := async.NewFileLock(config.LockPath(root))
		acquired, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire archive lock: %w", err)
		}
		if !acquired {
			return nil, fmt.Errorf("another indexwarden process holds the archive lock (is 'indexwarden serve' running?)")
		}
		p.lock = lock
	}

	archive, err := store.Open(config.ArchiveDBPath(root), store.Options{
		BusyTimeout: cfg.Store.BusyTimeoutDuration(),
		CacheMB:     cfg.Store.CacheMB,
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	p.Archive = archive

	calc, err := signature.NewCalculator(cfg.Analyzer)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("invalid analyzer configuration: %w", err)
	}
	p.Calc = calc
	p.Eval = signature.NewEvaluator(calc, index.SchemaVersion)

	if opts.artifacts {
		if err := p.openArtifacts(); err != nil {
			p.Close()
			return nil, err
		}
	}

	return p, nil
}

func (p *pipeline) openArtifacts() error {
	token, err := index.NewTokenArtifact(config.TokenIndexPath(p.Root))
	if err != nil {
		return fmt.Errorf("failed to open token index: %w", err)
	}
	trigram, err := index.NewTrigramArtifact(config.TrigramDBPath(p.Root))
	if err != nil {
		_ = token.Close()
		return fmt.Errorf("failed to open trigram index: %w", err)
	}
	p.Artifacts = []index.Artifact{token, trigram}
	return nil
}

// Close releases everything the pipeline holds, artifacts first so their
// final writes land before the archive connection goes away.
func (p *pipeline) Close() {
	for _, a := range p.Artifacts {
		if err := a.Close(); err != nil {
			slog.Warn("failed to close artifact", slog.String("artifact", a.Name()), slog.String("error", err.Error()))
		}
	}
	p.Artifacts = nil
	if p.Archive != nil {
		if err := p.Archive.Close(); err != nil {
			slog.Warn("failed to close archive", slog.String("error", err.Error()))
		}
		p.Archive = nil
	}
	if p.lock != nil {
		if err := p.lock.Unlock(); err != nil {
			slog.Warn("failed to release archive lock", slog.String("error", err.Error()))
		}
		p.lock = nil
	}
}
