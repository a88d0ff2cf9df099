// Package preflight provides the system and archive checks behind the
// doctor command, run before the pipeline starts operating.
//
// The package validates:
//   - Disk space availability (minimum 100MB)
//   - Memory availability (minimum 256MB)
//   - Write permissions in the archive data directory
//   - File descriptor limits (minimum 1024)
//   - Configuration validity
//   - Archive database integrity (read-only probe)
//   - Index artifact health (token and trigram)
//   - Instance lock availability
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, "/path/to/archive-root")
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
