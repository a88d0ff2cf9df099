package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/indexwarden/internal/async"
	"github.com/Aman-CERP/indexwarden/internal/config"
)

// CheckStatus represents the result of a doctor check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult holds the result of a single doctor check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker performs doctor validation checks.
type Checker struct {
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs all doctor checks against the archive rooted at root and
// returns the results.
func (c *Checker) RunAll(_ context.Context, root string) []CheckResult {
	var results []CheckResult

	// System checks
	results = append(results, c.CheckDiskSpace(root))
	results = append(results, c.CheckMemory())
	results = append(results, c.CheckWritePermissions(writeProbeDir(root)))
	results = append(results, c.CheckFileDescriptors())

	// Archive checks
	results = append(results, c.CheckConfig(root))
	results = append(results, c.CheckArchive(root))
	results = append(results, c.CheckTokenArtifact(root))
	results = append(results, c.CheckTrigramArtifact(root))
	results = append(results, c.CheckLock(root))

	return results
}

// writeProbeDir picks the directory the write-permission probe targets:
// the data directory once it exists, the root before init has run.
func writeProbeDir(root string) string {
	dataDir := config.DataDir(root)
	if info, err := os.Stat(dataDir); err == nil && info.IsDir() {
		return dataDir
	}
	return root
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "IndexWarden Doctor")
	_, _ = fmt.Fprintln(c.output, "==================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		icon := c.statusIcon(r.Status)
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", icon, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	status := c.SummaryStatus(results)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(status))

	// Print summary of issues
	var warnings, errors []string
	for _, r := range results {
		if r.IsCritical() {
			errors = append(errors, r.Name+": "+r.Message)
		} else if r.Status == StatusWarn {
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	if len(errors) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d error(s):\n", len(errors))
		for _, e := range errors {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", e)
		}
	}

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d warning(s):\n", len(warnings))
		for _, w := range warnings {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", w)
		}
	}
}

func (c *Checker) statusIcon(status CheckStatus) string {
	switch status {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "????"
	}
}

// CheckWritePermissions checks if we can write to the given directory.
func (c *Checker) CheckWritePermissions(path string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	// Try to create a temp file
	testFile := filepath.Join(path, ".indexwarden-doctor-test")
	f, err := os.Create(testFile)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckConfig loads and validates the layered configuration for root.
func (c *Checker) CheckConfig(root string) CheckResult {
	result := CheckResult{
		Name:     "config",
		Required: true,
	}

	cfg, err := config.Load(root)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		result.Details = fmt.Sprintf("Config: %s", config.ProjectConfigPath(root))
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("valid (audit interval %s)", cfg.Audit.IntervalDuration())
	result.Details = fmt.Sprintf("Config: %s", config.ProjectConfigPath(root))
	return result
}

// CheckLock probes the single-instance lock. A held lock is a warning, not
// a failure: it usually just means the daemon is running.
func (c *Checker) CheckLock(root string) CheckResult {
	result := CheckResult{
		Name:     "lock",
		Required: false,
	}

	lockPath := config.LockPath(root)
	if _, err := os.Stat(filepath.Dir(lockPath)); os.IsNotExist(err) {
		result.Status = StatusWarn
		result.Message = "not initialized (run 'indexwarden init')"
		return result
	}

	lock := async.NewFileLock(lockPath)
	acquired, err := lock.TryLock()
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot probe lock: %v", err)
		return result
	}
	if !acquired {
		result.Status = StatusWarn
		result.Message = "held (daemon running?)"
		result.Details = fmt.Sprintf("Lock: %s", lockPath)
		return result
	}
	_ = lock.Unlock()

	result.Status = StatusPass
	result.Message = "available"
	result.Details = fmt.Sprintf("Lock: %s", lockPath)
	return result
}
