package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexwarden/internal/config"
	"github.com/Aman-CERP/indexwarden/internal/output"
	"github.com/Aman-CERP/indexwarden/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check archive health and diagnose issues",
		Long: `Run diagnostics against the current archive.

Checks:
  - Archive database integrity
  - Token and trigram index readability
  - Configuration validity
  - Disk space, memory, write permissions, file descriptor limits
  - Archive lock availability

Index problems are warnings, never fatal: the artifacts are derived data
and 'indexwarden rebuild' recreates them. A corrupted archive database is
the one critical failure.`,
		Example: `  # Run diagnostics
  indexwarden doctor

  # Verbose output with details
  indexwarden doctor --verbose

  # JSON output for scripting
  indexwarden doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Doctor still runs outside an archive; the archive checks then report
	// not-initialized instead of failing outright.
	root, err := config.FindArchiveRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)

	results := checker.RunAll(ctx, root)

	if jsonOutput {
		return doctorJSON(cmd, checker, results)
	}

	checker.PrintResults(results)

	dataDir := config.DataDir(root)
	if !preflight.NeedsCheck(dataDir) {
		if age := preflight.MarkerAge(dataDir); age > 0 {
			out := output.New(cmd.OutOrStdout())
			out.Newline()
			out.Status("", fmt.Sprintf("Last successful check: %s ago", formatAge(age)))
		}
	}

	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("system check failed")
	}
	return nil
}

// doctorReport is the --json shape of a diagnostics run.
type doctorReport struct {
	Status   string              `json:"status"`
	Checks   []doctorCheckResult `json:"checks"`
	Warnings []string            `json:"warnings,omitempty"`
	Errors   []string            `json:"errors,omitempty"`
}

type doctorCheckResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func doctorJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	report := doctorReport{
		Status: checker.SummaryStatus(results),
		Checks: make([]doctorCheckResult, len(results)),
	}

	for i, r := range results {
		report.Checks[i] = doctorCheckResult{
			Name:     r.Name,
			Status:   statusToString(r.Status),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}

		if r.IsCritical() {
			report.Errors = append(report.Errors, r.Name+": "+r.Message)
		} else if r.Status == preflight.StatusWarn {
			report.Warnings = append(report.Warnings, r.Name+": "+r.Message)
		}
	}

	return output.New(cmd.OutOrStdout()).JSON(report)
}

func statusToString(s preflight.CheckStatus) string {
	switch s {
	case preflight.StatusPass:
		return "pass"
	case preflight.StatusWarn:
		return "warn"
	case preflight.StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// formatAge renders a marker age like "3 hours" or "2 days".
func formatAge(d time.Duration) string {
	switch {
	case d < time.Hour:
		return "less than an hour"
	case d < 24*time.Hour:
		h := int(d.Hours())
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}
