//go:build ignore

// Package main compares two `go test -bench` outputs and flags regressions.
// Usage: go run scripts/bench-compare.go [options] <current.txt> <baseline.txt>
//
// A benchmark regresses when ns/op or allocs/op grows past the threshold.
// Exit status 1 signals at least one regression, 2 a usage error.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	threshold = flag.Float64("threshold", 0.20, "Fractional growth treated as a regression")
	asJSON    = flag.Bool("json", false, "Emit the comparison as JSON")
	showAll   = flag.Bool("all", false, "List unchanged benchmarks too")
)

// measurement is one parsed benchmark line.
type measurement struct {
	nsPerOp     float64
	allocsPerOp int
}

// row is one benchmark compared across the two runs.
type row struct {
	Name      string  `json:"name"`
	CurrentNs float64 `json:"current_ns_per_op"`
	BaseNs    float64 `json:"baseline_ns_per_op,omitempty"`
	DeltaPct  float64 `json:"delta_percent"`
	Verdict   string  `json:"verdict"`
}

var benchLine = regexp.MustCompile(
	`^(Benchmark\S+)\s+\d+\s+([\d.]+)\s+ns/op(?:\s+\d+\s+B/op)?(?:\s+(\d+)\s+allocs/op)?`)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <current.txt> <baseline.txt>\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	current, err := parseBenchFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", flag.Arg(0), err)
		os.Exit(2)
	}
	baseline, err := parseBenchFile(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", flag.Arg(1), err)
		os.Exit(2)
	}

	rows, regressions := compare(current, baseline)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
			os.Exit(2)
		}
	} else {
		printTable(rows)
	}

	if regressions > 0 {
		fmt.Fprintf(os.Stderr, "%d benchmark(s) regressed beyond %.0f%%\n",
			regressions, *threshold*100)
		os.Exit(1)
	}
}

// parseBenchFile extracts the benchmark lines from one `go test -bench` run.
func parseBenchFile(path string) (map[string]measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	results := make(map[string]measurement)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := benchLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		ns, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		allocs := 0
		if m[3] != "" {
			allocs, _ = strconv.Atoi(m[3])
		}
		results[m[1]] = measurement{nsPerOp: ns, allocsPerOp: allocs}
	}
	return results, scanner.Err()
}

// compare judges every current benchmark against its baseline. Benchmarks
// without a baseline are reported but never fail the run.
func compare(current, baseline map[string]measurement) ([]row, int) {
	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows []row
	regressions := 0
	for _, name := range names {
		cur := current[name]
		base, ok := baseline[name]
		if !ok {
			rows = append(rows, row{Name: name, CurrentNs: cur.nsPerOp, Verdict: "new"})
			continue
		}

		delta := 0.0
		if base.nsPerOp > 0 {
			delta = (cur.nsPerOp - base.nsPerOp) / base.nsPerOp
		}
		allocGrowth := 0.0
		if base.allocsPerOp > 0 {
			allocGrowth = float64(cur.allocsPerOp-base.allocsPerOp) / float64(base.allocsPerOp)
		}

		r := row{Name: name, CurrentNs: cur.nsPerOp, BaseNs: base.nsPerOp, DeltaPct: delta * 100}
		switch {
		case delta > *threshold || allocGrowth > *threshold:
			r.Verdict = "regression"
			regressions++
		case delta < -*threshold:
			r.Verdict = "improvement"
		default:
			r.Verdict = "ok"
		}
		rows = append(rows, r)
	}
	return rows, regressions
}

func printTable(rows []row) {
	fmt.Printf("%-56s %12s %12s %9s  %s\n", "BENCHMARK", "CURRENT", "BASELINE", "DELTA", "VERDICT")
	fmt.Println(strings.Repeat("-", 100))
	for _, r := range rows {
		if r.Verdict == "ok" && !*showAll {
			continue
		}
		baseCol, deltaCol := "-", "-"
		if r.BaseNs > 0 {
			baseCol = fmt.Sprintf("%.0f ns", r.BaseNs)
			deltaCol = fmt.Sprintf("%+.1f%%", r.DeltaPct)
		}
		fmt.Printf("%-56s %9.0f ns %12s %9s  %s\n",
			shorten(r.Name, 56), r.CurrentNs, baseCol, deltaCol, r.Verdict)
	}
	fmt.Println(strings.Repeat("-", 100))
}

func shorten(name string, max int) string {
	if len(name) <= max {
		return name
	}
	return name[:max-3] + "..."
}
