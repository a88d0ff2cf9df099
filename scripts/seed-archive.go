//go:build ignore

// Package main seeds an indexwarden archive with synthetic documents for
// load testing and benchmarking the pipeline end to end.
// Usage: go run scripts/seed-archive.go -docs 1000 -root /tmp/bench-archive
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/Aman-CERP/indexwarden/internal/config"
	"github.com/Aman-CERP/indexwarden/pkg/warden"
)

var (
	numDocs = flag.Int("docs", 1000, "Number of documents to seed")
	rootDir = flag.String("root", ".", "Archive root directory (created if missing)")
	seed    = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var (
	subjects = []string{
		"Quarterly Report", "Annual Review", "Invoice", "Purchase Order",
		"Meeting Minutes", "Project Proposal", "Audit Findings", "Contract",
		"Compliance Checklist", "Incident Summary", "Budget Forecast",
		"Onboarding Guide", "Release Notes", "Vendor Agreement",
	}
	teams = []string{
		"Finance", "Legal", "Operations", "Engineering", "Facilities",
		"Procurement", "Human Resources", "Security",
	}
	keywordPool = []string{
		"quarterly", "annual", "draft", "final", "confidential", "archived",
		"approved", "pending", "internal", "external", "urgent", "routine",
	}
	extensions = []string{".pdf", ".docx", ".xlsx", ".md", ".txt"}
)

func main() {
	flag.Parse()
	r := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*rootDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating root directory: %v\n", err)
		os.Exit(1)
	}

	if _, err := os.Stat(config.ProjectConfigPath(*rootDir)); os.IsNotExist(err) {
		if err := warden.Init(*rootDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing archive: %v\n", err)
			os.Exit(1)
		}
	}

	w, err := warden.Open(*rootDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening archive: %v\n", err)
		os.Exit(1)
	}
	defer w.Close()

	fmt.Printf("Seeding %d documents into %s...\n", *numDocs, w.Root())

	ctx := context.Background()
	created := 0
	for i := 0; i < *numDocs; i++ {
		if _, err := w.CreateDocument(ctx, documentParams(r, i)); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating document %d: %v\n", i, err)
			continue
		}
		created++
		if created%500 == 0 {
			fmt.Printf("  %d documents...\n", created)
		}
	}

	stats, err := w.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading stats: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Seeded %d documents (%d pending outbox entries).\n", created, stats.OutboxPending)
	fmt.Println("Run 'indexwarden rebuild' or start 'indexwarden serve' to index them.")
}

func documentParams(r *rand.Rand, i int) warden.NewParams {
	subject := pick(r, subjects)
	team := pick(r, teams)
	title := fmt.Sprintf("%s %s %d", team, subject, 2020+r.Intn(7))

	kws := make([]string, 0, 3)
	for _, k := range r.Perm(len(keywordPool))[:3] {
		kws = append(kws, keywordPool[k])
	}

	return warden.NewParams{
		ID:          fmt.Sprintf("doc-%06d", i),
		Title:       title,
		Author:      team + " Team",
		FileName:    slug(title) + pick(r, extensions),
		Keywords:    kws,
		ContentHash: randomHash(r),
		ContentSize: int64(1024 + r.Intn(4*1024*1024)),
	}
}

func pick(r *rand.Rand, pool []string) string {
	return pool[r.Intn(len(pool))]
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "-")
}

func randomHash(r *rand.Rand) string {
	buf := make([]byte, 32)
	r.Read(buf)
	return fmt.Sprintf("%x", buf)
}
