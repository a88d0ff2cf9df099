package signature

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexwarden/internal/document"
)

func testDoc() *document.Document {
	d := document.New(document.NewParams{
		ID:          "doc-1",
		Title:       "Quarterly Report",
		Author:      "j.smith",
		FileName:    "q1-report.pdf",
		Keywords:    []string{"finance"},
		ContentHash: "hash-v1",
	})
	d.TakeEvents()
	return d
}

func mustCalculator(t *testing.T, cfg Config) *Calculator {
	t.Helper()
	calc, err := NewCalculator(cfg)
	require.NoError(t, err)
	return calc
}

func TestAnalyzerVersion_Stable(t *testing.T) {
	a := mustCalculator(t, DefaultConfig())
	b := mustCalculator(t, DefaultConfig())
	assert.Equal(t, a.AnalyzerVersion(), b.AnalyzerVersion())
	assert.Len(t, a.AnalyzerVersion(), 16)
}

func TestAnalyzerVersion_StopWordOrderIrrelevant(t *testing.T) {
	cfg1 := DefaultConfig()
	cfg1.StopWords = []string{"the", "a", "of"}
	cfg2 := DefaultConfig()
	cfg2.StopWords = []string{"of", "the", "a"}

	assert.Equal(t,
		mustCalculator(t, cfg1).AnalyzerVersion(),
		mustCalculator(t, cfg2).AnalyzerVersion(),
		"stop words are a set; order must not change the fingerprint")
}

func TestAnalyzerVersion_SourceFieldOrderMatters(t *testing.T) {
	cfg1 := DefaultConfig()
	cfg1.SourceFields = []string{FieldTitle, FieldAuthor}
	cfg2 := DefaultConfig()
	cfg2.SourceFields = []string{FieldAuthor, FieldTitle}

	assert.NotEqual(t,
		mustCalculator(t, cfg1).AnalyzerVersion(),
		mustCalculator(t, cfg2).AnalyzerVersion(),
		"source field order feeds the token stream and must be fingerprinted")
}

func TestAnalyzerVersion_ChangesWithFlags(t *testing.T) {
	base := mustCalculator(t, DefaultConfig())

	stemmed := DefaultConfig()
	stemmed.Stemming = true
	assert.NotEqual(t, base.AnalyzerVersion(), mustCalculator(t, stemmed).AnalyzerVersion())

	noNumbers := DefaultConfig()
	noNumbers.IndexNumbers = false
	assert.NotEqual(t, base.AnalyzerVersion(), mustCalculator(t, noNumbers).AnalyzerVersion())
}

func TestCompute_Deterministic(t *testing.T) {
	calc := mustCalculator(t, DefaultConfig())
	d := testDoc()

	first := calc.Compute(d)
	second := calc.Compute(d)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.TokenHash)
	assert.Equal(t, "quarterly report", first.NormalizedTitle)
}

func TestCompute_EmptyContentHasNoTokenHash(t *testing.T) {
	calc := mustCalculator(t, DefaultConfig())
	d := document.New(document.NewParams{ID: "doc-2"})
	d.TakeEvents()

	sig := calc.Compute(d)
	assert.Empty(t, sig.TokenHash, "no tokenizable content means no token hash")
	assert.Empty(t, sig.NormalizedTitle)
}

func TestCompute_ChangesWithTitle(t *testing.T) {
	calc := mustCalculator(t, DefaultConfig())
	d := testDoc()
	before := calc.Compute(d)

	d.Rename("Annual Summary")
	after := calc.Compute(d)

	assert.NotEqual(t, before.TokenHash, after.TokenHash)
	assert.Equal(t, "annual summary", after.NormalizedTitle)
}

func TestCompute_StopWordsFiltered(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SourceFields = []string{FieldTitle}
	calc := mustCalculator(t, cfg)

	withStop := document.New(document.NewParams{ID: "a", Title: "design of the archive"})
	withoutStop := document.New(document.NewParams{ID: "b", Title: "design archive"})

	assert.Equal(t,
		calc.Compute(withStop).TokenHash,
		calc.Compute(withoutStop).TokenHash,
		"stop words must not contribute to the token stream")
}

func TestCompute_NumberFolding(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SourceFields = []string{FieldTitle}
	cfg.IndexNumbers = false
	calc := mustCalculator(t, cfg)

	numbered := document.New(document.NewParams{ID: "a", Title: "report 2026 final"})
	plain := document.New(document.NewParams{ID: "b", Title: "report final"})

	assert.Equal(t, calc.Compute(numbered).TokenHash, calc.Compute(plain).TokenHash)
}

func TestTrigrams(t *testing.T) {
	tests := []struct {
		token string
		want  []string
	}{
		{"ab", []string{"ab"}},
		{"abc", []string{"abc"}},
		{"abcd", []string{"abc", "bcd"}},
		{"report", []string{"rep", "epo", "por", "ort"}},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, trigrams(tt.token))
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "quarterly report", NormalizeTitle("  Quarterly\t Report "))
	assert.Equal(t, "", NormalizeTitle("   "))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty profile", func(c *Config) { c.Profile = "" }, "profile"},
		{"zero min token length", func(c *Config) { c.MinTokenLength = 0 }, "min_token_length"},
		{"no source fields", func(c *Config) { c.SourceFields = nil }, "source field"},
		{"unknown source field", func(c *Config) { c.SourceFields = []string{"body"} }, "unknown source field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}

func TestEvaluator_NeedsReindex(t *testing.T) {
	calc := mustCalculator(t, DefaultConfig())
	eval := NewEvaluator(calc, 1)

	fresh := func() *document.Document {
		d := testDoc()
		sig := calc.Compute(d)
		d.ConfirmIndexed(1, time.Now().UTC(), calc.AnalyzerVersion(), sig.TokenHash, sig.NormalizedTitle)
		return d
	}

	t.Run("fresh document does not need reindex", func(t *testing.T) {
		assert.False(t, eval.NeedsReindex(fresh()))
	})

	t.Run("stale flag forces reindex", func(t *testing.T) {
		d := fresh()
		d.RequestReindex()
		assert.True(t, eval.NeedsReindex(d))
	})

	t.Run("schema version behind target forces reindex", func(t *testing.T) {
		behind := NewEvaluator(calc, 2)
		assert.True(t, behind.NeedsReindex(fresh()))
	})

	t.Run("analyzer version mismatch is drift", func(t *testing.T) {
		d := testDoc()
		sig := calc.Compute(d)
		d.ConfirmIndexed(1, time.Now().UTC(), "stale-analyzer", sig.TokenHash, sig.NormalizedTitle)
		assert.True(t, eval.NeedsReindex(d))
	})

	t.Run("content hash mismatch forces reindex", func(t *testing.T) {
		d := fresh()
		// Simulate an index stamped against older content.
		d.Index.IndexedContentHash = "other-hash"
		d.Index.IsStale = false
		assert.True(t, eval.NeedsReindex(d))
	})

	t.Run("token hash mismatch forces reindex", func(t *testing.T) {
		d := fresh()
		d.Index.TokenHash = "0000"
		assert.True(t, eval.NeedsReindex(d))
	})
}

// BenchmarkCompute measures signature derivation. The cached case is the
// consumer's steady state; the unique case pays the full token pipeline.
func BenchmarkCompute(b *testing.B) {
	calc, err := NewCalculator(DefaultConfig())
	if err != nil {
		b.Fatalf("calculator: %v", err)
	}

	b.Run("cached", func(b *testing.B) {
		doc := testDoc()
		calc.Compute(doc)

		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			calc.Compute(doc)
		}
	})

	b.Run("unique", func(b *testing.B) {
		doc := testDoc()

		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			doc.Title = "Quarterly Report " + strconv.Itoa(i)
			calc.Compute(doc)
		}
	})
}
