// Package signature derives the fingerprints the pipeline uses to decide
// whether a document's index entry is still correct: a stable hash of the
// analyzer configuration and a per-document hash of the token stream the
// analyzer would produce.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/blevesearch/go-porterstemmer"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/indexwarden/internal/document"
)

// Source field names accepted in Config.SourceFields.
const (
	FieldTitle    = "title"
	FieldAuthor   = "author"
	FieldFileName = "filename"
	FieldKeywords = "keywords"
)

// tokenHashCacheSize bounds the token-hash LRU. Audit runs recompute
// signatures for the whole population; the cache keeps unchanged documents
// cheap.
const tokenHashCacheSize = 4096

// Config is the indexing configuration covered by the analyzer fingerprint.
// Any change to these fields changes the fingerprint and therefore drifts
// every indexed document.
type Config struct {
	// Profile names the analyzer profile in use.
	Profile string `yaml:"profile"`
	// Lowercase folds tokens to lower case before hashing.
	Lowercase bool `yaml:"lowercase"`
	// Stemming applies Porter stemming to tokens.
	Stemming bool `yaml:"stemming"`
	// IndexNumbers keeps purely numeric tokens; when false they are dropped.
	IndexNumbers bool `yaml:"index_numbers"`
	// MinTokenLength drops tokens shorter than this many runes.
	MinTokenLength int `yaml:"min_token_length"`
	// StopWords are removed from the token stream. Order is irrelevant
	// (treated as a set in the fingerprint).
	StopWords []string `yaml:"stop_words"`
	// SourceFields lists the document fields feeding the token stream, in
	// order. Order is part of the fingerprint.
	SourceFields []string `yaml:"source_fields"`
}

// DefaultConfig returns the standard analyzer configuration.
func DefaultConfig() Config {
	return Config{
		Profile:        "standard",
		Lowercase:      true,
		Stemming:       false,
		IndexNumbers:   true,
		MinTokenLength: 2,
		StopWords:      []string{"a", "an", "and", "of", "or", "the"},
		SourceFields:   []string{FieldTitle, FieldAuthor, FieldFileName, FieldKeywords},
	}
}

// Validate checks the configuration for values the calculator cannot work
// with.
func (c Config) Validate() error {
	if c.Profile == "" {
		return fmt.Errorf("analyzer profile must not be empty")
	}
	if c.MinTokenLength < 1 {
		return fmt.Errorf("min_token_length must be at least 1, got %d", c.MinTokenLength)
	}
	if len(c.SourceFields) == 0 {
		return fmt.Errorf("at least one source field is required")
	}
	for _, f := range c.SourceFields {
		switch f {
		case FieldTitle, FieldAuthor, FieldFileName, FieldKeywords:
		default:
			return fmt.Errorf("unknown source field %q", f)
		}
	}
	return nil
}

// canonical returns the configuration in its canonical form: a map (JSON
// object keys serialize sorted) with the stop-word set sorted. Field order
// in SourceFields is meaningful and kept as-is.
func (c Config) canonical() map[string]any {
	stop := append([]string(nil), c.StopWords...)
	sort.Strings(stop)
	fields := append([]string(nil), c.SourceFields...)
	return map[string]any{
		"profile":          c.Profile,
		"lowercase":        c.Lowercase,
		"stemming":         c.Stemming,
		"index_numbers":    c.IndexNumbers,
		"min_token_length": c.MinTokenLength,
		"stop_words":       stop,
		"source_fields":    fields,
	}
}

// Signature is the per-document result of Compute.
type Signature struct {
	// TokenHash fingerprints the trigram/token stream; empty means the
	// document has no tokenizable content.
	TokenHash string
	// NormalizedTitle is the title as the index stores it.
	NormalizedTitle string
}

// Calculator computes analyzer and document fingerprints for one analyzer
// configuration. Safe for concurrent use.
type Calculator struct {
	cfg       Config
	version   string
	stopWords map[string]struct{}
	cache     *lru.Cache[string, string]
}

// NewCalculator validates the configuration and precomputes the analyzer
// fingerprint.
func NewCalculator(cfg Config) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analyzer config: %w", err)
	}

	data, err := json.Marshal(cfg.canonical())
	if err != nil {
		return nil, fmt.Errorf("failed to serialize analyzer config: %w", err)
	}
	sum := sha256.Sum256(data)

	stop := make(map[string]struct{}, len(cfg.StopWords))
	for _, w := range cfg.StopWords {
		stop[strings.ToLower(w)] = struct{}{}
	}

	cache, err := lru.New[string, string](tokenHashCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create token hash cache: %w", err)
	}

	return &Calculator{
		cfg:       cfg,
		version:   hex.EncodeToString(sum[:])[:16],
		stopWords: stop,
		cache:     cache,
	}, nil
}

// AnalyzerVersion returns the stable fingerprint of the analyzer
// configuration. Two configs differing only in stop-word order or in-memory
// field ordering produce the same version.
func (c *Calculator) AnalyzerVersion() string {
	return c.version
}

// Compute derives the document's token hash and normalized title from the
// configured source fields.
func (c *Calculator) Compute(d *document.Document) Signature {
	sig := Signature{NormalizedTitle: NormalizeTitle(d.Title)}

	var raw strings.Builder
	for _, field := range c.cfg.SourceFields {
		raw.WriteString(c.fieldText(d, field))
		raw.WriteByte('\x00')
	}
	key := hashHex(raw.String())

	if cached, ok := c.cache.Get(key); ok {
		sig.TokenHash = cached
		return sig
	}

	var stream []string
	for _, field := range c.cfg.SourceFields {
		stream = append(stream, c.tokenStream(c.fieldText(d, field))...)
	}
	if len(stream) > 0 {
		sig.TokenHash = hashHex(strings.Join(stream, "\n"))
	}

	c.cache.Add(key, sig.TokenHash)
	return sig
}

func (c *Calculator) fieldText(d *document.Document, field string) string {
	switch field {
	case FieldTitle:
		return d.Title
	case FieldAuthor:
		return d.Author
	case FieldFileName:
		return d.FileName
	case FieldKeywords:
		return d.KeywordText()
	default:
		return ""
	}
}

// tokenStream normalizes the text, tokenizes it, applies the configured
// filters, and expands each surviving token into its trigram sequence.
// Tokens shorter than a trigram contribute themselves.
func (c *Calculator) tokenStream(text string) []string {
	if text == "" {
		return nil
	}
	if c.cfg.Lowercase {
		text = strings.ToLower(text)
	}

	var stream []string
	for _, token := range splitTokens(text) {
		if len([]rune(token)) < c.cfg.MinTokenLength {
			continue
		}
		if _, stopped := c.stopWords[strings.ToLower(token)]; stopped {
			continue
		}
		if !c.cfg.IndexNumbers && isNumeric(token) {
			continue
		}
		if c.cfg.Stemming {
			token = porterstemmer.StemString(token)
		}
		stream = append(stream, trigrams(token)...)
	}
	return stream
}

// NormalizeTitle lowercases a title and collapses runs of whitespace, the
// form the index stores and ConfirmIndexed stamps.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// splitTokens breaks text on any rune that is not a letter or digit.
func splitTokens(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// trigrams returns the rune-wise trigram sequence of a token; tokens shorter
// than three runes are returned whole.
func trigrams(token string) []string {
	runes := []rune(token)
	if len(runes) <= 3 {
		return []string{token}
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		out = append(out, string(runes[i:i+3]))
	}
	return out
}

func isNumeric(token string) bool {
	for _, r := range token {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(token) > 0
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
