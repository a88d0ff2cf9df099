package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexwarden/internal/signature"
)

// Edge Case Tests - These test scenarios that could cause silent failures
// or unexpected behavior in the layered merge and validation.

// =============================================================================
// FindArchiveRoot Edge Cases
// =============================================================================

// TestFindArchiveRoot_DeepNesting_FindsRoot tests that deep nesting
// correctly finds the archive root.
func TestFindArchiveRoot_DeepNesting_FindsRoot(t *testing.T) {
	// Given: a deeply nested directory structure with .indexwarden at root
	tmpDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, DataDirName), 0o755))
	deepNested := filepath.Join(tmpDir, "a", "b", "c", "d", "e", "f", "g", "h")
	require.NoError(t, os.MkdirAll(deepNested, 0o755))

	// When: finding the archive root from the deep nested directory
	root, err := FindArchiveRoot(deepNested)

	// Then: the archive root is returned
	require.NoError(t, err)
	assert.Equal(t, tmpDir, root)
}

// TestFindArchiveRoot_RelativePath_ResolvesToAbsolute tests that relative
// paths are resolved to absolute paths.
func TestFindArchiveRoot_RelativePath_ResolvesToAbsolute(t *testing.T) {
	// Given: an archive root
	tmpDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, DataDirName), 0o755))

	// Save and restore working directory
	oldWd, _ := os.Getwd()
	defer func() { _ = os.Chdir(oldWd) }()
	require.NoError(t, os.Chdir(tmpDir))

	// When: finding the archive root with a relative path
	root, err := FindArchiveRoot(".")

	// Then: absolute path is returned
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(root), "Root should be absolute path")
	// Compare with EvalSymlinks to handle /var -> /private/var on macOS
	expectedRoot, _ := filepath.EvalSymlinks(tmpDir)
	actualRoot, _ := filepath.EvalSymlinks(root)
	assert.Equal(t, expectedRoot, actualRoot)
}

// =============================================================================
// Config Merge Edge Cases
// =============================================================================

// TestLoad_ZeroValuesNotMerged tests that explicit zero values in config
// don't override defaults (potential silent failure).
func TestLoad_ZeroValuesNotMerged(t *testing.T) {
	// Given: config with explicit zero values
	isolateUserConfig(t)
	tmpDir := t.TempDir()
	writeArchiveConfig(t, tmpDir, ConfigFileName, `
version: 1
outbox:
  max_batch_size: 0
  max_attempts: 0
store:
  cache_mb: 0
`)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: defaults are kept (zero values don't override)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Outbox.MaxBatchSize, "Zero should not override default max_batch_size")
	assert.Equal(t, 5, cfg.Outbox.MaxAttempts, "Zero should not override default max_attempts")
	assert.Equal(t, 64, cfg.Store.CacheMB, "Zero should not override default cache_mb")
	// Note: This documents the "can't set to zero" limitation
}

// TestMergeWith_AnalyzerReplacedWholesale tests that a config file setting
// the analyzer section replaces it entirely rather than merging field-wise.
func TestMergeWith_AnalyzerReplacedWholesale(t *testing.T) {
	// Given: a base config and an override naming a new analyzer profile
	base := NewConfig()
	override := &Config{
		Analyzer: signature.Config{
			Profile:        "minimal",
			Lowercase:      false,
			MinTokenLength: 3,
			SourceFields:   []string{"title"},
		},
	}

	// When: merging
	base.mergeWith(override)

	// Then: the entire analyzer section is the override's
	assert.Equal(t, "minimal", base.Analyzer.Profile)
	assert.False(t, base.Analyzer.Lowercase)
	assert.Equal(t, 3, base.Analyzer.MinTokenLength)
	assert.Equal(t, []string{"title"}, base.Analyzer.SourceFields)
	// Stop words from the default are gone, not merged in
	assert.Empty(t, base.Analyzer.StopWords)
}

// TestMergeWith_AnalyzerAbsent_KeepsDefaults tests that an override without
// an analyzer section leaves the default analyzer untouched.
func TestMergeWith_AnalyzerAbsent_KeepsDefaults(t *testing.T) {
	base := NewConfig()
	override := &Config{
		Outbox: OutboxConfig{MaxBatchSize: 10},
	}

	base.mergeWith(override)

	assert.Equal(t, "standard", base.Analyzer.Profile)
	assert.Equal(t, 10, base.Outbox.MaxBatchSize)
}

// TestMergeWith_RepairAdoptedWithSection tests the boolean adoption rule:
// repair is taken from the override only when the audit section is
// otherwise present.
func TestMergeWith_RepairAdoptedWithSection(t *testing.T) {
	// Given: an override with repair=false alongside another audit field
	base := NewConfig()
	override := &Config{
		Audit: AuditConfig{Interval: "6h", Repair: false},
	}

	// When: merging
	base.mergeWith(override)

	// Then: repair is adopted
	assert.False(t, base.Audit.Repair)
	assert.Equal(t, "6h", base.Audit.Interval)
}

// TestMergeWith_RepairAloneNotAdopted documents the limitation that a bare
// repair=false with no sibling fields cannot be distinguished from an
// absent section.
func TestMergeWith_RepairAloneNotAdopted(t *testing.T) {
	base := NewConfig()
	override := &Config{
		Audit: AuditConfig{Repair: false},
	}

	base.mergeWith(override)

	// The default survives; use INDEXWARDEN_AUDIT_REPAIR for a hard off
	assert.True(t, base.Audit.Repair)
}

// =============================================================================
// Validation Edge Cases
// =============================================================================

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "negative batch size",
			mutate:  func(c *Config) { c.Outbox.MaxBatchSize = -1 },
			wantErr: "outbox.max_batch_size must be positive",
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *Config) { c.Outbox.MaxAttempts = 0 },
			wantErr: "outbox.max_attempts must be positive",
		},
		{
			name:    "malformed dispatch interval",
			mutate:  func(c *Config) { c.Outbox.DispatchInterval = "soon" },
			wantErr: "outbox.dispatch_interval is not a valid duration",
		},
		{
			name:    "negative backoff",
			mutate:  func(c *Config) { c.Outbox.InitialBackoff = "-1s" },
			wantErr: "outbox.initial_backoff must be positive",
		},
		{
			name: "max backoff below initial",
			mutate: func(c *Config) {
				c.Outbox.InitialBackoff = "10s"
				c.Outbox.MaxBackoff = "2s"
			},
			wantErr: "outbox.max_backoff",
		},
		{
			name:    "malformed audit interval",
			mutate:  func(c *Config) { c.Audit.Interval = "daily" },
			wantErr: "audit.interval is not a valid duration",
		},
		{
			name:    "jitter at one",
			mutate:  func(c *Config) { c.Audit.Jitter = 1.0 },
			wantErr: "audit.jitter must be in [0, 1)",
		},
		{
			name:    "negative jitter",
			mutate:  func(c *Config) { c.Audit.Jitter = -0.1 },
			wantErr: "audit.jitter must be in [0, 1)",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level must be",
		},
		{
			name: "metrics enabled without addr",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.ListenAddr = ""
			},
			wantErr: "metrics.listen_addr must be set",
		},
		{
			name:    "empty analyzer profile",
			mutate:  func(c *Config) { c.Analyzer.Profile = "" },
			wantErr: "analyzer",
		},
		{
			name:    "unknown analyzer source field",
			mutate:  func(c *Config) { c.Analyzer.SourceFields = []string{"content"} },
			wantErr: "unknown source field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_EmptyDurationsAllowed(t *testing.T) {
	// Given: a config with duration fields cleared
	cfg := NewConfig()
	cfg.Outbox.DispatchInterval = ""
	cfg.Audit.Interval = ""
	cfg.Store.BusyTimeout = ""

	// When: validating
	err := cfg.Validate()

	// Then: empty strings are fine; the accessors fall back to defaults
	assert.NoError(t, err)
}

// =============================================================================
// Config File Permission Edge Cases
// =============================================================================

// TestLoad_UnreadableConfigFile_ReturnsError tests that unreadable config
// files return an error.
func TestLoad_UnreadableConfigFile_ReturnsError(t *testing.T) {
	// Skip on CI or if running as root
	if os.Getuid() == 0 {
		t.Skip("Test requires non-root user")
	}

	// Given: a config file with no read permissions
	isolateUserConfig(t)
	tmpDir := t.TempDir()
	writeArchiveConfig(t, tmpDir, ConfigFileName, "version: 1")
	configPath := ProjectConfigPath(tmpDir)
	require.NoError(t, os.Chmod(configPath, 0o000))
	defer func() { _ = os.Chmod(configPath, 0o644) }()

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: error should be returned
	require.Error(t, err, "Load should fail for unreadable config file")
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "read", "Error should mention read failure")
}

// =============================================================================
// Round Trip Edge Cases
// =============================================================================

// TestConfig_WriteYAML_RoundTrip tests that a written config loads back
// with the same pipeline values.
func TestConfig_WriteYAML_RoundTrip(t *testing.T) {
	// Given: a configuration with custom values
	isolateUserConfig(t)
	tmpDir := t.TempDir()
	require.NoError(t, os.MkdirAll(DataDir(tmpDir), 0o755))

	cfg := NewConfig()
	cfg.Outbox.MaxBatchSize = 17
	cfg.Outbox.InitialBackoff = "2s"
	cfg.Audit.Interval = "3h"
	cfg.Analyzer.Stemming = true

	// When: writing and loading back
	require.NoError(t, cfg.WriteYAML(ProjectConfigPath(tmpDir)))
	loaded, err := Load(tmpDir)
	require.NoError(t, err)

	// Then: values survive the round trip
	assert.Equal(t, 17, loaded.Outbox.MaxBatchSize)
	assert.Equal(t, "2s", loaded.Outbox.InitialBackoff)
	assert.Equal(t, "3h", loaded.Audit.Interval)
	assert.True(t, loaded.Analyzer.Stemming)
}

// TestConfig_WriteYAML_PreservesAnalyzerFingerprint tests that writing and
// reloading does not change the analyzer version.
func TestConfig_WriteYAML_PreservesAnalyzerFingerprint(t *testing.T) {
	isolateUserConfig(t)
	tmpDir := t.TempDir()
	require.NoError(t, os.MkdirAll(DataDir(tmpDir), 0o755))

	cfg := NewConfig()
	calcBefore, err := signature.NewCalculator(cfg.Analyzer)
	require.NoError(t, err)

	require.NoError(t, cfg.WriteYAML(ProjectConfigPath(tmpDir)))
	loaded, err := Load(tmpDir)
	require.NoError(t, err)

	calcAfter, err := signature.NewCalculator(loaded.Analyzer)
	require.NoError(t, err)
	assert.Equal(t, calcBefore.AnalyzerVersion(), calcAfter.AnalyzerVersion())
}
