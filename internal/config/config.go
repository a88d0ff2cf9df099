package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/indexwarden/internal/signature"
)

// Names of the on-disk pieces that make up an archive. Everything lives
// under <root>/.indexwarden.
const (
	DataDirName    = ".indexwarden"
	ConfigFileName = "config.yml"
	ArchiveDBName  = "archive.db"
	TokenIndexName = "token.bleve"
	TrigramDBName  = "trigram.db"
	LockFileName   = "warden.lock"
	PIDFileName    = "warden.pid"
)

// Fallbacks applied when a duration value is absent or malformed in every
// layer. Typed accessors below use these rather than erroring at the call
// site.
const (
	DefaultDispatchInterval = 5 * time.Second
	DefaultInitialBackoff   = 1 * time.Second
	DefaultMaxBackoff       = 5 * time.Minute
	DefaultAuditInterval    = 24 * time.Hour
	DefaultAuditMinInterval = time.Hour
	DefaultIterationTimeout = 10 * time.Minute
	DefaultBusyTimeout      = 5 * time.Second
)

// Config is the complete indexwarden configuration.
type Config struct {
	Version  int              `yaml:"version"`
	Store    StoreConfig      `yaml:"store"`
	Analyzer signature.Config `yaml:"analyzer"`
	Outbox   OutboxConfig     `yaml:"outbox"`
	Audit    AuditConfig      `yaml:"audit"`
	Logging  LoggingConfig    `yaml:"logging"`
	Metrics  MetricsConfig    `yaml:"metrics"`
}

// StoreConfig tunes the archive database.
type StoreConfig struct {
	// BusyTimeout is how long SQLite waits on a locked database before
	// giving up. Duration string, e.g. "5s".
	BusyTimeout string `yaml:"busy_timeout"`
	// CacheMB is the SQLite page-cache size in megabytes.
	CacheMB int `yaml:"cache_mb"`
}

// OutboxConfig tunes the event dispatcher.
type OutboxConfig struct {
	// DispatchInterval is the idle poll interval between empty batches.
	DispatchInterval string `yaml:"dispatch_interval"`
	// MaxBatchSize caps how many entries one iteration publishes.
	MaxBatchSize int `yaml:"max_batch_size"`
	// MaxAttempts is the delivery attempt ceiling per entry. Entries that
	// reach it are retained but no longer dispatched.
	MaxAttempts int `yaml:"max_attempts"`
	// InitialBackoff seeds the per-entry retry delay.
	InitialBackoff string `yaml:"initial_backoff"`
	// MaxBackoff caps the per-entry retry delay.
	MaxBackoff string `yaml:"max_backoff"`
}

// AuditConfig tunes the consistency audit loop.
type AuditConfig struct {
	// Interval is the cadence between audit runs. Values below MinInterval
	// are raised to it.
	Interval string `yaml:"interval"`
	// MinInterval is the floor applied to Interval.
	MinInterval string `yaml:"min_interval"`
	// IterationTimeout bounds a single audit run.
	IterationTimeout string `yaml:"iteration_timeout"`
	// Jitter is the random fraction applied to every scheduling delay.
	// Must be in [0, 1).
	Jitter float64 `yaml:"jitter"`
	// Repair enqueues reindex work for missing and drifted documents after
	// each run. Orphaned index entries are reported only, never deleted
	// here.
	Repair bool `yaml:"repair"`
}

// LoggingConfig configures the daemon log file.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// FilePath overrides the default ~/.indexwarden/logs/warden.log.
	FilePath  string `yaml:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// MetricsConfig configures the optional Prometheus listener.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Store: StoreConfig{
			BusyTimeout: "5s",
			CacheMB:     64,
		},
		Analyzer: signature.DefaultConfig(),
		Outbox: OutboxConfig{
			DispatchInterval: "5s",
			MaxBatchSize:     50,
			MaxAttempts:      5,
			InitialBackoff:   "1s",
			MaxBackoff:       "5m",
		},
		Audit: AuditConfig{
			Interval:         "24h",
			MinInterval:      "1h",
			IterationTimeout: "10m",
			Jitter:           0.1,
			Repair:           true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			FilePath:  "", // empty uses the default warden.log location
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9464",
		},
	}
}

// parseDurationOr parses s, returning fallback when s is empty, invalid,
// or non-positive.
func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// DispatchIntervalDuration returns the parsed idle poll interval.
func (o OutboxConfig) DispatchIntervalDuration() time.Duration {
	return parseDurationOr(o.DispatchInterval, DefaultDispatchInterval)
}

// InitialBackoffDuration returns the parsed retry backoff seed.
func (o OutboxConfig) InitialBackoffDuration() time.Duration {
	return parseDurationOr(o.InitialBackoff, DefaultInitialBackoff)
}

// MaxBackoffDuration returns the parsed retry backoff cap.
func (o OutboxConfig) MaxBackoffDuration() time.Duration {
	return parseDurationOr(o.MaxBackoff, DefaultMaxBackoff)
}

// IntervalDuration returns the audit interval with the floor applied.
func (a AuditConfig) IntervalDuration() time.Duration {
	interval := parseDurationOr(a.Interval, DefaultAuditInterval)
	floor := parseDurationOr(a.MinInterval, DefaultAuditMinInterval)
	if interval < floor {
		return floor
	}
	return interval
}

// MinIntervalDuration returns the parsed audit interval floor.
func (a AuditConfig) MinIntervalDuration() time.Duration {
	return parseDurationOr(a.MinInterval, DefaultAuditMinInterval)
}

// IterationTimeoutDuration returns the parsed per-run timeout.
func (a AuditConfig) IterationTimeoutDuration() time.Duration {
	return parseDurationOr(a.IterationTimeout, DefaultIterationTimeout)
}

// BusyTimeoutDuration returns the parsed SQLite busy timeout.
func (s StoreConfig) BusyTimeoutDuration() time.Duration {
	return parseDurationOr(s.BusyTimeout, DefaultBusyTimeout)
}

// GetUserConfigPath returns the path to the user/global configuration file.
// $XDG_CONFIG_HOME/indexwarden/config.yml when XDG_CONFIG_HOME is set,
// otherwise the platform user config dir.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "indexwarden", ConfigFileName)
	}
	base, err := os.UserConfigDir()
	if err != nil {
		// Fallback - should rarely happen
		return filepath.Join(os.TempDir(), ".config", "indexwarden", ConfigFileName)
	}
	return filepath.Join(base, "indexwarden", ConfigFileName)
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// DataDir returns the archive data directory under root.
func DataDir(root string) string {
	return filepath.Join(root, DataDirName)
}

// ProjectConfigPath returns the per-archive configuration file path.
func ProjectConfigPath(root string) string {
	return filepath.Join(root, DataDirName, ConfigFileName)
}

// ArchiveDBPath returns the primary store database path.
func ArchiveDBPath(root string) string {
	return filepath.Join(root, DataDirName, ArchiveDBName)
}

// TokenIndexPath returns the token index directory path.
func TokenIndexPath(root string) string {
	return filepath.Join(root, DataDirName, TokenIndexName)
}

// TrigramDBPath returns the trigram index database path.
func TrigramDBPath(root string) string {
	return filepath.Join(root, DataDirName, TrigramDBName)
}

// LockPath returns the single-active-instance lock file path.
func LockPath(root string) string {
	return filepath.Join(root, DataDirName, LockFileName)
}

// PIDPath returns the warden daemon pid file path.
func PIDPath(root string) string {
	return filepath.Join(root, DataDirName, PIDFileName)
}

// FindArchiveRoot walks up from startDir looking for a .indexwarden
// directory and returns the directory containing it.
func FindArchiveRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, DataDirName)) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return "", fmt.Errorf("no %s directory found in %s or any parent (run 'indexwarden init' first)", DataDirName, absDir)
		}
		currentDir = parentDir
	}
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil // No user config is fine
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration for the archive rooted at root.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (config dir /indexwarden/config.yml)
//  3. Archive config (<root>/.indexwarden/config.yml)
//  4. Environment variables (INDEXWARDEN_*)
func Load(root string) (*Config, error) {
	cfg := NewConfig()

	// Step 1: Load user/global config (if exists)
	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	// Step 2: Load archive config (overrides user config)
	if err := cfg.loadFromDir(root); err != nil {
		return nil, err
	}

	// Step 3: Apply environment variable overrides (highest precedence)
	cfg.applyEnvOverrides()

	// Step 4: Validate the final configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromDir attempts to load the archive configuration file.
func (c *Config) loadFromDir(root string) error {
	// Canonical spelling first
	ymlPath := ProjectConfigPath(root)
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// .yaml accepted as a fallback
	yamlPath := strings.TrimSuffix(ymlPath, ".yml") + ".yaml"
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Use a temporary struct for parsing to detect type errors
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Merge parsed values with defaults (only non-zero values)
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Store
	if other.Store.BusyTimeout != "" {
		c.Store.BusyTimeout = other.Store.BusyTimeout
	}
	if other.Store.CacheMB != 0 {
		c.Store.CacheMB = other.Store.CacheMB
	}

	// Analyzer replaces wholesale when the other config sets any of it.
	// A field-wise merge would produce a fingerprint no config file ever
	// contained.
	if other.Analyzer.Profile != "" || len(other.Analyzer.SourceFields) > 0 {
		c.Analyzer = other.Analyzer
	}

	// Outbox
	if other.Outbox.DispatchInterval != "" {
		c.Outbox.DispatchInterval = other.Outbox.DispatchInterval
	}
	if other.Outbox.MaxBatchSize != 0 {
		c.Outbox.MaxBatchSize = other.Outbox.MaxBatchSize
	}
	if other.Outbox.MaxAttempts != 0 {
		c.Outbox.MaxAttempts = other.Outbox.MaxAttempts
	}
	if other.Outbox.InitialBackoff != "" {
		c.Outbox.InitialBackoff = other.Outbox.InitialBackoff
	}
	if other.Outbox.MaxBackoff != "" {
		c.Outbox.MaxBackoff = other.Outbox.MaxBackoff
	}

	// Audit
	// Repair is boolean - can't distinguish "not set" from "set to false",
	// so adopt it only when the section is otherwise present
	if other.Audit.Interval != "" || other.Audit.MinInterval != "" ||
		other.Audit.IterationTimeout != "" || other.Audit.Jitter != 0 {
		c.Audit.Repair = other.Audit.Repair
	}
	if other.Audit.Interval != "" {
		c.Audit.Interval = other.Audit.Interval
	}
	if other.Audit.MinInterval != "" {
		c.Audit.MinInterval = other.Audit.MinInterval
	}
	if other.Audit.IterationTimeout != "" {
		c.Audit.IterationTimeout = other.Audit.IterationTimeout
	}
	if other.Audit.Jitter != 0 {
		c.Audit.Jitter = other.Audit.Jitter
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}

	// Metrics
	if other.Metrics.Enabled {
		c.Metrics.Enabled = true
	}
	if other.Metrics.ListenAddr != "" {
		c.Metrics.ListenAddr = other.Metrics.ListenAddr
		c.Metrics.Enabled = other.Metrics.Enabled
	}
}

// applyEnvOverrides applies INDEXWARDEN_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("INDEXWARDEN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("INDEXWARDEN_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}

	if v := os.Getenv("INDEXWARDEN_DISPATCH_INTERVAL"); v != "" {
		c.Outbox.DispatchInterval = v
	}
	if v := os.Getenv("INDEXWARDEN_MAX_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Outbox.MaxBatchSize = n
		}
	}
	if v := os.Getenv("INDEXWARDEN_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Outbox.MaxAttempts = n
		}
	}
	if v := os.Getenv("INDEXWARDEN_INITIAL_BACKOFF"); v != "" {
		c.Outbox.InitialBackoff = v
	}
	if v := os.Getenv("INDEXWARDEN_MAX_BACKOFF"); v != "" {
		c.Outbox.MaxBackoff = v
	}

	if v := os.Getenv("INDEXWARDEN_AUDIT_INTERVAL"); v != "" {
		c.Audit.Interval = v
	}
	if v := os.Getenv("INDEXWARDEN_AUDIT_TIMEOUT"); v != "" {
		c.Audit.IterationTimeout = v
	}
	if v := os.Getenv("INDEXWARDEN_AUDIT_JITTER"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 && f < 1 {
			c.Audit.Jitter = f
		}
	}
	if v := os.Getenv("INDEXWARDEN_AUDIT_REPAIR"); v != "" {
		c.Audit.Repair = strings.ToLower(v) == "true" || v == "1"
	}

	if v := os.Getenv("INDEXWARDEN_METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("INDEXWARDEN_METRICS_ADDR"); v != "" {
		c.Metrics.ListenAddr = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if err := c.Analyzer.Validate(); err != nil {
		return fmt.Errorf("analyzer: %w", err)
	}

	if c.Outbox.MaxBatchSize <= 0 {
		return fmt.Errorf("outbox.max_batch_size must be positive, got %d", c.Outbox.MaxBatchSize)
	}
	if c.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("outbox.max_attempts must be positive, got %d", c.Outbox.MaxAttempts)
	}

	// Duration strings must parse when present; empty falls back to the
	// default at the accessor
	durations := []struct {
		name  string
		value string
	}{
		{"outbox.dispatch_interval", c.Outbox.DispatchInterval},
		{"outbox.initial_backoff", c.Outbox.InitialBackoff},
		{"outbox.max_backoff", c.Outbox.MaxBackoff},
		{"audit.interval", c.Audit.Interval},
		{"audit.min_interval", c.Audit.MinInterval},
		{"audit.iteration_timeout", c.Audit.IterationTimeout},
		{"store.busy_timeout", c.Store.BusyTimeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s is not a valid duration: %q", d.name, d.value)
		}
		if parsed <= 0 {
			return fmt.Errorf("%s must be positive, got %q", d.name, d.value)
		}
	}

	if c.Outbox.MaxBackoffDuration() < c.Outbox.InitialBackoffDuration() {
		return fmt.Errorf("outbox.max_backoff %s must not be below outbox.initial_backoff %s",
			c.Outbox.MaxBackoff, c.Outbox.InitialBackoff)
	}

	if c.Audit.Jitter < 0 || c.Audit.Jitter >= 1 {
		return fmt.Errorf("audit.jitter must be in [0, 1), got %g", c.Audit.Jitter)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr must be set when metrics are enabled")
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}
