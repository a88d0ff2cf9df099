package preflight

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/indexwarden/internal/config"
)

// CheckArchive probes the primary archive database read-only. The archive
// is the source of truth, so corruption here is a hard failure; a missing
// file just means init hasn't run yet.
func (c *Checker) CheckArchive(root string) CheckResult {
	result := CheckResult{
		Name:     "archive",
		Required: true,
	}

	path := config.ArchiveDBPath(root)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		result.Status = StatusWarn
		result.Message = "not initialized (run 'indexwarden init')"
		result.Details = fmt.Sprintf("Archive: %s", path)
		return result
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot open: %v", err)
		return result
	}
	defer func() { _ = db.Close() }()

	var integrity string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&integrity); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("integrity check failed: %v", err)
		return result
	}
	if integrity != "ok" {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("corrupted: %s", integrity)
		result.Details = "The archive is the primary store; restore from backup before continuing"
		return result
	}

	result.Status = StatusPass
	result.Message = "ok"
	var docs int
	if err := db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&docs); err == nil {
		result.Message = fmt.Sprintf("ok (%d documents)", docs)
	}
	result.Details = fmt.Sprintf("Archive: %s", path)
	return result
}

// CheckTokenArtifact inspects the token index directory. Artifacts are
// derived data, so problems warn rather than fail: a rebuild recreates them.
func (c *Checker) CheckTokenArtifact(root string) CheckResult {
	result := CheckResult{
		Name:     "token_artifact",
		Required: false,
	}

	path := config.TokenIndexPath(root)
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			result.Status = StatusWarn
			result.Message = "missing (created on next rebuild)"
			result.Details = fmt.Sprintf("Token index: %s", path)
			return result
		}
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot access: %v", err)
		return result
	}

	if len(entries) == 0 {
		result.Status = StatusWarn
		result.Message = "empty (run 'indexwarden rebuild')"
		result.Details = fmt.Sprintf("Token index: %s", path)
		return result
	}

	// The bleve metadata file must parse or the index won't open cleanly
	meta, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		result.Status = StatusWarn
		result.Message = "index_meta.json unreadable (run 'indexwarden rebuild')"
		result.Details = fmt.Sprintf("Token index: %s", path)
		return result
	}
	var parsed map[string]any
	if err := json.Unmarshal(meta, &parsed); err != nil {
		result.Status = StatusWarn
		result.Message = "index_meta.json corrupt (run 'indexwarden rebuild')"
		result.Details = fmt.Sprintf("Token index: %s", path)
		return result
	}

	// Count total size of index files
	var totalSize int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Count what we can
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	result.Status = StatusPass
	result.Message = fmt.Sprintf("ok (%s)", formatBytes(uint64(totalSize)))
	result.Details = fmt.Sprintf("Token index: %s", path)
	return result
}

// CheckTrigramArtifact probes the trigram index database read-only.
func (c *Checker) CheckTrigramArtifact(root string) CheckResult {
	result := CheckResult{
		Name:     "trigram_artifact",
		Required: false,
	}

	path := config.TrigramDBPath(root)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		result.Status = StatusWarn
		result.Message = "missing (created on next rebuild)"
		result.Details = fmt.Sprintf("Trigram index: %s", path)
		return result
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot open: %v", err)
		return result
	}
	defer func() { _ = db.Close() }()

	var integrity string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&integrity); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("integrity check failed: %v (run 'indexwarden rebuild')", err)
		return result
	}
	if integrity != "ok" {
		result.Status = StatusWarn
		result.Message = "corrupted (run 'indexwarden rebuild')"
		return result
	}

	result.Status = StatusPass
	result.Message = "ok"
	result.Details = fmt.Sprintf("Trigram index: %s", path)
	return result
}
