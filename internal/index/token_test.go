package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Token artifact (bleve)
// ============================================================================

func testRecord(id string) Record {
	return Record{
		DocumentID: id,
		Title:      "Quarterly Report " + id,
		Author:     "archivist",
		FileName:   id + ".pdf",
		Keywords:   "finance audit",
	}
}

func TestTokenArtifact_IndexAndAllIDs(t *testing.T) {
	// Given: an empty in-memory index
	idx, err := NewTokenArtifact("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	// When: three records are indexed
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, idx.Index(ctx, testRecord(id)))
	}

	// Then: the id-set holds all three
	ids, err := idx.AllIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.Contains(t, ids, "a")
	assert.Contains(t, ids, "b")
	assert.Contains(t, ids, "c")

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestTokenArtifact_IndexReplacesExistingEntry(t *testing.T) {
	idx, err := NewTokenArtifact("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, testRecord("a")))
	require.NoError(t, idx.Index(ctx, testRecord("a")))

	ids, err := idx.AllIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestTokenArtifact_DeleteIsIdempotent(t *testing.T) {
	// Given: one indexed record
	idx, err := NewTokenArtifact("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, testRecord("a")))

	// When/Then: deleting it, and deleting an absent id, both succeed
	require.NoError(t, idx.Delete(ctx, "a"))
	require.NoError(t, idx.Delete(ctx, "never-indexed"))

	ids, err := idx.AllIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTokenArtifact_PersistsAcrossReopen(t *testing.T) {
	// Given: a disk-backed index with one record
	path := filepath.Join(t.TempDir(), "token.bleve")
	idx, err := NewTokenArtifact(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, testRecord("a")))
	require.NoError(t, idx.Close())

	// When: reopened
	idx, err = NewTokenArtifact(path)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	// Then: the record survived
	ids, err := idx.AllIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "a")
}

func TestTokenArtifact_CorruptedIndexIsClearedAndRecreated(t *testing.T) {
	// Given: an index directory with an empty (corrupt) meta file
	path := filepath.Join(t.TempDir(), "token.bleve")
	require.NoError(t, os.MkdirAll(path, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), nil, 0644))

	// When: the artifact opens it
	idx, err := NewTokenArtifact(path)

	// Then: it comes up empty instead of failing — the artifact is derived
	// data and the audit reschedules what was lost
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ids, err := idx.AllIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTokenArtifact_ClosedIndexRejectsWrites(t *testing.T) {
	idx, err := NewTokenArtifact("")
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	assert.Error(t, idx.Index(context.Background(), testRecord("a")))
	_, err = idx.AllIDs(context.Background())
	assert.Error(t, err)
}
