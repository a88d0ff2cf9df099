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
// Trigram artifact (SQLite FTS5)
// ============================================================================

func TestTrigramArtifact_IndexAndAllIDs(t *testing.T) {
	// Given: an empty in-memory index
	idx, err := NewTrigramArtifact("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	// When
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, idx.Index(ctx, testRecord(id)))
	}

	// Then
	ids, err := idx.AllIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "a")
	assert.Contains(t, ids, "b")

	count, err := idx.DocCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestTrigramArtifact_IndexReplacesExistingEntry(t *testing.T) {
	idx, err := NewTrigramArtifact("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, testRecord("a")))
	rec := testRecord("a")
	rec.Title = "Updated Title"
	require.NoError(t, idx.Index(ctx, rec))

	ids, err := idx.AllIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestTrigramArtifact_DeleteIsIdempotent(t *testing.T) {
	idx, err := NewTrigramArtifact("")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, testRecord("a")))

	require.NoError(t, idx.Delete(ctx, "a"))
	require.NoError(t, idx.Delete(ctx, "never-indexed"))

	ids, err := idx.AllIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTrigramArtifact_PersistsAcrossReopen(t *testing.T) {
	// Given: a disk-backed index with one record
	path := filepath.Join(t.TempDir(), "trigram.db")
	idx, err := NewTrigramArtifact(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, testRecord("a")))
	require.NoError(t, idx.Close())

	// When: reopened
	idx, err = NewTrigramArtifact(path)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	// Then
	ids, err := idx.AllIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "a")
}

func TestTrigramArtifact_CorruptedFileIsClearedAndRecreated(t *testing.T) {
	// Given: a file that is not a SQLite database
	path := filepath.Join(t.TempDir(), "trigram.db")
	require.NoError(t, os.WriteFile(path, []byte("junk"), 0644))

	// When
	idx, err := NewTrigramArtifact(path)

	// Then: cleared and recreated empty
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ids, err := idx.AllIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTrigramArtifact_ClosedIndexRejectsWrites(t *testing.T) {
	idx, err := NewTrigramArtifact("")
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	assert.Error(t, idx.Index(context.Background(), testRecord("a")))
	_, err = idx.AllIDs(context.Background())
	assert.Error(t, err)
}
