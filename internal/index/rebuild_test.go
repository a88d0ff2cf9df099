package index

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexwarden/internal/async"
	"github.com/Aman-CERP/indexwarden/internal/document"
	"github.com/Aman-CERP/indexwarden/internal/signature"
)

// ForEachDocument lets memArchive serve the rebuilder too.
func (m *memArchive) ForEachDocument(ctx context.Context, fn func(*document.Document) error) error {
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := fn(m.docs[id]); err != nil {
			return err
		}
	}
	return nil
}

func newTestRebuilder(t *testing.T, archive RebuildArchive, artifacts ...Artifact) *Rebuilder {
	t.Helper()
	calc, err := signature.NewCalculator(signature.DefaultConfig())
	require.NoError(t, err)
	return NewRebuilder(archive, artifacts, calc, 1, consumerLogger())
}

// ============================================================================
// Rebuild
// ============================================================================

func TestRebuild_IndexesEverythingAndSweepsOrphans(t *testing.T) {
	// Given: two documents, and an artifact carrying an orphaned entry
	a := indexTestDocument("a")
	b := indexTestDocument("b")
	archive := newMemArchive(a, b)
	token := newMemArtifact("token")
	trigram := newMemArtifact("trigram")
	token.indexed["zombie"] = Record{DocumentID: "zombie"}

	r := newTestRebuilder(t, archive, token, trigram)
	progress := async.NewRebuildProgress()

	// When
	err := r.Rebuild(context.Background(), progress)

	// Then: every document landed in every artifact
	require.NoError(t, err)
	assert.Contains(t, token.indexed, "a")
	assert.Contains(t, token.indexed, "b")
	assert.Contains(t, trigram.indexed, "a")
	assert.Contains(t, trigram.indexed, "b")

	// And: the orphan was swept — the rebuild is the one path allowed to
	assert.NotContains(t, token.indexed, "zombie")
	assert.Equal(t, []string{"zombie"}, token.deleted)

	// And: both documents were confirmed fresh
	assert.False(t, a.Index.IsStale)
	assert.False(t, b.Index.IsStale)

	snap := progress.Snapshot()
	assert.Equal(t, string(async.StageSweeping), snap.Stage)
	assert.Equal(t, 1, snap.OrphansSwept)
}

func TestRebuild_WritesEvenFreshDocuments(t *testing.T) {
	// Given: a document whose stored signature already matches (the consumer
	// would skip it)
	doc := indexTestDocument("a")
	calc, err := signature.NewCalculator(signature.DefaultConfig())
	require.NoError(t, err)
	sig := calc.Compute(doc)
	doc.ConfirmIndexed(1, time.Now().UTC(), calc.AnalyzerVersion(), sig.TokenHash, sig.NormalizedTitle)

	archive := newMemArchive(doc)
	token := newMemArtifact("token")
	r := newTestRebuilder(t, archive, token)

	// When
	err = r.Rebuild(context.Background(), async.NewRebuildProgress())

	// Then: the rebuild rewrote it anyway
	require.NoError(t, err)
	assert.Equal(t, 1, token.indexCalls)
}

func TestRebuild_CancelledContextStops(t *testing.T) {
	archive := newMemArchive(indexTestDocument("a"))
	token := newMemArtifact("token")
	r := newTestRebuilder(t, archive, token)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Rebuild(ctx, async.NewRebuildProgress())

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRebuild_RunsUnderBackgroundRebuilder(t *testing.T) {
	// Given: a rebuilder wired as the background rebuild function
	archive := newMemArchive(indexTestDocument("a"))
	token := newMemArtifact("token")
	r := newTestRebuilder(t, archive, token)

	dataDir := t.TempDir()
	bg := async.NewBackgroundRebuild(async.RebuilderConfig{DataDir: dataDir})
	bg.RebuildFunc = r.Rebuild

	// When
	bg.Start(context.Background())
	require.NoError(t, bg.Wait())

	// Then: the run completed, the progress reads ready, and the interrupted-
	// rebuild marker is gone
	snap := bg.Progress().Snapshot()
	assert.Equal(t, string(async.StatusReady), snap.Status)
	assert.Contains(t, token.indexed, "a")
	assert.False(t, async.HasIncompleteRebuild(dataDir))
}
