package indexer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/content"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func testConfig() config.IndexerConfig {
	return config.IndexerConfig{
		Store:           "memory",
		OnConflict:      "skip",
		MinWordLength:   3,
		MaxPhraseLength: 2,
		PhraseWeights:   []float64{1, 2},
		FieldWeights:    config.FieldWeights{Content: 1, Title: 3, Author: 2},
		MaxTermLength:   50,
	}
}

func newIndexer(t *testing.T, cfg config.IndexerConfig, st store.Store) *Indexer {
	t.Helper()
	ix, err := New(cfg, st, nil)
	require.NoError(t, err)
	return ix
}

func byTerm(entries []store.Entry) map[string]store.Entry {
	out := make(map[string]store.Entry, len(entries))
	for _, e := range entries {
		out[e.Term] = e
	}
	return out
}

func TestBuildEntriesMergesFields(t *testing.T) {
	assert := require.New(t)
	ix := newIndexer(t, testConfig(), store.NewMemory())

	entries := byTerm(ix.BuildEntries(content.Item{
		ID:      "1",
		Type:    "article",
		Title:   "Brown Fox",
		Content: "<p>The quick brown fox</p>",
		Author:  "Fox Mulder",
	}))

	assert.Equal(store.Entry{Type: "article", ItemID: "1", Term: "fox", Content: 1, Title: 1, Author: 1,
		Perms: content.DefaultPermissions()}, entries["fox"])
	assert.Equal(1, entries["brown fox"].Content)
	assert.Equal(1, entries["brown fox"].Title)
	assert.Equal(1, entries["quick brown"].Content)
	assert.Equal(1, entries["mulder"].Author)
	assert.NotContains(entries, "fox mulder", "authors are indexed without phrases")
	assert.NotContains(entries, "the")
}

func TestBuildEntriesUsesItemPermissions(t *testing.T) {
	ix := newIndexer(t, testConfig(), store.NewMemory())
	perms := content.Permissions{OwnerID: 5, GroupID: 9, Owner: 3, Group: 2, Members: 0, Anon: 0}
	entries := ix.BuildEntries(content.Item{ID: "7", Type: "page", Content: "members only", Perms: &perms})
	require.NotEmpty(t, entries)
	for _, e := range entries {
		require.Equal(t, perms, e.Perms)
	}
}

func TestBuildEntriesDropsOverlongTerms(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTermLength = 10
	ix := newIndexer(t, cfg, store.NewMemory())
	entries := byTerm(ix.BuildEntries(content.Item{ID: "1", Type: "article", Content: "short " + strings.Repeat("x", 11)}))
	require.Contains(t, entries, "short")
	require.Len(t, entries, 1)
}

func TestBuildEntriesStripsAutotags(t *testing.T) {
	cfg := testConfig()
	cfg.StripAutotags = true
	cfg.Autotags = []string{"story"}
	ix := newIndexer(t, cfg, store.NewMemory())
	entries := byTerm(ix.BuildEntries(content.Item{ID: "1", Type: "article", Content: "see [story:hidden secret] visible"}))
	require.Contains(t, entries, "visible")
	require.NotContains(t, entries, "hidden")
	require.NotContains(t, entries, "secret")
}

func TestIndexDocument(t *testing.T) {
	assert := require.New(t)
	mem := store.NewMemory()
	ix := newIndexer(t, testConfig(), mem)
	item := content.Item{ID: "1", Type: "article", Title: "Quick Fox", Content: "The quick brown fox"}

	res := ix.IndexDocument(context.Background(), item)
	assert.Zero(res.ErrorCode)
	assert.Equal(6, res.Terms)
	assert.Equal(1, mem.Writes(), "one batched store call per item")

	// A second run against existing rows is not an error.
	res = ix.IndexDocument(context.Background(), item)
	assert.Zero(res.ErrorCode)
	assert.Equal(6, mem.Len())

	got, err := mem.Lookup(context.Background(), "quick fox")
	assert.NoError(err)
	assert.Len(got, 1)
	assert.Equal(1, got[0].Title)
}

func TestIndexDocumentEmptyItem(t *testing.T) {
	mem := store.NewMemory()
	ix := newIndexer(t, testConfig(), mem)
	res := ix.IndexDocument(context.Background(), content.Item{ID: "1", Type: "article", Content: "a an the"})
	require.Zero(t, res.ErrorCode)
	require.Zero(t, mem.Writes())

	res = ix.IndexDocument(context.Background(), content.Item{Content: "orphan"})
	require.Equal(t, apperrors.CodeInvalidInput, res.ErrorCode)
}

type failingStore struct {
	*store.Memory
}

func (failingStore) Insert(context.Context, []store.Entry, store.ConflictMode) (int, error) {
	return 0, apperrors.New(apperrors.ErrStorageWrite, 500, "disk full")
}

func TestIndexDocumentStorageFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ix, err := New(testConfig(), failingStore{store.NewMemory()}, m)
	require.NoError(t, err)

	res := ix.IndexDocument(context.Background(), content.Item{ID: "42", Type: "article", Content: "quick fox"})
	require.Equal(t, apperrors.CodeStorageFailure, res.ErrorCode)
	require.Contains(t, res.Message, "disk full")
	require.Equal(t, 1.0, testutil.ToFloat64(m.IndexErrorsTotal.WithLabelValues("article", "4")))
}

func TestReindexReplacesItemRows(t *testing.T) {
	assert := require.New(t)
	mem := store.NewMemory()
	ix := newIndexer(t, testConfig(), mem)
	ctx := context.Background()

	ix.IndexDocument(ctx, content.Item{ID: "1", Type: "article", Content: "old words"})
	res := ix.Reindex(ctx, content.Item{ID: "1", Type: "article", Content: "fresh words"})
	assert.Zero(res.ErrorCode)

	got, err := mem.Lookup(ctx, "old")
	assert.NoError(err)
	assert.Empty(got)
	got, err = mem.Lookup(ctx, "fresh")
	assert.NoError(err)
	assert.Len(got, 1)

	assert.NoError(ix.Remove(ctx, "article", "1"))
	assert.Zero(mem.Len())
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.OnConflict = "merge"
	_, err := New(cfg, store.NewMemory(), nil)
	require.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	cfg = testConfig()
	cfg.Stemmer = "klingon"
	_, err = New(cfg, store.NewMemory(), nil)
	require.Error(t, err)

	cfg = testConfig()
	cfg.StopwordsFile = "/nonexistent/stopwords.txt"
	_, err = New(cfg, store.NewMemory(), nil)
	require.Error(t, err)
}
