package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/content"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/reindex/client"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/reindex/progress"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/reindex/protocol"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/logger"
	"github.com/stretchr/testify/require"
)

type memSource struct {
	items map[string][]content.Item
}

func (s memSource) Types(context.Context) ([]string, error) {
	return []string{"article", "poll"}, nil
}

func (s memSource) List(_ context.Context, contentType string) ([]string, error) {
	items, ok := s.items[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownContentType, contentType)
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids, nil
}

func (s memSource) Fetch(_ context.Context, contentType, id string) (content.Item, error) {
	for _, it := range s.items[contentType] {
		if it.ID == id {
			return it, nil
		}
	}
	return content.Item{}, fmt.Errorf("%w: %s %s", apperrors.ErrItemNotFound, contentType, id)
}

type recordingNotifier struct {
	mu    sync.Mutex
	types []protocol.TypeIndexedEvent
	runs  []protocol.RunCompletedEvent
}

func (n *recordingNotifier) TypeIndexed(_ context.Context, ev protocol.TypeIndexedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.types = append(n.types, ev)
	return nil
}

func (n *recordingNotifier) RunCompleted(_ context.Context, ev protocol.RunCompletedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, ev)
	return nil
}

type recordingFlusher struct {
	patterns []string
}

func (f *recordingFlusher) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	f.patterns = append(f.patterns, pattern)
	return 2, nil
}

func testSource() memSource {
	return memSource{items: map[string][]content.Item{
		"article": {
			{ID: "1", Type: "article", Title: "Brown Fox", Content: "The quick brown fox jumps", Author: "Mulder"},
			{ID: "2", Type: "article", Title: "Lazy Dogs", Content: "Lazy dogs sleep all day", Author: "Scully"},
		},
		"poll": {},
	}}
}

func newTestHandler(t *testing.T, st store.Store, opts ...Option) (*Handler, *httptest.Server) {
	t.Helper()
	ix, err := indexer.New(config.IndexerConfig{
		OnConflict:      "skip",
		MinWordLength:   3,
		MaxPhraseLength: 2,
		PhraseWeights:   []float64{1, 2},
		FieldWeights:    config.FieldWeights{Content: 1, Title: 3, Author: 2},
		MaxTermLength:   50,
	}, st, nil)
	require.NoError(t, err)
	h := New(testSource(), ix, opts...)
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return h, srv
}

func TestActionsThroughClient(t *testing.T) {
	assert := require.New(t)
	st := store.NewMemory()
	notifier := &recordingNotifier{}
	flusher := &recordingFlusher{}
	_, srv := newTestHandler(t, st,
		WithNotifier(notifier),
		WithCache(NewSearchCache(flusher, "search:{type}:*", nil)),
	)
	c := client.New(srv.URL + ActionPath)
	ctx := logger.WithRunID(context.Background(), "run-9")

	types, err := c.ContentTypes(ctx)
	assert.NoError(err)
	assert.Equal([]string{"article", "poll"}, types)

	assert.NoError(c.RemoveOldContent(ctx, "article"))
	ids, err := c.ContentList(ctx, "article")
	assert.NoError(err)
	assert.Equal([]string{"1", "2"}, ids)

	assert.NoError(c.Index(ctx, "article", "1"))
	assert.NoError(c.Index(ctx, "article", "2"))
	err = c.Index(ctx, "article", "404")
	assert.True(protocol.IsApplication(err))
	var ae *protocol.ApplicationError
	assert.ErrorAs(err, &ae)
	assert.Equal(apperrors.CodeItemNotFound, ae.Code)

	assert.NoError(c.ContentComplete(ctx, "article"))
	assert.NoError(c.Complete(ctx))

	hits, err := st.Lookup(ctx, "fox")
	assert.NoError(err)
	assert.Len(hits, 1)

	assert.Len(notifier.types, 1)
	assert.Equal(protocol.TypeIndexedEvent{RunID: "run-9", Type: "article", Indexed: 2, Failed: 1, At: notifier.types[0].At}, notifier.types[0])
	assert.Len(notifier.runs, 1)
	assert.Equal([]string{"article"}, notifier.runs[0].Types)
	assert.Equal([]string{"search:article:*", "search:*:*"}, flusher.patterns)
}

func TestActionUnknownTypeList(t *testing.T) {
	_, srv := newTestHandler(t, store.NewMemory())
	_, err := client.New(srv.URL+ActionPath).ContentList(context.Background(), "story")
	var ae *protocol.ApplicationError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, apperrors.CodeUnknownType, ae.Code)
}

func TestActionRejectsInvalidRequests(t *testing.T) {
	_, srv := newTestHandler(t, store.NewMemory())
	cases := map[string]url.Values{
		"NoAction":      {},
		"UnknownAction": {"action": {"explode"}},
		"MissingType":   {"action": {"getcontentlist"}},
		"MissingID":     {"action": {"index"}, "type": {"article"}},
		"TypeTooLong":   {"action": {"removeoldcontent"}, "type": {strings.Repeat("t", 21)}},
	}
	for name, form := range cases {
		t.Run(name, func(t *testing.T) {
			resp, err := http.PostForm(srv.URL+ActionPath, form)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var st protocol.Status
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
			require.Equal(t, apperrors.CodeInvalidInput, st.ErrorCode)
			require.NotEmpty(t, st.Message)
		})
	}
}

func TestActionAcceptsPresenceForm(t *testing.T) {
	_, srv := newTestHandler(t, store.NewMemory())
	resp, err := http.PostForm(srv.URL+ActionPath, url.Values{"getcontenttypes": {"x"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	var tr protocol.TypesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	require.Zero(t, tr.ErrorCode)
	require.Equal(t, []string{"article", "poll"}, tr.ContentTypes)
}

func TestPurgeResetsTally(t *testing.T) {
	notifier := &recordingNotifier{}
	_, srv := newTestHandler(t, store.NewMemory(), WithNotifier(notifier))
	c := client.New(srv.URL + ActionPath)
	ctx := context.Background()

	require.NoError(t, c.Index(ctx, "article", "1"))
	require.NoError(t, c.RemoveOldContent(ctx, "article"))
	require.NoError(t, c.Index(ctx, "article", "2"))
	require.NoError(t, c.ContentComplete(ctx, "article"))
	require.Equal(t, 1, notifier.types[0].Indexed)
}

func TestTermsEndpoint(t *testing.T) {
	assert := require.New(t)
	st := store.NewMemory()
	_, srv := newTestHandler(t, st)
	c := client.New(srv.URL + ActionPath)
	require.NoError(t, c.Index(context.Background(), "article", "1"))
	require.NoError(t, c.Index(context.Background(), "article", "2"))

	resp, err := http.Get(srv.URL + TermsPath + "?term=Fox")
	assert.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
	var tr TermsResponse
	assert.NoError(json.NewDecoder(resp.Body).Decode(&tr))
	assert.Equal("fox", tr.Term)
	assert.Len(tr.Matches, 1)
	assert.Equal("1", tr.Matches[0].ID)
	// one occurrence in content and one in the title: 1*1 + 1*3
	assert.Equal(4.0, tr.Matches[0].Score)

	bad, err := http.Get(srv.URL + TermsPath)
	assert.NoError(err)
	bad.Body.Close()
	assert.Equal(http.StatusBadRequest, bad.StatusCode)
}

type staticProgress struct {
	snap progress.Snapshot
	err  error
}

func (p staticProgress) Load(context.Context) (progress.Snapshot, error) {
	return p.snap, p.err
}

func TestProgressEndpoint(t *testing.T) {
	cases := []struct {
		name   string
		opts   []Option
		status int
	}{
		{"Disabled", nil, http.StatusNotFound},
		{"NoRun", []Option{WithProgress(staticProgress{err: progress.ErrNoProgress})}, http.StatusNotFound},
		{"Unavailable", []Option{WithProgress(staticProgress{err: errors.New("redis down")})}, http.StatusServiceUnavailable},
		{"Reported", []Option{WithProgress(staticProgress{snap: progress.Snapshot{Stage: "ItemLoop", Coarse: 40}})}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, srv := newTestHandler(t, store.NewMemory(), tc.opts...)
			resp, err := http.Get(srv.URL + ProgressPath)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

type capturePublisher struct {
	events []kafka.Event
}

func (p *capturePublisher) Publish(_ context.Context, events ...kafka.Event) error {
	p.events = append(p.events, events...)
	return nil
}

func TestKafkaNotifierKeys(t *testing.T) {
	pub := &capturePublisher{}
	n := NewKafkaNotifier(pub)
	require.NoError(t, n.TypeIndexed(context.Background(), protocol.TypeIndexedEvent{Type: "article"}))
	require.NoError(t, n.RunCompleted(context.Background(), protocol.RunCompletedEvent{}))
	require.NoError(t, n.RunCompleted(context.Background(), protocol.RunCompletedEvent{RunID: "r1"}))
	require.Equal(t, "article", pub.events[0].Key)
	require.Equal(t, "complete", pub.events[1].Key)
	require.Equal(t, "r1", pub.events[2].Key)
}

func TestSearchCachePatterns(t *testing.T) {
	f := &recordingFlusher{}
	c := NewSearchCache(f, "search:*", nil)
	require.NoError(t, c.Invalidate(context.Background(), "article"))
	require.NoError(t, c.InvalidateAll(context.Background()))
	require.Equal(t, []string{"search:*", "search:*"}, f.patterns)
}
