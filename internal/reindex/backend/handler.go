// Package backend serves the reindex action endpoint on top of the content
// source and the term index.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/content"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/reindex/progress"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/reindex/protocol"
	apperrors "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/logger"
	"github.com/go-playground/validator"
)

const (
	ActionPath   = "/admin/searcher/indexer"
	ProgressPath = "/admin/searcher/progress"
	TermsPath    = "/admin/searcher/terms"

	maxFormBytes = 1 << 20
)

// Invalidator drops cached search results.
type Invalidator interface {
	Invalidate(ctx context.Context, contentType string) error
	InvalidateAll(ctx context.Context) error
}

// ProgressLoader returns the latest reindex progress snapshot.
type ProgressLoader interface {
	Load(ctx context.Context) (progress.Snapshot, error)
}

type tally struct {
	indexed int
	failed  int
}

type Handler struct {
	source   content.Source
	indexer  *indexer.Indexer
	store    store.Store
	notifier Notifier
	cache    Invalidator
	progress ProgressLoader
	validate *validator.Validate
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	tallies map[string]*tally
	order   []string
}

type Option func(*Handler)

func WithNotifier(n Notifier) Option {
	return func(h *Handler) { h.notifier = n }
}

func WithCache(c Invalidator) Option {
	return func(h *Handler) { h.cache = c }
}

func WithProgress(p ProgressLoader) Option {
	return func(h *Handler) { h.progress = p }
}

func New(src content.Source, ix *indexer.Indexer, opts ...Option) *Handler {
	h := &Handler{
		source:   src,
		indexer:  ix,
		store:    ix.Store(),
		validate: validator.New(),
		now:      time.Now,
		logger:   logger.WithComponent("reindex-backend"),
		tallies:  make(map[string]*tally),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds the admin routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+ActionPath, h.Action)
	mux.HandleFunc("GET "+ProgressPath, h.Progress)
	mux.HandleFunc("GET "+TermsPath, h.Terms)
}

// Action dispatches one reindex action. Outcomes are always reported
// through errorCode with HTTP 200; only unreadable requests get a 4xx.
func (h *Handler) Action(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	ctx := r.Context()
	if runID := r.Header.Get(protocol.RunIDHeader); runID != "" {
		ctx = logger.WithRunID(ctx, runID)
	}
	log := logger.FromContext(ctx)

	req, err := protocol.ParseForm(r.Form)
	if err == nil {
		if verr := h.validate.Struct(req); verr != nil {
			err = errors.Join(apperrors.ErrInvalidInput, verr)
		}
	}
	if err != nil {
		log.Warn("rejected reindex action", "error", err)
		h.writeJSON(w, http.StatusOK, protocol.Status{ErrorCode: apperrors.Code(err), Message: err.Error()})
		return
	}
	log = log.With("action", req.Action, "type", req.Type)

	var resp any
	switch req.Action {
	case protocol.ActionGetContentTypes:
		resp = h.contentTypes(ctx)
	case protocol.ActionRemoveOldContent:
		resp = h.removeOldContent(ctx, log, req.Type)
	case protocol.ActionGetContentList:
		resp = h.contentList(ctx, req.Type)
	case protocol.ActionIndex:
		resp = h.index(ctx, log, req.Type, req.ID)
	case protocol.ActionContentComplete:
		resp = h.contentComplete(ctx, log, req.Type)
	case protocol.ActionComplete:
		resp = h.complete(ctx, log)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) contentTypes(ctx context.Context) protocol.TypesResponse {
	types, err := h.source.Types(ctx)
	if types == nil {
		types = []string{}
	}
	return protocol.TypesResponse{Status: statusOf(err), ContentTypes: types}
}

func (h *Handler) removeOldContent(ctx context.Context, log *slog.Logger, contentType string) protocol.Status {
	h.resetTally(contentType)
	n, err := h.store.DeleteType(ctx, contentType)
	if err != nil {
		log.Error("purging content type failed", "error", err)
		return statusOf(err)
	}
	log.Info("content type purged", "rows", n)
	return statusOf(nil)
}

func (h *Handler) contentList(ctx context.Context, contentType string) protocol.ListResponse {
	ids, err := h.source.List(ctx, contentType)
	items := make([]protocol.ListItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, protocol.ListItem{ID: id})
	}
	return protocol.ListResponse{Status: statusOf(err), ContentList: items}
}

func (h *Handler) index(ctx context.Context, log *slog.Logger, contentType, id string) protocol.IndexResponse {
	item, err := h.source.Fetch(ctx, contentType, id)
	if err != nil {
		h.count(contentType, false)
		log.Warn("loading item failed", "id", id, "error", err)
		return protocol.IndexResponse{ErrorCode: apperrors.Code(err), StatusMessage: err.Error()}
	}
	res := h.indexer.IndexDocument(ctx, item)
	h.count(contentType, res.ErrorCode == apperrors.CodeOK)
	return protocol.IndexResponse{ErrorCode: res.ErrorCode, StatusMessage: res.Message}
}

func (h *Handler) contentComplete(ctx context.Context, log *slog.Logger, contentType string) protocol.Status {
	err := h.store.FinishType(ctx, contentType)
	if err != nil {
		log.Error("finishing content type failed", "error", err)
	}
	t := h.tally(contentType)
	log.Info("content type indexed", "indexed", t.indexed, "failed", t.failed)

	if h.notifier != nil {
		ev := protocol.TypeIndexedEvent{
			RunID:   logger.RunID(ctx),
			Type:    contentType,
			Indexed: t.indexed,
			Failed:  t.failed,
			At:      h.now().UTC(),
		}
		if nerr := h.notifier.TypeIndexed(ctx, ev); nerr != nil {
			log.Warn("type indexed notification failed", "error", nerr)
		}
	}
	if h.cache != nil {
		if cerr := h.cache.Invalidate(ctx, contentType); cerr != nil {
			log.Warn("search cache invalidation failed", "error", cerr)
		}
	}
	return statusOf(err)
}

func (h *Handler) complete(ctx context.Context, log *slog.Logger) protocol.Status {
	types := h.tallied()
	if h.notifier != nil {
		ev := protocol.RunCompletedEvent{RunID: logger.RunID(ctx), Types: types, At: h.now().UTC()}
		if err := h.notifier.RunCompleted(ctx, ev); err != nil {
			log.Warn("run completed notification failed", "error", err)
		}
	}
	if h.cache != nil {
		if err := h.cache.InvalidateAll(ctx); err != nil {
			log.Warn("search cache invalidation failed", "error", err)
		}
	}
	log.Info("reindex run complete", "types", types)
	return statusOf(nil)
}

// Progress serves the latest reindex progress snapshot.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	if h.progress == nil {
		h.writeError(w, http.StatusNotFound, "progress tracking disabled")
		return
	}
	snap, err := h.progress.Load(r.Context())
	switch {
	case errors.Is(err, progress.ErrNoProgress):
		h.writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		logger.FromContext(r.Context()).Error("loading progress failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "progress unavailable")
	default:
		h.writeJSON(w, http.StatusOK, snap)
	}
}

// TermMatch is one indexed item for a looked-up term. Score applies the
// configured field weights to the per-field counts.
type TermMatch struct {
	Type    string  `json:"type"`
	ID      string  `json:"id"`
	Content int     `json:"content"`
	Title   int     `json:"title"`
	Author  int     `json:"author"`
	Score   float64 `json:"score"`
}

type TermsResponse struct {
	Term    string      `json:"term"`
	Matches []TermMatch `json:"matches"`
}

// Terms lists the items a term was indexed for, best score first.
func (h *Handler) Terms(w http.ResponseWriter, r *http.Request) {
	term := strings.ToLower(strings.TrimSpace(tokenizer.Normalize(r.URL.Query().Get("term"))))
	if term == "" {
		h.writeError(w, http.StatusBadRequest, "term is required")
		return
	}
	entries, err := h.store.Lookup(r.Context(), term)
	if err != nil {
		logger.FromContext(r.Context()).Error("term lookup failed", "term", term, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "lookup failed")
		return
	}
	fw := h.indexer.FieldWeights()
	matches := make([]TermMatch, 0, len(entries))
	for _, e := range entries {
		matches = append(matches, TermMatch{
			Type:    e.Type,
			ID:      e.ItemID,
			Content: e.Content,
			Title:   e.Title,
			Author:  e.Author,
			Score:   float64(e.Content)*fw.Content + float64(e.Title)*fw.Title + float64(e.Author)*fw.Author,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	h.writeJSON(w, http.StatusOK, TermsResponse{Term: term, Matches: matches})
}

func (h *Handler) resetTally(contentType string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tallies[contentType]; !ok {
		h.order = append(h.order, contentType)
	}
	h.tallies[contentType] = &tally{}
}

func (h *Handler) count(contentType string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, exists := h.tallies[contentType]
	if !exists {
		t = &tally{}
		h.tallies[contentType] = t
		h.order = append(h.order, contentType)
	}
	if ok {
		t.indexed++
	} else {
		t.failed++
	}
}

func (h *Handler) tally(contentType string) tally {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.tallies[contentType]; ok {
		return *t
	}
	return tally{}
}

func (h *Handler) tallied() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string{}, h.order...)
}

func statusOf(err error) protocol.Status {
	if err == nil {
		return protocol.Status{}
	}
	return protocol.Status{ErrorCode: apperrors.Code(err), Message: err.Error()}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
