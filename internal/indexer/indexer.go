// Package indexer turns content items into index entries: each field is
// tokenized, the per-field counts are merged per term and the resulting
// rows are written to the store in one batch.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/content"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/metrics"
)

// Result reports the outcome of indexing one item. A zero ErrorCode means
// success.
type Result struct {
	ErrorCode int
	Message   string
	Terms     int
}

type Indexer struct {
	tok      *tokenizer.Tokenizer
	store    store.Store
	mode     store.ConflictMode
	maxTerm  int
	autotags *tokenizer.AutotagStripper
	weights  config.FieldWeights
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New builds an Indexer and its tokenizer from cfg. A nil m disables
// metrics.
func New(cfg config.IndexerConfig, st store.Store, m *metrics.Metrics) (*Indexer, error) {
	mode, err := store.ParseConflictMode(cfg.OnConflict)
	if err != nil {
		return nil, err
	}
	var stopwords []string
	if cfg.StopwordsFile != "" {
		if stopwords, err = tokenizer.LoadStopwords(cfg.StopwordsFile); err != nil {
			return nil, err
		}
	}
	tok, err := tokenizer.New(tokenizer.Config{
		MinWordLength:   cfg.MinWordLength,
		MaxPhraseLength: cfg.MaxPhraseLength,
		PhraseWeights:   cfg.PhraseWeights,
		Stemmer:         cfg.Stemmer,
		Stopwords:       stopwords,
	})
	if err != nil {
		return nil, err
	}
	maxTerm := cfg.MaxTermLength
	if maxTerm <= 0 || maxTerm > store.MaxTermLength {
		maxTerm = store.MaxTermLength
	}
	ix := &Indexer{
		tok:     tok,
		store:   st,
		mode:    mode,
		maxTerm: maxTerm,
		weights: cfg.FieldWeights,
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}
	if cfg.StripAutotags {
		ix.autotags = tokenizer.NewAutotagStripper(cfg.Autotags)
	}
	return ix, nil
}

// Store returns the store the indexer writes to.
func (ix *Indexer) Store() store.Store {
	return ix.store
}

// FieldWeights returns the configured per-field relevance weights.
func (ix *Indexer) FieldWeights() config.FieldWeights {
	return ix.weights
}

type fieldCounts struct {
	content, title, author int
}

// BuildEntries tokenizes the item's fields and returns one entry per
// distinct term. Authors are indexed as whole words without phrases. Terms
// longer than the term column are dropped.
func (ix *Indexer) BuildEntries(item content.Item) []store.Entry {
	body, title := item.Content, item.Title
	if ix.autotags != nil {
		body, title = ix.autotags.Strip(body), ix.autotags.Strip(title)
	}

	counts := make(map[string]*fieldCounts)
	order := make([]string, 0)
	add := func(tokens map[string]tokenizer.Token, field func(*fieldCounts) *int) {
		for text, tok := range tokens {
			if utf8.RuneCountInString(text) > ix.maxTerm {
				continue
			}
			fc, ok := counts[text]
			if !ok {
				fc = &fieldCounts{}
				counts[text] = fc
				order = append(order, text)
			}
			*field(fc) += tok.Count
		}
	}
	add(ix.tok.Tokenize(item.Author, false), func(fc *fieldCounts) *int { return &fc.author })
	add(ix.tok.Tokenize(body, true), func(fc *fieldCounts) *int { return &fc.content })
	add(ix.tok.Tokenize(title, true), func(fc *fieldCounts) *int { return &fc.title })

	sort.Strings(order)
	perms := item.Permissions()
	entries := make([]store.Entry, 0, len(order))
	for _, term := range order {
		fc := counts[term]
		entries = append(entries, store.Entry{
			Type:    item.Type,
			ItemID:  item.ID,
			Term:    term,
			Content: fc.content,
			Title:   fc.title,
			Author:  fc.author,
			Perms:   perms,
		})
	}
	return entries
}

// IndexDocument writes the item's entries in one store call. Failures are
// reported through the Result rather than returned.
func (ix *Indexer) IndexDocument(ctx context.Context, item content.Item) Result {
	log := logger.FromContext(ctx).With("component", "indexer", "type", item.Type, "item_id", item.ID)
	if item.Type == "" || item.ID == "" {
		return ix.fail(item, fmt.Errorf("%w: item needs a type and an id", apperrors.ErrInvalidInput))
	}
	entries := ix.BuildEntries(item)
	if len(entries) == 0 {
		log.Debug("item has no indexable terms")
		ix.metrics.ItemIndexed(item.Type, 0)
		return Result{}
	}
	written, err := ix.store.Insert(ctx, entries, ix.mode)
	if err != nil {
		log.Error("storing index entries failed", "terms", len(entries), "error", err)
		return ix.fail(item, err)
	}
	ix.metrics.ItemIndexed(item.Type, written)
	log.Debug("item indexed", "terms", len(entries), "written", written)
	return Result{Terms: len(entries)}
}

// Reindex replaces whatever the index holds for the item with its current
// content.
func (ix *Indexer) Reindex(ctx context.Context, item content.Item) Result {
	if _, err := ix.store.DeleteItem(ctx, item.Type, item.ID); err != nil {
		return ix.fail(item, err)
	}
	return ix.IndexDocument(ctx, item)
}

// Remove drops the item from the index.
func (ix *Indexer) Remove(ctx context.Context, contentType, id string) error {
	n, err := ix.store.DeleteItem(ctx, contentType, id)
	if err != nil {
		return fmt.Errorf("removing %s %s: %w", contentType, id, err)
	}
	ix.logger.Debug("item removed", "type", contentType, "item_id", id, "rows", n)
	return nil
}

func (ix *Indexer) fail(item content.Item, err error) Result {
	code := apperrors.Code(err)
	ix.metrics.IndexError(item.Type, code)
	return Result{ErrorCode: code, Message: err.Error()}
}
