// Package consumer applies content change events from Kafka to the index
// between full reindex runs.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/content"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/metrics"
	"github.com/go-playground/validator"
)

// Invalidator drops cached search results for a content type.
type Invalidator interface {
	Invalidate(ctx context.Context, contentType string) error
}

type Handler struct {
	source   content.Source
	indexer  *indexer.Indexer
	cache    Invalidator
	metrics  *metrics.Metrics
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates a Handler. cache and m may be nil.
func New(src content.Source, ix *indexer.Indexer, cache Invalidator, m *metrics.Metrics) *Handler {
	return &Handler{
		source:   src,
		indexer:  ix,
		cache:    cache,
		metrics:  m,
		validate: validator.New(),
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Handle is a kafka.Handler. Malformed events are logged and acknowledged;
// transient failures are returned so the offset stays uncommitted.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	event, err := kafka.DecodeJSON[content.Event](msg.Value)
	if err == nil {
		err = h.validate.Struct(event)
	}
	if err != nil {
		h.logger.Error("dropping malformed content event", "key", string(msg.Key), "error", err)
		h.metrics.ContentEvent("unknown", "malformed")
		return nil
	}
	log := h.logger.With("type", event.Type, "item_id", event.ID, "op", event.Op)

	if err := h.Apply(ctx, event); err != nil {
		h.metrics.ContentEvent(event.Op, "error")
		log.Error("applying content event failed", "error", err)
		return err
	}
	h.metrics.ContentEvent(event.Op, "ok")
	log.Info("content event applied")
	return nil
}

// Apply updates the index for one event. Saving an item that has since
// been deleted removes it instead.
func (h *Handler) Apply(ctx context.Context, event content.Event) error {
	switch event.Op {
	case content.OpDelete:
		if err := h.indexer.Remove(ctx, event.Type, event.ID); err != nil {
			return err
		}
	case content.OpSave:
		item, err := h.source.Fetch(ctx, event.Type, event.ID)
		switch {
		case content.IsNotFound(err):
			if err := h.indexer.Remove(ctx, event.Type, event.ID); err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("fetching %s %s: %w", event.Type, event.ID, err)
		default:
			if res := h.indexer.Reindex(ctx, item); res.ErrorCode != apperrors.CodeOK {
				return fmt.Errorf("indexing %s %s: code %d: %s", event.Type, event.ID, res.ErrorCode, res.Message)
			}
		}
	default:
		return fmt.Errorf("%w: unknown op %q", apperrors.ErrInvalidInput, event.Op)
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(ctx, event.Type); err != nil {
			h.logger.Warn("search cache invalidation failed", "type", event.Type, "error", err)
		}
	}
	return nil
}
