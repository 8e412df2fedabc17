package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/reindex/protocol"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/metrics"
)

// Notifier announces finished types and runs to downstream consumers.
type Notifier interface {
	TypeIndexed(ctx context.Context, ev protocol.TypeIndexedEvent) error
	RunCompleted(ctx context.Context, ev protocol.RunCompletedEvent) error
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// KafkaNotifier publishes completion events keyed by content type, or by
// run id for whole-run events.
type KafkaNotifier struct {
	pub Publisher
}

func NewKafkaNotifier(pub Publisher) *KafkaNotifier {
	return &KafkaNotifier{pub: pub}
}

func (n *KafkaNotifier) TypeIndexed(ctx context.Context, ev protocol.TypeIndexedEvent) error {
	if err := n.pub.Publish(ctx, kafka.Event{Key: ev.Type, Value: ev}); err != nil {
		return fmt.Errorf("publishing type indexed event: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) RunCompleted(ctx context.Context, ev protocol.RunCompletedEvent) error {
	key := ev.RunID
	if key == "" {
		key = "complete"
	}
	if err := n.pub.Publish(ctx, kafka.Event{Key: key, Value: ev}); err != nil {
		return fmt.Errorf("publishing run completed event: %w", err)
	}
	return nil
}

// PatternFlusher is satisfied by *redis.Client.
type PatternFlusher interface {
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// TypePlaceholder in a cache key pattern is replaced by the content type
// being invalidated.
const TypePlaceholder = "{type}"

// SearchCache drops cached search results once the index changed.
type SearchCache struct {
	flusher PatternFlusher
	pattern string
	metrics *metrics.Metrics
}

func NewSearchCache(f PatternFlusher, pattern string, m *metrics.Metrics) *SearchCache {
	return &SearchCache{flusher: f, pattern: pattern, metrics: m}
}

// Invalidate removes the cached results of one content type. Patterns
// without a type placeholder flush everything.
func (c *SearchCache) Invalidate(ctx context.Context, contentType string) error {
	return c.flush(ctx, strings.ReplaceAll(c.pattern, TypePlaceholder, contentType))
}

func (c *SearchCache) InvalidateAll(ctx context.Context) error {
	return c.flush(ctx, strings.ReplaceAll(c.pattern, TypePlaceholder, "*"))
}

func (c *SearchCache) flush(ctx context.Context, pattern string) error {
	n, err := c.flusher.FlushByPattern(ctx, pattern)
	c.metrics.CacheInvalidated(n)
	return err
}
