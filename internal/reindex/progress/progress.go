// Package progress publishes the state of a running reindex so operators
// can follow it.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/redis"
)

// DefaultKey is where the latest snapshot is kept.
const DefaultKey = "searcher:reindex:progress"

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	RunID      string    `json:"run_id,omitempty"`
	Stage      string    `json:"stage"`
	Type       string    `json:"type,omitempty"`
	Item       string    `json:"item,omitempty"`
	Coarse     int       `json:"coarse_percent"`
	Fine       int       `json:"fine_percent"`
	DoneTypes  int       `json:"done_types"`
	TotalTypes int       `json:"total_types"`
	DoneItems  int       `json:"done_items"`
	TotalItems int       `json:"total_items"`
	Errors     int       `json:"errors"`
	Message    string    `json:"message,omitempty"`
	Finished   bool      `json:"finished"`
	Outcome    string    `json:"outcome,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Reporter receives snapshots. Implementations must not block the run for
// long and report their own failures.
type Reporter interface {
	Report(ctx context.Context, s Snapshot)
}

// Func adapts a function to Reporter.
type Func func(ctx context.Context, s Snapshot)

func (f Func) Report(ctx context.Context, s Snapshot) { f(ctx, s) }

// Multi fans a snapshot out to several reporters in order.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, s Snapshot) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, s)
		}
	}
}

// Log writes stage changes at info level and item progress at debug.
type Log struct {
	logger *slog.Logger
}

func NewLog() *Log {
	return &Log{logger: logger.WithComponent("reindex-progress")}
}

func (l *Log) Report(ctx context.Context, s Snapshot) {
	attrs := []any{
		"stage", s.Stage,
		"coarse", s.Coarse,
		"fine", s.Fine,
		"done_types", s.DoneTypes,
		"total_types", s.TotalTypes,
	}
	if s.RunID != "" {
		attrs = append(attrs, "run_id", s.RunID)
	}
	if s.Type != "" {
		attrs = append(attrs, "type", s.Type)
	}
	if s.Item != "" {
		l.logger.DebugContext(ctx, "item progress", append(attrs, "item", s.Item, "done_items", s.DoneItems, "total_items", s.TotalItems)...)
		return
	}
	if s.Message != "" {
		attrs = append(attrs, "message", s.Message)
	}
	l.logger.InfoContext(ctx, "reindex progress", attrs...)
}

// JSONStore is the subset of the Redis client the Redis reporter needs.
type JSONStore interface {
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, v any) error
}

// Redis keeps the latest snapshot under one key.
type Redis struct {
	store  JSONStore
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedis(store JSONStore, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = DefaultKey
	}
	return &Redis{
		store:  store,
		key:    key,
		ttl:    ttl,
		logger: logger.WithComponent("reindex-progress"),
	}
}

func (r *Redis) Report(ctx context.Context, s Snapshot) {
	if err := r.store.SetJSON(ctx, r.key, s, r.ttl); err != nil {
		r.logger.WarnContext(ctx, "failed to store progress", "key", r.key, "error", err)
	}
}

// ErrNoProgress is returned by Load when no run has reported yet.
var ErrNoProgress = errors.New("no reindex progress recorded")

// Load returns the latest stored snapshot.
func (r *Redis) Load(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	if err := r.store.GetJSON(ctx, r.key, &s); err != nil {
		if redis.IsNilError(err) {
			return Snapshot{}, ErrNoProgress
		}
		return Snapshot{}, fmt.Errorf("loading progress: %w", err)
	}
	return s, nil
}
