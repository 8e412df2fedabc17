// Package store persists index entries: one row per (type, item, term) with
// the per-field counts and the item's permission snapshot.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/content"
	apperrors "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/errors"
)

// Entry is one index row.
type Entry struct {
	Type    string              `json:"type"`
	ItemID  string              `json:"item_id"`
	Term    string              `json:"term"`
	Content int                 `json:"content"`
	Title   int                 `json:"title"`
	Author  int                 `json:"author"`
	Perms   content.Permissions `json:"perms"`
}

// Column limits of the persisted schema.
const (
	MaxItemIDLength = 128
	MaxTypeLength   = 20
	MaxTermLength   = 50
)

// ConflictMode decides what happens when a row for the same
// (type, item, term) already exists.
type ConflictMode int

const (
	// ConflictSkip keeps the existing row.
	ConflictSkip ConflictMode = iota
	// ConflictReplace overwrites counts and permissions.
	ConflictReplace
)

func (m ConflictMode) String() string {
	if m == ConflictReplace {
		return "replace"
	}
	return "skip"
}

func ParseConflictMode(s string) (ConflictMode, error) {
	switch strings.ToLower(s) {
	case "", "skip":
		return ConflictSkip, nil
	case "replace":
		return ConflictReplace, nil
	default:
		return ConflictSkip, fmt.Errorf("%w: unknown conflict mode %q", apperrors.ErrInvalidInput, s)
	}
}

// Store is the index persistence contract.
type Store interface {
	// Insert writes entries and returns how many rows were written.
	// Conflicting rows are skipped or replaced according to mode.
	Insert(ctx context.Context, entries []Entry, mode ConflictMode) (int, error)
	// DeleteType removes every row of contentType.
	DeleteType(ctx context.Context, contentType string) (int64, error)
	// DeleteItem removes every row of one item.
	DeleteItem(ctx context.Context, contentType, itemID string) (int64, error)
	// FinishType is called once a content type has been fully reindexed.
	FinishType(ctx context.Context, contentType string) error
	// Lookup returns the rows for term ordered by type then item.
	Lookup(ctx context.Context, term string) ([]Entry, error)
	Close() error
}

type entryKey struct {
	typ, item, term string
}

func keyOf(e Entry) entryKey {
	return entryKey{e.Type, e.ItemID, e.Term}
}

// dedupe collapses entries sharing a key: the first one wins when skipping
// and the last one when replacing, mirroring row-by-row semantics.
func dedupe(entries []Entry, mode ConflictMode) []Entry {
	pos := make(map[entryKey]int, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		k := keyOf(e)
		if i, seen := pos[k]; seen {
			if mode == ConflictReplace {
				out[i] = e
			}
			continue
		}
		pos[k] = len(out)
		out = append(out, e)
	}
	return out
}

func validate(entries []Entry) error {
	for _, e := range entries {
		switch {
		case e.Type == "" || e.ItemID == "" || e.Term == "":
			return fmt.Errorf("%w: entry with empty key %q/%q/%q", apperrors.ErrInvalidInput, e.Type, e.ItemID, e.Term)
		case len([]rune(e.Type)) > MaxTypeLength, len([]rune(e.ItemID)) > MaxItemIDLength, len([]rune(e.Term)) > MaxTermLength:
			return fmt.Errorf("%w: entry key too long %q/%q/%q", apperrors.ErrInvalidInput, e.Type, e.ItemID, e.Term)
		case strings.ContainsRune(e.Type+e.ItemID+e.Term, 0):
			return fmt.Errorf("%w: entry key contains NUL", apperrors.ErrInvalidInput)
		}
	}
	return nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.ItemID != b.ItemID {
			return a.ItemID < b.ItemID
		}
		return a.Term < b.Term
	})
}
