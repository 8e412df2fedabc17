package store

import (
	"context"
	"sync"
)

// Memory keeps the index in maps. It backs tests and dry runs.
type Memory struct {
	mu      sync.RWMutex
	entries map[entryKey]Entry
	terms   map[string]map[entryKey]struct{}
	writes  int
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[entryKey]Entry),
		terms:   make(map[string]map[entryKey]struct{}),
	}
}

func (m *Memory) Insert(_ context.Context, entries []Entry, mode ConflictMode) (int, error) {
	if err := validate(entries); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	written := 0
	for _, e := range dedupe(entries, mode) {
		k := keyOf(e)
		if _, exists := m.entries[k]; exists && mode == ConflictSkip {
			continue
		}
		m.entries[k] = e
		if _, ok := m.terms[e.Term]; !ok {
			m.terms[e.Term] = make(map[entryKey]struct{})
		}
		m.terms[e.Term][k] = struct{}{}
		written++
	}
	m.writes++
	return written, nil
}

func (m *Memory) DeleteType(_ context.Context, contentType string) (int64, error) {
	return m.deleteWhere(func(k entryKey) bool { return k.typ == contentType }), nil
}

func (m *Memory) DeleteItem(_ context.Context, contentType, itemID string) (int64, error) {
	return m.deleteWhere(func(k entryKey) bool { return k.typ == contentType && k.item == itemID }), nil
}

func (m *Memory) deleteWhere(match func(entryKey) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.entries {
		if !match(k) {
			continue
		}
		delete(m.entries, k)
		if keys := m.terms[k.term]; keys != nil {
			delete(keys, k)
			if len(keys) == 0 {
				delete(m.terms, k.term)
			}
		}
		n++
	}
	return n
}

func (m *Memory) FinishType(context.Context, string) error {
	return nil
}

func (m *Memory) Lookup(_ context.Context, term string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := m.terms[term]
	out := make([]Entry, 0, len(keys))
	for k := range keys {
		out = append(out, m.entries[k])
	}
	sortEntries(out)
	return out, nil
}

// Snapshot returns every entry ordered by type, item and term.
func (m *Memory) Snapshot() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

// Writes counts Insert calls.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Close() error {
	return nil
}
