package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var (
	entriesBucket = []byte("entries")
	termsBucket   = []byte("terms")
)

const sep = "\x00"

// Bolt is an embedded single-node store. Rows live in the entries bucket
// keyed type|item|term; the terms bucket holds term|type|item for lookups.
type Bolt struct {
	db     *bolt.DB
	logger *slog.Logger
}

type boltValue struct {
	Content int    `json:"c"`
	Title   int    `json:"t"`
	Author  int    `json:"a"`
	Perms   [6]int `json:"p"`
}

func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating bolt directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{entriesBucket, termsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{
		db:     db,
		logger: slog.Default().With("component", "bolt-store", "path", path),
	}, nil
}

func entryKeyBytes(typ, item, term string) []byte {
	return []byte(typ + sep + item + sep + term)
}

func termKeyBytes(term, typ, item string) []byte {
	return []byte(term + sep + typ + sep + item)
}

func (b *Bolt) Insert(ctx context.Context, entries []Entry, mode ConflictMode) (int, error) {
	if err := validate(entries); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	written := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		eb, tb := tx.Bucket(entriesBucket), tx.Bucket(termsBucket)
		for _, e := range dedupe(entries, mode) {
			key := entryKeyBytes(e.Type, e.ItemID, e.Term)
			if mode == ConflictSkip && eb.Get(key) != nil {
				continue
			}
			val, err := json.Marshal(boltValue{
				Content: e.Content,
				Title:   e.Title,
				Author:  e.Author,
				Perms:   [6]int{e.Perms.OwnerID, e.Perms.GroupID, e.Perms.Owner, e.Perms.Group, e.Perms.Members, e.Perms.Anon},
			})
			if err != nil {
				return err
			}
			if err := eb.Put(key, val); err != nil {
				return err
			}
			if err := tb.Put(termKeyBytes(e.Term, e.Type, e.ItemID), nil); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", apperrors.ErrStorageWrite, err)
	}
	return written, nil
}

func (b *Bolt) DeleteType(ctx context.Context, contentType string) (int64, error) {
	return b.deletePrefix(ctx, []byte(contentType+sep))
}

func (b *Bolt) DeleteItem(ctx context.Context, contentType, itemID string) (int64, error) {
	return b.deletePrefix(ctx, []byte(contentType+sep+itemID+sep))
}

// deletePrefix removes entries under prefix together with their term keys.
// Keys are collected first since deleting while iterating a bolt cursor
// skips entries.
func (b *Bolt) deletePrefix(ctx context.Context, prefix []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	err := b.db.Update(func(tx *bolt.Tx) error {
		eb, tb := tx.Bucket(entriesBucket), tx.Bucket(termsBucket)
		var keys [][]byte
		c := eb.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			parts := bytes.SplitN(k, []byte(sep), 3)
			if len(parts) == 3 {
				if err := tb.Delete(termKeyBytes(string(parts[2]), string(parts[0]), string(parts[1]))); err != nil {
					return err
				}
			}
			if err := eb.Delete(k); err != nil {
				return err
			}
		}
		n = int64(len(keys))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", apperrors.ErrStorageWrite, err)
	}
	return n, nil
}

// FinishType flushes the database file to disk.
func (b *Bolt) FinishType(_ context.Context, contentType string) error {
	if err := b.db.Sync(); err != nil {
		return fmt.Errorf("%w: syncing after %s: %w", apperrors.ErrStorageWrite, contentType, err)
	}
	b.logger.Debug("content type finished", "type", contentType)
	return nil
}

func (b *Bolt) Lookup(_ context.Context, term string) ([]Entry, error) {
	var out []Entry
	prefix := []byte(term + sep)
	err := b.db.View(func(tx *bolt.Tx) error {
		eb, tb := tx.Bucket(entriesBucket), tx.Bucket(termsBucket)
		c := tb.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			parts := bytes.SplitN(k[len(prefix):], []byte(sep), 2)
			if len(parts) != 2 {
				continue
			}
			typ, item := string(parts[0]), string(parts[1])
			raw := eb.Get(entryKeyBytes(typ, item, term))
			if raw == nil {
				b.logger.Warn("dangling term key", "term", term, "type", typ, "item", item)
				continue
			}
			var v boltValue
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("decoding %s/%s/%s: %w", typ, item, term, err)
			}
			e := Entry{Type: typ, ItemID: item, Term: term, Content: v.Content, Title: v.Title, Author: v.Author}
			e.Perms.OwnerID, e.Perms.GroupID, e.Perms.Owner = v.Perms[0], v.Perms[1], v.Perms[2]
			e.Perms.Group, e.Perms.Members, e.Perms.Anon = v.Perms[3], v.Perms[4], v.Perms[5]
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEntries(out)
	return out, nil
}

// Ping reports whether the database is still open.
func (b *Bolt) Ping(context.Context) error {
	return b.db.View(func(*bolt.Tx) error { return nil })
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
