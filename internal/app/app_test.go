package app

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/health"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range []string{
		`CREATE TABLE stories (sid TEXT PRIMARY KEY, title TEXT, introtext TEXT, author TEXT)`,
		`INSERT INTO stories VALUES ('s1', 'Quick Fox', 'The quick brown fox', 'Jane')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return path
}

func testConfig(t *testing.T, storeKind string) *config.Config {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Indexer.Store = storeKind
	cfg.Indexer.BoltPath = filepath.Join(t.TempDir(), "index.db")
	cfg.Content.Driver = "sqlite"
	cfg.Content.SQLitePath = seed(t)
	cfg.Content.Types = []config.ContentTypeConfig{{
		Name:      "article",
		ListQuery: `SELECT sid FROM stories`,
		ItemQuery: `SELECT sid, title, introtext, author FROM stories WHERE sid = ?`,
	}}
	return cfg
}

func TestOpenWithoutPostgres(t *testing.T) {
	for _, kind := range []string{"memory", "bolt"} {
		t.Run(kind, func(t *testing.T) {
			assert := require.New(t)
			ctx := context.Background()
			res, err := Open(ctx, testConfig(t, kind))
			assert.NoError(err)
			assert.Nil(res.Postgres)

			types, err := res.Source.Types(ctx)
			assert.NoError(err)
			assert.Equal([]string{"article"}, types)
			item, err := res.Source.Fetch(ctx, "article", "s1")
			assert.NoError(err)
			assert.Equal("Quick Fox", item.Title)

			checker := health.NewChecker()
			res.RegisterChecks(checker)
			report := checker.Run(ctx)
			assert.Equal(health.StatusUp, report.Status)
			if kind == "bolt" {
				assert.Contains(report.Components, "index_store")
			} else {
				_, isMemory := res.Store.(*store.Memory)
				assert.True(isMemory)
			}
			assert.NoError(res.Close())
		})
	}
}

func TestOpenMissingSQLite(t *testing.T) {
	for name, path := range map[string]string{
		"MissingDir":  filepath.Join(t.TempDir(), "missing", "site.db"),
		"MissingFile": filepath.Join(t.TempDir(), "site.db"),
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t, "memory")
			cfg.Content.SQLitePath = path
			_, err := Open(context.Background(), cfg)
			require.Error(t, err)
		})
	}
}
