// Package app opens the backing services shared by the searcher binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/content"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/postgres"
	"github.com/hashicorp/go-multierror"
)

// Resources are the index store and content source a binary runs against.
type Resources struct {
	Postgres *postgres.Client
	Store    store.Store
	Source   *content.Registry

	closers []func() error
}

// Open connects the configured index store and content source. Postgres is
// only dialed when one of them needs it.
func Open(ctx context.Context, cfg *config.Config) (_ *Resources, err error) {
	res := &Resources{}
	defer func() {
		if err != nil {
			res.Close()
		}
	}()

	if cfg.Indexer.Store == "postgres" || cfg.Content.Driver == "postgres" {
		if res.Postgres, err = postgres.New(ctx, cfg.Postgres); err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		slog.Info("connected to postgres", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	switch cfg.Indexer.Store {
	case "postgres":
		pg := store.NewPostgres(res.Postgres)
		if err = pg.Migrate(ctx); err != nil {
			res.closers = append(res.closers, res.Postgres.Close)
			return nil, fmt.Errorf("migrating index schema: %w", err)
		}
		res.Store = pg
	case "bolt":
		if res.Store, err = store.OpenBolt(cfg.Indexer.BoltPath); err != nil {
			return nil, err
		}
	default:
		res.Store = store.NewMemory()
		slog.Warn("using in-memory index store, entries are lost on exit")
	}
	res.closers = append(res.closers, res.Store.Close)
	if res.Postgres != nil && cfg.Indexer.Store != "postgres" {
		res.closers = append(res.closers, res.Postgres.Close)
	}

	var src *content.SQLSource
	switch cfg.Content.Driver {
	case "sqlite":
		db, oerr := content.OpenSQLite(ctx, cfg.Content.SQLitePath)
		if oerr != nil {
			return nil, oerr
		}
		res.closers = append(res.closers, db.Close)
		src = content.NewSQLSource(db, cfg.Content.Types)
	default:
		src = content.NewSQLSource(res.Postgres.DB, cfg.Content.Types)
	}
	res.Source = content.NewRegistry()
	if err = res.Source.RegisterAll(ctx, src); err != nil {
		return nil, err
	}
	slog.Info("index resources ready",
		"store", cfg.Indexer.Store,
		"content_driver", cfg.Content.Driver,
		"content_types", len(cfg.Content.Types),
	)
	return res, nil
}

// RegisterChecks adds readiness probes for the opened services.
func (r *Resources) RegisterChecks(checker *health.Checker) {
	if r.Postgres != nil {
		checker.Register("postgres", health.PingCheck(r.Postgres, health.StatusDown))
	}
	if p, ok := r.Store.(health.Pinger); ok {
		checker.Register("index_store", health.PingCheck(p, health.StatusDown))
	}
}

// Close releases everything Open acquired, newest first.
func (r *Resources) Close() error {
	var result *multierror.Error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	r.closers = nil
	return result.ErrorOrNil()
}
