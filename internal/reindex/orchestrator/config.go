package orchestrator

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/config"
)

// Timeouts bound each action request. Zero leaves a request unbounded.
type Timeouts struct {
	Catalog  time.Duration
	Purge    time.Duration
	List     time.Duration
	Index    time.Duration
	Finish   time.Duration
	Complete time.Duration
}

type Config struct {
	Timeouts Timeouts
	// Debounce is the pause before every request after the catalog.
	Debounce time.Duration
	// PurgeBackoff is waited once when a purge times out.
	PurgeBackoff time.Duration
	// CompleteDelay precedes the final complete notification.
	CompleteDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeouts: Timeouts{
			Catalog: 30 * time.Second,
			Purge:   120 * time.Second,
			List:    60 * time.Second,
			Index:   60 * time.Second,
			Finish:  120 * time.Second,
		},
		Debounce:      250 * time.Millisecond,
		PurgeBackoff:  120 * time.Second,
		CompleteDelay: 3 * time.Second,
	}
}

func ConfigFrom(cfg config.ReindexConfig) Config {
	return Config{
		Timeouts: Timeouts{
			Catalog:  cfg.CatalogTimeout,
			Purge:    cfg.PurgeTimeout,
			List:     cfg.ListTimeout,
			Index:    cfg.IndexTimeout,
			Finish:   cfg.FinishTimeout,
			Complete: cfg.CompleteTimeout,
		},
		Debounce:      cfg.Debounce,
		PurgeBackoff:  cfg.PurgeBackoff,
		CompleteDelay: cfg.CompleteDelay,
	}
}
