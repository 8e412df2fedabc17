package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/app"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/reindex/backend"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting incremental indexer", "topic", cfg.Kafka.Topics.ContentChanges)

	if err := run(cfg); err != nil {
		slog.Error("incremental indexer failed", "error", err)
		os.Exit(1)
	}
	slog.Info("incremental indexer stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdown := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer shutdown(context.Background())
	}
	ix, err := indexer.New(cfg.Indexer, res.Store, m)
	if err != nil {
		return fmt.Errorf("building indexer: %w", err)
	}

	var cache consumer.Invalidator
	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search cache invalidation disabled", "error", err)
		} else {
			defer rc.Close()
			cache = backend.NewSearchCache(rc, cfg.Redis.SearchCachePattern, m)
		}
	}

	h := consumer.New(res.Source, ix, cache, m)
	c := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ContentChanges, h.Handle)

	slog.Info("consuming content changes",
		"topic", cfg.Kafka.Topics.ContentChanges,
		"group", cfg.Kafka.ConsumerGroup,
	)
	return c.Run(ctx)
}
