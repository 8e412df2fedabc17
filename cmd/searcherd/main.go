package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/app"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/reindex/backend"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/reindex/progress"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
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
	slog.Info("starting searcher backend", "port", cfg.Server.Port, "store", cfg.Indexer.Store)

	if err := run(cfg); err != nil {
		slog.Error("searcher backend failed", "error", err)
		os.Exit(1)
	}
	slog.Info("searcher backend stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			slog.Error("closing resources", "error", err)
		}
	}()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
	}
	ix, err := indexer.New(cfg.Indexer, res.Store, m)
	if err != nil {
		return fmt.Errorf("building indexer: %w", err)
	}

	checker := health.NewChecker()
	res.RegisterChecks(checker)
	var opts []backend.Option

	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, progress and cache invalidation disabled", "error", err)
		} else {
			defer rc.Close()
			checker.Register("redis", health.PingCheck(rc, health.StatusDegraded))
			opts = append(opts,
				backend.WithProgress(progress.NewRedis(rc, cfg.Redis.ProgressKey, cfg.Redis.ProgressTTL)),
				backend.WithCache(backend.NewSearchCache(rc, cfg.Redis.SearchCachePattern, m)),
			)
			slog.Info("redis connected", "addr", cfg.Redis.Addr)
		}
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		opts = append(opts, backend.WithNotifier(backend.NewKafkaNotifier(producer)))
		slog.Info("publishing index completion events", "topic", cfg.Kafka.Topics.IndexComplete)
	}

	h := backend.New(res.Source, ix, opts...)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health", checker.ReadyHandler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.RequestID,
			middleware.Metrics(m),
			middleware.Timeout(cfg.Server.HandlerTimeout),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("searcher backend listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if m != nil {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return shutdownMetrics(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
