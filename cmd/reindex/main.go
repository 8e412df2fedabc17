package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/reindex/client"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/reindex/orchestrator"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/internal/reindex/progress"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/redis"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	endpoint := flag.String("endpoint", "", "action endpoint URL (overrides config)")
	types := flag.String("types", "", "comma-separated content types to reindex (default all)")
	exclude := flag.String("exclude", "", "comma-separated content types to skip")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if *endpoint != "" {
		cfg.Reindex.Endpoint = *endpoint
	}
	os.Exit(run(cfg, splitList(*types), splitList(*exclude)))
}

// run performs one reindex and returns the process exit code: 1 when the
// run aborted, 130 when it was interrupted.
func run(cfg *config.Config, include, exclude []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)

	reporters := progress.Multi{progress.NewLog()}
	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, progress is only logged", "error", err)
		} else {
			defer rc.Close()
			reporters = append(reporters, progress.NewRedis(rc, cfg.Redis.ProgressKey, cfg.Redis.ProgressTTL))
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdown := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer shutdown(context.Background())
	}

	slog.Info("starting reindex", "run_id", runID, "endpoint", cfg.Reindex.Endpoint)
	o := orchestrator.New(client.New(cfg.Reindex.Endpoint), orchestrator.ConfigFrom(cfg.Reindex),
		orchestrator.WithSelector(orchestrator.SelectTypes(include, exclude)),
		orchestrator.WithReporter(reporters),
		orchestrator.WithMetrics(m),
	)
	summary, err := o.Run(ctx)

	fmt.Fprintf(os.Stdout, "reindex %s: %s (%d/%d types, %s)\n",
		summary.RunID, summary.Outcome, summary.DoneTypes, summary.TotalTypes, summary.Duration.Round(time.Millisecond))
	fmt.Fprintln(os.Stdout, summary.Text())

	switch {
	case err == nil:
		return 0
	case errors.Is(err, apperrors.ErrFatalAbort):
		slog.Error("reindex aborted", "error", err)
		return 1
	default:
		slog.Warn("reindex interrupted", "error", err)
		return 130
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
