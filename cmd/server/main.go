// Command server starts the matching pipeline HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	ai "github.com/introweave/matchpipe/internal/adapter/ai"
	"github.com/introweave/matchpipe/internal/adapter/ai/stub"
	"github.com/introweave/matchpipe/internal/adapter/events"
	httpserver "github.com/introweave/matchpipe/internal/adapter/httpserver"
	"github.com/introweave/matchpipe/internal/adapter/observability"
	"github.com/introweave/matchpipe/internal/adapter/repo/postgres"
	"github.com/introweave/matchpipe/internal/adapter/ws"
	"github.com/introweave/matchpipe/internal/app"
	"github.com/introweave/matchpipe/internal/config"
	"github.com/introweave/matchpipe/internal/domain"
	"github.com/introweave/matchpipe/internal/match"
	"github.com/introweave/matchpipe/internal/pipeline"
	"github.com/introweave/matchpipe/internal/usecase"
)

// redisAdapter narrows *redis.Client to the readiness interface.
type redisAdapter struct{ *redis.Client }

func (r redisAdapter) Ping(ctx context.Context) app.RedisPingResult { return r.Client.Ping(ctx) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Infra: DB pool
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Repositories
	jobRepo := postgres.NewMatchJobRepo(pool)
	investorRepo := postgres.NewInvestorRepo(pool)
	firmRepo := postgres.NewFirmRepo(pool)
	startupRepo := postgres.NewStartupRepo(pool)

	// Industry taxonomy, optionally replaced from file.
	taxonomy := match.NewTaxonomy(nil)
	if cfg.TaxonomyFile != "" {
		taxonomy, err = match.LoadTaxonomyFile(cfg.TaxonomyFile)
		if err != nil {
			slog.Error("taxonomy load failed", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("taxonomy loaded", slog.String("file", cfg.TaxonomyFile))
	}

	matcher := match.NewMatcher(match.NewScorer(taxonomy), firmRepo, investorRepo, match.Config{
		FirmPoolSize:     cfg.FirmPoolSize,
		FirmTopK:         cfg.FirmTopK,
		InvestorPoolSize: cfg.InvestorPoolSize,
		InvestorLimit:    cfg.InvestorLimit,
	})

	// Completion client: real provider or deterministic stub.
	var completions domain.CompletionClient
	if cfg.UseStubAI || (cfg.OpenRouterAPIKey == "" && cfg.IsDev()) {
		slog.Info("using stub completion client")
		completions = stub.New()
	} else {
		completions = ai.New(cfg)
	}
	extractor := ai.NewExtractor(completions)

	// Live event channel, optionally bridged across instances via Redis.
	hub := ws.NewHub(cfg)
	var notifier domain.Notifier = hub
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("redis url parse failed", slog.Any("error", err))
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		bus := events.NewBus(rdb, cfg.EventChannel, hub)
		go bus.Run(ctx)
		notifier = bus
		slog.Info("redis event bridge enabled", slog.String("channel", cfg.EventChannel))
	}

	// Pipeline and usecases
	orchestrator := pipeline.New(jobRepo, startupRepo, extractor, matcher, notifier, cfg.CompletionTimeout+5*time.Minute)
	submitSvc := usecase.NewSubmitService(jobRepo, orchestrator)
	jobsSvc := usecase.NewJobQueryService(jobRepo)

	// Background sweeper for jobs orphaned by crashes.
	sweeper := app.NewStaleJobSweeper(jobRepo, notifier, cfg.StaleJobAge, cfg.SweepInterval)
	go sweeper.Run(ctx)

	// Readiness checks
	var redisClient app.RedisClient
	if rdb != nil {
		redisClient = redisAdapter{rdb}
	}
	dbCheck, redisCheck := app.BuildReadinessChecks(pool, redisClient)

	// HTTP server
	srv := httpserver.NewServer(cfg, submitSvc, jobsSvc, hub, dbCheck, redisCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
