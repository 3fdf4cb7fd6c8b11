// Command intel-gateway serves the intelligence engine's read-only query
// surface (C6's nineteen named queries, plus C7's reputation and
// pagerank endpoints) over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/basegraph/intelengine/internal/adapter/basenames"
	"github.com/basegraph/intelengine/internal/adapter/cachedquery"
	"github.com/basegraph/intelengine/internal/adapter/chainevents"
	"github.com/basegraph/intelengine/internal/adapter/graphql"
	cfhttp "github.com/basegraph/intelengine/internal/adapter/http"
	"github.com/basegraph/intelengine/internal/adapter/nats"
	cfotel "github.com/basegraph/intelengine/internal/adapter/otel"
	"github.com/basegraph/intelengine/internal/adapter/ristretto"
	"github.com/basegraph/intelengine/internal/adapter/ws"
	"github.com/basegraph/intelengine/internal/config"
	"github.com/basegraph/intelengine/internal/logger"
	"github.com/basegraph/intelengine/internal/port/indexedquery"
	"github.com/basegraph/intelengine/internal/resilience"
	"github.com/basegraph/intelengine/internal/service"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, closer := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer closer.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"indexed_view", cfg.Sources.IndexedViewEndpoint,
	)

	otelShutdown, err := cfotel.InitTracer(cfotel.OTELConfig{
		Enabled:     cfg.OTEL.Enabled,
		Endpoint:    cfg.OTEL.Endpoint,
		ServiceName: cfg.OTEL.ServiceName,
		Insecure:    cfg.OTEL.Insecure,
		SampleRate:  cfg.OTEL.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("otel init: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Error("otel shutdown failed", "error", err)
		}
	}()

	var metrics *cfotel.Metrics
	if cfg.OTEL.Enabled {
		metrics, err = cfotel.NewMetrics()
		if err != nil {
			return fmt.Errorf("otel metrics: %w", err)
		}
	}

	// --- External collaborators (C1, C2, C3) ---

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	var indexed indexedquery.Client
	if cfg.Sources.IndexedViewEndpoint != "" {
		gql := graphql.NewClient(cfg.Sources.IndexedViewEndpoint)
		gql.SetBreaker(breaker)

		l1, err := ristretto.New(cfg.Cache.MaxCostBytes)
		if err != nil {
			return err
		}
		indexed = cachedquery.New(gql, l1, cfg.Cache.TTL)
	}

	eventSource := chainevents.NewSource(cfg.Sources.EventLogEndpoint)
	scanner := service.NewEventScanner(eventSource, uint64(cfg.Intelligence.MaxBlockRange), cfg.Intelligence.MaxEvents, 50_000)

	registry := basenames.NewRegistry(cfg.Sources.NameRegistryEndpoint)
	resolver := service.NewNameResolver(registry, cfg.NameRegistry.ReverseSuffix, cfg.Intelligence.CacheTTL, cfg.Intelligence.MaxCacheSize)

	queue, err := nats.Connect(context.Background(), cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	queue.SetBreaker(breaker)
	defer func() { _ = queue.Close() }()

	// --- Core services (C6, C7, C8) ---

	intelCfg := service.IntelligenceConfig{
		MaxEvents:               cfg.Intelligence.MaxEvents,
		MaxBlockRange:           cfg.Intelligence.MaxBlockRange,
		FromBlock:               cfg.Intelligence.FromBlock,
		MaxPageRankIterations:   cfg.Intelligence.MaxPageRankIterations,
		PageRankDampingFactor:   cfg.Intelligence.PageRankDampingFactor,
		MinPageRankForInfluence: cfg.Intelligence.MinPageRankForInfluence,
		TrustThreshold:          cfg.Intelligence.TrustThreshold,
		QualityScalingFactor:    cfg.Intelligence.QualityScalingFactor,
	}
	intel := service.NewIntelligenceService(indexed, scanner, resolver, intelCfg)
	intel.SetQueue(queue)
	reputation := service.NewReputationComposer(intel, resolver, cfg.Intelligence.PageRankCacheTTL)
	reputation.SetQueue(queue)
	enrichment := service.NewEnrichmentLayer(resolver)

	hub := ws.NewHub(cfg.Server.CORSOrigin)

	r := cfhttp.NewRouter(cfhttp.Deps{
		Intel:      intel,
		Reputation: reputation,
		Enrichment: enrichment,
		CORSOrigin: cfg.Server.CORSOrigin,
		WSHandler:  hub.HandleWS,
		Metrics:    metrics,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
