// Command intel-mcp exposes a read-only subset of the intelligence
// engine's query surface to AI-agent clients as Model Context Protocol
// tools, so an agent can ask about its trust neighborhood, reputation, and
// the communities it participates in without speaking the HTTP query API
// directly.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/basegraph/intelengine/internal/adapter/basenames"
	"github.com/basegraph/intelengine/internal/adapter/cachedquery"
	"github.com/basegraph/intelengine/internal/adapter/chainevents"
	"github.com/basegraph/intelengine/internal/adapter/graphql"
	cfmcp "github.com/basegraph/intelengine/internal/adapter/mcp"
	"github.com/basegraph/intelengine/internal/adapter/ristretto"
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
	reputation := service.NewReputationComposer(intel, resolver, cfg.Intelligence.PageRankCacheTTL)

	srv := cfmcp.NewServer(
		cfmcp.ServerConfig{Addr: cfg.MCP.Addr, Name: "intelengine", Version: "0.1.0"},
		cfmcp.ServerDeps{Intel: intel, Reputation: reputation},
	)

	if err := srv.Start(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	slog.Info("mcp server started", "addr", cfg.MCP.Addr)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done
	slog.Info("shutdown signal received")

	if err := srv.Stop(context.Background()); err != nil {
		slog.Error("mcp shutdown failed", "error", err)
	}
	slog.Info("shutdown complete")
	return nil
}
