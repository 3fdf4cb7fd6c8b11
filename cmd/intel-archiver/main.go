// Command intel-archiver subscribes to the NATS subjects the intelligence
// engine publishes on and persists a durable history of PageRank,
// reputation, and trending snapshots for audit and trend analysis.
//
// The archive never feeds back into IntelligenceService or
// ReputationComposer — it is a one-way sink.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/basegraph/intelengine/internal/adapter/nats"
	"github.com/basegraph/intelengine/internal/adapter/postgres"
	"github.com/basegraph/intelengine/internal/config"
	"github.com/basegraph/intelengine/internal/logger"
	"github.com/basegraph/intelengine/internal/port/database"
	"github.com/basegraph/intelengine/internal/port/messagequeue"
	"github.com/basegraph/intelengine/internal/resilience"
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

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	store := postgres.NewStore(pool)

	queue, err := nats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	queue.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	a := &archiver{store: store}

	cancelPageRank, err := queue.Subscribe(ctx, messagequeue.SubjectPageRankRefreshed, a.handlePageRankRefreshed)
	if err != nil {
		return fmt.Errorf("subscribe pagerank: %w", err)
	}
	defer cancelPageRank()

	cancelReputation, err := queue.Subscribe(ctx, messagequeue.SubjectReputationUpdated, a.handleReputationUpdated)
	if err != nil {
		return fmt.Errorf("subscribe reputation: %w", err)
	}
	defer cancelReputation()

	cancelTrending, err := queue.Subscribe(ctx, messagequeue.SubjectTrendingSnapshot, a.handleTrendingSnapshot)
	if err != nil {
		return fmt.Errorf("subscribe trending: %w", err)
	}
	defer cancelTrending()

	slog.Info("intel-archiver subscribed", "subjects", []string{
		messagequeue.SubjectPageRankRefreshed,
		messagequeue.SubjectReputationUpdated,
		messagequeue.SubjectTrendingSnapshot,
	})

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	slog.Info("shutdown signal received, draining nats")
	if err := queue.Drain(); err != nil {
		slog.Error("nats drain error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// archiver adapts validated NATS payloads into database.ArchiveStore calls.
// The published payloads are notification summaries rather than full row
// dumps (intel.pagerank.refreshed carries only the distribution's size and
// expiry, intel.reputation.updated only the composite score), so the
// archived rows for those two subjects leave the fields the publisher
// never sends at their zero value.
type archiver struct {
	store database.ArchiveStore
}

func (a *archiver) handlePageRankRefreshed(ctx context.Context, _ string, data []byte) error {
	var payload messagequeue.PageRankRefreshedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode pagerank payload: %w", err)
	}

	expiresAt, err := time.Parse(time.RFC3339, payload.ExpiresAt)
	if err != nil {
		expiresAt = time.Now().UTC()
	}

	snapshot := database.PageRankSnapshot{
		TotalAgents: payload.TotalAgents,
		ComputedAt:  time.Now().UTC(),
		ExpiresAt:   expiresAt,
	}
	return a.store.RecordPageRank(ctx, []database.PageRankSnapshot{snapshot})
}

func (a *archiver) handleReputationUpdated(ctx context.Context, _ string, data []byte) error {
	var payload messagequeue.ReputationUpdatedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode reputation payload: %w", err)
	}

	snapshot := database.ReputationSnapshot{
		Address:    payload.Address,
		Overall:    payload.Overall,
		ComputedAt: time.Now().UTC(),
	}
	return a.store.RecordReputation(ctx, snapshot)
}

func (a *archiver) handleTrendingSnapshot(ctx context.Context, _ string, data []byte) error {
	var payload messagequeue.TrendingSnapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode trending payload: %w", err)
	}

	snapshot := database.TrendingSnapshot{
		Community:     payload.Community,
		CurrentPosts:  payload.CurrentPosts,
		PreviousPosts: payload.PreviousPosts,
		Velocity:      payload.Velocity,
		CurrentVotes:  payload.CurrentVotes,
		ComputedAt:    time.Now().UTC(),
	}
	return a.store.RecordTrending(ctx, snapshot)
}
