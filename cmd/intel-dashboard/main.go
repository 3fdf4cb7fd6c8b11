// Command intel-dashboard subscribes to the NATS subjects the
// intelligence engine publishes on and rebroadcasts them over WebSocket to
// connected dashboard clients. It carries no query load of its own — it is
// a thin fan-out between the message queue and the live-update hub.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/basegraph/intelengine/internal/adapter/nats"
	"github.com/basegraph/intelengine/internal/adapter/ws"
	"github.com/basegraph/intelengine/internal/config"
	"github.com/basegraph/intelengine/internal/logger"
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

	queue, err := nats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	queue.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	hub := ws.NewHub(cfg.Server.CORSOrigin)

	cancelTrending, err := queue.Subscribe(ctx, messagequeue.SubjectTrendingSnapshot, relay(hub, ws.EventTrendingUpdate))
	if err != nil {
		return fmt.Errorf("subscribe trending: %w", err)
	}
	defer cancelTrending()

	cancelPageRank, err := queue.Subscribe(ctx, messagequeue.SubjectPageRankRefreshed, relay(hub, ws.EventPageRankRefreshed))
	if err != nil {
		return fmt.Errorf("subscribe pagerank: %w", err)
	}
	defer cancelPageRank()

	cancelReputation, err := queue.Subscribe(ctx, messagequeue.SubjectReputationUpdated, relay(hub, ws.EventReputationUpdated))
	if err != nil {
		return fmt.Errorf("subscribe reputation: %w", err)
	}
	defer cancelReputation()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fmt.Sprintf(`{"status":"ok","connections":%d}`, hub.ConnectionCount())))
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting dashboard server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if err := queue.Drain(); err != nil {
		slog.Error("nats drain error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// relay forwards a raw NATS payload to every connected WebSocket client,
// tagged with eventType, without re-decoding it into a typed struct.
func relay(hub *ws.Hub, eventType string) messagequeue.Handler {
	return func(ctx context.Context, _ string, data []byte) error {
		hub.BroadcastEvent(ctx, eventType, json.RawMessage(data))
		return nil
	}
}
