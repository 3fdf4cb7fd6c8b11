package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages broadcast to dashboard clients.
const (
	EventTrendingUpdate    = "trending.update"
	EventPageRankRefreshed = "pagerank.refreshed"
	EventReputationUpdated = "reputation.updated"
)

// TrendingUpdateEvent is broadcast when a trending-communities snapshot is
// recomputed, one entry per community in the window.
type TrendingUpdateEvent struct {
	Community     string  `json:"community"`
	CurrentPosts  int     `json:"current_posts"`
	PreviousPosts int     `json:"previous_posts"`
	Velocity      float64 `json:"velocity"`
	CurrentVotes  int     `json:"current_votes"`
}

// PageRankRefreshedEvent is broadcast when ReputationComposer refreshes its
// PageRank cache.
type PageRankRefreshedEvent struct {
	TotalAgents int    `json:"total_agents"`
	ExpiresAt   string `json:"expires_at"`
}

// ReputationUpdatedEvent is broadcast when a single agent's reputation score
// has been recomputed.
type ReputationUpdatedEvent struct {
	Address string  `json:"address"`
	Overall float64 `json:"overall"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
