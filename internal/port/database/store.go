// Package database defines the durable-archive store port (interface).
//
// The archive is write-mostly: it records PageRank, reputation, and
// trending snapshots for audit and historical trend analysis. Nothing in
// the core intelligence engine (IntelligenceService, ReputationComposer)
// reads from it — their answers always derive from the indexed view or
// the event-log fallback, never from archived history.
package database

import (
	"context"
	"time"
)

// PageRankSnapshot records one completed PageRank computation.
type PageRankSnapshot struct {
	Address     string
	Score       float64
	TotalAgents int
	ComputedAt  time.Time
	ExpiresAt   time.Time
}

// ReputationSnapshot records one computed composite reputation score.
type ReputationSnapshot struct {
	Address       string
	Overall       float64
	Tenure        float64
	Quality       float64
	Trust         float64
	Influence     float64
	Activity      float64
	Breadth       float64
	PageRankScore float64
	ComputedAt    time.Time
}

// TrendingSnapshot records one trending-communities velocity computation.
type TrendingSnapshot struct {
	Community     string
	CurrentPosts  int
	PreviousPosts int
	Velocity      float64
	CurrentVotes  int
	ComputedAt    time.Time
}

// ArchiveStore is the port interface for the out-of-core durable archive.
// Implementations must be safe for concurrent use.
type ArchiveStore interface {
	RecordPageRank(ctx context.Context, snapshots []PageRankSnapshot) error
	RecordReputation(ctx context.Context, snapshot ReputationSnapshot) error
	RecordTrending(ctx context.Context, snapshot TrendingSnapshot) error

	// PageRankHistory returns recorded PageRank scores for an address,
	// most recent first, bounded to limit rows.
	PageRankHistory(ctx context.Context, address string, limit int) ([]PageRankSnapshot, error)

	// ReputationHistory returns recorded reputation scores for an
	// address, most recent first, bounded to limit rows.
	ReputationHistory(ctx context.Context, address string, limit int) ([]ReputationSnapshot, error)
}
