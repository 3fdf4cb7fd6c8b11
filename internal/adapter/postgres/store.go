package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/basegraph/intelengine/internal/port/database"
)

// Store implements database.ArchiveStore against a PostgreSQL pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing pgxpool.Pool as a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// RecordPageRank persists one batch of PageRank scores from a single
// completed power-iteration run in one transaction.
func (s *Store) RecordPageRank(ctx context.Context, snapshots []database.PageRankSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin pagerank batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `
		INSERT INTO pagerank_snapshots (address, score, total_agents, computed_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`

	for _, snap := range snapshots {
		if _, err := tx.Exec(ctx, q, snap.Address, snap.Score, snap.TotalAgents, snap.ComputedAt, snap.ExpiresAt); err != nil {
			return fmt.Errorf("insert pagerank snapshot for %s: %w", snap.Address, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit pagerank batch: %w", err)
	}
	return nil
}

// RecordReputation persists one composite reputation score.
func (s *Store) RecordReputation(ctx context.Context, snap database.ReputationSnapshot) error {
	const q = `
		INSERT INTO reputation_snapshots
			(address, overall, tenure, quality, trust, influence, activity, breadth, pagerank_score, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, q,
		snap.Address, snap.Overall, snap.Tenure, snap.Quality, snap.Trust,
		snap.Influence, snap.Activity, snap.Breadth, snap.PageRankScore, snap.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reputation snapshot for %s: %w", snap.Address, err)
	}
	return nil
}

// RecordTrending persists one trending-communities velocity computation.
func (s *Store) RecordTrending(ctx context.Context, snap database.TrendingSnapshot) error {
	const q = `
		INSERT INTO trending_snapshots (community, current_posts, previous_posts, velocity, current_votes, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, q,
		snap.Community, snap.CurrentPosts, snap.PreviousPosts, snap.Velocity, snap.CurrentVotes, snap.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trending snapshot for %s: %w", snap.Community, err)
	}
	return nil
}

// PageRankHistory returns recorded PageRank scores for address, newest first.
func (s *Store) PageRankHistory(ctx context.Context, address string, limit int) ([]database.PageRankSnapshot, error) {
	const q = `
		SELECT address, score, total_agents, computed_at, expires_at
		FROM pagerank_snapshots
		WHERE address = $1
		ORDER BY computed_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, q, address, limit)
	if err != nil {
		return nil, fmt.Errorf("pagerank history for %s: %w", address, err)
	}
	defer rows.Close()

	var result []database.PageRankSnapshot
	for rows.Next() {
		var snap database.PageRankSnapshot
		if err := rows.Scan(&snap.Address, &snap.Score, &snap.TotalAgents, &snap.ComputedAt, &snap.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan pagerank snapshot: %w", err)
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

// ReputationHistory returns recorded reputation scores for address, newest first.
func (s *Store) ReputationHistory(ctx context.Context, address string, limit int) ([]database.ReputationSnapshot, error) {
	const q = `
		SELECT address, overall, tenure, quality, trust, influence, activity, breadth, pagerank_score, computed_at
		FROM reputation_snapshots
		WHERE address = $1
		ORDER BY computed_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, q, address, limit)
	if err != nil {
		return nil, fmt.Errorf("reputation history for %s: %w", address, err)
	}
	defer rows.Close()

	var result []database.ReputationSnapshot
	for rows.Next() {
		var snap database.ReputationSnapshot
		if err := rows.Scan(
			&snap.Address, &snap.Overall, &snap.Tenure, &snap.Quality, &snap.Trust,
			&snap.Influence, &snap.Activity, &snap.Breadth, &snap.PageRankScore, &snap.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reputation snapshot: %w", err)
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}
