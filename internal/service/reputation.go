package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/basegraph/intelengine/internal/port/messagequeue"
)

// Boosts carries optional additive deltas to a subset of reputation
// components. Absent means apply no adjustment. Each field is applied
// before its component is clamped to [0,100]; overall is recomputed from
// the adjusted components.
type Boosts struct {
	Activity  *float64
	Quality   *float64
	Influence *float64
	Breadth   *float64
}

// ReputationScore is the six-component composite reputation of a single
// agent, plus the overall mean. All seven fields are rounded to two
// decimals on output.
type ReputationScore struct {
	Address   string
	Name      string
	Tenure    float64
	Quality   float64
	Trust     float64
	Influence float64
	Activity  float64
	Breadth   float64
	Overall   float64
}

type pageRankCache struct {
	scoreMap    PageRankMap
	totalAgents int
	expiresAt   time.Time
}

// ReputationComposer is C7: it composes the six-component reputation
// score and caches the attestation-graph PageRank distribution it
// depends on.
type ReputationComposer struct {
	intel    *IntelligenceService
	resolver *NameResolver
	ttl      time.Duration

	mu    sync.RWMutex
	cache pageRankCache

	queue messagequeue.Queue // nil unless SetQueue is called
}

// SetQueue attaches a message queue. pageRank then publishes one
// intel.pagerank.refreshed message per recompute, and Score publishes one
// intel.reputation.updated message per call, both best-effort.
func (c *ReputationComposer) SetQueue(q messagequeue.Queue) {
	c.queue = q
}

// NewReputationComposer wires C7 on top of an already-constructed C6.
func NewReputationComposer(intel *IntelligenceService, resolver *NameResolver, pageRankCacheTTL time.Duration) *ReputationComposer {
	if pageRankCacheTTL <= 0 {
		pageRankCacheTTL = 5 * time.Minute
	}
	return &ReputationComposer{intel: intel, resolver: resolver, ttl: pageRankCacheTTL}
}

// pageRank returns the cached attestation-graph PageRank distribution,
// recomputing via C6 if expired or missing. Concurrent refreshes may run
// redundantly; the last writer wins under the exclusive lock.
func (c *ReputationComposer) pageRank(ctx context.Context) (PageRankMap, int, error) {
	c.mu.RLock()
	cached := c.cache
	c.mu.RUnlock()
	if cached.scoreMap != nil && time.Now().Before(cached.expiresAt) {
		return cached.scoreMap, cached.totalAgents, nil
	}

	scores, total, err := c.intel.PageRankOverAttestations(ctx)
	if err != nil {
		return nil, 0, err
	}

	expiresAt := time.Now().Add(c.ttl)
	c.mu.Lock()
	c.cache = pageRankCache{scoreMap: scores, totalAgents: total, expiresAt: expiresAt}
	c.mu.Unlock()

	if c.queue != nil {
		payload, err := json.Marshal(messagequeue.PageRankRefreshedPayload{
			TotalAgents: total, ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
		})
		if err == nil {
			if err := c.queue.Publish(ctx, messagequeue.SubjectPageRankRefreshed, payload); err != nil {
				slog.Warn("failed to publish pagerank refresh", "error", err)
			}
		}
	}

	return scores, total, nil
}

// Score computes the composite reputation of agentInput (address or
// name), optionally attaching its resolved name and applying boosts.
func (c *ReputationComposer) Score(ctx context.Context, agentInput string, withName bool, boosts *Boosts) (ReputationScore, error) {
	addr, err := c.intel.resolveAgentInput(ctx, agentInput)
	if err != nil {
		return ReputationScore{}, err
	}

	a, found, err := c.intel.AgentByAddress(ctx, addr)
	if err != nil {
		return ReputationScore{}, err
	}
	if !found {
		return ReputationScore{Address: addr, Quality: 50}, nil
	}

	scores, total, err := c.pageRank(ctx)
	pageRankErr := err

	var attestersTargeting []string
	var votersTargeting []VoterVote
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		active, err := c.intel.ActiveAttestationsTargeting(gctx, addr)
		if err != nil {
			return err
		}
		for _, at := range active {
			attestersTargeting = append(attestersTargeting, at.Attester)
		}
		return nil
	})
	group.Go(func() error {
		relations, err := c.intel.VotingRelationsTargeting(gctx, addr)
		if err != nil {
			return err
		}
		for _, r := range relations {
			votersTargeting = append(votersTargeting, VoterVote{Upvotes: r.Upvotes, Downvotes: r.Downvotes, VoterPageRank: scores[r.Voter]})
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return ReputationScore{}, err
	}

	floor := c.intel.InfluenceFloor(total)

	var trust, quality float64
	if pageRankErr == nil {
		attesterScores := make([]float64, 0, len(attestersTargeting))
		for _, at := range attestersTargeting {
			attesterScores = append(attesterScores, scores[at])
		}
		trust = WeightedTrust(attesterScores, floor, c.intel.cfg.TrustThreshold)
		quality = WeightedQuality(votersTargeting, a.PostCount, floor, c.intel.cfg.QualityScalingFactor)
	} else {
		// Raw, unweighted fallback when the PageRank fetch itself failed.
		trust = rawTrust(len(attestersTargeting), c.intel.cfg.TrustThreshold)
		quality = rawQuality(votersTargeting, a.PostCount, c.intel.cfg.QualityScalingFactor)
	}

	now := time.Now().UTC()
	score := ReputationScore{
		Address:   addr,
		Tenure:    clamp(float64(min(a.DaysSinceRegistration(now), 365))/365*100, 0, 100),
		Quality:   quality,
		Trust:     trust,
		Influence: clamp(float64(min(a.FollowerCount, 50))/50*100, 0, 100),
		Activity:  clamp(float64(min(a.PostCount, 100)), 0, 100),
		Breadth:   clamp(float64(min(len(a.ActiveCommunities), 10))/10*100, 0, 100),
	}

	if boosts != nil {
		score = applyBoosts(score, *boosts)
	}
	score = roundScore(score)
	score.Overall = round2(mean6(score))

	if withName && c.resolver != nil {
		if name, err := c.resolver.LookupAddress(ctx, addr); err == nil {
			score.Name = name
		}
	}

	if c.queue != nil {
		payload, err := json.Marshal(messagequeue.ReputationUpdatedPayload{Address: addr, Overall: score.Overall})
		if err == nil {
			if err := c.queue.Publish(ctx, messagequeue.SubjectReputationUpdated, payload); err != nil {
				slog.Warn("failed to publish reputation update", "address", addr, "error", err)
			}
		}
	}
	return score, nil
}

func rawTrust(attesterCount int, trustThreshold float64) float64 {
	if attesterCount == 0 {
		return 0
	}
	return clamp(float64(attesterCount)/(trustThreshold*10)*100, 0, 100)
}

func rawQuality(votes []VoterVote, postCount int, qualityScalingFactor float64) float64 {
	if postCount == 0 {
		return 50
	}
	sum := 0
	for _, v := range votes {
		sum += v.Upvotes - v.Downvotes
	}
	return clamp(50+(float64(sum)/float64(postCount))*qualityScalingFactor/100, 0, 100)
}

func applyBoosts(score ReputationScore, b Boosts) ReputationScore {
	if b.Activity != nil {
		score.Activity = clamp(score.Activity+*b.Activity, 0, 100)
	}
	if b.Quality != nil {
		score.Quality = clamp(score.Quality+*b.Quality, 0, 100)
	}
	if b.Influence != nil {
		score.Influence = clamp(score.Influence+*b.Influence, 0, 100)
	}
	if b.Breadth != nil {
		score.Breadth = clamp(score.Breadth+*b.Breadth, 0, 100)
	}
	return score
}

func roundScore(s ReputationScore) ReputationScore {
	s.Tenure = round2(s.Tenure)
	s.Quality = round2(s.Quality)
	s.Trust = round2(s.Trust)
	s.Influence = round2(s.Influence)
	s.Activity = round2(s.Activity)
	s.Breadth = round2(s.Breadth)
	return s
}

func mean6(s ReputationScore) float64 {
	return (s.Tenure + s.Quality + s.Trust + s.Influence + s.Activity + s.Breadth) / 6
}

// PageRankEntryWithName pairs a PageRank entry with its resolved name.
type PageRankEntryWithName struct {
	Address string
	Score   float64
	Name    string
}

// PageRankList returns the full cached PageRank distribution, sorted
// descending, optionally with names attached.
func (c *ReputationComposer) PageRankList(ctx context.Context, withName bool) ([]PageRankEntryWithName, error) {
	scores, _, err := c.pageRank(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]PageRankEntryWithName, 0, len(scores))
	addrs := make([]string, 0, len(scores))
	for addr := range scores {
		addrs = append(addrs, addr)
	}
	for _, addr := range addrs {
		entries = append(entries, PageRankEntryWithName{Address: addr, Score: scores[addr]})
	}
	sortPageRankEntries(entries)

	if withName && c.resolver != nil {
		addrSet := make([]string, len(entries))
		for i, e := range entries {
			addrSet[i] = e.Address
		}
		names := c.resolver.LookupAddresses(ctx, addrSet)
		for i, e := range entries {
			entries[i].Name = names[e.Address]
		}
	}
	return entries, nil
}

func sortPageRankEntries(entries []PageRankEntryWithName) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Address < entries[j].Address
	})
}
