package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/basegraph/intelengine/internal/domain/address"
	"github.com/basegraph/intelengine/internal/domain/agent"
	"github.com/basegraph/intelengine/internal/domain/attestation"
	"github.com/basegraph/intelengine/internal/domain/citation"
	communitypkg "github.com/basegraph/intelengine/internal/domain/community"
	"github.com/basegraph/intelengine/internal/domain/content"
	"github.com/basegraph/intelengine/internal/domain/queryerror"
	"github.com/basegraph/intelengine/internal/domain/voting"
	"github.com/basegraph/intelengine/internal/port/indexedquery"
	"github.com/basegraph/intelengine/internal/port/messagequeue"
)

// IntelligenceConfig carries the tuning knobs the intelligence layer
// exposes for reputation/trust computation, detached from the config
// package so the service layer has no import-time dependency on it.
type IntelligenceConfig struct {
	MaxEvents               int
	MaxBlockRange           int
	FromBlock               int64
	MaxPageRankIterations   int
	PageRankDampingFactor   float64
	MinPageRankForInfluence float64
	TrustThreshold          float64
	QualityScalingFactor    float64
}

// IntelligenceService is the public query surface (C6). Every query
// follows the same template: try the indexed source, fall back to the
// raw event scan on a transport/semantic error, optionally enrich with
// names. No component calls back into C6/C7; it is the top of the
// dependency graph.
type IntelligenceService struct {
	indexed  indexedquery.Client // nil when no indexed source is configured
	fallback DataSource
	builder  *GraphBuilder
	resolver *NameResolver
	cfg      IntelligenceConfig
	queue    messagequeue.Queue // nil unless SetQueue is called

	rngMu sync.Mutex
	rng   *rand.Rand // guards InheritChildAvatar's hue-shift and complexity jitter
}

// SetQueue attaches a message queue; TrendingCommunities then publishes one
// intel.trending.snapshot message per returned community, best-effort.
func (s *IntelligenceService) SetQueue(q messagequeue.Queue) {
	s.queue = q
}

func (s *IntelligenceService) publishTrendingSnapshots(ctx context.Context, entries []TrendingEntry) {
	if s.queue == nil {
		return
	}
	for _, e := range entries {
		payload, err := json.Marshal(messagequeue.TrendingSnapshotPayload{
			Community: e.Community, CurrentPosts: e.CurrentPosts,
			PreviousPosts: e.PreviousPosts, Velocity: e.Velocity, CurrentVotes: e.CurrentVotes,
		})
		if err != nil {
			continue
		}
		if err := s.queue.Publish(ctx, messagequeue.SubjectTrendingSnapshot, payload); err != nil {
			slog.Warn("failed to publish trending snapshot", "community", e.Community, "error", err)
		}
	}
}

// NewIntelligenceService wires C6. indexed may be nil (event-only
// deployments); scanner backs the fallback DataSource.
func NewIntelligenceService(indexed indexedquery.Client, scanner *EventScanner, resolver *NameResolver, cfg IntelligenceConfig) *IntelligenceService {
	return &IntelligenceService{
		indexed:  indexed,
		fallback: newEventDataSource(scanner, cfg.FromBlock),
		builder:  NewGraphBuilder(),
		resolver: resolver,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// InheritChildAvatar derives a child agent's avatar from its parent's,
// per the documented hue-shift/complexity-jitter rules, serialising access
// to the service's shared random source (InheritAvatar itself is pure but
// *rand.Rand is not safe for concurrent use).
func (s *IntelligenceService) InheritChildAvatar(parent Avatar, override AvatarOverride) Avatar {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return InheritAvatar(parent, override, s.rng)
}

// primarySource wraps s.indexed, or nil if unconfigured.
func (s *IntelligenceService) primarySource() DataSource {
	if s.indexed == nil {
		return nil
	}
	return newIndexedDataSource(s.indexed)
}

// withSource runs fetch against the primary source and falls back to the
// raw event scan on a Transport/Semantic error, per the documented
// Primary -> Fallback -> Empty state machine. InvalidInput and Cancelled
// propagate immediately; any other failure after fallback also exhausts
// degrades to the documented Empty (zero value), never an error.
func withSource[T any](ctx context.Context, s *IntelligenceService, query string, fetch func(DataSource) (T, error)) (T, error) {
	var zero T

	primary := s.primarySource()
	if primary != nil {
		result, err := fetch(primary)
		if err == nil {
			return result, nil
		}
		if surfaces(err) {
			return zero, err
		}
		var qerr *queryerror.Error
		if !errors.As(err, &qerr) || !qerr.Kind.TriggersFallback() {
			slog.Warn("query failed on primary source, no fallback applicable", "query", query, "error", err)
			return zero, nil
		}
		slog.Warn("query falling back to event scan", "query", query, "reason", qerr.Kind)
	}

	result, err := fetch(s.fallback)
	if err != nil {
		if surfaces(err) {
			return zero, err
		}
		slog.Warn("query returned empty after fallback failure", "query", query, "error", err)
		return zero, nil
	}
	return result, nil
}

func surfaces(err error) bool {
	var qerr *queryerror.Error
	if !errors.As(err, &qerr) {
		return true
	}
	return qerr.Kind == queryerror.InvalidInput || qerr.Kind == queryerror.Cancelled
}

// --- experts ---

// ExpertEntry is one experts() result row.
type ExpertEntry struct {
	Address    string
	PostCount  int
	TotalScore int
	AvgScore   float64
	Name       string
}

// Experts returns the top agents by total score within community.
func (s *IntelligenceService) Experts(ctx context.Context, community string, limit int) ([]ExpertEntry, error) {
	if limit <= 0 {
		return nil, queryerror.New("Experts", queryerror.InvalidInput, nil)
	}
	community = normalizeName(community)

	posts, err := withSource(ctx, s, "experts", func(ds DataSource) ([]content.Content, error) {
		return ds.Contents(ctx, community)
	})
	if err != nil {
		return nil, err
	}

	agg := make(map[string]*ExpertEntry)
	order := make([]string, 0)
	for _, p := range posts {
		e, ok := agg[p.Author]
		if !ok {
			e = &ExpertEntry{Address: p.Author}
			agg[p.Author] = e
			order = append(order, p.Author)
		}
		e.PostCount++
		e.TotalScore += p.Score()
	}

	results := make([]ExpertEntry, 0, len(order))
	for _, addr := range order {
		e := *agg[addr]
		if e.PostCount > 0 {
			e.AvgScore = float64(e.TotalScore) / float64(e.PostCount)
		}
		results = append(results, e)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].TotalScore > results[j].TotalScore })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// --- relatedCommunities ---

// RelatedCommunity is one relatedCommunities() result row.
type RelatedCommunity struct {
	Community    string
	SharedAgents int
	Relatedness  float64
}

// RelatedCommunities returns communities with non-empty author overlap
// with community, ranked by Jaccard relatedness.
func (s *IntelligenceService) RelatedCommunities(ctx context.Context, community string, limit int) ([]RelatedCommunity, error) {
	if limit <= 0 {
		return nil, queryerror.New("RelatedCommunities", queryerror.InvalidInput, nil)
	}
	target := normalizeName(community)

	allPosts, err := withSource(ctx, s, "relatedCommunities", func(ds DataSource) ([]content.Content, error) {
		return ds.Contents(ctx, "")
	})
	if err != nil {
		return nil, err
	}

	authorsByCommunity := make(map[string]map[string]bool)
	for _, p := range allPosts {
		set, ok := authorsByCommunity[p.Community]
		if !ok {
			set = make(map[string]bool)
			authorsByCommunity[p.Community] = set
		}
		set[p.Author] = true
	}

	targetAuthors := authorsByCommunity[target]
	results := make([]RelatedCommunity, 0)
	for c, authors := range authorsByCommunity {
		if c == target {
			continue
		}
		shared := 0
		for a := range targetAuthors {
			if authors[a] {
				shared++
			}
		}
		if shared == 0 {
			continue
		}
		results = append(results, RelatedCommunity{
			Community:    c,
			SharedAgents: shared,
			Relatedness:  Jaccard(targetAuthors, authors),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Relatedness != results[j].Relatedness {
			return results[i].Relatedness > results[j].Relatedness
		}
		return results[i].Community < results[j].Community
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// --- trustPath ---

// TrustPath finds the shortest attestation path between two agents or
// names, within maxDepth hops (clamped to [1,10]).
func (s *IntelligenceService) TrustPath(ctx context.Context, source, target string, maxDepth int) (TrustPathResult, error) {
	srcAddr, err := s.resolveAgentInput(ctx, source)
	if err != nil {
		return TrustPathResult{}, err
	}
	dstAddr, err := s.resolveAgentInput(ctx, target)
	if err != nil {
		return TrustPathResult{}, err
	}

	active, err := withSource(ctx, s, "trustPath", func(ds DataSource) ([]attestation.Attestation, error) {
		return ds.ActiveAttestations(ctx)
	})
	if err != nil {
		return TrustPathResult{}, err
	}

	g := s.builder.BuildAttestationGraph(active)
	return TrustPath(g, srcAddr, dstAddr, maxDepth), nil
}

func (s *IntelligenceService) resolveAgentInput(ctx context.Context, input string) (string, error) {
	if s.resolver == nil || address.LooksLikeAddress(input) {
		if !address.Valid(input) {
			return "", queryerror.New("resolveAgentInput", queryerror.InvalidInput, nil)
		}
		return address.Normalize(input), nil
	}
	resolved, err := s.resolver.ResolveNameOrAddress(ctx, input)
	if err != nil {
		return "", err
	}
	if resolved == "" {
		return "", queryerror.New("resolveAgentInput", queryerror.InvalidInput, nil)
	}
	return resolved, nil
}

// --- bridgeAgents ---

// AgentBridge is one bridgeAgents() result row.
type AgentBridge struct {
	Address       string
	Name          string
	ScoreInA      int
	ScoreInB      int
	CombinedScore int
}

// BridgeAgents returns agents with posts in both communityA and
// communityB, ranked by combined score.
func (s *IntelligenceService) BridgeAgents(ctx context.Context, communityA, communityB string, limit int) ([]AgentBridge, error) {
	if limit <= 0 {
		return nil, queryerror.New("BridgeAgents", queryerror.InvalidInput, nil)
	}
	a, b := normalizeName(communityA), normalizeName(communityB)

	posts, err := withSource(ctx, s, "bridgeAgents", func(ds DataSource) ([]content.Content, error) {
		return ds.Contents(ctx, "")
	})
	if err != nil {
		return nil, err
	}

	scoreInA := make(map[string]int)
	scoreInB := make(map[string]int)
	for _, p := range posts {
		switch p.Community {
		case a:
			scoreInA[p.Author] += p.Score()
		case b:
			scoreInB[p.Author] += p.Score()
		}
	}

	results := make([]AgentBridge, 0)
	for addr, sa := range scoreInA {
		sb, ok := scoreInB[addr]
		if !ok {
			continue
		}
		results = append(results, AgentBridge{Address: addr, ScoreInA: sa, ScoreInB: sb, CombinedScore: sa + sb})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CombinedScore > results[j].CombinedScore })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// --- agentTopicMap ---

// TopicEntry is one agentTopicMap() result row.
type TopicEntry struct {
	Community  string
	PostCount  int
	TotalScore int
}

// AgentTopicMap returns the communities an agent has posted in, ranked by
// total score.
func (s *IntelligenceService) AgentTopicMap(ctx context.Context, agentInput string) ([]TopicEntry, error) {
	addr, err := s.resolveAgentInput(ctx, agentInput)
	if err != nil {
		return nil, err
	}

	posts, err := withSource(ctx, s, "agentTopicMap", func(ds DataSource) ([]content.Content, error) {
		return ds.Contents(ctx, "")
	})
	if err != nil {
		return nil, err
	}

	agg := make(map[string]*TopicEntry)
	order := make([]string, 0)
	for _, p := range posts {
		if p.Author != addr {
			continue
		}
		e, ok := agg[p.Community]
		if !ok {
			e = &TopicEntry{Community: p.Community}
			agg[p.Community] = e
			order = append(order, p.Community)
		}
		e.PostCount++
		e.TotalScore += p.Score()
	}

	results := make([]TopicEntry, 0, len(order))
	for _, c := range order {
		results = append(results, *agg[c])
	}
	sort.Slice(results, func(i, j int) bool { return results[i].TotalScore > results[j].TotalScore })
	return results, nil
}

// --- networkConsensus ---

// ConsensusEntry is one networkConsensus() result row.
type ConsensusEntry struct {
	CID        string
	Author     string
	AuthorName string
	Score      int
	Upvotes    int
	Downvotes  int
}

// NetworkConsensus returns active posts in community ranked by score.
func (s *IntelligenceService) NetworkConsensus(ctx context.Context, community string, limit int) ([]ConsensusEntry, error) {
	if limit <= 0 {
		return nil, queryerror.New("NetworkConsensus", queryerror.InvalidInput, nil)
	}
	target := normalizeName(community)

	posts, err := withSource(ctx, s, "networkConsensus", func(ds DataSource) ([]content.Content, error) {
		return ds.Contents(ctx, target)
	})
	if err != nil {
		return nil, err
	}

	results := make([]ConsensusEntry, 0, len(posts))
	for _, p := range posts {
		if !p.Active {
			continue
		}
		results = append(results, ConsensusEntry{
			CID: p.CID, Author: p.Author, Score: p.Score(),
			Upvotes: p.Upvotes, Downvotes: p.Downvotes,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// --- communityHealth ---

// CommunityHealth is the communityHealth() result.
type CommunityHealth struct {
	TotalPosts    int
	UniqueAuthors int
	AvgScore      float64
	TopCIDs       []string
}

// CommunityHealth returns aggregate health stats for community,
// zero-filled if the community is unknown.
func (s *IntelligenceService) CommunityHealth(ctx context.Context, community string) (CommunityHealth, error) {
	target := normalizeName(community)

	posts, err := withSource(ctx, s, "communityHealth", func(ds DataSource) ([]content.Content, error) {
		return ds.Contents(ctx, target)
	})
	if err != nil {
		return CommunityHealth{}, err
	}
	if len(posts) == 0 {
		return CommunityHealth{}, nil
	}

	authors := make(map[string]bool)
	totalScore := 0
	sorted := make([]content.Content, len(posts))
	copy(sorted, posts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score() > sorted[j].Score() })

	for _, p := range posts {
		authors[p.Author] = true
		totalScore += p.Score()
	}

	topN := 5
	if len(sorted) < topN {
		topN = len(sorted)
	}
	topCIDs := make([]string, 0, topN)
	for _, p := range sorted[:topN] {
		topCIDs = append(topCIDs, p.CID)
	}

	return CommunityHealth{
		TotalPosts:    len(posts),
		UniqueAuthors: len(authors),
		AvgScore:      float64(totalScore) / float64(len(posts)),
		TopCIDs:       topCIDs,
	}, nil
}

// --- communityList ---

// CommunityList returns every community slug observed, sorted ascending
// and deduplicated.
func (s *IntelligenceService) CommunityList(ctx context.Context) ([]string, error) {
	posts, err := withSource(ctx, s, "communityList", func(ds DataSource) ([]content.Content, error) {
		return ds.Contents(ctx, "")
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, p := range posts {
		seen[p.Community] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// --- tagCloud ---

// TagCloud aggregates sanitised tags across community's posts (or every
// community when community is ""), returning the top limit tags by count
// descending.
func (s *IntelligenceService) TagCloud(ctx context.Context, community string, limit int) ([]TagCount, error) {
	target := ""
	if community != "" {
		target = normalizeName(community)
	}

	posts, err := withSource(ctx, s, "tagCloud", func(ds DataSource) ([]content.Content, error) {
		return ds.Contents(ctx, target)
	})
	if err != nil {
		return nil, err
	}

	return TagCloud(toTaggedPosts(posts), limit), nil
}

// --- conceptTimeline ---

// ConceptTimeline buckets community's posts mentioning tag by UTC day,
// returning ascending buckets plus the total matching post count.
func (s *IntelligenceService) ConceptTimeline(ctx context.Context, community, tag string) ([]TimelineBucket, int, error) {
	if tag == "" {
		return nil, 0, queryerror.New("ConceptTimeline", queryerror.InvalidInput, nil)
	}
	target := ""
	if community != "" {
		target = normalizeName(community)
	}

	posts, err := withSource(ctx, s, "conceptTimeline", func(ds DataSource) ([]content.Content, error) {
		return ds.Contents(ctx, target)
	})
	if err != nil {
		return nil, 0, err
	}

	buckets, total := ConceptTimeline(toTaggedPosts(posts), tag)
	return buckets, total, nil
}

func toTaggedPosts(posts []content.Content) []TaggedPost {
	out := make([]TaggedPost, len(posts))
	for i, p := range posts {
		out[i] = TaggedPost{Tags: p.Tags, Score: p.Score(), Timestamp: p.Timestamp.Unix()}
	}
	return out
}

// --- trendingCommunities ---

// TrendingEntry is one trendingCommunities() result row.
type TrendingEntry struct {
	Community     string
	CurrentPosts  int
	PreviousPosts int
	Velocity      float64
	CurrentVotes  int
}

// TrendingCommunities compares post/vote volume over the current
// windowHours window against the prior window of equal length. Unlike a
// naive event-log implementation that never fetches block timestamps
// and so lumps every post into the current window, this implementation
// carries real per-event timestamps on both sources, so windowing stays
// precise whether served from the indexed view or the raw scan.
func (s *IntelligenceService) TrendingCommunities(ctx context.Context, windowHours int, limit int) ([]TrendingEntry, error) {
	if windowHours <= 0 {
		windowHours = 168
	}
	if limit <= 0 {
		return nil, queryerror.New("TrendingCommunities", queryerror.InvalidInput, nil)
	}

	posts, err := withSource(ctx, s, "trendingCommunities", func(ds DataSource) ([]content.Content, error) {
		return ds.Contents(ctx, "")
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	window := time.Duration(windowHours) * time.Hour
	currentStart := now.Add(-window)
	previousStart := currentStart.Add(-window)

	type counts struct {
		current, previous, currentVotes int
	}
	byCommunity := make(map[string]*counts)
	for _, p := range posts {
		c, ok := byCommunity[p.Community]
		if !ok {
			c = &counts{}
			byCommunity[p.Community] = c
		}
		switch {
		case p.Timestamp.After(currentStart):
			c.current++
			c.currentVotes += p.Upvotes + p.Downvotes
		case p.Timestamp.After(previousStart):
			c.previous++
		}
	}

	results := make([]TrendingEntry, 0, len(byCommunity))
	for community, c := range byCommunity {
		var velocity float64
		switch {
		case c.previous > 0:
			velocity = float64(c.current) / float64(c.previous)
		case c.current > 0:
			velocity = 10
		}
		results = append(results, TrendingEntry{
			Community: community, CurrentPosts: c.current, PreviousPosts: c.previous,
			Velocity: velocity, CurrentVotes: c.currentVotes,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Velocity > results[j].Velocity })
	if len(results) > limit {
		results = results[:limit]
	}
	s.publishTrendingSnapshots(ctx, results)
	return results, nil
}

// --- collaborationNetwork ---

// CollabPartner is one collaborationNetwork() result row.
type CollabPartner struct {
	Address     string
	Name        string
	CollabScore int
}

// CollaborationNetwork finds agents who both gave and received votes
// to/from agent, ranked by collaboration score.
func (s *IntelligenceService) CollaborationNetwork(ctx context.Context, agentInput string, limit int) ([]CollabPartner, error) {
	if limit <= 0 {
		return nil, queryerror.New("CollaborationNetwork", queryerror.InvalidInput, nil)
	}
	addr, err := s.resolveAgentInput(ctx, agentInput)
	if err != nil {
		return nil, err
	}

	relations, err := withSource(ctx, s, "collaborationNetwork", func(ds DataSource) ([]voting.Relation, error) {
		return ds.VotingRelations(ctx)
	})
	if err != nil {
		return nil, err
	}

	given := make(map[string]int)  // agent -> partner: upvotes agent gave partner
	received := make(map[string]int)
	for _, r := range relations {
		switch {
		case r.Voter == addr:
			given[r.Author] += r.Upvotes
		case r.Author == addr:
			received[r.Voter] += r.Upvotes
		}
	}

	results := make([]CollabPartner, 0)
	for partner, g := range given {
		r, ok := received[partner]
		if !ok || g <= 0 || r <= 0 {
			continue
		}
		m := g
		if r < m {
			m = r
		}
		results = append(results, CollabPartner{Address: partner, CollabScore: 2 * m})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CollabScore > results[j].CollabScore })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// --- votingInfluence ---

// VotingInfluence runs PageRank over the weighted voter->author graph.
func (s *IntelligenceService) VotingInfluence(ctx context.Context, limit int) ([]PageRankEntry, error) {
	if limit <= 0 {
		return nil, queryerror.New("VotingInfluence", queryerror.InvalidInput, nil)
	}

	relations, err := withSource(ctx, s, "votingInfluence", func(ds DataSource) ([]voting.Relation, error) {
		return ds.VotingRelations(ctx)
	})
	if err != nil {
		return nil, err
	}

	g := s.builder.BuildVotingGraph(relations)
	_, entries := PageRank(g, s.cfg.PageRankDampingFactor, s.cfg.MaxPageRankIterations)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// --- emergingAgents ---

// EmergingAgent is one emergingAgents() result row.
type EmergingAgent struct {
	Address               string
	Name                  string
	PostCount             int
	DaysSinceRegistration int
	ActivityRate          float64
}

// EmergingAgents returns recently-registered agents ranked by how often
// they post per day.
func (s *IntelligenceService) EmergingAgents(ctx context.Context, windowHours int, limit int) ([]EmergingAgent, error) {
	if windowHours <= 0 {
		windowHours = 336
	}
	if limit <= 0 {
		return nil, queryerror.New("EmergingAgents", queryerror.InvalidInput, nil)
	}

	agents, err := withSource(ctx, s, "emergingAgents", func(ds DataSource) ([]agent.Agent, error) {
		return ds.Agents(ctx, "")
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cutoff := now.Add(-time.Duration(windowHours) * time.Hour)

	results := make([]EmergingAgent, 0)
	for _, a := range agents {
		if a.RegisteredAt.Before(cutoff) {
			continue
		}
		days := a.DaysSinceRegistration(now)
		denom := days
		if denom < 1 {
			denom = 1
		}
		results = append(results, EmergingAgent{
			Address: a.Address, PostCount: a.PostCount, DaysSinceRegistration: days,
			ActivityRate: float64(a.PostCount) / float64(denom),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ActivityRate > results[j].ActivityRate })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// --- citationTree / influenceLineage / mostCited / citationBridges / citationPageRank ---

// Direction selects which citation edges a citationTree walk follows.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// CitationNode is one node in a citationTree result.
type CitationNode struct {
	CID      string
	Children []CitationNode
}

const citationTreeChildCap = 100

// CitationTree walks the citation graph from cid to depth (clamped to
// [1,5]) in direction, preventing revisits via a shared visited set.
func (s *IntelligenceService) CitationTree(ctx context.Context, cid string, depth int, dir Direction) (CitationNode, error) {
	if depth < 1 {
		depth = 1
	}
	if depth > 5 {
		depth = 5
	}

	citations, err := withSource(ctx, s, "citationTree", func(ds DataSource) ([]citation.Citation, error) {
		return ds.Citations(ctx)
	})
	if err != nil {
		return CitationNode{}, err
	}

	cg := s.builder.BuildCitationGraph(citations, nil)
	adjacency := cg.Graph.OutEdges
	if dir == DirectionInbound {
		adjacency = invertAdjacency(cg.Graph)
	}

	visited := map[string]bool{cid: true}
	return buildCitationNode(adjacency, cid, depth, visited), nil
}

func invertAdjacency(g *Graph) map[string][]Neighbor {
	inverted := make(map[string][]Neighbor)
	for from, edges := range g.OutEdges {
		for _, e := range edges {
			inverted[e.Node] = append(inverted[e.Node], Neighbor{Node: from, Weight: e.Weight})
		}
	}
	return inverted
}

func buildCitationNode(adjacency map[string][]Neighbor, cid string, remainingDepth int, visited map[string]bool) CitationNode {
	node := CitationNode{CID: cid}
	if remainingDepth == 0 {
		return node
	}
	children := adjacency[cid]
	count := 0
	for _, nb := range children {
		if visited[nb.Node] {
			continue
		}
		if count >= citationTreeChildCap {
			break
		}
		visited[nb.Node] = true
		node.Children = append(node.Children, buildCitationNode(adjacency, nb.Node, remainingDepth-1, visited))
		count++
	}
	return node
}

// LineageStep is one hop in an influenceLineage chain.
type LineageStep struct {
	CID       string
	Community string
}

// InfluenceLineage follows the first outbound citation (ordered by
// timestamp ascending) from cid up to maxDepth hops (clamped to [1,20]),
// stopping at a cycle or a leaf and recording community transitions.
func (s *IntelligenceService) InfluenceLineage(ctx context.Context, cid string, maxDepth int, communityOf map[string]string) ([]LineageStep, error) {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxDepth > 20 {
		maxDepth = 20
	}

	citations, err := withSource(ctx, s, "influenceLineage", func(ds DataSource) ([]citation.Citation, error) {
		return ds.Citations(ctx)
	})
	if err != nil {
		return nil, err
	}

	firstOutbound := make(map[string]string)
	earliest := make(map[string]time.Time)
	for _, c := range citations {
		if t, ok := earliest[c.SourceCID]; !ok || c.Timestamp.Before(t) {
			earliest[c.SourceCID] = c.Timestamp
			firstOutbound[c.SourceCID] = c.TargetCID
		}
	}

	visited := map[string]bool{cid: true}
	chain := []LineageStep{{CID: cid, Community: communityOf[cid]}}
	cur := cid
	for i := 0; i < maxDepth; i++ {
		next, ok := firstOutbound[cur]
		if !ok || visited[next] {
			break
		}
		visited[next] = true
		chain = append(chain, LineageStep{CID: next, Community: communityOf[next]})
		cur = next
	}
	return chain, nil
}

// CitationEntry is one mostCited()/citationBridges()/citationPageRank()
// result row. mostCited and citationBridges leave PageRank at 0 by
// design: they rank by inbound/bridge count and never compute a
// PageRank distribution over the citation graph.
type CitationEntry struct {
	CID            string
	PageRank       float64
	CitationCount  int
}

// MostCited ranks content by inbound citation count, optionally scoped to
// a community.
func (s *IntelligenceService) MostCited(ctx context.Context, community string, limit int) ([]CitationEntry, error) {
	if limit <= 0 {
		return nil, queryerror.New("MostCited", queryerror.InvalidInput, nil)
	}

	citations, err := withSource(ctx, s, "mostCited", func(ds DataSource) ([]citation.Citation, error) {
		return ds.Citations(ctx)
	})
	if err != nil {
		return nil, err
	}

	inbound := make(map[string]int)
	for _, c := range citations {
		inbound[c.TargetCID]++
	}

	results := make([]CitationEntry, 0, len(inbound))
	for cid, count := range inbound {
		results = append(results, CitationEntry{CID: cid, CitationCount: count})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CitationCount > results[j].CitationCount })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CitationBridgesQuery ranks content whose outgoing citations touch both
// communityA and communityB.
func (s *IntelligenceService) CitationBridgesQuery(ctx context.Context, communityA, communityB string, limit int, communityOf map[string]string) ([]CitationEntry, error) {
	if limit <= 0 {
		return nil, queryerror.New("CitationBridgesQuery", queryerror.InvalidInput, nil)
	}

	citations, err := withSource(ctx, s, "citationBridges", func(ds DataSource) ([]citation.Citation, error) {
		return ds.Citations(ctx)
	})
	if err != nil {
		return nil, err
	}

	cg := s.builder.BuildCitationGraph(citations, communityOf)
	bridges := CitationBridges(cg, normalizeName(communityA), normalizeName(communityB))

	results := make([]CitationEntry, 0, len(bridges))
	for _, b := range bridges {
		results = append(results, CitationEntry{CID: b.CID, CitationCount: b.QualifyingCount})
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CitationPageRank runs PageRank over the citation graph, optionally
// scoped to a community, ranked by score descending.
func (s *IntelligenceService) CitationPageRank(ctx context.Context, community string, limit int) ([]CitationEntry, error) {
	if limit <= 0 {
		return nil, queryerror.New("CitationPageRank", queryerror.InvalidInput, nil)
	}

	citations, err := withSource(ctx, s, "citationPageRank", func(ds DataSource) ([]citation.Citation, error) {
		return ds.Citations(ctx)
	})
	if err != nil {
		return nil, err
	}

	cg := s.builder.BuildCitationGraph(citations, nil)
	_, entries := PageRank(cg.Graph, s.cfg.PageRankDampingFactor, s.cfg.MaxPageRankIterations)

	results := make([]CitationEntry, 0, len(entries))
	for _, e := range entries {
		results = append(results, CitationEntry{CID: e.Node, PageRank: e.Score})
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// InfluenceFloor resolves the configured PageRank influence floor,
// defaulting to 0.5/N when unset (MinPageRankForInfluence == 0).
func (s *IntelligenceService) InfluenceFloor(totalAgents int) float64 {
	if s.cfg.MinPageRankForInfluence > 0 {
		return s.cfg.MinPageRankForInfluence
	}
	if totalAgents == 0 {
		return 0
	}
	return 0.5 / float64(totalAgents)
}

// PageRankOverAttestations computes PageRank over the active attestation
// graph, the routine ReputationComposer (C7) reuses to refresh its cache.
func (s *IntelligenceService) PageRankOverAttestations(ctx context.Context) (PageRankMap, int, error) {
	active, err := withSource(ctx, s, "pageRank", func(ds DataSource) ([]attestation.Attestation, error) {
		return ds.ActiveAttestations(ctx)
	})
	if err != nil {
		return nil, 0, err
	}
	g := s.builder.BuildAttestationGraph(active)
	scores, _ := PageRank(g, s.cfg.PageRankDampingFactor, s.cfg.MaxPageRankIterations)
	return scores, len(g.Nodes), nil
}

// ContentCommunityMap fetches every content record and returns the CID ->
// community lookup that InfluenceLineage and CitationBridgesQuery need to
// label citation-graph nodes with their originating community.
func (s *IntelligenceService) ContentCommunityMap(ctx context.Context) (map[string]string, error) {
	contents, err := withSource(ctx, s, "contentCommunityMap", func(ds DataSource) ([]content.Content, error) {
		return ds.Contents(ctx, "")
	})
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(contents))
	for _, c := range contents {
		m[c.CID] = c.Community
	}
	return m, nil
}

// AgentByAddress fetches a single agent's counters.
func (s *IntelligenceService) AgentByAddress(ctx context.Context, addr string) (agent.Agent, bool, error) {
	agents, err := withSource(ctx, s, "agentByAddress", func(ds DataSource) ([]agent.Agent, error) {
		return ds.Agents(ctx, "")
	})
	if err != nil {
		return agent.Agent{}, false, err
	}
	for _, a := range agents {
		if a.Address == addr {
			return a, true, nil
		}
	}
	return agent.Agent{}, false, nil
}

// ActiveAttestationsTargeting returns active attestations whose Subject
// is addr.
func (s *IntelligenceService) ActiveAttestationsTargeting(ctx context.Context, addr string) ([]attestation.Attestation, error) {
	active, err := withSource(ctx, s, "attestationsTargeting", func(ds DataSource) ([]attestation.Attestation, error) {
		return ds.ActiveAttestations(ctx)
	})
	if err != nil {
		return nil, err
	}
	out := make([]attestation.Attestation, 0)
	for _, a := range active {
		if a.Subject == addr {
			out = append(out, a)
		}
	}
	return out, nil
}

// VotingRelationsTargeting returns voting relations whose Author is addr.
func (s *IntelligenceService) VotingRelationsTargeting(ctx context.Context, addr string) ([]voting.Relation, error) {
	relations, err := withSource(ctx, s, "votingRelationsTargeting", func(ds DataSource) ([]voting.Relation, error) {
		return ds.VotingRelations(ctx)
	})
	if err != nil {
		return nil, err
	}
	out := make([]voting.Relation, 0)
	for _, r := range relations {
		if r.Author == addr {
			out = append(out, r)
		}
	}
	return out, nil
}

func normalizeName(community string) string {
	return communitypkg.Canonicalize(community)
}
