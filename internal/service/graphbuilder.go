package service

import (
	"github.com/basegraph/intelengine/internal/domain/attestation"
	"github.com/basegraph/intelengine/internal/domain/citation"
	"github.com/basegraph/intelengine/internal/domain/content"
	"github.com/basegraph/intelengine/internal/domain/voting"
)

// GraphBuilder constructs in-memory graphs from either indexed records or
// event tuples; by the time tuples reach here they have already been
// parsed into domain value types, so the builder is source-oblivious.
type GraphBuilder struct{}

// NewGraphBuilder returns a GraphBuilder. It carries no state: every
// method is a pure function of its inputs.
func NewGraphBuilder() *GraphBuilder { return &GraphBuilder{} }

// BuildAttestationGraph builds the directed, edge-unique-per-pair trust
// graph from the active attestation set (creations already composed
// against revocations by the caller — see attestation.ComposeActive).
func (GraphBuilder) BuildAttestationGraph(active []attestation.Attestation) *Graph {
	g := NewGraph()
	for _, a := range active {
		g.AddEdge(a.Attester, a.Subject, 1)
	}
	return g
}

// BuildVotingGraph builds the directed voter->author graph weighted by
// aggregate upvote count; relations with zero upvotes are excluded.
func (GraphBuilder) BuildVotingGraph(relations []voting.Relation) *Graph {
	g := NewGraph()
	for _, r := range relations {
		if r.Weight() <= 0 {
			continue
		}
		g.AddEdge(r.Voter, r.Author, r.Weight())
	}
	return g
}

// agentNodeID and communityNodeID namespace the bipartite participation
// graph's two node kinds so an address and a community slug never collide.
func agentNodeID(addr string) string      { return "agent:" + addr }
func communityNodeID(slug string) string { return "community:" + slug }

// BuildParticipationGraph builds the bipartite agents-to-communities graph
// from a set of posts: one edge per (author, community) pair observed.
func (GraphBuilder) BuildParticipationGraph(posts []content.Content) *Graph {
	g := NewGraph()
	seen := make(map[[2]string]bool)
	for _, p := range posts {
		key := [2]string{p.Author, p.Community}
		if seen[key] {
			continue
		}
		seen[key] = true
		g.AddEdge(agentNodeID(p.Author), communityNodeID(p.Community), 1)
	}
	return g
}

// CitationGraph pairs the directed source->target graph with an optional
// community label per CID, used by bridge and community-filtered queries.
type CitationGraph struct {
	Graph         *Graph
	CommunityOf   map[string]string
}

// BuildCitationGraph builds the directed citation graph; communityOf maps
// a CID to the community it was posted in (may be a partial map).
func (GraphBuilder) BuildCitationGraph(citations []citation.Citation, communityOf map[string]string) CitationGraph {
	g := NewGraph()
	for _, c := range citations {
		g.AddEdge(c.SourceCID, c.TargetCID, 1)
	}
	return CitationGraph{Graph: g, CommunityOf: communityOf}
}
