package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/basegraph/intelengine/internal/adapter/otel"
	"github.com/basegraph/intelengine/internal/middleware"
	"github.com/basegraph/intelengine/internal/service"
)

// Deps carries every collaborator the intelligence gateway's handlers call
// into. All fields are required except WSHandler, which is nil when the
// deployment has no WebSocket dashboard feed, and Metrics, which is nil
// when OTEL is disabled.
type Deps struct {
	Intel      *service.IntelligenceService
	Reputation *service.ReputationComposer
	Enrichment *service.EnrichmentLayer
	CORSOrigin string
	WSHandler  http.HandlerFunc // optional: serves /ws when non-nil
	Metrics    *cfotel.Metrics  // optional: records query counters/histograms when non-nil
}

// instrument wraps a query handler with a trace span and, when metrics are
// configured, the queries-total/duration instruments. queryName matches the
// names used throughout the C6/C7 service layer (e.g. "experts",
// "trust_path") so traces and metrics correlate with log output.
func instrument(queryName string, metrics *cfotel.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := cfotel.StartQuerySpan(r.Context(), queryName, "http")
			defer span.End()

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))

			if metrics != nil {
				attr := attribute.String("query", queryName)
				metrics.QueriesTotal.Add(ctx, 1, metric.WithAttributes(attr))
				metrics.QueryDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attr))
			}
		})
	}
}

// NewRouter builds the chi router exposing the intelligence query surface
// (C6's nineteen named queries and child-avatar inheritance, plus C7's
// reputation/pagerank endpoints).
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)
	r.Use(CORS(d.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(cfotel.HTTPMiddleware("intelengine-gateway"))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if d.WSHandler != nil {
		r.Get("/ws", d.WSHandler)
	}

	route := func(pattern, query string, h http.HandlerFunc) {
		r.With(instrument(query, d.Metrics)).Get(pattern, h)
	}

	route("/communities", "community_list", handleCommunityList(d.Intel))
	route("/communities/{community}/health", "community_health", handleCommunityHealth(d.Intel))
	route("/experts", "experts", handleExperts(d))
	route("/related-communities", "related_communities", handleRelatedCommunities(d.Intel))
	route("/trust-path", "trust_path", handleTrustPath(d.Intel))
	route("/bridge-agents", "bridge_agents", handleBridgeAgents(d))
	route("/network-consensus", "network_consensus", handleNetworkConsensus(d))
	route("/trending-communities", "trending_communities", handleTrendingCommunities(d.Intel))
	route("/voting-influence", "voting_influence", handleVotingInfluence(d.Intel))
	route("/emerging-agents", "emerging_agents", handleEmergingAgents(d))
	route("/tags/cloud", "tag_cloud", handleTagCloud(d.Intel))
	route("/tags/timeline", "concept_timeline", handleConceptTimeline(d.Intel))

	r.With(instrument("child_avatar", d.Metrics)).Post("/agents/avatar/inherit", handleInheritChildAvatar(d.Intel))

	route("/agents/{agent}/topics", "agent_topic_map", handleAgentTopicMap(d.Intel))
	route("/agents/{agent}/collaborators", "collaboration_network", handleCollaborationNetwork(d))
	route("/agents/{agent}/reputation", "reputation_score", handleReputationScore(d))

	route("/pagerank", "pagerank_list", handlePageRankList(d))

	route("/citations/{cid}/tree", "citation_tree", handleCitationTree(d.Intel))
	route("/citations/{cid}/lineage", "influence_lineage", handleInfluenceLineage(d.Intel))
	route("/citations/most-cited", "most_cited", handleMostCited(d.Intel))
	route("/citations/bridges", "citation_bridges", handleCitationBridges(d.Intel))
	route("/citations/page-rank", "citation_pagerank", handleCitationPageRank(d.Intel))

	return r
}

// ---------------------------------------------------------------------------
// Query-param helpers
// ---------------------------------------------------------------------------

func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolParam(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// ---------------------------------------------------------------------------
// C6 query handlers
// ---------------------------------------------------------------------------

func handleCommunityList(intel *service.IntelligenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		communities, err := intel.CommunityList(r.Context())
		if err != nil {
			writeDomainError(w, err, "failed to list communities")
			return
		}
		writeJSON(w, http.StatusOK, communities)
	}
}

func handleCommunityHealth(intel *service.IntelligenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		community := chi.URLParam(r, "community")
		health, err := intel.CommunityHealth(r.Context(), community)
		if err != nil {
			writeDomainError(w, err, "failed to compute community health")
			return
		}
		writeJSON(w, http.StatusOK, health)
	}
}

func handleExperts(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		community := r.URL.Query().Get("community")
		limit := intParam(r, "limit", 10)
		entries, err := d.Intel.Experts(r.Context(), community, limit)
		if err != nil {
			writeDomainError(w, err, "failed to compute experts")
			return
		}
		d.Enrichment.AttachExperts(r.Context(), entries)
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleRelatedCommunities(intel *service.IntelligenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		community := r.URL.Query().Get("community")
		limit := intParam(r, "limit", 10)
		entries, err := intel.RelatedCommunities(r.Context(), community, limit)
		if err != nil {
			writeDomainError(w, err, "failed to compute related communities")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleTrustPath(intel *service.IntelligenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := r.URL.Query().Get("source")
		target := r.URL.Query().Get("target")
		maxDepth := intParam(r, "max_depth", 6)
		result, err := intel.TrustPath(r.Context(), source, target, maxDepth)
		if err != nil {
			writeDomainError(w, err, "failed to compute trust path")
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleBridgeAgents(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		communityA := r.URL.Query().Get("community_a")
		communityB := r.URL.Query().Get("community_b")
		limit := intParam(r, "limit", 10)
		entries, err := d.Intel.BridgeAgents(r.Context(), communityA, communityB, limit)
		if err != nil {
			writeDomainError(w, err, "failed to compute bridge agents")
			return
		}
		d.Enrichment.AttachBridges(r.Context(), entries)
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleAgentTopicMap(intel *service.IntelligenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentInput := chi.URLParam(r, "agent")
		entries, err := intel.AgentTopicMap(r.Context(), agentInput)
		if err != nil {
			writeDomainError(w, err, "failed to compute agent topic map")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleNetworkConsensus(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		community := r.URL.Query().Get("community")
		limit := intParam(r, "limit", 10)
		entries, err := d.Intel.NetworkConsensus(r.Context(), community, limit)
		if err != nil {
			writeDomainError(w, err, "failed to compute network consensus")
			return
		}
		d.Enrichment.AttachConsensus(r.Context(), entries)
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleTrendingCommunities(intel *service.IntelligenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		windowHours := intParam(r, "window_hours", 24)
		limit := intParam(r, "limit", 10)
		entries, err := intel.TrendingCommunities(r.Context(), windowHours, limit)
		if err != nil {
			writeDomainError(w, err, "failed to compute trending communities")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleCollaborationNetwork(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentInput := chi.URLParam(r, "agent")
		limit := intParam(r, "limit", 10)
		entries, err := d.Intel.CollaborationNetwork(r.Context(), agentInput, limit)
		if err != nil {
			writeDomainError(w, err, "failed to compute collaboration network")
			return
		}
		d.Enrichment.AttachCollaborators(r.Context(), entries)
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleVotingInfluence(intel *service.IntelligenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := intParam(r, "limit", 10)
		entries, err := intel.VotingInfluence(r.Context(), limit)
		if err != nil {
			writeDomainError(w, err, "failed to compute voting influence")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleEmergingAgents(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		windowHours := intParam(r, "window_hours", 168)
		limit := intParam(r, "limit", 10)
		entries, err := d.Intel.EmergingAgents(r.Context(), windowHours, limit)
		if err != nil {
			writeDomainError(w, err, "failed to compute emerging agents")
			return
		}
		d.Enrichment.AttachEmerging(r.Context(), entries)
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleTagCloud(intel *service.IntelligenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		community := r.URL.Query().Get("community")
		limit := intParam(r, "limit", 20)
		entries, err := intel.TagCloud(r.Context(), community, limit)
		if err != nil {
			writeDomainError(w, err, "failed to compute tag cloud")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleConceptTimeline(intel *service.IntelligenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		community := r.URL.Query().Get("community")
		tag := r.URL.Query().Get("tag")
		buckets, total, err := intel.ConceptTimeline(r.Context(), community, tag)
		if err != nil {
			writeDomainError(w, err, "failed to compute concept timeline")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"buckets": buckets, "totalPosts": total})
	}
}

// inheritChildAvatarRequest is the JSON body handleInheritChildAvatar
// decodes: the parent avatar plus any explicit child overrides.
type inheritChildAvatarRequest struct {
	Parent   service.Avatar         `json:"parent"`
	Override service.AvatarOverride `json:"override"`
}

func handleInheritChildAvatar(intel *service.IntelligenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readJSON[inheritChildAvatarRequest](w, r, 1<<16)
		if !ok {
			return
		}
		child := intel.InheritChildAvatar(req.Parent, req.Override)
		writeJSON(w, http.StatusOK, child)
	}
}

// ---------------------------------------------------------------------------
// Citation-graph handlers
// ---------------------------------------------------------------------------

func handleCitationTree(intel *service.IntelligenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cid := chi.URLParam(r, "cid")
		depth := intParam(r, "depth", 2)
		dir := service.DirectionOutbound
		if r.URL.Query().Get("direction") == string(service.DirectionInbound) {
			dir = service.DirectionInbound
		}
		tree, err := intel.CitationTree(r.Context(), cid, depth, dir)
		if err != nil {
			writeDomainError(w, err, "failed to walk citation tree")
			return
		}
		writeJSON(w, http.StatusOK, tree)
	}
}

func handleInfluenceLineage(intel *service.IntelligenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cid := chi.URLParam(r, "cid")
		maxDepth := intParam(r, "max_depth", 10)
		communityOf, err := intel.ContentCommunityMap(r.Context())
		if err != nil {
			writeDomainError(w, err, "failed to load content communities")
			return
		}
		chain, err := intel.InfluenceLineage(r.Context(), cid, maxDepth, communityOf)
		if err != nil {
			writeDomainError(w, err, "failed to compute influence lineage")
			return
		}
		writeJSON(w, http.StatusOK, chain)
	}
}

func handleMostCited(intel *service.IntelligenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		community := r.URL.Query().Get("community")
		limit := intParam(r, "limit", 10)
		entries, err := intel.MostCited(r.Context(), community, limit)
		if err != nil {
			writeDomainError(w, err, "failed to compute most-cited content")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleCitationBridges(intel *service.IntelligenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		communityA := r.URL.Query().Get("community_a")
		communityB := r.URL.Query().Get("community_b")
		limit := intParam(r, "limit", 10)
		communityOf, err := intel.ContentCommunityMap(r.Context())
		if err != nil {
			writeDomainError(w, err, "failed to load content communities")
			return
		}
		entries, err := intel.CitationBridgesQuery(r.Context(), communityA, communityB, limit, communityOf)
		if err != nil {
			writeDomainError(w, err, "failed to compute citation bridges")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleCitationPageRank(intel *service.IntelligenceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		community := r.URL.Query().Get("community")
		limit := intParam(r, "limit", 10)
		entries, err := intel.CitationPageRank(r.Context(), community, limit)
		if err != nil {
			writeDomainError(w, err, "failed to compute citation pagerank")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// ---------------------------------------------------------------------------
// C7 reputation handlers
// ---------------------------------------------------------------------------

func handleReputationScore(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentInput := chi.URLParam(r, "agent")
		withName := boolParam(r, "with_name")
		score, err := d.Reputation.Score(r.Context(), agentInput, withName, nil)
		if err != nil {
			writeDomainError(w, err, "failed to compute reputation score")
			return
		}
		writeJSON(w, http.StatusOK, score)
	}
}

func handlePageRankList(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		withName := boolParam(r, "with_name")
		entries, err := d.Reputation.PageRankList(r.Context(), withName)
		if err != nil {
			writeDomainError(w, err, "failed to compute pagerank distribution")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}
