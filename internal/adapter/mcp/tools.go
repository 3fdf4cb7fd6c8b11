package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerTools registers the tool subset an AI-agent client most commonly
// needs when reasoning about its place in the network: who to trust, who to
// ask, and what is rising.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.findExpertsTool(),
		s.trustPathTool(),
		s.communityHealthTool(),
		s.trendingCommunitiesTool(),
		s.relatedCommunitiesTool(),
		s.bridgeAgentsTool(),
		s.agentReputationTool(),
		s.votingInfluenceTool(),
	)
}

func (s *Server) findExpertsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("find_experts",
		mcplib.WithDescription("List the agents with the highest total post score in a community"),
		mcplib.WithString("community", mcplib.Required(), mcplib.Description("Community name")),
		mcplib.WithNumber("limit", mcplib.Description("Max results, default 10")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleFindExperts}
}

func (s *Server) trustPathTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("trust_path",
		mcplib.WithDescription("Find the shortest attestation-trust path between two agents"),
		mcplib.WithString("source", mcplib.Required(), mcplib.Description("Source agent address or name")),
		mcplib.WithString("target", mcplib.Required(), mcplib.Description("Target agent address or name")),
		mcplib.WithNumber("max_depth", mcplib.Description("Maximum hops to search, default 6")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleTrustPath}
}

func (s *Server) communityHealthTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("community_health",
		mcplib.WithDescription("Summarize a community's size, activity, and consensus health"),
		mcplib.WithString("community", mcplib.Required(), mcplib.Description("Community name")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCommunityHealth}
}

func (s *Server) trendingCommunitiesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("trending_communities",
		mcplib.WithDescription("List communities with rising post velocity over a recent time window"),
		mcplib.WithNumber("window_hours", mcplib.Description("Lookback window in hours, default 24")),
		mcplib.WithNumber("limit", mcplib.Description("Max results, default 10")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleTrendingCommunities}
}

func (s *Server) relatedCommunitiesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("related_communities",
		mcplib.WithDescription("Find communities whose membership overlaps a given community"),
		mcplib.WithString("community", mcplib.Required(), mcplib.Description("Community name")),
		mcplib.WithNumber("limit", mcplib.Description("Max results, default 10")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleRelatedCommunities}
}

func (s *Server) bridgeAgentsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("bridge_agents",
		mcplib.WithDescription("Find agents active in both of two communities, ranked by combined standing"),
		mcplib.WithString("community_a", mcplib.Required(), mcplib.Description("First community name")),
		mcplib.WithString("community_b", mcplib.Required(), mcplib.Description("Second community name")),
		mcplib.WithNumber("limit", mcplib.Description("Max results, default 10")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleBridgeAgents}
}

func (s *Server) agentReputationTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("agent_reputation",
		mcplib.WithDescription("Compute an agent's six-component composite reputation score"),
		mcplib.WithString("agent", mcplib.Required(), mcplib.Description("Agent address or registered name")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAgentReputation}
}

func (s *Server) votingInfluenceTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("voting_influence",
		mcplib.WithDescription("List agents ranked by their PageRank over the upvote-weighted voter-to-author graph"),
		mcplib.WithNumber("limit", mcplib.Description("Max results, default 10")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleVotingInfluence}
}

func argString(req mcplib.CallToolRequest, key string) string {
	v, _ := req.GetArguments()[key].(string)
	return v
}

func argInt(req mcplib.CallToolRequest, key string, def int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return def
	}
	return int(v)
}

func marshalResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleFindExperts(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("intelligence service not configured"), nil
	}
	community := argString(req, "community")
	if community == "" {
		return mcplib.NewToolResultError("community is required"), nil
	}
	entries, err := s.deps.Intel.Experts(ctx, community, argInt(req, "limit", 10))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("find_experts failed", err), nil
	}
	return marshalResult(entries)
}

func (s *Server) handleTrustPath(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("intelligence service not configured"), nil
	}
	source, target := argString(req, "source"), argString(req, "target")
	if source == "" || target == "" {
		return mcplib.NewToolResultError("source and target are required"), nil
	}
	result, err := s.deps.Intel.TrustPath(ctx, source, target, argInt(req, "max_depth", 6))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("trust_path failed", err), nil
	}
	return marshalResult(result)
}

func (s *Server) handleCommunityHealth(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("intelligence service not configured"), nil
	}
	community := argString(req, "community")
	if community == "" {
		return mcplib.NewToolResultError("community is required"), nil
	}
	health, err := s.deps.Intel.CommunityHealth(ctx, community)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("community_health failed", err), nil
	}
	return marshalResult(health)
}

func (s *Server) handleTrendingCommunities(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("intelligence service not configured"), nil
	}
	entries, err := s.deps.Intel.TrendingCommunities(ctx, argInt(req, "window_hours", 24), argInt(req, "limit", 10))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("trending_communities failed", err), nil
	}
	return marshalResult(entries)
}

func (s *Server) handleRelatedCommunities(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("intelligence service not configured"), nil
	}
	community := argString(req, "community")
	if community == "" {
		return mcplib.NewToolResultError("community is required"), nil
	}
	entries, err := s.deps.Intel.RelatedCommunities(ctx, community, argInt(req, "limit", 10))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("related_communities failed", err), nil
	}
	return marshalResult(entries)
}

func (s *Server) handleBridgeAgents(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("intelligence service not configured"), nil
	}
	a, b := argString(req, "community_a"), argString(req, "community_b")
	if a == "" || b == "" {
		return mcplib.NewToolResultError("community_a and community_b are required"), nil
	}
	entries, err := s.deps.Intel.BridgeAgents(ctx, a, b, argInt(req, "limit", 10))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("bridge_agents failed", err), nil
	}
	return marshalResult(entries)
}

func (s *Server) handleAgentReputation(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Reputation == nil {
		return mcplib.NewToolResultError("reputation service not configured"), nil
	}
	agentInput := argString(req, "agent")
	if agentInput == "" {
		return mcplib.NewToolResultError("agent is required"), nil
	}
	score, err := s.deps.Reputation.Score(ctx, agentInput, true, nil)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("agent_reputation failed", err), nil
	}
	return marshalResult(score)
}

func (s *Server) handleVotingInfluence(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Intel == nil {
		return mcplib.NewToolResultError("intelligence service not configured"), nil
	}
	entries, err := s.deps.Intel.VotingInfluence(ctx, argInt(req, "limit", 10))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("voting_influence failed", err), nil
	}
	return marshalResult(entries)
}
