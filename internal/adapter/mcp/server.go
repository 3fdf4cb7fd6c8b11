// Package mcp exposes the intelligence engine's query surface to AI-agent
// clients as Model Context Protocol tools, over the streamable HTTP
// transport. It is a thin read-only facade over C6/C7: every tool handler
// delegates straight to the already-resolved IntelligenceService or
// ReputationComposer and marshals the result to JSON.
package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/basegraph/intelengine/internal/service"
)

// ServerConfig names and versions the MCP server advertised during the
// initialize handshake, and the address its HTTP transport binds to.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
}

// ServerDeps wires the two services a tool handler may need. Both are
// optional: a tool whose dependency is nil reports a configuration error to
// the calling agent instead of panicking.
type ServerDeps struct {
	Intel      *service.IntelligenceService
	Reputation *service.ReputationComposer
}

// Server hosts the MCP tool surface over streamable HTTP.
type Server struct {
	cfg  ServerConfig
	deps ServerDeps

	mcpServer  *mcpserver.MCPServer
	httpServer *mcpserver.StreamableHTTPServer
}

// NewServer builds the MCP server and registers its tools. Start must be
// called separately to begin serving.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	if cfg.Name == "" {
		cfg.Name = "intelengine"
	}
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}

	s := &Server{
		cfg:       cfg,
		deps:      deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server, mainly for tests that
// inspect registered tools.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start begins serving the streamable HTTP transport in the background. It
// returns once the listener is up; transport errors surface through the
// process logger rather than this call.
func (s *Server) Start() error {
	s.httpServer = mcpserver.NewStreamableHTTPServer(s.mcpServer)
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Start(s.cfg.Addr) }()
	select {
	case err := <-errCh:
		return fmt.Errorf("mcp server: %w", err)
	default:
		return nil
	}
}

// Stop gracefully shuts down the HTTP transport.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}
