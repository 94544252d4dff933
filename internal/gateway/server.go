package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
)

// Server binds the gateway's tool catalog to an MCP server reachable over
// streamable HTTP on the tunnel's local port.
type Server struct {
	gw     *Gateway
	mcp    *server.MCPServer
	http   *server.StreamableHTTPServer
	logger *slog.Logger
}

// NewServer registers the tool catalog on a fresh MCP server. version is the
// agent build version reported to clients.
func NewServer(gw *Gateway, version string, logger *slog.Logger) *Server {
	host := gw.Host()
	instructions := fmt.Sprintf(
		"TermGate - Remote Terminal Access\nSystem: %s (%s)\nHost: %s\nUser: %s\nShell: %s",
		host.OS, host.Arch, host.Hostname, host.User, host.Shell,
	)

	s := &Server{
		gw: gw,
		mcp: server.NewMCPServer(
			"termgate",
			version,
			server.WithInstructions(instructions),
			server.WithToolCapabilities(false),
		),
		logger: logger,
	}
	s.registerTools()
	s.http = server.NewStreamableHTTPServer(s.mcp)
	return s
}

// ListenAndServe serves tool calls on addr until Shutdown. It blocks.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("gateway listening", "addr", addr)
	return s.http.Start(addr)
}

// Shutdown stops accepting tool calls and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("gateway shutting down")
	return s.http.Shutdown(ctx)
}
