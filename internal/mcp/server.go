package mcp

import (
	"context"
	"database/sql"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
// Every tool is read-only: syncing stays a CLI concern so an MCP client can
// never advance the durable baseline.
var toolRegistry = map[string]toolEntry{
	"course_list": {
		def:     courseListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCourseList },
	},
	"file_list": {
		def:     fileListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFileList },
	},
	"run_list": {
		def:     runListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRunList },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// NewServer creates a new MCP server with the mirror's read-only tools
// registered.
func NewServer(db *sql.DB, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"moodlesync",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db)

	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, version string) error {
	s := NewServer(db, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
