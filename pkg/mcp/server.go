package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates an MCP server with the uzoncalc tools registered
// against h.
func NewServer(version string, h *Handlers) *server.MCPServer {
	s := server.NewMCPServer(
		"uzoncalc",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("uzoncalc/start",
			mcp.WithDescription("Start a new calculation session for a stored report or a local file; fails while a session is open"),
			mcp.WithString("report", mcp.Description("Report oid to execute")),
			mcp.WithString("path", mcp.Description("Local report file to execute (desktop mode)")),
			mcp.WithBoolean("silent", mcp.Description("Run without stopping at input windows")),
			mcp.WithObject("values", mcp.Description("Input values keyed by window title, then field name")),
		),
		h.HandleStart,
	)

	s.AddTool(
		mcp.NewTool("uzoncalc/resume",
			mcp.WithDescription("Continue the current session with the current input values"),
			mcp.WithObject("values", mcp.Description("Input values applied before resuming")),
		),
		h.HandleResume,
	)

	s.AddTool(
		mcp.NewTool("uzoncalc/restart",
			mcp.WithDescription("Discard the current session and start again with the last input values"),
		),
		h.HandleRestart,
	)

	s.AddTool(
		mcp.NewTool("uzoncalc/status",
			mcp.WithDescription("Show the current session: windows, values and rendered output"),
		),
		h.HandleStatus,
	)

	s.AddTool(
		mcp.NewTool("uzoncalc/set",
			mcp.WithDescription("Set one input value, e.g. 'Section.width=120'"),
			mcp.WithString("assignment", mcp.Required(), mcp.Description("Window.field=value; the value may be an expression over the window's fields")),
		),
		h.HandleSet,
	)

	s.AddTool(
		mcp.NewTool("uzoncalc/schema",
			mcp.WithDescription("Export the JSON Schema of an execution result"),
		),
		h.HandleSchema,
	)

	return s
}
