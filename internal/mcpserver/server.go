// Package mcpserver exposes the index over the Model Context Protocol, so
// agent harnesses can drive the same evaluator the CLI and mount surfaces
// use: a search tool returning resolved paths with metadata, and an
// index-status tool reporting node counts and the change cursor.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/lsf/internal/control"
	"github.com/agentic-research/lsf/internal/graph"
	"github.com/agentic-research/lsf/internal/metadata"
	"github.com/agentic-research/lsf/internal/query"
)

// CompileFunc turns a query string into an expression tree. The full
// surface-syntax parser lives outside this module; the CLI passes its
// minimal front here.
type CompileFunc func(text string) (query.Expr, error)

// Result is one search hit, shaped for JSON encoding.
type Result struct {
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     uint64 `json:"size,omitempty"`
	Modified uint32 `json:"modified,omitempty"`
}

// Status is the index-status payload.
type Status struct {
	RootPath     string `json:"root_path"`
	Nodes        int    `json:"nodes"`
	Files        int    `json:"files"`
	Dirs         int    `json:"dirs"`
	ChangeCursor uint64 `json:"change_cursor"`
}

// Server wraps an MCP stdio server over the live graph.
type Server struct {
	hot     *graph.HotSwapGraph
	compile CompileFunc
	issuer  *control.Issuer
	mcpSrv  *server.MCPServer
}

// New builds a Server. issuer may be nil, in which case searches run with
// the noop token and are never superseded.
func New(hot *graph.HotSwapGraph, compile CompileFunc, issuer *control.Issuer, version string) *Server {
	s := &Server{hot: hot, compile: compile, issuer: issuer}

	s.mcpSrv = server.NewMCPServer("lsf", version)

	searchTool := mcp.NewTool("search",
		mcp.WithDescription("Search the indexed filesystem. Returns matching paths with metadata."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query (words, wildcards, ext:/size:/dm: filters)"),
		),
		mcp.WithBoolean("case_insensitive",
			mcp.Description("Fold case when matching names"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return (default 100)"),
		),
	)
	s.mcpSrv.AddTool(searchTool, s.handleSearch)

	statusTool := mcp.NewTool("index-status",
		mcp.WithDescription("Report index size, type counts, and the change cursor."),
	)
	s.mcpSrv.AddTool(statusTool, s.handleStatus)

	return s
}

func (s *Server) token() control.Token {
	if s.issuer == nil {
		return control.NoopToken()
	}
	return s.issuer.Next()
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	caseInsensitive := req.GetBool("case_insensitive", false)
	limit := req.GetInt("limit", 100)

	expr, err := s.compile(text)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid query: %v", err)), nil
	}
	if home, ok := query.HomeDir(); ok {
		expr = query.ExpandHomeDirs(expr, home)
	}
	expr = query.ReorderAnd(expr)

	g := s.hot.Load()
	nodes, ok, err := query.Evaluate(g, expr, query.Options{CaseInsensitive: caseInsensitive}, s.token())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError("superseded by a newer query"), nil
	}

	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	results := Results(g, nodes)
	return mcp.NewToolResultText(oj.JSON(results)), nil
}

func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	g := s.hot.Load()
	all, _ := g.AllNodes(control.NoopToken())

	status := Status{
		RootPath:     g.RootPath(),
		Nodes:        len(all),
		ChangeCursor: g.ChangeCursor(),
	}
	for _, id := range all {
		n, ok := g.GetNode(id)
		if !ok {
			continue
		}
		if n.Metadata.FileTypeHint() == graph.Dir {
			status.Dirs++
		} else {
			status.Files++
		}
	}
	return mcp.NewToolResultText(oj.JSON(status)), nil
}

// Results resolves node ids to JSON-ready hits, backfilling metadata for
// each on demand.
func Results(g *graph.Graph, nodes []graph.NodeId) []Result {
	out := make([]Result, 0, len(nodes))
	for _, id := range nodes {
		path, ok := g.NodePath(id)
		if !ok {
			continue
		}
		_ = metadata.Ensure(g, id)
		n, ok := g.GetNode(id)
		if !ok {
			continue
		}
		r := Result{Path: path, Type: n.Metadata.FileTypeHint().String()}
		if size, known := n.Metadata.SizeHint(); known {
			r.Size = size
		}
		if _, modified, known := n.Metadata.Times(); known {
			r.Modified = modified
		}
		out = append(out, r)
	}
	return out
}

// ServeStdio blocks serving MCP over stdin/stdout until the peer closes
// the stream.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpSrv)
}
