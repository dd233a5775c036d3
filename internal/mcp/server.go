package mcp

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/jcdickinson/ferrisnav/internal/db"
	"github.com/jcdickinson/ferrisnav/internal/navindex"
	"github.com/jcdickinson/ferrisnav/internal/rpc"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

//go:embed instructions.md
var instructions string

// Ledger is the part of the build ledger the tools read.
type Ledger interface {
	FindItems(query string, limit int) ([]db.Item, error)
	ImplementorsOf(trait string) ([]db.Implementor, error)
	ListBuilds(latestOnly bool) ([]db.Build, error)
}

type Server struct {
	mcpServer *server.MCPServer
	ledger    Ledger
}

func NewServer(ledger Ledger, version string) *Server {
	s := &Server{ledger: ledger}

	mcpServer := server.NewMCPServer(
		"ferrisnav",
		version,
		server.WithInstructions(instructions),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("search_items",
			mcp.WithDescription("Search sidebar entries of every built crate by item name. Case-insensitive substring match; exact names rank first."),
			mcp.WithString("query",
				mcp.Description("Item name or part of one (e.g. \"LimitStack\")"),
				mcp.Required(),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of results (default 20)"),
			),
		),
		s.handleSearchItems,
	)

	mcpServer.AddTool(
		mcp.NewTool("list_implementors",
			mcp.WithDescription("List the impl blocks recorded for a trait across built crates. Returns each impl header as plain text with the items it links to."),
			mcp.WithString("trait",
				mcp.Description("Full trait path (core::ops::Drop) or bare trait name (Drop)"),
				mcp.Required(),
			),
		),
		s.handleListImplementors,
	)

	mcpServer.AddTool(
		mcp.NewTool("list_builds",
			mcp.WithDescription("List recorded builds, newest first."),
			mcp.WithBoolean("all",
				mcp.Description("Include superseded builds (default: only the latest build per crate)"),
			),
		),
		s.handleListBuilds,
	)
}

func (s *Server) handleSearchItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	query, _ := args["query"].(string)
	if query == "" {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	limit := 20
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	items, err := s.ledger.FindItems(query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	results := make([]rpc.ItemResult, 0, len(items))
	for _, it := range items {
		results = append(results, rpc.ItemResult{
			Crate:       it.Crate,
			Module:      it.Module,
			Category:    it.Category,
			Name:        it.Name,
			Description: it.Description,
		})
	}
	return jsonResult(results)
}

func (s *Server) handleListImplementors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	trait, _ := args["trait"].(string)
	if trait == "" {
		return mcp.NewToolResultError("missing required parameter: trait"), nil
	}

	impls, err := s.ledger.ImplementorsOf(trait)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing implementors failed: %v", err)), nil
	}

	results := make([]rpc.ImplementorResult, 0, len(impls))
	for _, im := range impls {
		r := rpc.ImplementorResult{Crate: im.Crate, Trait: im.Trait, Header: im.Text}
		if r.Header == "" {
			r.Header = navindex.FragmentText(im.Fragment)
		}
		for _, l := range navindex.FragmentLinks(im.Fragment) {
			r.Links = append(r.Links, rpc.LinkResult{Class: l.Class, Href: l.Href, Title: l.Title})
		}
		results = append(results, r)
	}
	return jsonResult(results)
}

func (s *Server) handleListBuilds(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	all, _ := req.GetArguments()["all"].(bool)

	builds, err := s.ledger.ListBuilds(!all)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing builds failed: %v", err)), nil
	}
	return jsonResult(rpc.BuildStatuses(builds))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	resultJSON, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}
