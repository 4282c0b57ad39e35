package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/facetgraph/pkg/client"
	"github.com/rmax-ai/facetgraph/pkg/graph"
	"github.com/rmax-ai/facetgraph/pkg/query"
)

const (
	historyURIPrefix = "facetgraph://studies/"
	historyURISuffix = "/history"
)

// Server adapts facetgraph-d to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance.
func NewServer(apiURL string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"facetgraph",
			"1.0.0",
		),
		apiClient: client.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(
		historyURIPrefix+"{id}"+historyURISuffix,
		"Study History",
		mcp.WithTemplateDescription("The exploration tree of a study: every graph built, with comments"),
		mcp.WithTemplateMIMEType("application/json"),
	), s.handleReadHistory)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"build_graph",
		mcp.WithDescription("Build the overview or detail graph of a session, reusing the cached search where possible."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("The session to build in")),
		mcp.WithString("study_id", mcp.Required(), mcp.Description("The study the action is recorded in")),
		mcp.WithString("dataset_id", mcp.Required(), mcp.Description("The dataset to search")),
		mcp.WithString("search_id", mcp.Required(), mcp.Description("Identifies the search; a new id forces a new search")),
		mcp.WithString("graph_type", mcp.Required(), mcp.Enum("overview", "detail")),
		mcp.WithString("query", mcp.Description("Query expression as JSON, e.g. {\"type\":\"leaf\",\"feature\":\"title\",\"keyphrase\":\"graph\"}")),
		mcp.WithArray("dimensions", mcp.Description("Visible features of a detail graph"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("anchor_properties", mcp.Description("Properties to overlay on anchor nodes"), mcp.Items(map[string]any{"type": "string"})),
	), s.handleBuildGraph)

	s.mcpServer.AddTool(mcp.NewTool(
		"trim_graph",
		mcp.WithDescription("Restrict a session's graphs to a subset of its entries."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("The session to trim")),
		mcp.WithString("graph_type", mcp.Required(), mcp.Enum("overview", "detail")),
		mcp.WithArray("entry_ids", mcp.Required(), mcp.Description("Entries to keep"), mcp.Items(map[string]any{"type": "string"})),
	), s.handleTrimGraph)
}

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"facetgraph-aware",
		mcp.WithPromptDescription("Provides context about facetgraph concepts (sessions, studies, graph types)"),
	), s.handleGetPrompt)
}

// studyFromURI extracts the study id from facetgraph://studies/{id}/history.
func studyFromURI(uri string) (string, bool) {
	if !strings.HasPrefix(uri, historyURIPrefix) || !strings.HasSuffix(uri, historyURISuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(uri, historyURIPrefix), historyURISuffix)
	return id, id != "" && !strings.Contains(id, "/")
}

func (s *Server) handleReadHistory(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	studyID, ok := studyFromURI(request.Params.URI)
	if !ok {
		return nil, fmt.Errorf("invalid history uri: %s", request.Params.URI)
	}
	entries, err := s.apiClient.GetHistory(ctx, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// graphSummary is what the tools return: enough to talk about a graph without its layout.
type graphSummary struct {
	HistoryEntryID string          `json:"history_entry_id,omitempty"`
	Strategy       string          `json:"strategy,omitempty"`
	Provenance     string          `json:"provenance,omitempty"`
	GraphType      graph.GraphType `json:"graph_type"`
	Nodes          int             `json:"nodes"`
	Edges          int             `json:"edges"`
	Components     int             `json:"components"`
	LargestNodes   []string        `json:"largest_nodes,omitempty"`
}

func summarize(v *graph.View) graphSummary {
	sum := graphSummary{}
	if v == nil {
		return sum
	}
	sum.GraphType = v.Type
	sum.Nodes, sum.Edges, sum.Components = len(v.Nodes), len(v.Edges), len(v.Components)
	for _, c := range v.Components {
		for _, id := range c.LargestNodes {
			n := v.Nodes[id]
			sum.LargestNodes = append(sum.LargestNodes, n.Feature+":"+n.Label)
		}
	}
	return sum
}

func toolJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleBuildGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := client.BuildRequest{
		SessionID:        request.GetString("session_id", ""),
		StudyID:          request.GetString("study_id", ""),
		DatasetID:        request.GetString("dataset_id", ""),
		SearchID:         request.GetString("search_id", ""),
		GraphType:        graph.GraphType(request.GetString("graph_type", "")),
		Dimensions:       request.GetStringSlice("dimensions", nil),
		AnchorProperties: request.GetStringSlice("anchor_properties", nil),
	}
	if raw := request.GetString("query", ""); raw != "" {
		var q query.Query
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid query: %v", err)), nil
		}
		req.Query = q
	}

	res, err := s.apiClient.BuildGraph(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	sum := summarize(res.Graph)
	sum.HistoryEntryID = res.HistoryEntryID
	sum.Strategy = res.Decision.Strategy
	sum.Provenance = res.Decision.Provenance
	return toolJSON(sum)
}

func (s *Server) handleTrimGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := client.TrimRequest{
		SessionID: request.GetString("session_id", ""),
		GraphType: graph.GraphType(request.GetString("graph_type", "")),
		EntryIDs:  request.GetStringSlice("entry_ids", nil),
	}
	v, err := s.apiClient.TrimGraph(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return toolJSON(summarize(v))
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "facetgraph-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are exploring a dataset with facetgraph.

Concepts:
- Session: one exploration; it caches the last search and both graphs built from it.
- Study: groups sessions; every action is recorded in the study's history tree.
- Overview graph: anchor feature and its links, joined by shared entries.
- Detail graph: every visible feature, joined along schema paths.
- Trim: keep only some entries without searching again.

Use 'build_graph' with the same search_id to reuse a search, and a new search_id when the
query changes. Read facetgraph://studies/{id}/history to see what has been tried.
`

	return mcp.NewGetPromptResult(
		"facetgraph-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
