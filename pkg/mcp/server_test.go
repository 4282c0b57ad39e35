package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rmax-ai/facetgraph/pkg/client"
	"github.com/rmax-ai/facetgraph/pkg/graph"
)

func sampleView() *graph.View {
	return &graph.View{
		Type: graph.Overview,
		Nodes: []graph.Node{
			{ID: 0, Feature: "author", Label: "Ada"},
			{ID: 1, Feature: "author", Label: "Bob"},
		},
		Edges:      []graph.Edge{{ID: 0, Source: 0, Target: 1, Weight: 2}},
		Components: []graph.Component{{ID: 0, Nodes: []int{0, 1}, NodeCount: 2, LargestNodes: []int{0}}},
	}
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("Expected content in result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("Expected TextContent, got %T", result.Content[0])
	}
	return text.Text
}

func TestMCPServer_ReadHistory(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/studies/st1/history" {
			json.NewEncoder(w).Encode([]client.HistoryEntry{{ID: "h1", StudyID: "st1", Action: "initial search"}})
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	s := NewServer(ts.URL)
	req := mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "facetgraph://studies/st1/history"},
	}
	result, err := s.handleReadHistory(context.Background(), req)
	if err != nil {
		t.Fatalf("handleReadHistory failed: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Expected 1 resource content, got %d", len(result))
	}
	content, ok := result[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("Expected TextResourceContents")
	}
	var entries []client.HistoryEntry
	if err := json.Unmarshal([]byte(content.Text), &entries); err != nil {
		t.Fatalf("Failed to parse result JSON: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "h1" {
		t.Errorf("unexpected entries %+v", entries)
	}

	req.Params.URI = "facetgraph://studies/st1/comments"
	if _, err := s.handleReadHistory(context.Background(), req); err == nil {
		t.Error("expected error for malformed uri")
	}
}

func TestStudyFromURI(t *testing.T) {
	cases := []struct {
		uri  string
		want string
		ok   bool
	}{
		{"facetgraph://studies/abc/history", "abc", true},
		{"facetgraph://studies//history", "", false},
		{"facetgraph://studies/a/b/history", "", false},
		{"facetgraph://sessions/abc/history", "", false},
	}
	for _, tc := range cases {
		got, ok := studyFromURI(tc.uri)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("studyFromURI(%q) = %q, %v; want %q, %v", tc.uri, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMCPServer_BuildGraph(t *testing.T) {
	var got client.BuildRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/graphs" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(client.BuildResult{
			Graph:          sampleView(),
			HistoryEntryID: "h1",
			Decision:       client.Decision{Strategy: "from_scratch", Provenance: "initial search"},
		})
	}))
	defer ts.Close()

	s := NewServer(ts.URL)
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name: "build_graph",
			Arguments: map[string]any{
				"session_id": "s1",
				"study_id":   "st1",
				"dataset_id": "papers",
				"search_id":  "q1",
				"graph_type": "overview",
				"query":      `{"type":"leaf","feature":"title","keyphrase":"graph"}`,
				"dimensions": []any{"author", "venue"},
			},
		},
	}
	result, err := s.handleBuildGraph(context.Background(), req)
	if err != nil {
		t.Fatalf("handleBuildGraph failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected success, got error: %s", textOf(t, result))
	}

	var sum graphSummary
	if err := json.Unmarshal([]byte(textOf(t, result)), &sum); err != nil {
		t.Fatalf("Failed to parse summary: %v", err)
	}
	if sum.Nodes != 2 || sum.Edges != 1 || sum.Strategy != "from_scratch" || sum.HistoryEntryID != "h1" {
		t.Errorf("unexpected summary %+v", sum)
	}
	if len(sum.LargestNodes) != 1 || sum.LargestNodes[0] != "author:Ada" {
		t.Errorf("unexpected largest nodes %v", sum.LargestNodes)
	}
	if got.Query.IsZero() || len(got.Dimensions) != 2 || got.GraphType != graph.Overview {
		t.Errorf("request not forwarded: %+v", got)
	}
}

func TestMCPServer_BuildGraph_InvalidQuery(t *testing.T) {
	s := NewServer("http://127.0.0.1:1")
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name: "build_graph",
			Arguments: map[string]any{
				"session_id": "s1",
				"query":      `{"type":"bogus"}`,
			},
		},
	}
	result, err := s.handleBuildGraph(context.Background(), req)
	if err != nil {
		t.Fatalf("handleBuildGraph failed: %v", err)
	}
	if !result.IsError {
		t.Error("Expected tool error for invalid query")
	}
}

func TestMCPServer_TrimGraph(t *testing.T) {
	var got client.TrimRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(client.GraphResponse{SessionID: "s1", Graph: sampleView()})
	}))
	defer ts.Close()

	s := NewServer(ts.URL)
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name: "trim_graph",
			Arguments: map[string]any{
				"session_id": "s1",
				"graph_type": "overview",
				"entry_ids":  []any{"e1", "e2"},
			},
		},
	}
	result, err := s.handleTrimGraph(context.Background(), req)
	if err != nil {
		t.Fatalf("handleTrimGraph failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected success, got error: %s", textOf(t, result))
	}
	if len(got.EntryIDs) != 2 || got.SessionID != "s1" {
		t.Errorf("request not forwarded: %+v", got)
	}
}
