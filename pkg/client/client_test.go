package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rmax-ai/facetgraph/pkg/graph"
	"github.com/rmax-ai/facetgraph/pkg/query"
)

// noWait retries immediately.
type noWait struct{}

func (noWait) Next(int) time.Duration { return 0 }

func TestClient_BuildGraph(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/graphs" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req BuildRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			return
		}
		if req.Query.String() != query.New(query.Leaf{Feature: "title", Keyphrase: "graph"}).String() {
			t.Errorf("query not sent: %s", req.Query)
		}
		json.NewEncoder(w).Encode(BuildResult{
			Graph:          &graph.View{Type: req.GraphType, Nodes: []graph.Node{{ID: 0, Label: "Ada"}}},
			HistoryEntryID: "h1",
			Decision:       Decision{Strategy: "from_scratch", Provenance: "initial search"},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	res, err := c.BuildGraph(context.Background(), BuildRequest{
		SessionID: "s1",
		StudyID:   "st1",
		DatasetID: "papers",
		SearchID:  "q1",
		Query:     query.New(query.Leaf{Feature: "title", Keyphrase: "graph"}),
		GraphType: graph.Detail,
	})
	if err != nil {
		t.Fatalf("BuildGraph() error = %v", err)
	}
	if res.HistoryEntryID != "h1" || res.Decision.Strategy != "from_scratch" || len(res.Graph.Nodes) != 1 {
		t.Errorf("unexpected result %+v", res)
	}

	if _, err := c.BuildGraph(context.Background(), BuildRequest{SessionID: "s1"}); err == nil {
		t.Error("expected error for missing fields")
	}
}

func TestClient_RetriesUnavailable(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"SERVICE_UNAVAILABLE","kind":"SERVICE_UNAVAILABLE","message":"search_index unavailable"}`))
			return
		}
		json.NewEncoder(w).Encode(GraphResponse{SessionID: "s1", Graph: &graph.View{Type: graph.Overview}})
	}))
	defer server.Close()

	c := NewClient(server.URL, WithBackoff(noWait{}, 3))
	v, err := c.GetGraph(context.Background(), "s1", graph.Overview)
	if err != nil {
		t.Fatalf("GetGraph() error = %v", err)
	}
	if v.Type != graph.Overview {
		t.Errorf("unexpected view %+v", v)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, WithBackoff(noWait{}, 2))
	_, err := c.GetHistory(context.Background(), "st1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 APIError, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestClient_NoRetryOnClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"SESSION_NOT_FOUND","kind":"NOT_FOUND","message":"session s9 not found"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, WithBackoff(noWait{}, 3))
	_, err := c.GetGraph(context.Background(), "s9", graph.Detail)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "SESSION_NOT_FOUND" || apiErr.Kind != "NOT_FOUND" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestClient_RetryHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, WithBackoff(&ExponentialBackoff{Base: time.Second, Max: time.Second, Factor: 1}, 5))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.GetHistory(ctx, "st1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestClient_HistoryCalls(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/studies/st1/history/h1/comments":
			var in map[string]string
			json.NewDecoder(r.Body).Decode(&in)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(Comment{ID: "c1", HistoryID: "h1", Author: in["author"], Body: in["body"]})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/studies/st1/history/h1/restore":
			json.NewEncoder(w).Encode(GraphResponse{SessionID: "s2", Graph: &graph.View{Type: graph.Detail}})
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL)
	ctx := context.Background()

	comment, err := c.AddComment(ctx, "st1", "h1", "ana", "look here")
	if err != nil || comment.Body != "look here" {
		t.Fatalf("AddComment() = %+v, %v", comment, err)
	}
	if _, err := c.Restore(ctx, "st1", "h1", "s2"); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if err := c.DeleteHistory(ctx, "st1", "h1"); err != nil {
		t.Fatalf("DeleteHistory() error = %v", err)
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 requests, got %v", seen)
	}
}

func TestClient_Report(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") != "nodes" || r.URL.Query().Get("graph") != "overview" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("id,feature,label\n0,author,Ada\n"))
	}))
	defer server.Close()

	body, err := NewClient(server.URL).Report(context.Background(), "s1", "nodes", graph.Overview)
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if string(body) != "id,feature,label\n0,author,Ada\n" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestClient_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			t.Errorf("Expected path /v1/health, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(Status{Status: "ok"})
	}))
	defer server.Close()

	c := NewClient(server.URL)
	status, err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if status.Status != "ok" {
		t.Errorf("Ping() status = %s, want ok", status.Status)
	}
}
