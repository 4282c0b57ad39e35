package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rmax-ai/facetgraph/pkg/engine"
	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
	"github.com/rmax-ai/facetgraph/pkg/graph"
	"github.com/rmax-ai/facetgraph/pkg/store"
)

// MockService records the calls it receives and answers from its fields.
type MockService struct {
	build   engine.BuildRequest
	trim    engine.TrimRequest
	restore [3]string
	deleted [2]string
	comment [4]string

	view    *graph.View
	snap    *engine.Snapshot
	history []*store.HistoryEntry
	err     error
}

func (m *MockService) BuildGraph(ctx context.Context, req engine.BuildRequest) (*engine.BuildResult, error) {
	m.build = req
	if m.err != nil {
		return nil, m.err
	}
	return &engine.BuildResult{
		Graph:          m.view,
		HistoryEntryID: "h1",
		Decision:       engine.Decision{Strategy: engine.FromScratch, Provenance: engine.ProvenanceInitialSearch},
	}, nil
}

func (m *MockService) TrimGraph(ctx context.Context, req engine.TrimRequest) (*graph.View, error) {
	m.trim = req
	return m.view, m.err
}

func (m *MockService) GetCachedGraph(ctx context.Context, sessionID string, t graph.GraphType) (*graph.View, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.view, nil
}

func (m *MockService) Snapshot(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	return m.snap, m.err
}

func (m *MockService) GetHistory(ctx context.Context, studyID string) ([]*store.HistoryEntry, error) {
	return m.history, m.err
}

func (m *MockService) AddComment(ctx context.Context, studyID, entryID, author, body string) (*store.Comment, error) {
	m.comment = [4]string{studyID, entryID, author, body}
	if m.err != nil {
		return nil, m.err
	}
	return &store.Comment{ID: "c1", HistoryID: entryID, Author: author, Body: body}, nil
}

func (m *MockService) DeleteHistory(ctx context.Context, studyID, entryID string) error {
	m.deleted = [2]string{studyID, entryID}
	return m.err
}

func (m *MockService) RestoreEntry(ctx context.Context, studyID, entryID, sessionID string) (*graph.View, error) {
	m.restore = [3]string{studyID, entryID, sessionID}
	return m.view, m.err
}

func sampleView() *graph.View {
	return &graph.View{
		Type: graph.Detail,
		Nodes: []graph.Node{
			{ID: 0, Feature: "author", Label: "Ada", Entries: []string{"e1"}, Size: 3},
			{ID: 1, Feature: "venue", Label: "ICML", Entries: []string{"e1"}, Size: 3},
		},
		Edges:      []graph.Edge{{ID: 0, Source: 0, Target: 1, Weight: 1}},
		Components: []graph.Component{{ID: 0, Nodes: []int{0, 1}, NodeCount: 2, Entries: []string{"e1"}}},
	}
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return resp
}

func TestHandleBuildGraph(t *testing.T) {
	svc := &MockService{view: sampleView()}
	s := NewServer(svc, nil, "")

	body := `{"session_id":"s1","study_id":"st1","dataset_id":"papers","search_id":"q1","graph_type":"detail","dimensions":["author","venue"]}`
	w := do(t, s, "POST", "/v1/graphs", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var res engine.BuildResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if res.HistoryEntryID != "h1" || res.Decision.Strategy != engine.FromScratch || len(res.Graph.Nodes) != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if svc.build.SessionID != "s1" || svc.build.GraphType != graph.Detail || len(svc.build.Dimensions) != 2 {
		t.Errorf("request not passed through: %+v", svc.build)
	}
}

func TestHandleBuildGraph_Validation(t *testing.T) {
	s := NewServer(&MockService{}, nil, "")

	cases := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"session_id":`, "INVALID_JSON_BODY"},
		{"missing session", `{"study_id":"st1","dataset_id":"d","search_id":"q","graph_type":"detail"}`, "session_id is required"},
		{"bad graph type", `{"session_id":"s","study_id":"st1","dataset_id":"d","search_id":"q","graph_type":"tree"}`, "graph_type must be one of"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, s, "POST", "/v1/graphs", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", w.Code)
			}
			resp := decodeError(t, w)
			if resp.Error != tc.want && !strings.Contains(resp.Message, tc.want) {
				t.Errorf("expected %q in %+v", tc.want, resp)
			}
		})
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{apperrors.NotFound("SESSION_NOT_FOUND", "no session"), http.StatusNotFound},
		{apperrors.Configuration("ANCHOR_REQUIRED", "no anchor"), http.StatusUnprocessableEntity},
		{apperrors.Unavailable("search_index", errors.New("down")), http.StatusServiceUnavailable},
		{apperrors.Validation("INVALID_QUERY", "bad"), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		s := NewServer(&MockService{err: tc.err}, nil, "")
		w := do(t, s, "GET", "/v1/sessions/s1/graph?type=overview", "")
		if w.Code != tc.code {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.code, w.Code)
		}
		resp := decodeError(t, w)
		if tc.code == http.StatusInternalServerError && strings.Contains(resp.Message, "boom") {
			t.Errorf("internal error message leaked: %+v", resp)
		}
	}
}

func TestHandleGetGraph_InvalidType(t *testing.T) {
	s := NewServer(&MockService{view: sampleView()}, nil, "")
	w := do(t, s, "GET", "/v1/sessions/s1/graph?type=tree", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error != "INVALID_GRAPH_TYPE" {
		t.Errorf("unexpected error %+v", resp)
	}
}

func TestHandleTrimGraph(t *testing.T) {
	svc := &MockService{view: sampleView()}
	s := NewServer(svc, nil, "")

	w := do(t, s, "POST", "/v1/graphs/trim", `{"session_id":"s1","graph_type":"overview","entry_ids":["e1"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp GraphResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.SessionID != "s1" || resp.Graph == nil {
		t.Errorf("unexpected response %+v", resp)
	}
	if svc.trim.GraphType != graph.Overview || len(svc.trim.EntryIDs) != 1 {
		t.Errorf("request not passed through: %+v", svc.trim)
	}
}

func TestHistoryRoutes(t *testing.T) {
	svc := &MockService{
		view:    sampleView(),
		history: []*store.HistoryEntry{{ID: "h1", StudyID: "st1", Action: "initial search"}},
	}
	s := NewServer(svc, nil, "")

	w := do(t, s, "GET", "/v1/studies/st1/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", w.Code)
	}
	var entries []store.HistoryEntry
	json.NewDecoder(w.Body).Decode(&entries)
	if len(entries) != 1 || entries[0].ID != "h1" {
		t.Errorf("unexpected history %+v", entries)
	}

	w = do(t, s, "POST", "/v1/studies/st1/history/h1/comments", `{"author":"ana","body":"interesting cluster"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("comment: expected 201, got %d", w.Code)
	}
	if svc.comment != [4]string{"st1", "h1", "ana", "interesting cluster"} {
		t.Errorf("unexpected comment call %v", svc.comment)
	}

	w = do(t, s, "POST", "/v1/studies/st1/history/h1/comments", `{"author":"ana"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty comment: expected 400, got %d", w.Code)
	}

	w = do(t, s, "POST", "/v1/studies/st1/history/h1/restore", `{"session_id":"s2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("restore: expected 200, got %d", w.Code)
	}
	if svc.restore != [3]string{"st1", "h1", "s2"} {
		t.Errorf("unexpected restore call %v", svc.restore)
	}

	w = do(t, s, "POST", "/v1/studies/st1/history/h1/restore", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("restore without session: expected 400, got %d", w.Code)
	}

	w = do(t, s, "DELETE", "/v1/studies/st1/history/h1", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}
	if svc.deleted != [2]string{"st1", "h1"} {
		t.Errorf("unexpected delete call %v", svc.deleted)
	}
}

func TestHandleReports(t *testing.T) {
	snap := &engine.Snapshot{Detail: sampleView()}
	snap.Global.Table = graph.Table{
		Columns:  []string{"author"},
		EntryIDs: []string{"e1"},
		Rows:     [][]string{{"Ada"}},
	}
	s := NewServer(&MockService{snap: snap}, nil, "")

	w := do(t, s, "GET", "/v1/sessions/s1/reports?type=nodes", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Expected text/csv, got %s", ct)
	}
	records, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read CSV: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("Expected 3 records, got %d", len(records))
	}

	w = do(t, s, "GET", "/v1/sessions/s1/reports?type=table", "")
	records, _ = csv.NewReader(w.Body).ReadAll()
	if len(records) != 2 || records[1][0] != "e1" {
		t.Errorf("unexpected table report %v", records)
	}

	// no overview has been built for the session
	w = do(t, s, "GET", "/v1/sessions/s1/reports?type=components&graph=overview", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	w = do(t, s, "GET", "/v1/sessions/s1/reports?type=usage", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	w = do(t, s, "GET", "/v1/sessions/s1/reports", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := NewServer(&MockService{}, nil, "")

	w := do(t, s, "GET", "/v1/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("unexpected health response %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Trace-ID") == "" {
		t.Error("expected trace id header")
	}

	w = do(t, s, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("metrics: expected 200, got %d", w.Code)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	s := NewServer(&MockService{}, nil, "")

	w := do(t, s, "GET", "/v1/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	w = do(t, s, "GET", "/v1/graphs", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestSecureHeaders(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	secureHandler := withSecureHeaders(handler)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	secureHandler.ServeHTTP(w, req)

	expectedHeaders := map[string]string{
		"Content-Security-Policy":   "default-src 'self'",
		"Strict-Transport-Security": "max-age=63072000; includeSubDomains",
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Referrer-Policy":           "no-referrer",
	}
	for key, expected := range expectedHeaders {
		if got := w.Header().Get(key); got != expected {
			t.Errorf("Header %s: expected %q, got %q", key, expected, got)
		}
	}
}

func TestRecovery(t *testing.T) {
	s := NewServer(&MockService{}, nil, "")
	h := s.withRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}
