package client

import (
	"fmt"
	"time"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
	"github.com/rmax-ai/facetgraph/pkg/graph"
	"github.com/rmax-ai/facetgraph/pkg/query"
)

// BuildRequest asks the daemon for one graph of a session.
type BuildRequest struct {
	SessionID string `json:"session_id"`
	StudyID   string `json:"study_id"`
	DatasetID string `json:"dataset_id"`
	// ParentID is optional; empty branches from the session's current head.
	ParentID         string          `json:"parent_id,omitempty"`
	SearchID         string          `json:"search_id"`
	Query            query.Query     `json:"query"`
	GraphType        graph.GraphType `json:"graph_type"`
	Schema           dataset.Schema  `json:"schema,omitempty"`
	Dimensions       []string        `json:"dimensions,omitempty"`
	AnchorProperties []string        `json:"anchor_properties,omitempty"`
	GraphTypeChanged bool            `json:"graph_type_changed,omitempty"`
}

// Decision reports how the daemon served a build.
type Decision struct {
	// Strategy is one of from_scratch, from_existing_data, from_anchor_properties, from_cache.
	Strategy   string `json:"strategy"`
	Provenance string `json:"provenance"`
}

// BuildResult is the response of POST /v1/graphs.
type BuildResult struct {
	Graph          *graph.View `json:"graph"`
	HistoryEntryID string      `json:"history_entry_id"`
	Decision       Decision    `json:"decision"`
}

// TrimRequest restricts a session to a subset of its entries.
type TrimRequest struct {
	SessionID string          `json:"session_id"`
	GraphType graph.GraphType `json:"graph_type"`
	EntryIDs  []string        `json:"entry_ids"`
	ParentID  string          `json:"parent_id,omitempty"`
}

// GraphResponse wraps a single view.
type GraphResponse struct {
	SessionID string      `json:"session_id"`
	Graph     *graph.View `json:"graph"`
}

// HistoryEntry is one node of a study's exploration tree.
type HistoryEntry struct {
	ID          string          `json:"id"`
	StudyID     string          `json:"study_id"`
	ParentID    string          `json:"parent_id,omitempty"`
	Seq         int64           `json:"seq"`
	SessionID   string          `json:"session_id"`
	Action      string          `json:"action"`
	GraphType   graph.GraphType `json:"graph_type"`
	SnapshotRef string          `json:"snapshot_ref,omitempty"`
	Dimensions  []string        `json:"dimensions"`
	NodeCount   int             `json:"node_count"`
	EdgeCount   int             `json:"edge_count"`
	Comments    []Comment       `json:"comments"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Comment is a note attached to a history entry.
type Comment struct {
	ID        string    `json:"id"`
	HistoryID string    `json:"history_id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Status represents the health check response.
type Status struct {
	Status string `json:"status"`
}

// APIError is a non-2xx response of the daemon.
type APIError struct {
	StatusCode int            `json:"-"`
	Code       string         `json:"error"`
	Kind       string         `json:"kind"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status: %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}
