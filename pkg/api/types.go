package api

import (
	"github.com/rmax-ai/facetgraph/pkg/engine"
	"github.com/rmax-ai/facetgraph/pkg/graph"
)

// BuildGraphRequest matches the POST /v1/graphs body schema
type BuildGraphRequest = engine.BuildRequest

// TrimGraphRequest matches the POST /v1/graphs/trim body schema
type TrimGraphRequest = engine.TrimRequest

// CommentRequest matches the POST /v1/studies/{studyID}/history/{entryID}/comments body schema
type CommentRequest struct {
	Author string `json:"author"`
	Body   string `json:"body" validate:"required"`
}

// RestoreRequest matches the POST /v1/studies/{studyID}/history/{entryID}/restore body schema
type RestoreRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// GraphResponse wraps a single view
type GraphResponse struct {
	SessionID string      `json:"session_id"`
	Graph     *graph.View `json:"graph"`
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error   string         `json:"error"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
