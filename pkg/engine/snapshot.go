package engine

import (
	"github.com/rmax-ai/facetgraph/pkg/dataset"
	"github.com/rmax-ai/facetgraph/pkg/graph"
	"github.com/rmax-ai/facetgraph/pkg/query"
)

// Global is the session state shared by both graph types.
type Global struct {
	SessionID string                         `json:"session_id"`
	SearchID  string                         `json:"search_id"`
	StudyID   string                         `json:"study_id"`
	DatasetID string                         `json:"dataset_id"`
	Query     query.Query                    `json:"query"`
	Schema    dataset.Schema                 `json:"schema"`
	Types     map[string]dataset.FeatureType `json:"types"`
	Rows      []dataset.Row                  `json:"rows"`
	Table     graph.Table                    `json:"table"`
}

// Snapshot is everything cached for a session. Views are never mutated once stored; every
// operation builds a new snapshot.
type Snapshot struct {
	Overview *graph.View `json:"overview,omitempty"`
	Detail   *graph.View `json:"detail,omitempty"`
	Global   Global      `json:"global"`
	// Head is the history entry that produced this snapshot.
	Head string `json:"head,omitempty"`
}

// View returns the view of the given type, or nil.
func (s *Snapshot) View(t graph.GraphType) *graph.View {
	if s == nil {
		return nil
	}
	if t == graph.Overview {
		return s.Overview
	}
	return s.Detail
}

// SetView replaces the view of the given type.
func (s *Snapshot) SetView(t graph.GraphType, v *graph.View) {
	if t == graph.Overview {
		s.Overview = v
		return
	}
	s.Detail = v
}

// next returns a shallow copy for the following operation to modify.
func (s *Snapshot) next() *Snapshot {
	cp := *s
	return &cp
}

// copyView copies v deeply enough for the property overlay to be replaced.
func copyView(v *graph.View) *graph.View {
	cp := *v
	cp.Nodes = append([]graph.Node(nil), v.Nodes...)
	return &cp
}
