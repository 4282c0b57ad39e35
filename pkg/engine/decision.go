package engine

import (
	"fmt"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
	"github.com/rmax-ai/facetgraph/pkg/graph"
	"github.com/rmax-ai/facetgraph/pkg/query"
)

// Strategy is how a request is served given the previous snapshot.
type Strategy int

const (
	// FromScratch queries the search index and builds the requested graph.
	FromScratch Strategy = iota
	// FromExistingData rebuilds the requested graph from the cached rows.
	FromExistingData
	// FromAnchorProperties only recomputes the anchor property overlay.
	FromAnchorProperties
	// FromCache returns the cached graph.
	FromCache
)

var strategyNames = map[Strategy]string{
	FromScratch:          "from_scratch",
	FromExistingData:     "from_existing_data",
	FromAnchorProperties: "from_anchor_properties",
	FromCache:            "from_cache",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(text []byte) error {
	for k, name := range strategyNames {
		if name == string(text) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown strategy %q", text)
}

// Provenance values, recorded as the history action.
const (
	ProvenanceInitialSearch    = "initial search"
	ProvenanceModifiedSearch   = "modified search"
	ProvenanceChangeGraphType  = "change graph type"
	ProvenanceChangeSchema     = "change schema"
	ProvenanceChangeVisible    = "change visible nodes"
	ProvenanceChangeProperties = "change anchor properties"
	ProvenanceCached           = "cached graph"
	ProvenanceRestore          = "restore"
	ProvenanceTrim             = "trim"
)

// Decision is the outcome of Decide.
type Decision struct {
	Strategy   Strategy `json:"strategy"`
	Provenance string   `json:"provenance"`
}

// Request holds the parts of a build request that the cache decision looks at. Schema and
// Dimensions are expected to be resolved against the dataset defaults already.
type Request struct {
	SearchID         string          `json:"search_id" validate:"required"`
	Query            query.Query     `json:"query"`
	GraphType        graph.GraphType `json:"graph_type" validate:"required,oneof=overview detail"`
	Schema           dataset.Schema  `json:"schema,omitempty" validate:"dive"`
	Dimensions       []string        `json:"dimensions,omitempty"`
	AnchorProperties []string        `json:"anchor_properties,omitempty"`
	// GraphTypeChanged forces a rebuild of the requested type from the cached rows.
	GraphTypeChanged bool `json:"graph_type_changed,omitempty"`
}

// Decide picks the cheapest way to serve req from prev. Rules are checked in order and the
// first match wins.
func Decide(prev *Snapshot, req Request) Decision {
	switch {
	case prev == nil:
		return Decision{FromScratch, ProvenanceInitialSearch}
	case prev.Global.SearchID != req.SearchID:
		return Decision{FromScratch, ProvenanceModifiedSearch}
	case !prev.Global.Query.Equal(req.Query):
		return Decision{FromScratch, ProvenanceModifiedSearch}
	case req.GraphTypeChanged:
		return Decision{FromExistingData, ProvenanceChangeGraphType}
	}

	v := prev.View(req.GraphType)
	// a view carried over from an earlier query is stale
	if v.Empty() || !v.Meta.Query.Equal(prev.Global.Query) {
		return Decision{FromExistingData, ProvenanceChangeGraphType}
	}
	if !v.Meta.Schema.Equal(req.Schema) {
		return Decision{FromExistingData, ProvenanceChangeSchema}
	}
	if !equalStrings(v.Meta.Dimensions, req.Dimensions) {
		return Decision{FromExistingData, ProvenanceChangeVisible}
	}
	if req.GraphType == graph.Overview && !equalStrings(v.Meta.AnchorProperties, req.AnchorProperties) {
		return Decision{FromAnchorProperties, ProvenanceChangeProperties}
	}
	return Decision{FromCache, ProvenanceCached}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
