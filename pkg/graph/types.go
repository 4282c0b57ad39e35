package graph

import (
	"sort"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
	"github.com/rmax-ai/facetgraph/pkg/query"
)

// GraphType selects which of the two views of a session is built.
type GraphType string

const (
	// Overview is centred on the anchor feature and its links; edges come from shared entries.
	Overview GraphType = "overview"
	// Detail covers every visible feature with edges inferred from schema paths.
	Detail GraphType = "detail"
)

// ParseGraphType validates a graph type name.
func ParseGraphType(s string) (GraphType, error) {
	switch GraphType(s) {
	case Overview, Detail:
		return GraphType(s), nil
	}
	return "", apperrors.Validation("INVALID_GRAPH_TYPE", "unknown graph type %q", s)
}

// Sibling returns the other graph type.
func (t GraphType) Sibling() GraphType {
	if t == Overview {
		return Detail
	}
	return Overview
}

const (
	// FullOffset is the size offset for full extraction (detail graphs).
	FullOffset = 2
	// AnchorOffset is the size offset for anchor/link-centric extraction (overview graphs).
	AnchorOffset = 5

	// NoValueLabel labels the node bundling rows without a value for a list-typed anchor.
	NoValueLabel = "(no value)"

	// DefaultScale is the circle radius used by the layout.
	DefaultScale = 500.0
)

// Node is a deduplicated (feature, label) pair. ID is its index in View.Nodes.
type Node struct {
	ID         int                 `json:"id"`
	Feature    string              `json:"feature"`
	Label      string              `json:"label"`
	Entries    []string            `json:"entries"`
	Size       int                 `json:"size"`
	Component  int                 `json:"component"`
	Properties map[string][]string `json:"properties,omitempty"`
	// NoValue marks the NoValueLabel bundle of a list-typed anchor.
	NoValue bool    `json:"no_value,omitempty"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// Connection names the node that caused an overview edge.
type Connection struct {
	Feature string `json:"feature"`
	Label   string `json:"label"`
}

// Edge links two nodes by id. Weight counts occurrences of the pair.
type Edge struct {
	ID          int          `json:"id"`
	Source      int          `json:"source"`
	Target      int          `json:"target"`
	Weight      int          `json:"weight"`
	Component   int          `json:"component"`
	Connections []Connection `json:"connections,omitempty"`
}

// ConnectionCount is one of the most frequent connections of a component.
type ConnectionCount struct {
	Feature string `json:"feature"`
	Label   string `json:"label"`
	Count   int    `json:"count"`
}

// Component is a connected set of nodes.
type Component struct {
	ID                 int               `json:"id"`
	Nodes              []int             `json:"nodes"`
	NodeCount          int               `json:"node_count"`
	Entries            []string          `json:"entries"`
	LargestNodes       []int             `json:"largest_nodes,omitempty"`
	LargestConnections []ConnectionCount `json:"largest_connections,omitempty"`
}

// Meta records what a view was built from, plus derived statistics.
type Meta struct {
	Dimensions       []string                  `json:"dimensions"`
	Features         []string                  `json:"features"`
	Schema           dataset.Schema            `json:"schema"`
	Query            query.Query               `json:"query"`
	Anchor           string                    `json:"anchor,omitempty"`
	Links            []string                  `json:"links,omitempty"`
	SizeOffset       int                       `json:"size_offset"`
	LayoutScale      float64                   `json:"layout_scale"`
	AnchorProperties []string                  `json:"anchor_properties,omitempty"`
	PropertySummary  map[string]map[string]int `json:"property_summary,omitempty"`
	MaxDegree        int                       `json:"max_degree"`
}

// View is one built graph.
type View struct {
	Type       GraphType   `json:"type"`
	Nodes      []Node      `json:"nodes"`
	Edges      []Edge      `json:"edges"`
	Components []Component `json:"components"`
	Meta       Meta        `json:"meta"`
}

// Empty reports whether the view has no nodes.
func (v *View) Empty() bool {
	return v == nil || len(v.Nodes) == 0
}

// PrecomputedNode is a list-feature node expanded at ingest time.
type PrecomputedNode struct {
	Feature string   `json:"feature"`
	Label   string   `json:"label"`
	Entries []string `json:"entries"`
}

// entrySet is a small helper around a string set that keeps first-seen order.
type entrySet struct {
	order []string
	seen  map[string]bool
}

func newEntrySet() *entrySet {
	return &entrySet{seen: make(map[string]bool)}
}

func (s *entrySet) add(id string) {
	if !s.seen[id] {
		s.seen[id] = true
		s.order = append(s.order, id)
	}
}

func (s *entrySet) sorted() []string {
	out := append([]string(nil), s.order...)
	sort.Strings(out)
	return out
}
