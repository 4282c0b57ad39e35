package graph

import (
	"sort"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
	"github.com/rmax-ai/facetgraph/pkg/query"
)

// BuildOptions describes one graph build.
type BuildOptions struct {
	Type GraphType
	// Schema is validated before any row is looked at.
	Schema dataset.Schema
	Types  map[string]dataset.FeatureType
	// Dimensions are the visible features of a detail graph.
	Dimensions       []string
	Anchor           string
	Links            []string
	AnchorProperties []string
	Precomputed      []PrecomputedNode
	Query            query.Query
	Scale            float64
}

// Features returns the features a build extracts nodes for: anchor and links for an
// overview, the visible dimensions for a detail graph.
func (o BuildOptions) Features() []string {
	if o.Type == Overview {
		return dedupe(append([]string{o.Anchor}, o.Links...))
	}
	return dedupe(o.Dimensions)
}

func (o BuildOptions) offset() int {
	if o.Type == Overview {
		return AnchorOffset
	}
	return FullOffset
}

// Build synthesizes a view from rows.
func Build(rows []dataset.Row, opts BuildOptions) (*View, error) {
	if _, err := ParseGraphType(string(opts.Type)); err != nil {
		return nil, err
	}
	schema, err := opts.Schema.Validate()
	if err != nil {
		return nil, err
	}
	if opts.Type == Overview && opts.Anchor == "" {
		return nil, apperrors.Configuration("ANCHOR_REQUIRED", "overview graphs need an anchor feature")
	}
	features := opts.Features()
	referenced := append(append(append([]string{}, features...), opts.Dimensions...), opts.AnchorProperties...)
	for _, f := range referenced {
		if _, ok := opts.Types[f]; !ok {
			return nil, apperrors.NotFound("FEATURE_NOT_FOUND", "feature %s not found", f)
		}
	}
	if opts.Scale <= 0 {
		opts.Scale = DefaultScale
	}

	universe := make([]string, 0, len(opts.Types))
	for f := range opts.Types {
		universe = append(universe, f)
	}
	sort.Strings(universe)

	paths, err := ResolvePaths(universe, features, schema)
	if err != nil {
		return nil, err
	}

	nodes, ix := SynthesizeNodes(rows, features, opts.Types, NodeOptions{
		Offset:      opts.offset(),
		Anchor:      opts.Anchor,
		Precomputed: opts.Precomputed,
	})
	edges := GenerateEdges(paths, rows, ix)
	if opts.Type == Overview {
		edges = OverviewConnections(nodes, edges, schema, features)
	}

	v := &View{
		Type:  opts.Type,
		Nodes: nodes,
		Edges: edges,
		Meta: Meta{
			Dimensions:  opts.Dimensions,
			Features:    features,
			Schema:      schema,
			Query:       opts.Query,
			Anchor:      opts.Anchor,
			Links:       opts.Links,
			SizeOffset:  opts.offset(),
			LayoutScale: opts.Scale,
		},
	}
	if v.Nodes == nil {
		v.Nodes = []Node{}
	}
	if v.Edges == nil {
		v.Edges = []Edge{}
	}
	enrich(v, rows, opts.AnchorProperties)
	return v, nil
}

// enrich recomputes everything derived from the node and edge sets.
func enrich(v *View, rows []dataset.Row, properties []string) {
	AnalyzeComponents(v, v.Type == Overview)
	if v.Components == nil {
		v.Components = []Component{}
	}
	ApplyLayout(v, v.Meta.LayoutScale)
	v.Meta.MaxDegree = MaxDegree(v)
	if v.Type == Overview {
		ApplyAnchorProperties(v, rows, properties)
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
