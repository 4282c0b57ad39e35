package graph

import (
	"github.com/rmax-ai/facetgraph/pkg/dataset"
)

// Trim rebuilds v for the retained entries without a new query. Nodes that keep at least one
// retained entry survive with their entries narrowed and their size recomputed; edges touching a
// dropped node go; components, layout and anchor properties are recomputed. rows may hold more
// than the retained entries. A retained set disjoint from every node yields an empty view.
func Trim(v *View, retained map[string]bool, rows []dataset.Row) *View {
	out := &View{
		Type:  v.Type,
		Nodes: []Node{},
		Edges: []Edge{},
		Meta:  cloneMeta(v.Meta),
	}

	remap := make([]int, len(v.Nodes))
	for i, n := range v.Nodes {
		remap[i] = -1
		var kept []string
		for _, e := range n.Entries {
			if retained[e] {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			continue
		}
		id := len(out.Nodes)
		remap[i] = id
		out.Nodes = append(out.Nodes, Node{
			ID:      id,
			Feature: n.Feature,
			Label:   n.Label,
			Entries: kept,
			Size:    NodeSize(len(kept), v.Meta.SizeOffset),
			NoValue: n.NoValue,
		})
	}

	for _, e := range v.Edges {
		src, dst := remap[e.Source], remap[e.Target]
		if src < 0 || dst < 0 {
			continue
		}
		out.Edges = append(out.Edges, Edge{
			ID:          len(out.Edges),
			Source:      src,
			Target:      dst,
			Weight:      e.Weight,
			Connections: append([]Connection(nil), e.Connections...),
		})
	}

	if out.Meta.LayoutScale <= 0 {
		out.Meta.LayoutScale = DefaultScale
	}
	enrich(out, FilterRows(rows, retained), v.Meta.AnchorProperties)
	return out
}

func cloneMeta(m Meta) Meta {
	out := m
	out.Dimensions = append([]string(nil), m.Dimensions...)
	out.Features = append([]string(nil), m.Features...)
	out.Links = append([]string(nil), m.Links...)
	out.Schema = append(dataset.Schema(nil), m.Schema...)
	out.PropertySummary = nil
	return out
}

// EntryIDs returns the union of node entries of v, in first-seen order.
func EntryIDs(v *View) []string {
	s := newEntrySet()
	for _, n := range v.Nodes {
		for _, e := range n.Entries {
			s.add(e)
		}
	}
	return s.order
}
