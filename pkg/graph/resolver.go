package graph

import (
	"sort"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
)

// Path is an ordered chain of schema links; link i's Dest is link i+1's Src.
type Path []dataset.SchemaLink

// Source is the feature the path leaves from.
func (p Path) Source() string { return p[0].Src }

// Dest is the feature the path arrives at.
func (p Path) Dest() string { return p[len(p)-1].Dest }

// schemaGraph is the directed feature graph declared by a schema.
type schemaGraph struct {
	out map[string][]dataset.SchemaLink
}

func newSchemaGraph(universe []string, schema dataset.Schema) *schemaGraph {
	g := &schemaGraph{out: make(map[string][]dataset.SchemaLink)}
	for _, f := range universe {
		g.out[f] = nil
	}
	for _, l := range schema {
		g.out[l.Src] = append(g.out[l.Src], l)
		if _, ok := g.out[l.Dest]; !ok {
			g.out[l.Dest] = nil
		}
	}
	return g
}

// shortestPaths returns every shortest directed path from src to dst, by edge count.
func (g *schemaGraph) shortestPaths(src, dst string) []Path {
	if src == dst {
		return nil
	}
	if _, ok := g.out[src]; !ok {
		return nil
	}
	dist := map[string]int{src: 0}
	preds := make(map[string][]dataset.SchemaLink)
	frontier := []string{src}
	for len(frontier) > 0 {
		if _, done := dist[dst]; done {
			break
		}
		var next []string
		for _, f := range frontier {
			for _, l := range g.out[f] {
				d, seen := dist[l.Dest]
				switch {
				case !seen:
					dist[l.Dest] = dist[f] + 1
					preds[l.Dest] = append(preds[l.Dest], l)
					next = append(next, l.Dest)
				case d == dist[f]+1:
					preds[l.Dest] = append(preds[l.Dest], l)
				}
			}
		}
		frontier = next
	}
	if _, ok := dist[dst]; !ok {
		return nil
	}

	var out []Path
	var unwind func(at string, suffix Path)
	unwind = func(at string, suffix Path) {
		if at == src {
			p := make(Path, len(suffix))
			copy(p, suffix)
			out = append(out, p)
			return
		}
		for _, l := range preds[at] {
			unwind(l.Src, append(Path{l}, suffix...))
		}
	}
	unwind(dst, nil)
	return out
}

// ResolvePaths computes the schema paths that connect the visible features.
//
// For every ordered pair of visible features all shortest directed paths are candidates.
// Candidates are accepted shortest first; a candidate is dominated when an accepted path
// already joins the same endpoints with fewer links, or when it runs through another visible
// feature (that pair is then connected by the accepted paths on either side). Pairs without any
// path are left disconnected.
func ResolvePaths(universe, visible []string, schema dataset.Schema) ([]Path, error) {
	normalized, err := schema.Validate()
	if err != nil {
		return nil, err
	}
	g := newSchemaGraph(universe, normalized)

	isVisible := make(map[string]bool, len(visible))
	for _, f := range visible {
		isVisible[f] = true
	}

	var candidates []Path
	for _, src := range visible {
		for _, dst := range visible {
			candidates = append(candidates, g.shortestPaths(src, dst)...)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) < len(candidates[j])
	})

	type endpoints struct{ src, dst string }
	bestLen := make(map[endpoints]int)
	var accepted []Path
	for _, p := range candidates {
		key := endpoints{p.Source(), p.Dest()}
		if n, ok := bestLen[key]; ok && n < len(p) {
			continue
		}
		if throughVisible(p, isVisible) {
			continue
		}
		bestLen[key] = len(p)
		accepted = append(accepted, p)
	}
	return accepted, nil
}

func throughVisible(p Path, visible map[string]bool) bool {
	for _, l := range p[:len(p)-1] {
		if visible[l.Dest] {
			return true
		}
	}
	return false
}

// Neighbours returns the features adjacent to f in either direction of the schema.
func Neighbours(schema dataset.Schema, f string) map[string]bool {
	out := make(map[string]bool)
	for _, l := range schema {
		if l.Src == f {
			out[l.Dest] = true
		}
		if l.Dest == f {
			out[l.Src] = true
		}
	}
	delete(out, f)
	return out
}
