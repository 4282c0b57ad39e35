package graph

import (
	"github.com/rmax-ai/facetgraph/pkg/dataset"
)

type pair struct{ src, dst int }

type labelPair struct{ src, dst string }

// expand pairs source and destination labels according to the link cardinality. Empty labels
// never produce a pair.
func expand(card dataset.Cardinality, src, dst []string) []labelPair {
	var out []labelPair
	emit := func(s, d string) {
		if s != "" && d != "" {
			out = append(out, labelPair{s, d})
		}
	}
	switch card {
	case dataset.OneToOne:
		n := len(src)
		if len(dst) < n {
			n = len(dst)
		}
		for i := 0; i < n; i++ {
			emit(src[i], dst[i])
		}
	case dataset.OneToMany:
		if s, ok := first(src); ok {
			for _, d := range dst {
				emit(s, d)
			}
		}
	case dataset.ManyToOne:
		if d, ok := first(dst); ok {
			for _, s := range src {
				emit(s, d)
			}
		}
	case dataset.ManyToMany:
		for _, s := range src {
			for _, d := range dst {
				emit(s, d)
			}
		}
	}
	return out
}

// first returns the first non-empty label; a "one" side holding several values uses its first.
func first(labels []string) (string, bool) {
	for _, l := range labels {
		if l != "" {
			return l, true
		}
	}
	return "", false
}

// rowPathPairs returns the deduplicated node pairs a single row produces along a path. Links
// are expanded on labels so the path may run through features that have no nodes; every later
// link keeps only the pairs continuing an earlier one, and the surviving (first source, last
// destination) label pairs are resolved to node ids at the end.
func rowPathPairs(p Path, row dataset.Row, ix *NodeIndex) []pair {
	var running []labelPair
	for i, link := range p {
		step := expand(link.Cardinality, ix.rowLabels(row, link.Src), ix.rowLabels(row, link.Dest))
		if i == 0 {
			running = step
			continue
		}
		byMid := make(map[string][]string)
		for _, s := range step {
			byMid[s.src] = append(byMid[s.src], s.dst)
		}
		var next []labelPair
		for _, r := range running {
			for _, d := range byMid[r.dst] {
				next = append(next, labelPair{r.src, d})
			}
		}
		running = next
		if len(running) == 0 {
			return nil
		}
	}

	seen := make(map[pair]bool, len(running))
	var out []pair
	for _, r := range running {
		src, ok := ix.Lookup(p.Source(), r.src)
		if !ok {
			continue
		}
		dst, ok := ix.Lookup(p.Dest(), r.dst)
		if !ok || src == dst {
			continue
		}
		pr := pair{src, dst}
		if !seen[pr] {
			seen[pr] = true
			out = append(out, pr)
		}
	}
	return out
}

// edgeBuilder accumulates weighted edges in first-seen order.
type edgeBuilder struct {
	edges []Edge
	index map[pair]int
}

func newEdgeBuilder() *edgeBuilder {
	return &edgeBuilder{index: make(map[pair]int)}
}

func (b *edgeBuilder) add(p pair, weight int) *Edge {
	if i, ok := b.index[p]; ok {
		b.edges[i].Weight += weight
		return &b.edges[i]
	}
	b.index[p] = len(b.edges)
	b.edges = append(b.edges, Edge{ID: len(b.edges), Source: p.src, Target: p.dst, Weight: weight})
	return &b.edges[len(b.edges)-1]
}

// find returns the edge joining the two nodes in either direction.
func (b *edgeBuilder) find(a, c int) (*Edge, bool) {
	if i, ok := b.index[pair{a, c}]; ok {
		return &b.edges[i], true
	}
	if i, ok := b.index[pair{c, a}]; ok {
		return &b.edges[i], true
	}
	return nil, false
}

// GenerateEdges expands schema paths against the rows. An edge's weight is the number of
// (row, path) combinations that produced its pair.
func GenerateEdges(paths []Path, rows []dataset.Row, ix *NodeIndex) []Edge {
	b := newEdgeBuilder()
	for _, p := range paths {
		for _, row := range rows {
			for _, pr := range rowPathPairs(p, row, ix) {
				if ix.Label(pr.src) == "" || ix.Label(pr.dst) == "" {
					continue
				}
				b.add(pr, 1)
			}
		}
	}
	return b.edges
}

// OverviewConnections adds the co-occurrence edges of an overview graph to edges. For every
// node of a hub feature (anchor or link), the nodes of schema-adjacent features that share an
// entry with it are joined pairwise; each pair records the hub node as a connection and gains
// one unit of weight per hub node.
func OverviewConnections(nodes []Node, edges []Edge, schema dataset.Schema, hubs []string) []Edge {
	b := newEdgeBuilder()
	for _, e := range edges {
		b.index[pair{e.Source, e.Target}] = len(b.edges)
		b.edges = append(b.edges, e)
	}

	byEntry := make(map[string][]int)
	for _, n := range nodes {
		for _, e := range n.Entries {
			byEntry[e] = append(byEntry[e], n.ID)
		}
	}

	isHub := make(map[string]bool, len(hubs))
	for _, h := range hubs {
		isHub[h] = true
	}
	adjacent := make(map[string]map[string]bool)

	for _, hub := range nodes {
		if !isHub[hub.Feature] {
			continue
		}
		adj, ok := adjacent[hub.Feature]
		if !ok {
			adj = Neighbours(schema, hub.Feature)
			adjacent[hub.Feature] = adj
		}

		var neighbours []int
		seen := make(map[int]bool)
		for _, e := range hub.Entries {
			for _, id := range byEntry[e] {
				if id == hub.ID || seen[id] || !adj[nodes[id].Feature] {
					continue
				}
				seen[id] = true
				neighbours = append(neighbours, id)
			}
		}

		conn := Connection{Feature: hub.Feature, Label: hub.Label}
		for i := 0; i < len(neighbours); i++ {
			for j := i + 1; j < len(neighbours); j++ {
				e, ok := b.find(neighbours[i], neighbours[j])
				if ok {
					e.Weight++
				} else {
					e = b.add(pair{neighbours[i], neighbours[j]}, 1)
				}
				e.Connections = append(e.Connections, conn)
			}
		}
	}
	return b.edges
}
