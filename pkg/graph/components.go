package graph

import (
	"sort"
)

// TopConnections is how many connections an overview component ranks.
const TopConnections = 5

// AnalyzeComponents computes the undirected connected components of v and writes the
// component id onto every node and edge.
//
// Components holding largest nodes come first, then larger components. Discovery runs in
// ascending node id and the sort is stable, so equal components stay ordered by their smallest
// node id. With overview set, each component also gets its most frequent edge connections; ties
// keep first-encountered order.
func AnalyzeComponents(v *View, overview bool) {
	n := len(v.Nodes)
	adj := make([][]int, n)
	for _, e := range v.Edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
		adj[e.Target] = append(adj[e.Target], e.Source)
	}

	assigned := make([]int, n)
	for i := range assigned {
		assigned[i] = -1
	}
	var comps []Component
	for start := 0; start < n; start++ {
		if assigned[start] >= 0 {
			continue
		}
		id := len(comps)
		members := []int{start}
		assigned[start] = id
		for q := 0; q < len(members); q++ {
			for _, nb := range adj[members[q]] {
				if assigned[nb] < 0 {
					assigned[nb] = id
					members = append(members, nb)
				}
			}
		}
		sort.Ints(members)
		comps = append(comps, summarize(v.Nodes, members))
	}

	sort.SliceStable(comps, func(i, j int) bool {
		li, lj := len(comps[i].LargestNodes) > 0, len(comps[j].LargestNodes) > 0
		if li != lj {
			return li
		}
		return comps[i].NodeCount > comps[j].NodeCount
	})

	for i := range comps {
		comps[i].ID = i
		for _, id := range comps[i].Nodes {
			v.Nodes[id].Component = i
		}
	}
	for i := range v.Edges {
		v.Edges[i].Component = v.Nodes[v.Edges[i].Source].Component
	}
	if overview {
		rankConnections(comps, v.Edges)
	}
	v.Components = comps
}

func summarize(nodes []Node, members []int) Component {
	entries := newEntrySet()
	maxSize, minSize := nodes[members[0]].Size, nodes[members[0]].Size
	for _, id := range members {
		for _, e := range nodes[id].Entries {
			entries.add(e)
		}
		if s := nodes[id].Size; s > maxSize {
			maxSize = s
		} else if s < minSize {
			minSize = s
		}
	}

	c := Component{
		Nodes:     members,
		NodeCount: len(members),
		Entries:   entries.sorted(),
	}
	if maxSize != minSize {
		for _, id := range members {
			if nodes[id].Size == maxSize {
				c.LargestNodes = append(c.LargestNodes, id)
			}
		}
	}
	return c
}

func rankConnections(comps []Component, edges []Edge) {
	type tally struct {
		counts map[Connection]int
		order  []Connection
	}
	tallies := make([]tally, len(comps))
	for i := range tallies {
		tallies[i].counts = make(map[Connection]int)
	}
	for _, e := range edges {
		t := &tallies[e.Component]
		for _, c := range e.Connections {
			if _, ok := t.counts[c]; !ok {
				t.order = append(t.order, c)
			}
			t.counts[c]++
		}
	}
	for i, t := range tallies {
		if len(t.order) == 0 {
			continue
		}
		ranked := make([]ConnectionCount, len(t.order))
		for j, c := range t.order {
			ranked[j] = ConnectionCount{Feature: c.Feature, Label: c.Label, Count: t.counts[c]}
		}
		sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].Count > ranked[b].Count })
		if len(ranked) > TopConnections {
			ranked = ranked[:TopConnections]
		}
		comps[i].LargestConnections = ranked
	}
}
