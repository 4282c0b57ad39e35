package graph

import (
	"sort"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
)

// ApplyAnchorProperties replaces the property overlay of every anchor node with the requested
// properties, read from the rows the node covers, and refreshes the value summary in Meta.
// Nodes, edges and components are left as they are.
func ApplyAnchorProperties(v *View, rows []dataset.Row, properties []string) {
	byID := make(map[string]dataset.Row, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	summary := make(map[string]map[string]int, len(properties))
	for _, p := range properties {
		summary[p] = make(map[string]int)
	}

	for i := range v.Nodes {
		n := &v.Nodes[i]
		if n.Feature != v.Meta.Anchor {
			continue
		}
		n.Properties = nil
		if len(properties) == 0 {
			continue
		}
		n.Properties = make(map[string][]string, len(properties))
		for _, p := range properties {
			values := make(map[string]bool)
			for _, e := range n.Entries {
				for _, l := range byID[e].Labels(p) {
					if l != "" {
						values[l] = true
					}
				}
			}
			if len(values) == 0 {
				continue
			}
			list := make([]string, 0, len(values))
			for val := range values {
				list = append(list, val)
				summary[p][val]++
			}
			sort.Strings(list)
			n.Properties[p] = list
		}
	}

	v.Meta.AnchorProperties = append([]string(nil), properties...)
	if len(properties) == 0 {
		summary = nil
	}
	v.Meta.PropertySummary = summary
}
