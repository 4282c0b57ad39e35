package graph

import (
	"math"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
)

// NodeSize maps a label frequency to a display size: ceil(log2(frequency) + offset).
func NodeSize(frequency, offset int) int {
	if frequency < 1 {
		frequency = 1
	}
	return int(math.Ceil(math.Log2(float64(frequency)) + float64(offset)))
}

// NodeOptions tunes node synthesis.
type NodeOptions struct {
	Offset int
	// Anchor gets a NoValueLabel node for rows without a value when it is list-typed.
	Anchor string
	// Precomputed replaces on-the-fly expansion for the list features it covers.
	Precomputed []PrecomputedNode
}

// NodeIndex looks nodes up by (feature, label).
type NodeIndex struct {
	byLabel  map[string]map[string]int
	sentinel map[string]int
	labels   []string
}

func newNodeIndex() *NodeIndex {
	return &NodeIndex{
		byLabel:  make(map[string]map[string]int),
		sentinel: make(map[string]int),
	}
}

func (ix *NodeIndex) put(feature, label string, id int) {
	m, ok := ix.byLabel[feature]
	if !ok {
		m = make(map[string]int)
		ix.byLabel[feature] = m
	}
	m[label] = id
	ix.setLabel(id, label)
}

// putSentinel registers the no-value bundle of feature. It is kept apart from the label table
// so a row value spelled like NoValueLabel still gets its own node.
func (ix *NodeIndex) putSentinel(feature string, id int) {
	ix.sentinel[feature] = id
	ix.setLabel(id, NoValueLabel)
}

func (ix *NodeIndex) setLabel(id int, label string) {
	for len(ix.labels) <= id {
		ix.labels = append(ix.labels, "")
	}
	ix.labels[id] = label
}

// Lookup returns the node id for a (feature, label) pair. The sentinelKey label resolves to the
// feature's no-value bundle.
func (ix *NodeIndex) Lookup(feature, label string) (int, bool) {
	if label == sentinelKey {
		id, ok := ix.sentinel[feature]
		return id, ok
	}
	id, ok := ix.byLabel[feature][label]
	return id, ok
}

// Label returns the label of node id, or "" when unknown.
func (ix *NodeIndex) Label(id int) string {
	if id < 0 || id >= len(ix.labels) {
		return ""
	}
	return ix.labels[id]
}

// sentinelKey stands for a missing value during edge expansion. Row labels are printable, so
// it never equals one.
const sentinelKey = "\x00no-value"

// rowLabels returns a row's labels for feature, position by position. A row without any
// value falls back to sentinelKey when the feature has a no-value bundle.
func (ix *NodeIndex) rowLabels(row dataset.Row, feature string) []string {
	labels := row.Labels(feature)
	for _, l := range labels {
		if l != "" {
			return labels
		}
	}
	if _, ok := ix.sentinel[feature]; ok {
		return []string{sentinelKey}
	}
	return labels
}

// SynthesizeNodes groups rows into one node per (feature, label). List features give a row one
// node per element. Node ids follow feature order, then first appearance in rows.
func SynthesizeNodes(rows []dataset.Row, features []string, types map[string]dataset.FeatureType, opts NodeOptions) ([]Node, *NodeIndex) {
	inRows := make(map[string]bool, len(rows))
	for _, r := range rows {
		inRows[r.ID] = true
	}
	precomputed := make(map[string][]PrecomputedNode)
	for _, p := range opts.Precomputed {
		precomputed[p.Feature] = append(precomputed[p.Feature], p)
	}

	var nodes []Node
	ix := newNodeIndex()
	add := func(feature, label string, entries *entrySet) (int, bool) {
		if label == "" || len(entries.order) == 0 {
			return 0, false
		}
		id := len(nodes)
		nodes = append(nodes, Node{
			ID:      id,
			Feature: feature,
			Label:   label,
			Entries: entries.sorted(),
			Size:    NodeSize(len(entries.order), opts.Offset),
		})
		return id, true
	}

	for _, feature := range features {
		var order []string
		groups := make(map[string]*entrySet)
		covered := make(map[string]bool)
		group := func(label, entry string) {
			if label != "" {
				covered[entry] = true
			}
			s, ok := groups[label]
			if !ok {
				s = newEntrySet()
				groups[label] = s
				order = append(order, label)
			}
			s.add(entry)
		}

		isList := types[feature] == dataset.TypeList
		if pre, ok := precomputed[feature]; ok && isList {
			for _, p := range pre {
				for _, e := range p.Entries {
					if inRows[e] {
						group(p.Label, e)
					}
				}
			}
		} else {
			for _, r := range rows {
				for _, l := range r.Labels(feature) {
					group(l, r.ID)
				}
			}
		}

		for _, label := range order {
			if id, ok := add(feature, label, groups[label]); ok {
				ix.put(feature, label, id)
			}
		}

		if isList && feature == opts.Anchor {
			missing := newEntrySet()
			for _, r := range rows {
				if !covered[r.ID] {
					missing.add(r.ID)
				}
			}
			if id, ok := add(feature, NoValueLabel, missing); ok {
				nodes[id].NoValue = true
				ix.putSentinel(feature, id)
			}
		}
	}
	return nodes, ix
}
