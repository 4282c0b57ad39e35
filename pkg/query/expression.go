// Package query models search expressions as a closed set of node types: keyphrase leaves,
// numeric ranges, boolean connectors and derived-feature wrappers.
package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
)

// Expression is implemented only by the node types of this package.
type Expression interface {
	// Match reports whether the row satisfies the expression.
	Match(row dataset.Row) bool
	String() string
	expression()
}

// Op is a boolean connector.
type Op string

const (
	OpAnd Op = "and"
	OpOr  Op = "or"
	OpNot Op = "not"
)

// Leaf matches rows whose feature contains the keyphrase (case-insensitive). An empty feature
// searches every feature of the row.
type Leaf struct {
	Feature   string
	Keyphrase string
}

// Range matches rows whose numeric feature value lies in [Min, Max].
type Range struct {
	Feature string
	Min     float64
	Max     float64
}

// Connect combines children with a boolean operator. OpNot takes exactly one child.
type Connect struct {
	Op       Op
	Children []Expression
}

// Derive matches exactly like Inner, and additionally labels every matching row with a
// synthetic list feature Name holding the keyphrases of Inner that the row matched.
type Derive struct {
	Name  string
	Inner Expression
}

func (Leaf) expression()    {}
func (Range) expression()   {}
func (Connect) expression() {}
func (Derive) expression()  {}

func (l Leaf) Match(row dataset.Row) bool {
	needle := strings.ToLower(l.Keyphrase)
	if l.Feature != "" {
		return containsFold(row.Labels(l.Feature), needle)
	}
	for f := range row.Values {
		if containsFold(row.Labels(f), needle) {
			return true
		}
	}
	return false
}

func containsFold(labels []string, needle string) bool {
	for _, label := range labels {
		if strings.Contains(strings.ToLower(label), needle) {
			return true
		}
	}
	return false
}

func (r Range) Match(row dataset.Row) bool {
	v, ok := row.Number(r.Feature)
	return ok && v >= r.Min && v <= r.Max
}

func (c Connect) Match(row dataset.Row) bool {
	switch c.Op {
	case OpAnd:
		for _, ch := range c.Children {
			if !ch.Match(row) {
				return false
			}
		}
		return true
	case OpOr:
		for _, ch := range c.Children {
			if ch.Match(row) {
				return true
			}
		}
		return false
	case OpNot:
		for _, ch := range c.Children {
			if ch.Match(row) {
				return false
			}
		}
		return true
	}
	return false
}

func (d Derive) Match(row dataset.Row) bool {
	return d.Inner.Match(row)
}

func (l Leaf) String() string {
	return fmt.Sprintf("%s:%s", l.Feature, strconv.Quote(l.Keyphrase))
}

func (r Range) String() string {
	return fmt.Sprintf("%s:[%s,%s]", r.Feature,
		strconv.FormatFloat(r.Min, 'g', -1, 64), strconv.FormatFloat(r.Max, 'g', -1, 64))
}

func (c Connect) String() string {
	parts := make([]string, 0, len(c.Children)+1)
	parts = append(parts, string(c.Op))
	for _, ch := range c.Children {
		parts = append(parts, ch.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func (d Derive) String() string {
	return fmt.Sprintf("derive(%s, %s)", d.Name, d.Inner.String())
}

// Validate checks the structural rules of an expression tree.
func Validate(e Expression) error {
	switch n := e.(type) {
	case nil:
		return apperrors.Validation("INVALID_QUERY", "empty expression node")
	case Leaf:
		if strings.TrimSpace(n.Keyphrase) == "" {
			return apperrors.Validation("INVALID_QUERY", "leaf on %q has an empty keyphrase", n.Feature)
		}
	case Range:
		if n.Feature == "" {
			return apperrors.Validation("INVALID_QUERY", "range without feature")
		}
		if n.Min > n.Max {
			return apperrors.Validation("INVALID_QUERY", "range on %s has min > max", n.Feature)
		}
	case Connect:
		switch n.Op {
		case OpAnd, OpOr:
			if len(n.Children) == 0 {
				return apperrors.Validation("INVALID_QUERY", "%s without children", n.Op)
			}
		case OpNot:
			if len(n.Children) != 1 {
				return apperrors.Validation("INVALID_QUERY", "not takes exactly one child, got %d", len(n.Children))
			}
		default:
			return apperrors.Validation("INVALID_QUERY", "unknown connector %q", n.Op)
		}
		for _, ch := range n.Children {
			if err := Validate(ch); err != nil {
				return err
			}
		}
	case Derive:
		if n.Name == "" {
			return apperrors.Validation("INVALID_QUERY", "derive without a feature name")
		}
		return Validate(n.Inner)
	default:
		return apperrors.Validation("INVALID_QUERY", "unsupported expression %T", e)
	}
	return nil
}

// Features returns the dataset features an expression refers to, sorted.
// Derived feature names are not included.
func Features(e Expression) []string {
	set := make(map[string]bool)
	walk(e, func(n Expression) {
		switch v := n.(type) {
		case Leaf:
			if v.Feature != "" {
				set[v.Feature] = true
			}
		case Range:
			set[v.Feature] = true
		}
	})
	return sortedKeys(set)
}

// DerivedFeatures returns the synthetic feature names declared by Derive nodes, sorted.
func DerivedFeatures(e Expression) []string {
	set := make(map[string]bool)
	walk(e, func(n Expression) {
		if d, ok := n.(Derive); ok {
			set[d.Name] = true
		}
	})
	return sortedKeys(set)
}

func walk(e Expression, fn func(Expression)) {
	if e == nil {
		return
	}
	fn(e)
	switch n := e.(type) {
	case Connect:
		for _, ch := range n.Children {
			walk(ch, fn)
		}
	case Derive:
		walk(n.Inner, fn)
	}
}

// ApplyDerived writes the derived features of e onto rows. Rows are modified in place; a row
// that matches no keyphrase of a Derive node gets no value for that feature.
func ApplyDerived(e Expression, rows []dataset.Row) {
	var derives []Derive
	walk(e, func(n Expression) {
		if d, ok := n.(Derive); ok {
			derives = append(derives, d)
		}
	})
	if len(derives) == 0 {
		return
	}
	for i := range rows {
		for _, d := range derives {
			phrases := matchedKeyphrases(d.Inner, rows[i])
			if len(phrases) == 0 {
				continue
			}
			if rows[i].Values == nil {
				rows[i].Values = make(map[string]any)
			}
			rows[i].Values[d.Name] = mergeLabels(rows[i].Labels(d.Name), phrases)
		}
	}
}

// matchedKeyphrases collects the keyphrases of positive leaves that match the row. Leaves under
// a not connector never contribute.
func matchedKeyphrases(e Expression, row dataset.Row) []string {
	var out []string
	var visit func(Expression)
	visit = func(n Expression) {
		switch v := n.(type) {
		case Leaf:
			if v.Match(row) {
				out = append(out, strings.ToLower(v.Keyphrase))
			}
		case Connect:
			if v.Op == OpNot {
				return
			}
			for _, ch := range v.Children {
				visit(ch)
			}
		case Derive:
			visit(v.Inner)
		}
	}
	visit(e)
	return out
}

func mergeLabels(existing, add []string) []string {
	seen := make(map[string]bool, len(existing)+len(add))
	out := make([]string, 0, len(existing)+len(add))
	for _, l := range append(append([]string{}, existing...), add...) {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
