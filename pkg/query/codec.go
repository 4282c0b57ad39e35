package query

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
)

// Query is the serializable handle around an expression tree. The zero value matches every row.
type Query struct {
	Expr Expression
}

// New wraps an expression.
func New(e Expression) Query { return Query{Expr: e} }

// IsZero reports whether the query has no expression.
func (q Query) IsZero() bool { return q.Expr == nil }

// Match reports whether the row satisfies the query.
func (q Query) Match(row dataset.Row) bool {
	if q.Expr == nil {
		return true
	}
	return q.Expr.Match(row)
}

// String returns the canonical text form, used for equality and cache decisions.
func (q Query) String() string {
	if q.Expr == nil {
		return "*"
	}
	return q.Expr.String()
}

// Equal compares two queries by canonical form.
func (q Query) Equal(other Query) bool {
	return q.String() == other.String()
}

// Validate checks the expression tree. The zero query is valid.
func (q Query) Validate() error {
	if q.Expr == nil {
		return nil
	}
	return Validate(q.Expr)
}

// wireNode is the JSON shape of one expression node, discriminated by Type.
type wireNode struct {
	Type      string      `json:"type"`
	Feature   string      `json:"feature,omitempty"`
	Keyphrase string      `json:"keyphrase,omitempty"`
	Min       *float64    `json:"min,omitempty"`
	Max       *float64    `json:"max,omitempty"`
	Name      string      `json:"name,omitempty"`
	Children  []*wireNode `json:"children,omitempty"`
	Inner     *wireNode   `json:"inner,omitempty"`
}

func toWire(e Expression) *wireNode {
	switch n := e.(type) {
	case Leaf:
		return &wireNode{Type: "leaf", Feature: n.Feature, Keyphrase: n.Keyphrase}
	case Range:
		lo, hi := n.Min, n.Max
		return &wireNode{Type: "range", Feature: n.Feature, Min: &lo, Max: &hi}
	case Connect:
		w := &wireNode{Type: string(n.Op)}
		for _, ch := range n.Children {
			w.Children = append(w.Children, toWire(ch))
		}
		return w
	case Derive:
		return &wireNode{Type: "derive", Name: n.Name, Inner: toWire(n.Inner)}
	}
	return nil
}

func fromWire(w *wireNode) (Expression, error) {
	if w == nil {
		return nil, fmt.Errorf("missing expression node")
	}
	switch w.Type {
	case "leaf":
		return Leaf{Feature: w.Feature, Keyphrase: w.Keyphrase}, nil
	case "range":
		if w.Min == nil || w.Max == nil {
			return nil, fmt.Errorf("range on %q needs min and max", w.Feature)
		}
		return Range{Feature: w.Feature, Min: *w.Min, Max: *w.Max}, nil
	case string(OpAnd), string(OpOr), string(OpNot):
		c := Connect{Op: Op(w.Type)}
		for _, ch := range w.Children {
			e, err := fromWire(ch)
			if err != nil {
				return nil, err
			}
			c.Children = append(c.Children, e)
		}
		return c, nil
	case "derive":
		inner, err := fromWire(w.Inner)
		if err != nil {
			return nil, fmt.Errorf("derive %q: %w", w.Name, err)
		}
		return Derive{Name: w.Name, Inner: inner}, nil
	}
	return nil, fmt.Errorf("unknown expression type %q", w.Type)
}

func (q Query) MarshalJSON() ([]byte, error) {
	if q.Expr == nil {
		return []byte("null"), nil
	}
	return json.Marshal(toWire(q.Expr))
}

func (q *Query) UnmarshalJSON(data []byte) error {
	var w *wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w == nil {
		q.Expr = nil
		return nil
	}
	e, err := fromWire(w)
	if err != nil {
		return err
	}
	q.Expr = e
	return nil
}

var (
	_ msgpack.CustomEncoder = Query{}
	_ msgpack.CustomDecoder = (*Query)(nil)
)

// EncodeMsgpack stores the JSON form as a binary field so cached snapshots keep the tree shape.
func (q Query) EncodeMsgpack(enc *msgpack.Encoder) error {
	b, err := q.MarshalJSON()
	if err != nil {
		return err
	}
	return enc.EncodeBytes(b)
}

func (q *Query) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := dec.DecodeBytes()
	if err != nil {
		return err
	}
	if len(b) == 0 {
		q.Expr = nil
		return nil
	}
	return q.UnmarshalJSON(b)
}
