package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
)

func rows() []dataset.Row {
	return []dataset.Row{
		{ID: "r1", Values: map[string]any{"title": "Graph Neural Networks", "year": 2019, "tags": []string{"ml", "graphs"}}},
		{ID: "r2", Values: map[string]any{"title": "Cache Oblivious Trees", "year": 2005, "tags": []string{"algorithms"}}},
		{ID: "r3", Values: map[string]any{"title": "Incremental graph caches", "year": 2021}},
	}
}

func matching(q Query, rs []dataset.Row) []string {
	var ids []string
	for _, r := range rs {
		if q.Match(r) {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

func TestMatch(t *testing.T) {
	rs := rows()
	tests := []struct {
		name string
		expr Expression
		want []string
	}{
		{"leaf", Leaf{Feature: "title", Keyphrase: "graph"}, []string{"r1", "r3"}},
		{"leaf any feature", Leaf{Keyphrase: "algorithms"}, []string{"r2"}},
		{"range", Range{Feature: "year", Min: 2010, Max: 2020}, []string{"r1"}},
		{"and", Connect{Op: OpAnd, Children: []Expression{
			Leaf{Feature: "title", Keyphrase: "graph"},
			Range{Feature: "year", Min: 2020, Max: 2030},
		}}, []string{"r3"}},
		{"or", Connect{Op: OpOr, Children: []Expression{
			Leaf{Feature: "tags", Keyphrase: "ml"},
			Leaf{Feature: "title", Keyphrase: "trees"},
		}}, []string{"r1", "r2"}},
		{"not", Connect{Op: OpNot, Children: []Expression{Leaf{Feature: "title", Keyphrase: "graph"}}}, []string{"r2"}},
		{"derive", Derive{Name: "kw", Inner: Leaf{Feature: "title", Keyphrase: "cache"}}, []string{"r2", "r3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matching(New(tt.expr), rs))
		})
	}

	assert.Len(t, matching(Query{}, rs), 3)
}

func TestValidate(t *testing.T) {
	bad := []Expression{
		Leaf{Feature: "title"},
		Range{Feature: "year", Min: 3, Max: 1},
		Connect{Op: OpNot, Children: []Expression{Leaf{Keyphrase: "a"}, Leaf{Keyphrase: "b"}}},
		Connect{Op: "xor", Children: []Expression{Leaf{Keyphrase: "a"}}},
		Connect{Op: OpAnd},
		Derive{Inner: Leaf{Keyphrase: "a"}},
	}
	for _, e := range bad {
		err := Validate(e)
		require.Error(t, err, e.String())
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	}
	assert.NoError(t, Query{}.Validate())
}

func TestApplyDerived(t *testing.T) {
	rs := rows()
	e := Connect{Op: OpAnd, Children: []Expression{
		Derive{Name: "keywords", Inner: Connect{Op: OpOr, Children: []Expression{
			Leaf{Feature: "title", Keyphrase: "Graph"},
			Leaf{Feature: "title", Keyphrase: "cache"},
			Connect{Op: OpNot, Children: []Expression{Leaf{Feature: "title", Keyphrase: "trees"}}},
		}}},
	}}

	assert.Equal(t, []string{"keywords"}, DerivedFeatures(e))
	assert.Equal(t, []string{"title"}, Features(e))

	ApplyDerived(e, rs)
	assert.Equal(t, []string{"graph"}, rs[0].Labels("keywords"))
	assert.Equal(t, []string{"cache"}, rs[1].Labels("keywords"))
	assert.Equal(t, []string{"graph", "cache"}, rs[2].Labels("keywords"))
}

func TestQueryJSONAndMsgpack(t *testing.T) {
	q := New(Connect{Op: OpAnd, Children: []Expression{
		Leaf{Feature: "title", Keyphrase: "graph"},
		Range{Feature: "year", Min: 0, Max: 2000},
		Derive{Name: "kw", Inner: Connect{Op: OpNot, Children: []Expression{Leaf{Keyphrase: "x"}}}},
	}})

	data, err := json.Marshal(q)
	require.NoError(t, err)
	var back Query
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, q.Equal(back), "json: %s != %s", q, back)

	packed, err := msgpack.Marshal(struct {
		Q Query `msgpack:"q"`
	}{q})
	require.NoError(t, err)
	var holder struct {
		Q Query `msgpack:"q"`
	}
	require.NoError(t, msgpack.Unmarshal(packed, &holder))
	assert.True(t, q.Equal(holder.Q))

	var empty Query
	require.NoError(t, json.Unmarshal([]byte("null"), &empty))
	assert.True(t, empty.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"type":"fuzzy"}`), &empty))
}

func TestEqualIsStructural(t *testing.T) {
	a := New(Leaf{Feature: "title", Keyphrase: "graph"})
	b := New(Leaf{Feature: "title", Keyphrase: "graph"})
	c := New(Leaf{Feature: "title", Keyphrase: "graphs"})
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(Query{}))
}
