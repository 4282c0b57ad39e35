package engine

import (
	"context"
	"testing"

	"github.com/rmax-ai/facetgraph/pkg/graph"
)

func TestSnapshot_Views(t *testing.T) {
	var nilSnap *Snapshot
	if nilSnap.View(graph.Detail) != nil {
		t.Fatalf("nil snapshot must have no views")
	}

	s := &Snapshot{}
	d := &graph.View{Type: graph.Detail}
	o := &graph.View{Type: graph.Overview}
	s.SetView(graph.Detail, d)
	s.SetView(graph.Overview, o)
	if s.View(graph.Detail) != d || s.View(graph.Overview) != o {
		t.Errorf("views were not stored by type")
	}

	n := s.next()
	n.SetView(graph.Detail, nil)
	if s.Detail != d {
		t.Errorf("next() must not share the view fields")
	}
}

func TestCopyView(t *testing.T) {
	v := &graph.View{
		Type:  graph.Overview,
		Nodes: []graph.Node{{ID: 0, Feature: "title", Label: "P1", Properties: map[string][]string{"venue": {"VLDB"}}}},
		Meta:  graph.Meta{Anchor: "title"},
	}
	cp := copyView(v)
	graph.ApplyAnchorProperties(cp, nil, nil)
	if v.Nodes[0].Properties == nil {
		t.Errorf("overlay change leaked into the original view")
	}
}

func TestMemoryCacheStore(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCacheStore()

	snap, err := c.Get(ctx, "s1")
	if err != nil || snap != nil {
		t.Fatalf("expected nil, nil for a missing session, got %v, %v", snap, err)
	}
	want := &Snapshot{Head: "h1"}
	if err := c.Put(ctx, "s1", want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if got, _ := c.Get(ctx, "s1"); got != want {
		t.Errorf("expected stored snapshot, got %+v", got)
	}
	if ids := c.Sessions(); len(ids) != 1 || ids[0] != "s1" {
		t.Errorf("unexpected sessions %v", ids)
	}
	if err := c.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got, _ := c.Get(ctx, "s1"); got != nil {
		t.Errorf("expected session gone, got %+v", got)
	}
}
