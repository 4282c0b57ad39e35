package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
	"github.com/rmax-ai/facetgraph/pkg/engine"
	"github.com/rmax-ai/facetgraph/pkg/graph"
	"github.com/rmax-ai/facetgraph/pkg/query"
	"github.com/rmax-ai/facetgraph/pkg/store"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func sampleSnapshot() *engine.Snapshot {
	q := query.New(query.Connect{Op: query.OpAnd, Children: []query.Expression{
		query.Leaf{Feature: "venue", Keyphrase: "vldb"},
		query.Range{Feature: "year", Min: 2018, Max: 2020},
	}})
	schema := dataset.Schema{{Src: "title", Dest: "author", Cardinality: dataset.OneToMany}}
	return &engine.Snapshot{
		Detail: &graph.View{
			Type: graph.Detail,
			Nodes: []graph.Node{
				{ID: 0, Feature: "title", Label: "P1", Entries: []string{"p1"}, Size: 2, X: 500},
				{ID: 1, Feature: "author", Label: "alice", Entries: []string{"p1"}, Size: 2, X: -500},
			},
			Edges:      []graph.Edge{{ID: 0, Source: 0, Target: 1, Weight: 1}},
			Components: []graph.Component{{ID: 0, Nodes: []int{0, 1}, NodeCount: 2, Entries: []string{"p1"}}},
			Meta:       graph.Meta{Dimensions: []string{"title", "author"}, Schema: schema, Query: q, SizeOffset: 2},
		},
		Global: engine.Global{
			SessionID: "sess",
			SearchID:  "search-1",
			StudyID:   "study",
			DatasetID: "papers",
			Query:     q,
			Schema:    schema,
			Types:     map[string]dataset.FeatureType{"title": dataset.TypeString, "author": dataset.TypeList},
			Rows: []dataset.Row{
				{ID: "p1", Values: map[string]any{"title": "P1", "author": []any{"alice", "bob"}, "year": 2019}},
			},
			Table: graph.ProjectTable(nil, []string{"title", "author"}),
		},
		Head: "entry-1",
	}
}

// RunCacheStoreTests runs the cache contract against any engine.CacheStore.
func RunCacheStoreTests(t *testing.T, cache engine.CacheStore) {
	ctx := context.Background()

	t.Run("missing session", func(t *testing.T) {
		snap, err := cache.Get(ctx, "nobody")
		if err != nil || snap != nil {
			t.Fatalf("expected nil, nil, got %v, %v", snap, err)
		}
	})

	t.Run("put and get", func(t *testing.T) {
		want := sampleSnapshot()
		if err := cache.Put(ctx, "sess", want); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := cache.Get(ctx, "sess")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got == nil || got.Head != "entry-1" || got.Overview != nil {
			t.Fatalf("unexpected snapshot %+v", got)
		}
		if !got.Global.Query.Equal(want.Global.Query) || !got.Detail.Meta.Query.Equal(want.Global.Query) {
			t.Errorf("query lost: %s", got.Global.Query)
		}
		if !got.Global.Schema.Equal(want.Global.Schema) {
			t.Errorf("schema lost: %v", got.Global.Schema)
		}
		if len(got.Detail.Nodes) != 2 || got.Detail.Nodes[1].Label != "alice" || got.Detail.Nodes[1].X != -500 {
			t.Errorf("nodes lost: %+v", got.Detail.Nodes)
		}
		if len(got.Detail.Edges) != 1 || got.Detail.Edges[0].Target != 1 {
			t.Errorf("edges lost: %+v", got.Detail.Edges)
		}
		row := got.Global.Rows[0]
		if labels := row.Labels("author"); len(labels) != 2 || labels[1] != "bob" {
			t.Errorf("list value lost: %v", labels)
		}
		if labels := row.Labels("year"); len(labels) != 1 || labels[0] != "2019" {
			t.Errorf("numeric value lost: %v", labels)
		}
		if got.Global.Types["author"] != dataset.TypeList {
			t.Errorf("types lost: %v", got.Global.Types)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := cache.Put(ctx, "gone", sampleSnapshot()); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := cache.Delete(ctx, "gone"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if snap, _ := cache.Get(ctx, "gone"); snap != nil {
			t.Errorf("expected session gone")
		}
	})
}

func TestMemoryCacheStore(t *testing.T) {
	RunCacheStoreTests(t, engine.NewMemoryCacheStore())
}

func TestRedisCacheStore(t *testing.T) {
	_, client := setupRedis(t)
	RunCacheStoreTests(t, NewCacheStore(client, time.Hour))
}

func TestRedisCacheStore_TTL(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()
	cache := NewCacheStore(client, time.Minute)

	if err := cache.Put(ctx, "sess", sampleSnapshot()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !mr.Exists("facetgraph:session:sess") {
		t.Fatalf("expected snapshot under facetgraph:session:sess, keys %v", mr.Keys())
	}

	mr.FastForward(45 * time.Second)
	if snap, _ := cache.Get(ctx, "sess"); snap == nil {
		t.Fatalf("snapshot expired early")
	}
	// the read above slid the expiry
	mr.FastForward(45 * time.Second)
	if snap, _ := cache.Get(ctx, "sess"); snap == nil {
		t.Fatalf("expected ttl refreshed on read")
	}
	mr.FastForward(2 * time.Minute)
	if snap, _ := cache.Get(ctx, "sess"); snap != nil {
		t.Errorf("expected snapshot expired")
	}
}

func TestRedisLeaseStore(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()
	leases := NewLeaseStore(client)
	name := "session:s1"

	ok, err := leases.Acquire(ctx, name, "node1", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected to acquire, got %v, %v", ok, err)
	}
	ok, err = leases.Acquire(ctx, name, "node1", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected re-acquire by holder, got %v, %v", ok, err)
	}
	ok, err = leases.Acquire(ctx, name, "node2", time.Second)
	if err != nil || ok {
		t.Fatalf("expected takeover of live lease to fail, got %v, %v", ok, err)
	}

	l, err := leases.Get(ctx, name)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if l.HolderID != "node1" || l.Epoch != 1 {
		t.Errorf("unexpected lease %+v", l)
	}

	mr.FastForward(2 * time.Second)
	if err := leases.Renew(ctx, name, "node1", time.Second); !errors.Is(err, store.ErrLeaseLost) {
		t.Errorf("expected ErrLeaseLost after expiry, got %v", err)
	}
	ok, err = leases.Acquire(ctx, name, "node2", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected takeover after expiry, got %v, %v", ok, err)
	}
	if l, _ := leases.Get(ctx, name); l.HolderID != "node2" || l.Epoch != 2 {
		t.Errorf("expected node2 at epoch 2, got %+v", l)
	}

	if err := leases.Release(ctx, name, "node1"); err != nil {
		t.Fatalf("Release by non-holder failed: %v", err)
	}
	if l, _ := leases.Get(ctx, name); l == nil {
		t.Fatalf("release by non-holder dropped the lease")
	}
	if err := leases.Release(ctx, name, "node2"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if l, _ := leases.Get(ctx, name); l != nil {
		t.Errorf("expected no lease after release, got %+v", l)
	}
}
