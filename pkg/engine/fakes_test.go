package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
	"github.com/rmax-ai/facetgraph/pkg/graph"
	"github.com/rmax-ai/facetgraph/pkg/query"
	"github.com/rmax-ai/facetgraph/pkg/store"
)

var errDown = errors.New("connection refused")

type fakeSearch struct {
	mu      sync.Mutex
	rows    []dataset.Row
	types   map[string]dataset.FeatureType
	queries int
	fail    bool
}

func (f *fakeSearch) Query(_ context.Context, datasetID string, q query.Query) ([]dataset.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.fail {
		return nil, errDown
	}
	if datasetID != "papers" {
		return nil, apperrors.NotFound("DATASET_NOT_FOUND", "dataset %s not found", datasetID)
	}
	var out []dataset.Row
	for _, r := range f.rows {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSearch) FeatureTypes(_ context.Context, datasetID string) (map[string]dataset.FeatureType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errDown
	}
	return f.types, nil
}

func (f *fakeSearch) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

type fakeDocs struct {
	cfg *dataset.Config
}

func (f *fakeDocs) GetDatasetConfig(_ context.Context, datasetID string) (*dataset.Config, error) {
	if datasetID != f.cfg.ID {
		return nil, apperrors.NotFound("DATASET_NOT_FOUND", "dataset %s not found", datasetID)
	}
	cp := *f.cfg
	return &cp, nil
}

func (f *fakeDocs) GetPrecomputedListNodes(context.Context, string, []string, []string) ([]graph.PrecomputedNode, error) {
	return nil, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []*store.HistoryEntry
	fail    bool
}

func (f *fakeHistory) AppendHistory(_ context.Context, studyID string, e *store.HistoryEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errDown
	}
	cp := *e
	cp.ID = uuid.New().String()
	cp.StudyID = studyID
	cp.Seq = int64(len(f.entries) + 1)
	cp.CreatedAt = time.Now()
	f.entries = append(f.entries, &cp)
	return cp.ID, nil
}

func (f *fakeHistory) GetHistory(_ context.Context, studyID string) ([]*store.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.HistoryEntry
	for _, e := range f.entries {
		if e.StudyID == studyID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeHistory) GetHistoryEntry(_ context.Context, studyID, entryID string) (*store.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == entryID && e.StudyID == studyID {
			return e, nil
		}
	}
	return nil, apperrors.NotFound("HISTORY_ENTRY_NOT_FOUND", "history entry %s not found", entryID)
}

func (f *fakeHistory) DeleteSubtree(context.Context, string, string) ([]string, error) {
	return nil, fmt.Errorf("not supported by fake")
}

func (f *fakeHistory) AddComment(context.Context, string, string, string, string) (*store.Comment, error) {
	return nil, fmt.Errorf("not supported by fake")
}

func (f *fakeHistory) last() *store.HistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return nil
	}
	return f.entries[len(f.entries)-1]
}

func (f *fakeHistory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func papersConfig() *dataset.Config {
	return &dataset.Config{
		ID: "papers",
		Schema: dataset.Schema{
			{Src: "title", Dest: "author", Cardinality: dataset.OneToMany},
			{Src: "title", Dest: "venue", Cardinality: dataset.OneToOne},
		},
		DimensionTypes: map[string]dataset.FeatureType{
			"title":  dataset.TypeString,
			"author": dataset.TypeList,
			"venue":  dataset.TypeCategory,
			"year":   dataset.TypeInteger,
		},
		Anchor:                   "title",
		Links:                    []string{"author"},
		DefaultVisibleDimensions: []string{"title", "author", "venue"},
	}
}

func papersRows() []dataset.Row {
	return []dataset.Row{
		{ID: "p1", Values: map[string]any{"title": "P1", "author": []any{"alice", "bob"}, "venue": "VLDB", "year": 2019}},
		{ID: "p2", Values: map[string]any{"title": "P2", "author": []any{"alice"}, "venue": "SIGMOD", "year": 2021}},
		{ID: "p3", Values: map[string]any{"title": "P3", "author": []any{"carol"}, "venue": "VLDB", "year": 2022}},
	}
}

type harness struct {
	engine  *Engine
	search  *fakeSearch
	history *fakeHistory
	cache   *MemoryCacheStore
}

func newHarness() *harness {
	cfg := papersConfig()
	h := &harness{
		search:  &fakeSearch{rows: papersRows(), types: cfg.DimensionTypes},
		history: &fakeHistory{},
		cache:   NewMemoryCacheStore(),
	}
	h.engine = New(Deps{
		Search:  h.search,
		Docs:    &fakeDocs{cfg: cfg},
		Cache:   h.cache,
		History: h.history,
	}, Config{})
	return h
}

func buildReq(t graph.GraphType) BuildRequest {
	return BuildRequest{
		SessionID: "sess",
		StudyID:   "study",
		DatasetID: "papers",
		Request: Request{
			SearchID:  "search-1",
			GraphType: t,
		},
	}
}
