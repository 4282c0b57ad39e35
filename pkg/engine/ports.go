package engine

import (
	"context"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
	"github.com/rmax-ai/facetgraph/pkg/graph"
	"github.com/rmax-ai/facetgraph/pkg/query"
	"github.com/rmax-ai/facetgraph/pkg/store"
)

// SearchIndex runs queries against a dataset.
type SearchIndex interface {
	Query(ctx context.Context, datasetID string, q query.Query) ([]dataset.Row, error)
	FeatureTypes(ctx context.Context, datasetID string) (map[string]dataset.FeatureType, error)
}

// DocumentStore serves dataset configurations and list nodes expanded at ingest time.
type DocumentStore interface {
	GetDatasetConfig(ctx context.Context, datasetID string) (*dataset.Config, error)
	GetPrecomputedListNodes(ctx context.Context, datasetID string, entryIDs, features []string) ([]graph.PrecomputedNode, error)
}

// CacheStore keeps the latest snapshot of every session.
type CacheStore interface {
	// Get returns nil, nil when the session has no snapshot.
	Get(ctx context.Context, sessionID string) (*Snapshot, error)
	Put(ctx context.Context, sessionID string, snap *Snapshot) error
	Delete(ctx context.Context, sessionID string) error
}

// HistoryStore persists the exploration tree of every study.
type HistoryStore interface {
	AppendHistory(ctx context.Context, studyID string, entry *store.HistoryEntry) (string, error)
	GetHistory(ctx context.Context, studyID string) ([]*store.HistoryEntry, error)
	GetHistoryEntry(ctx context.Context, studyID, entryID string) (*store.HistoryEntry, error)
	// DeleteSubtree returns the snapshot refs of the removed entries.
	DeleteSubtree(ctx context.Context, studyID, entryID string) ([]string, error)
	AddComment(ctx context.Context, studyID, entryID, author, body string) (*store.Comment, error)
}

var (
	_ SearchIndex   = (*store.Store)(nil)
	_ DocumentStore = (*store.Store)(nil)
	_ HistoryStore  = (*store.Store)(nil)
)
