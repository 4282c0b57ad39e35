package store

import (
	"context"
	"errors"
	"time"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
	"github.com/rmax-ai/facetgraph/pkg/graph"
)

// HistoryEntry is one immutable node of a study's exploration tree. Only Comments change after
// the entry is appended.
type HistoryEntry struct {
	ID          string          `json:"id"`
	StudyID     string          `json:"study_id"`
	ParentID    string          `json:"parent_id,omitempty"`
	Seq         int64           `json:"seq"`
	SessionID   string          `json:"session_id"`
	Action      string          `json:"action"`
	GraphType   graph.GraphType `json:"graph_type"`
	SnapshotRef string          `json:"snapshot_ref,omitempty"`
	Dimensions  []string        `json:"dimensions"`
	Schema      dataset.Schema  `json:"schema"`
	NodeCount   int             `json:"node_count"`
	EdgeCount   int             `json:"edge_count"`
	Comments    []Comment       `json:"comments"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Comment is a note attached to a history entry.
type Comment struct {
	ID        string    `json:"id"`
	HistoryID string    `json:"history_id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrLeaseLost is returned by Renew when the lease expired and was taken by another holder.
var ErrLeaseLost = errors.New("lease lost or stolen")

// Lease is a named, expiring claim. Sessions use one lease per session id.
type Lease struct {
	Name      string    `json:"name"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Version   int64     `json:"version"`
	// Epoch increases whenever the lease changes hands.
	Epoch int64 `json:"epoch"`
}

// LeaseStore acquires and renews leases.
type LeaseStore interface {
	// Acquire tries to take the lease. A holder that already owns it renews it.
	Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error)
	// Renew extends a lease held by holderID, or returns ErrLeaseLost.
	Renew(ctx context.Context, name, holderID string, ttl time.Duration) error
	// Release drops the lease if holderID owns it.
	Release(ctx context.Context, name, holderID string) error
	// Get returns the current lease, or nil when nobody holds it.
	Get(ctx context.Context, name string) (*Lease, error)
}
