package engine

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rmax-ai/facetgraph/pkg/blob"
)

// SnapshotArchive stores one gzipped JSON snapshot per history entry in a blob store.
type SnapshotArchive struct {
	blobs blob.Store
}

// NewSnapshotArchive creates an archive on top of blobs.
func NewSnapshotArchive(blobs blob.Store) *SnapshotArchive {
	return &SnapshotArchive{blobs: blobs}
}

// Save writes snap and returns its key, shaped
// snapshots/<study>/YYYY/MM/DD/<unix>_<uuid>.json.gz.
func (a *SnapshotArchive) Save(ctx context.Context, snap *Snapshot) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(snap); err != nil {
		gz.Close()
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("failed to close gzip writer: %w", err)
	}

	now := time.Now().UTC()
	year, month, day := now.Date()
	key := fmt.Sprintf("snapshots/%s/%04d/%02d/%02d/%d_%s.json.gz",
		snap.Global.StudyID, year, month, day, now.Unix(), uuid.New().String())

	if err := a.blobs.Put(ctx, key, &buf); err != nil {
		return "", fmt.Errorf("failed to upload snapshot: %w", err)
	}
	return key, nil
}

// Load reads the snapshot stored under ref.
func (a *SnapshotArchive) Load(ctx context.Context, ref string) (*Snapshot, error) {
	rc, err := a.blobs.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	gz, err := gzip.NewReader(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %s: %w", ref, err)
	}
	defer gz.Close()

	var snap Snapshot
	if err := json.NewDecoder(gz).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", ref, err)
	}
	return &snap, nil
}

// Delete removes the given snapshots and returns the refs that could not be removed.
func (a *SnapshotArchive) Delete(ctx context.Context, refs []string) map[string]error {
	failed := make(map[string]error)
	for _, ref := range refs {
		if err := a.blobs.Delete(ctx, ref); err != nil {
			failed[ref] = err
		}
	}
	return failed
}
