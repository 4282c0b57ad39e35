package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
	"github.com/rmax-ai/facetgraph/pkg/graph"
	"github.com/rmax-ai/facetgraph/pkg/query"
)

// maxParams keeps IN lists well under sqlite's bound-variable limit.
const maxParams = 500

// IngestRows adds or replaces rows of a dataset and expands their list-typed features into
// list_nodes. Row order is kept as the dataset's result order.
func (s *Store) IngestRows(ctx context.Context, datasetID string, rows []dataset.Row) error {
	cfg, err := s.GetDatasetConfig(ctx, datasetID)
	if err != nil {
		return err
	}
	var listFeatures []string
	for _, f := range cfg.Features() {
		if cfg.DimensionTypes[f] == dataset.TypeList {
			listFeatures = append(listFeatures, f)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ingest: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM entries WHERE dataset_id = ?`, datasetID).Scan(&seq); err != nil {
		return fmt.Errorf("failed to read entry sequence: %w", err)
	}

	for _, r := range rows {
		if r.ID == "" {
			return fmt.Errorf("row without entry id in dataset %s", datasetID)
		}
		values, err := json.Marshal(r.Values)
		if err != nil {
			return fmt.Errorf("failed to marshal row %s: %w", r.ID, err)
		}
		seq++
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entries (dataset_id, entry_id, seq, row_values) VALUES (?, ?, ?, ?)
			ON CONFLICT(dataset_id, entry_id) DO UPDATE SET row_values = excluded.row_values
		`, datasetID, r.ID, seq, string(values)); err != nil {
			return fmt.Errorf("failed to store row %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM list_nodes WHERE dataset_id = ? AND entry_id = ?`, datasetID, r.ID); err != nil {
			return fmt.Errorf("failed to clear list nodes of %s: %w", r.ID, err)
		}
		for _, f := range listFeatures {
			seen := make(map[string]bool)
			for _, label := range r.Labels(f) {
				if label == "" || seen[label] {
					continue
				}
				seen[label] = true
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO list_nodes (dataset_id, feature, label, entry_id) VALUES (?, ?, ?, ?)`,
					datasetID, f, label, r.ID); err != nil {
					return fmt.Errorf("failed to store list node %s=%s: %w", f, label, err)
				}
			}
		}
	}
	return tx.Commit()
}

// Query returns the rows of a dataset matching q, in ingest order.
func (s *Store) Query(ctx context.Context, datasetID string, q query.Query) ([]dataset.Row, error) {
	if _, err := s.GetDatasetConfig(ctx, datasetID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, row_values FROM entries WHERE dataset_id = ? ORDER BY seq`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset %s: %w", datasetID, err)
	}
	defer rows.Close()

	out := []dataset.Row{}
	for rows.Next() {
		var (
			id  string
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		r := dataset.Row{ID: id}
		if err := json.Unmarshal([]byte(raw), &r.Values); err != nil {
			return nil, fmt.Errorf("failed to decode entry %s: %w", id, err)
		}
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out, rows.Err()
}

// FeatureTypes returns the declared type of every feature of a dataset.
func (s *Store) FeatureTypes(ctx context.Context, datasetID string) (map[string]dataset.FeatureType, error) {
	cfg, err := s.GetDatasetConfig(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	return cfg.DimensionTypes, nil
}

// GetPrecomputedListNodes returns the ingest-time list nodes of features restricted to entryIDs.
// Nodes come back grouped by feature, labels in first-ingested order.
func (s *Store) GetPrecomputedListNodes(ctx context.Context, datasetID string, entryIDs, features []string) ([]graph.PrecomputedNode, error) {
	if len(entryIDs) == 0 || len(features) == 0 {
		return []graph.PrecomputedNode{}, nil
	}

	type key struct{ feature, label string }
	index := make(map[key]int)
	var nodes []graph.PrecomputedNode

	for _, f := range features {
		for start := 0; start < len(entryIDs); start += maxParams {
			end := start + maxParams
			if end > len(entryIDs) {
				end = len(entryIDs)
			}
			chunk := entryIDs[start:end]
			args := make([]any, 0, len(chunk)+2)
			args = append(args, datasetID, f)
			for _, id := range chunk {
				args = append(args, id)
			}

			rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
				SELECT label, entry_id FROM list_nodes
				WHERE dataset_id = ? AND feature = ? AND entry_id IN (%s)
				ORDER BY rowid
			`, placeholders(len(chunk))), args...)
			if err != nil {
				return nil, fmt.Errorf("failed to read list nodes of %s: %w", f, err)
			}
			for rows.Next() {
				var label, entry string
				if err := rows.Scan(&label, &entry); err != nil {
					rows.Close()
					return nil, fmt.Errorf("failed to scan list node: %w", err)
				}
				k := key{f, label}
				i, ok := index[k]
				if !ok {
					i = len(nodes)
					index[k] = i
					nodes = append(nodes, graph.PrecomputedNode{Feature: f, Label: label})
				}
				nodes[i].Entries = append(nodes[i].Entries, entry)
			}
			err = rows.Err()
			rows.Close()
			if err != nil {
				return nil, err
			}
		}
	}
	if nodes == nil {
		nodes = []graph.PrecomputedNode{}
	}
	return nodes, nil
}
