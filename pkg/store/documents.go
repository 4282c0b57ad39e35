package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
)

// PutDatasetConfig inserts or replaces a dataset configuration.
func (s *Store) PutDatasetConfig(ctx context.Context, cfg *dataset.Config) error {
	if err := cfg.Check(); err != nil {
		return err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal dataset config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO datasets (id, config, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at
	`, cfg.ID, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store dataset %s: %w", cfg.ID, err)
	}
	return nil
}

// GetDatasetConfig loads a dataset configuration.
func (s *Store) GetDatasetConfig(ctx context.Context, datasetID string) (*dataset.Config, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT config FROM datasets WHERE id = ?`, datasetID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("DATASET_NOT_FOUND", "dataset %s not found", datasetID)
		}
		return nil, fmt.Errorf("failed to get dataset %s: %w", datasetID, err)
	}
	var cfg dataset.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode dataset %s: %w", datasetID, err)
	}
	return &cfg, nil
}

// ListDatasets returns the ids of all stored datasets, sorted.
func (s *Store) ListDatasets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM datasets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan dataset id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
