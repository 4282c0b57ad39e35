package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Acquire takes the lease when it is free, expired, or already held by holderID. Taking over
// from another holder bumps the epoch.
func (s *Store) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expiry := now.Add(ttl)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leases (name, holder_id, expires_at, version, epoch)
		VALUES (?, ?, ?, 1, 1)
		ON CONFLICT(name) DO UPDATE SET
			epoch = CASE WHEN leases.holder_id = excluded.holder_id THEN leases.epoch ELSE leases.epoch + 1 END,
			holder_id = excluded.holder_id,
			expires_at = excluded.expires_at,
			version = leases.version + 1
		WHERE leases.holder_id = excluded.holder_id OR leases.expires_at < ?
	`, name, holderID, expiry, now)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows > 0, nil
}

// Renew extends a lease still held by holderID.
func (s *Store) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	expiry := time.Now().UTC().Add(ttl)

	res, err := s.db.ExecContext(ctx, `
		UPDATE leases SET expires_at = ?, version = version + 1
		WHERE name = ? AND holder_id = ?
	`, expiry, name, holderID)
	if err != nil {
		return fmt.Errorf("failed to renew lease %s: %w", name, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release deletes the lease if holderID owns it. Releasing a lease held by someone else is a
// no-op.
func (s *Store) Release(ctx context.Context, name, holderID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM leases WHERE name = ? AND holder_id = ?`, name, holderID); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}

// Get returns the current lease state, or nil when the lease is not held.
func (s *Store) Get(ctx context.Context, name string) (*Lease, error) {
	var l Lease
	err := s.db.QueryRowContext(ctx, `
		SELECT name, holder_id, expires_at, version, epoch FROM leases WHERE name = ?
	`, name).Scan(&l.Name, &l.HolderID, &l.ExpiresAt, &l.Version, &l.Epoch)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lease %s: %w", name, err)
	}
	return &l, nil
}
