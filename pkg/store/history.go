package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
	"github.com/rmax-ai/facetgraph/pkg/graph"
)

// AppendHistory appends an entry to a study and returns its id. The sequence number is taken
// inside the insert transaction, so concurrent appends never share one. A non-empty ParentID
// must name an entry of the same study.
func (s *Store) AppendHistory(ctx context.Context, studyID string, entry *HistoryEntry) (string, error) {
	dims, err := json.Marshal(entry.Dimensions)
	if err != nil {
		return "", fmt.Errorf("failed to marshal dimensions: %w", err)
	}
	schema, err := json.Marshal(entry.Schema)
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin history append: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	if entry.ParentID != "" {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT study_id FROM history WHERE id = ?`, entry.ParentID).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != studyID) {
			return "", apperrors.NotFound("HISTORY_ENTRY_NOT_FOUND", "parent entry %s not found in study %s", entry.ParentID, studyID)
		}
		if err != nil {
			return "", fmt.Errorf("failed to look up parent entry: %w", err)
		}
		parent = sql.NullString{String: entry.ParentID, Valid: true}
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM history WHERE study_id = ?`, studyID).Scan(&seq); err != nil {
		return "", fmt.Errorf("failed to read history sequence: %w", err)
	}

	id := entry.ID
	if id == "" {
		id = uuid.New().String()
	}
	created := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO history (id, study_id, parent_id, seq, session_id, action, graph_type, snapshot_ref,
			dimensions, schema, node_count, edge_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, studyID, parent, seq, entry.SessionID, entry.Action, string(entry.GraphType), entry.SnapshotRef,
		string(dims), string(schema), entry.NodeCount, entry.EdgeCount, created)
	if err != nil {
		return "", fmt.Errorf("failed to insert history entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit history entry: %w", err)
	}

	entry.ID = id
	entry.StudyID = studyID
	entry.Seq = seq
	entry.CreatedAt = created
	return id, nil
}

const historyColumns = `id, study_id, parent_id, seq, session_id, action, graph_type, snapshot_ref,
	dimensions, schema, node_count, edge_count, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanHistory(sc scanner) (*HistoryEntry, error) {
	var (
		e          HistoryEntry
		parent     sql.NullString
		ref        sql.NullString
		graphType  string
		dims       string
		schemaJSON string
	)
	if err := sc.Scan(&e.ID, &e.StudyID, &parent, &e.Seq, &e.SessionID, &e.Action, &graphType, &ref,
		&dims, &schemaJSON, &e.NodeCount, &e.EdgeCount, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.ParentID = parent.String
	e.SnapshotRef = ref.String
	e.GraphType = graph.GraphType(graphType)
	if err := json.Unmarshal([]byte(dims), &e.Dimensions); err != nil {
		return nil, fmt.Errorf("failed to decode dimensions of %s: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(schemaJSON), &e.Schema); err != nil {
		return nil, fmt.Errorf("failed to decode schema of %s: %w", e.ID, err)
	}
	e.Comments = []Comment{}
	return &e, nil
}

// GetHistory returns every entry of a study in append order, comments included.
func (s *Store) GetHistory(ctx context.Context, studyID string) ([]*HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM history WHERE study_id = ? ORDER BY seq`, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	entries := []*HistoryEntry{}
	byID := make(map[string]*HistoryEntry)
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
		byID[e.ID] = e
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	comments, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.history_id, c.author, c.body, c.created_at
		FROM comments c JOIN history h ON h.id = c.history_id
		WHERE h.study_id = ?
		ORDER BY c.created_at, c.rowid
	`, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer comments.Close()
	for comments.Next() {
		var c Comment
		if err := comments.Scan(&c.ID, &c.HistoryID, &c.Author, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		if e, ok := byID[c.HistoryID]; ok {
			e.Comments = append(e.Comments, c)
		}
	}
	return entries, comments.Err()
}

// GetHistoryEntry returns one entry of a study, comments included.
func (s *Store) GetHistoryEntry(ctx context.Context, studyID, entryID string) (*HistoryEntry, error) {
	e, err := scanHistory(s.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM history WHERE id = ? AND study_id = ?`, entryID, studyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("HISTORY_ENTRY_NOT_FOUND", "history entry %s not found in study %s", entryID, studyID)
		}
		return nil, fmt.Errorf("failed to get history entry: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, history_id, author, body, created_at FROM comments
		WHERE history_id = ? ORDER BY created_at, rowid
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.HistoryID, &c.Author, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		e.Comments = append(e.Comments, c)
	}
	return e, rows.Err()
}

// DeleteSubtree removes an entry and all of its descendants, comments included, and returns
// the snapshot refs the removed entries pointed at.
func (s *Store) DeleteSubtree(ctx context.Context, studyID, entryID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin subtree delete: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM history WHERE id = ? AND study_id = ?
			UNION ALL
			SELECT h.id FROM history h JOIN subtree ON h.parent_id = subtree.id
		)
		SELECT h.id, COALESCE(h.snapshot_ref, '') FROM history h JOIN subtree ON h.id = subtree.id
	`, entryID, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to walk history subtree: %w", err)
	}
	var ids, refs []string
	for rows.Next() {
		var id, ref string
		if err := rows.Scan(&id, &ref); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan subtree entry: %w", err)
		}
		ids = append(ids, id)
		if ref != "" {
			refs = append(refs, ref)
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperrors.NotFound("HISTORY_ENTRY_NOT_FOUND", "history entry %s not found in study %s", entryID, studyID)
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	in := placeholders(len(ids))
	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE history_id IN (`+in+`)`, args...); err != nil {
		return nil, fmt.Errorf("failed to delete comments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM history WHERE id IN (`+in+`)`, args...); err != nil {
		return nil, fmt.Errorf("failed to delete history entries: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit subtree delete: %w", err)
	}
	return refs, nil
}

// AddComment appends a comment to a history entry.
func (s *Store) AddComment(ctx context.Context, studyID, entryID, author, body string) (*Comment, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.Validation("EMPTY_COMMENT", "comment body is empty")
	}
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM history WHERE id = ? AND study_id = ?`, entryID, studyID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up history entry: %w", err)
	}
	if exists == 0 {
		return nil, apperrors.NotFound("HISTORY_ENTRY_NOT_FOUND", "history entry %s not found in study %s", entryID, studyID)
	}

	c := &Comment{
		ID:        uuid.New().String(),
		HistoryID: entryID,
		Author:    author,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO comments (id, history_id, author, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.HistoryID, c.Author, c.Body, c.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert comment: %w", err)
	}
	return c, nil
}
