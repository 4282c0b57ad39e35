package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
	"github.com/rmax-ai/facetgraph/pkg/graph"
	"github.com/rmax-ai/facetgraph/pkg/store"
)

// TrimRequest restricts a session to a subset of its entries.
type TrimRequest struct {
	SessionID string          `json:"session_id" validate:"required"`
	GraphType graph.GraphType `json:"graph_type" validate:"required,oneof=overview detail"`
	EntryIDs  []string        `json:"entry_ids"`
	ParentID  string          `json:"parent_id,omitempty"`
}

// TrimGraph trims every populated view of the session to the retained entries, filters the
// cached rows and table, and returns the view of the requested type. A retained set sharing
// nothing with the session yields empty views.
func (e *Engine) TrimGraph(ctx context.Context, req TrimRequest) (*graph.View, error) {
	start := time.Now()
	if _, err := graph.ParseGraphType(string(req.GraphType)); err != nil {
		return nil, err
	}

	unlock, err := e.locks.Lock(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	prev, err := e.cache.Get(ctx, req.SessionID)
	if err != nil {
		return nil, apperrors.Unavailable("cache", err)
	}
	if prev == nil {
		return nil, apperrors.NotFound("SESSION_NOT_FOUND", "session %s not found", req.SessionID)
	}
	if prev.View(req.GraphType) == nil {
		return nil, apperrors.NotFound("GRAPH_NOT_FOUND", "session %s has no %s graph", req.SessionID, req.GraphType)
	}

	retained := make(map[string]bool, len(req.EntryIDs))
	for _, id := range req.EntryIDs {
		retained[id] = true
	}

	next := prev.next()
	g, _ := errgroup.WithContext(ctx)
	for _, t := range []graph.GraphType{graph.Overview, graph.Detail} {
		v := prev.View(t)
		if v == nil {
			continue
		}
		g.Go(func() error {
			trimmed := graph.Trim(v, retained, prev.Global.Rows)
			TrimTotal.WithLabelValues(string(t)).Inc()
			// each goroutine owns one field
			if t == graph.Overview {
				next.Overview = trimmed
			} else {
				next.Detail = trimmed
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	next.Global.Rows = graph.FilterRows(prev.Global.Rows, retained)
	next.Global.Table = prev.Global.Table.Filter(retained)

	view := next.View(req.GraphType)
	parent := req.ParentID
	if parent == "" {
		if parent, err = e.headParent(ctx, prev.Global.StudyID, prev.Head); err != nil {
			return nil, err
		}
	}
	id, err := e.record(ctx, next, &store.HistoryEntry{
		ParentID:   parent,
		SessionID:  req.SessionID,
		Action:     ProvenanceTrim,
		GraphType:  req.GraphType,
		Dimensions: view.Meta.Dimensions,
		Schema:     view.Meta.Schema,
		NodeCount:  len(view.Nodes),
		EdgeCount:  len(view.Edges),
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("graph trimmed",
		zap.String("session_id", req.SessionID),
		zap.String("graph_type", string(req.GraphType)),
		zap.Int("retained", len(retained)),
		zap.Int("nodes", len(view.Nodes)),
		zap.Int("edges", len(view.Edges)),
		zap.String("history_entry_id", id),
		zap.Duration("duration", time.Since(start)))
	return view, nil
}
