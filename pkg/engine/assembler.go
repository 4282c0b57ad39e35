package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rmax-ai/facetgraph/pkg/dataset"
	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
	"github.com/rmax-ai/facetgraph/pkg/graph"
	"github.com/rmax-ai/facetgraph/pkg/query"
	"github.com/rmax-ai/facetgraph/pkg/store"
)

// Config tunes the engine.
type Config struct {
	LayoutScale float64
	Breaker     BreakerConfig
	// HolderID identifies this process in session leases.
	HolderID string
	LeaseTTL time.Duration
}

// Deps are the collaborators of the engine. Archive and Leases are optional.
type Deps struct {
	Search  SearchIndex
	Docs    DocumentStore
	Cache   CacheStore
	History HistoryStore
	Archive *SnapshotArchive
	Leases  store.LeaseStore
	Logger  *zap.Logger
}

// Engine serves graph requests for sessions, caching one snapshot per session and recording
// every action in the study history.
type Engine struct {
	search  SearchIndex
	docs    DocumentStore
	cache   CacheStore
	history HistoryStore
	archive *SnapshotArchive
	locks   *SessionLocks
	logger  *zap.Logger

	searchCB *gobreaker.CircuitBreaker
	docsCB   *gobreaker.CircuitBreaker
	reads    singleflight.Group
	scale    float64
}

// New wires an engine.
func New(deps Deps, cfg Config) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LayoutScale <= 0 {
		cfg.LayoutScale = graph.DefaultScale
	}
	if cfg.Breaker == (BreakerConfig{}) {
		cfg.Breaker = DefaultBreakerConfig()
	}
	return &Engine{
		search:   deps.Search,
		docs:     deps.Docs,
		cache:    deps.Cache,
		history:  deps.History,
		archive:  deps.Archive,
		locks:    NewSessionLocks(deps.Leases, cfg.HolderID, cfg.LeaseTTL, logger),
		logger:   logger,
		searchCB: newBreaker("search_index", cfg.Breaker, logger),
		docsCB:   newBreaker("document_store", cfg.Breaker, logger),
		scale:    cfg.LayoutScale,
	}
}

// BuildRequest asks for one graph of a session.
type BuildRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	StudyID   string `json:"study_id" validate:"required"`
	DatasetID string `json:"dataset_id" validate:"required"`
	// ParentID is the history entry the action was issued against. Empty means the entry that
	// produced the session's current snapshot.
	ParentID string `json:"parent_id,omitempty"`
	Request
}

// BuildResult is the outcome of BuildGraph.
type BuildResult struct {
	Graph          *graph.View `json:"graph"`
	HistoryEntryID string      `json:"history_entry_id"`
	Decision       Decision    `json:"decision"`
}

// BuildGraph serves req from the session cache where possible and rebuilds what changed
// otherwise. The new snapshot and its history entry are only written once the graph is built.
func (e *Engine) BuildGraph(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	start := time.Now()
	if _, err := graph.ParseGraphType(string(req.GraphType)); err != nil {
		return nil, err
	}
	if err := req.Query.Validate(); err != nil {
		return nil, err
	}

	unlock, err := e.locks.Lock(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cfg, err := guarded(e.docsCB, func() (*dataset.Config, error) {
		return e.docs.GetDatasetConfig(ctx, req.DatasetID)
	})
	if err != nil {
		return nil, err
	}
	resolved, err := resolveRequest(req.Request, cfg)
	if err != nil {
		return nil, err
	}
	req.Request = resolved

	prev, err := e.cache.Get(ctx, req.SessionID)
	if err != nil {
		return nil, apperrors.Unavailable("cache", err)
	}
	if prev != nil && prev.Global.DatasetID != req.DatasetID {
		prev = nil
	}

	decision := Decide(prev, req.Request)
	next, err := e.assemble(ctx, prev, req, cfg, decision)
	if err != nil {
		e.logger.Warn("graph build failed",
			zap.String("session_id", req.SessionID),
			zap.String("strategy", decision.Strategy.String()),
			zap.Error(err))
		return nil, err
	}
	view := next.View(req.GraphType)

	parent := req.ParentID
	if parent == "" && prev != nil && prev.Global.StudyID == req.StudyID {
		if parent, err = e.headParent(ctx, req.StudyID, prev.Head); err != nil {
			return nil, err
		}
	}
	id, err := e.record(ctx, next, &store.HistoryEntry{
		ParentID:   parent,
		SessionID:  req.SessionID,
		Action:     decision.Provenance,
		GraphType:  req.GraphType,
		Dimensions: req.Dimensions,
		Schema:     req.Schema,
		NodeCount:  len(view.Nodes),
		EdgeCount:  len(view.Edges),
	})
	if err != nil {
		return nil, err
	}

	DecisionsTotal.WithLabelValues(decision.Strategy.String()).Inc()
	BuildDuration.WithLabelValues(string(req.GraphType)).Observe(time.Since(start).Seconds())
	e.logger.Info("graph served",
		zap.String("session_id", req.SessionID),
		zap.String("study_id", req.StudyID),
		zap.String("graph_type", string(req.GraphType)),
		zap.String("strategy", decision.Strategy.String()),
		zap.String("provenance", decision.Provenance),
		zap.Int("nodes", len(view.Nodes)),
		zap.Int("edges", len(view.Edges)),
		zap.String("history_entry_id", id),
		zap.Duration("duration", time.Since(start)))

	return &BuildResult{Graph: view, HistoryEntryID: id, Decision: decision}, nil
}

// resolveRequest fills schema and visible dimensions from the dataset defaults and normalizes
// the schema. An unknown cardinality fails here, before any row is read.
func resolveRequest(req Request, cfg *dataset.Config) (Request, error) {
	if req.Schema == nil {
		req.Schema = cfg.Schema
	}
	schema, err := req.Schema.Validate()
	if err != nil {
		return req, err
	}
	req.Schema = schema
	if len(req.Dimensions) == 0 {
		req.Dimensions = cfg.DefaultVisibleDimensions
	}
	if len(req.Dimensions) == 0 {
		req.Dimensions = cfg.Features()
	}
	return req, nil
}

func (e *Engine) assemble(ctx context.Context, prev *Snapshot, req BuildRequest, cfg *dataset.Config, d Decision) (*Snapshot, error) {
	switch d.Strategy {
	case FromScratch:
		return e.fromScratch(ctx, prev, req, cfg)

	case FromExistingData:
		next := prev.next()
		next.Global.Schema = req.Schema
		v, err := e.buildView(ctx, next.Global, req, cfg)
		if err != nil {
			return nil, err
		}
		next.SetView(req.GraphType, v)
		next.Global.Table = graph.ProjectTable(next.Global.Rows, req.Dimensions)
		return next, nil

	case FromAnchorProperties:
		next := prev.next()
		v := copyView(prev.View(req.GraphType))
		graph.ApplyAnchorProperties(v, next.Global.Rows, req.AnchorProperties)
		next.SetView(req.GraphType, v)
		return next, nil

	case FromCache:
		return prev.next(), nil
	}
	return nil, apperrors.Internal("unhandled strategy %s", d.Strategy)
}

func (e *Engine) fromScratch(ctx context.Context, prev *Snapshot, req BuildRequest, cfg *dataset.Config) (*Snapshot, error) {
	rows, err := guarded(e.searchCB, func() ([]dataset.Row, error) {
		return e.search.Query(ctx, req.DatasetID, req.Query)
	})
	if err != nil {
		return nil, err
	}
	declared, err := guarded(e.searchCB, func() (map[string]dataset.FeatureType, error) {
		return e.search.FeatureTypes(ctx, req.DatasetID)
	})
	if err != nil {
		return nil, err
	}

	types := make(map[string]dataset.FeatureType, len(declared))
	for f, t := range declared {
		types[f] = t
	}
	if derived := query.DerivedFeatures(req.Query.Expr); len(derived) > 0 {
		for _, f := range derived {
			types[f] = dataset.TypeList
		}
		rows = cloneRows(rows)
		query.ApplyDerived(req.Query.Expr, rows)
	}

	next := &Snapshot{
		Global: Global{
			SessionID: req.SessionID,
			SearchID:  req.SearchID,
			StudyID:   req.StudyID,
			DatasetID: req.DatasetID,
			Query:     req.Query,
			Schema:    req.Schema,
			Types:     types,
			Rows:      rows,
		},
	}
	// same search, new query: the sibling view is kept and rebuilt when next requested
	if prev != nil && prev.Global.SearchID == req.SearchID {
		next.Overview, next.Detail = prev.Overview, prev.Detail
	}

	v, err := e.buildView(ctx, next.Global, req, cfg)
	if err != nil {
		return nil, err
	}
	next.SetView(req.GraphType, v)
	next.Global.Table = graph.ProjectTable(rows, req.Dimensions)
	return next, nil
}

func (e *Engine) buildView(ctx context.Context, g Global, req BuildRequest, cfg *dataset.Config) (*graph.View, error) {
	opts := graph.BuildOptions{
		Type:       req.GraphType,
		Schema:     req.Schema,
		Types:      g.Types,
		Dimensions: req.Dimensions,
		Anchor:     cfg.Anchor,
		Links:      cfg.Links,
		Query:      g.Query,
		Scale:      e.scale,
	}
	if req.GraphType == graph.Overview {
		opts.AnchorProperties = req.AnchorProperties
	}

	derived := make(map[string]bool)
	for _, f := range query.DerivedFeatures(g.Query.Expr) {
		derived[f] = true
	}
	var lists []string
	for _, f := range opts.Features() {
		if g.Types[f] == dataset.TypeList && !derived[f] {
			lists = append(lists, f)
		}
	}
	if len(lists) > 0 && len(g.Rows) > 0 {
		ids := make([]string, len(g.Rows))
		for i, r := range g.Rows {
			ids[i] = r.ID
		}
		pre, err := guarded(e.docsCB, func() ([]graph.PrecomputedNode, error) {
			return e.docs.GetPrecomputedListNodes(ctx, g.DatasetID, ids, lists)
		})
		if err != nil {
			return nil, err
		}
		opts.Precomputed = pre
	}

	return graph.Build(g.Rows, opts)
}

// record archives next, appends its history entry and caches it. Nothing is cached when either
// write fails.
func (e *Engine) record(ctx context.Context, next *Snapshot, entry *store.HistoryEntry) (string, error) {
	if e.archive != nil {
		ref, err := e.archive.Save(ctx, next)
		if err != nil {
			return "", apperrors.Unavailable("blob_store", err)
		}
		entry.SnapshotRef = ref
	}
	id, err := e.history.AppendHistory(ctx, next.Global.StudyID, entry)
	if err != nil {
		if e.archive != nil {
			e.archive.Delete(ctx, []string{entry.SnapshotRef})
		}
		var de *apperrors.DomainError
		if errors.As(err, &de) {
			return "", err
		}
		return "", apperrors.Unavailable("history_store", err)
	}
	next.Head = id
	if err := e.cache.Put(ctx, next.Global.SessionID, next); err != nil {
		// the entry is a fresh leaf, so its subtree is the entry alone
		refs, derr := e.history.DeleteSubtree(ctx, next.Global.StudyID, id)
		if derr != nil {
			e.logger.Error("failed to drop history entry of uncached snapshot",
				zap.String("study_id", next.Global.StudyID),
				zap.String("entry_id", id),
				zap.Error(derr))
		} else if e.archive != nil {
			e.archive.Delete(ctx, refs)
		}
		return "", apperrors.Unavailable("cache", err)
	}
	return id, nil
}

// headParent returns head when it is still part of the study's history. A head removed by a
// subtree delete yields "", so the next entry starts a new root.
func (e *Engine) headParent(ctx context.Context, studyID, head string) (string, error) {
	if head == "" {
		return "", nil
	}
	if _, err := e.history.GetHistoryEntry(ctx, studyID, head); err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return "", nil
		}
		var de *apperrors.DomainError
		if errors.As(err, &de) {
			return "", err
		}
		return "", apperrors.Unavailable("history_store", err)
	}
	return head, nil
}

func cloneRows(rows []dataset.Row) []dataset.Row {
	out := make([]dataset.Row, len(rows))
	for i, r := range rows {
		values := make(map[string]any, len(r.Values)+1)
		for k, v := range r.Values {
			values[k] = v
		}
		out[i] = dataset.Row{ID: r.ID, Values: values}
	}
	return out
}

// GetCachedGraph returns the cached view of a session. Concurrent reads of one session share a
// single cache lookup.
func (e *Engine) GetCachedGraph(ctx context.Context, sessionID string, t graph.GraphType) (*graph.View, error) {
	if _, err := graph.ParseGraphType(string(t)); err != nil {
		return nil, err
	}
	snap, err := e.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	v := snap.View(t)
	if v == nil {
		return nil, apperrors.NotFound("GRAPH_NOT_FOUND", "session %s has no %s graph", sessionID, t)
	}
	return v, nil
}

// Snapshot returns the cached snapshot of a session.
func (e *Engine) Snapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	res, err, _ := e.reads.Do(sessionID, func() (any, error) {
		snap, err := e.cache.Get(ctx, sessionID)
		if err != nil {
			return nil, apperrors.Unavailable("cache", err)
		}
		if snap == nil {
			return nil, apperrors.NotFound("SESSION_NOT_FOUND", "session %s not found", sessionID)
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	snap, ok := res.(*Snapshot)
	if !ok {
		return nil, fmt.Errorf("unexpected type from session read: got %T", res)
	}
	return snap, nil
}

// GetHistory returns the exploration tree of a study as a flat list in append order.
func (e *Engine) GetHistory(ctx context.Context, studyID string) ([]*store.HistoryEntry, error) {
	return e.history.GetHistory(ctx, studyID)
}

// AddComment attaches a comment to a history entry.
func (e *Engine) AddComment(ctx context.Context, studyID, entryID, author, body string) (*store.Comment, error) {
	return e.history.AddComment(ctx, studyID, entryID, author, body)
}

// DeleteHistory removes an entry with its whole subtree and the archived snapshots behind it.
func (e *Engine) DeleteHistory(ctx context.Context, studyID, entryID string) error {
	refs, err := e.history.DeleteSubtree(ctx, studyID, entryID)
	if err != nil {
		return err
	}
	if e.archive != nil {
		for ref, err := range e.archive.Delete(ctx, refs) {
			e.logger.Warn("failed to delete archived snapshot", zap.String("ref", ref), zap.Error(err))
		}
	}
	e.logger.Info("history subtree deleted",
		zap.String("study_id", studyID),
		zap.String("entry_id", entryID),
		zap.Int("snapshots", len(refs)))
	return nil
}

// RestoreEntry loads the snapshot archived for a history entry into a session's cache. Later
// actions in that session descend from the restored entry.
func (e *Engine) RestoreEntry(ctx context.Context, studyID, entryID, sessionID string) (*graph.View, error) {
	if e.archive == nil {
		return nil, apperrors.Configuration("ARCHIVE_DISABLED", "snapshot archive is not configured")
	}
	entry, err := e.history.GetHistoryEntry(ctx, studyID, entryID)
	if err != nil {
		return nil, err
	}
	if entry.SnapshotRef == "" {
		return nil, apperrors.NotFound("SNAPSHOT_NOT_FOUND", "history entry %s has no archived snapshot", entryID)
	}

	unlock, err := e.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	snap, err := e.archive.Load(ctx, entry.SnapshotRef)
	if err != nil {
		return nil, err
	}
	snap.Global.SessionID = sessionID
	snap.Head = entryID
	if err := e.cache.Put(ctx, sessionID, snap); err != nil {
		return nil, apperrors.Unavailable("cache", err)
	}
	e.logger.Info("history entry restored",
		zap.String("study_id", studyID),
		zap.String("entry_id", entryID),
		zap.String("session_id", sessionID))

	v := snap.View(entry.GraphType)
	if v == nil {
		return nil, apperrors.NotFound("GRAPH_NOT_FOUND", "snapshot of %s has no %s graph", entryID, entry.GraphType)
	}
	return v, nil
}
