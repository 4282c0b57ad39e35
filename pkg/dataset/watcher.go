package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ConfigSink receives dataset configurations as they are loaded.
type ConfigSink interface {
	PutDatasetConfig(ctx context.Context, cfg *Config) error
}

// RowSink receives the rows of a dataset. A sink implementing it gets <id>.jsonl files
// ingested after the matching configuration.
type RowSink interface {
	IngestRows(ctx context.Context, datasetID string, rows []Row) error
}

// Watcher loads a directory of dataset configurations into a sink and reloads files
// whenever they change.
type Watcher struct {
	dir     string
	sink    ConfigSink
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	mu       sync.Mutex
	pending  map[string]*time.Timer
	debounce time.Duration
}

// NewWatcher creates a watcher over dir. Call Start to load and begin watching.
func NewWatcher(dir string, sink ConfigSink, logger *zap.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		sink:     sink,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
		debounce: 100 * time.Millisecond,
	}
}

// LoadAll pushes every valid configuration in the directory into the sink.
func (w *Watcher) LoadAll(ctx context.Context) (int, error) {
	cfgs, failed, err := LoadConfigDir(w.dir)
	if err != nil {
		return 0, err
	}
	for path, ferr := range failed {
		w.logger.Warn("dataset config rejected", zap.String("path", path), zap.Error(ferr))
	}
	for _, cfg := range cfgs {
		if err := w.sink.PutDatasetConfig(ctx, cfg); err != nil {
			return 0, fmt.Errorf("failed to store dataset %s: %w", cfg.ID, err)
		}
		if err := w.ingest(ctx, cfg.ID); err != nil {
			return 0, err
		}
	}
	return len(cfgs), nil
}

// ingest loads the rows file of a dataset into the sink, if both exist.
func (w *Watcher) ingest(ctx context.Context, datasetID string) error {
	rs, ok := w.sink.(RowSink)
	if !ok {
		return nil
	}
	path := RowsPath(w.dir, datasetID)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	rows, err := LoadRowsFile(path)
	if err != nil {
		return err
	}
	if err := rs.IngestRows(ctx, datasetID, rows); err != nil {
		return fmt.Errorf("failed to ingest rows of %s: %w", datasetID, err)
	}
	w.logger.Info("dataset rows ingested", zap.String("dataset_id", datasetID), zap.Int("rows", len(rows)))
	return nil
}

// Start loads the directory and watches it until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	n, err := w.LoadAll(ctx)
	if err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.watcher = fw
	w.logger.Info("dataset configs loaded", zap.String("dir", w.dir), zap.Int("count", n))

	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !IsConfigFile(event.Name) && !IsRowsFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule(ctx, event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("dataset watcher error", zap.Error(err))
		}
	}
}

// schedule debounces bursts of events for the same file (editors write several times).
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.reload(ctx, path)
	})
}

func (w *Watcher) reload(ctx context.Context, path string) {
	if IsRowsFile(path) {
		if err := w.ingest(ctx, RowsDatasetID(path)); err != nil {
			w.logger.Warn("dataset rows reload rejected", zap.String("path", filepath.Base(path)), zap.Error(err))
		}
		return
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		w.logger.Warn("dataset config reload rejected", zap.String("path", filepath.Base(path)), zap.Error(err))
		return
	}
	if err := w.sink.PutDatasetConfig(ctx, cfg); err != nil {
		w.logger.Error("dataset config reload failed", zap.String("dataset_id", cfg.ID), zap.Error(err))
		return
	}
	w.logger.Info("dataset config reloaded", zap.String("dataset_id", cfg.ID))
	if err := w.ingest(ctx, cfg.ID); err != nil {
		w.logger.Warn("dataset rows reload rejected", zap.String("dataset_id", cfg.ID), zap.Error(err))
	}
}
