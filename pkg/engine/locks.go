package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
	"github.com/rmax-ai/facetgraph/pkg/store"
)

// SessionLocks serializes operations on one session. Inside a process a per-session mutex is
// enough; with a lease store configured the session lease is also held, so several daemons can
// share one cache.
type SessionLocks struct {
	mu      sync.Mutex
	entries map[string]*sessionLock

	leases   store.LeaseStore
	holderID string
	ttl      time.Duration
	retry    time.Duration
	renewal  time.Duration
	logger   *zap.Logger
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewSessionLocks creates the lock table. leases may be nil.
func NewSessionLocks(leases store.LeaseStore, holderID string, ttl time.Duration, logger *zap.Logger) *SessionLocks {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SessionLocks{
		entries:  make(map[string]*sessionLock),
		leases:   leases,
		holderID: holderID,
		ttl:      ttl,
		retry:    50 * time.Millisecond,
		renewal:  ttl / 3,
		logger:   logger,
	}
}

func leaseName(sessionID string) string {
	return "session:" + sessionID
}

// Lock blocks until the session is held by the caller and returns the release function.
func (l *SessionLocks) Lock(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[sessionID]
	if !ok {
		e = &sessionLock{}
		l.entries[sessionID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	unlock := func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, sessionID)
		}
		l.mu.Unlock()
	}

	if l.leases == nil {
		return unlock, nil
	}
	if err := l.acquire(ctx, sessionID); err != nil {
		unlock()
		return nil, err
	}
	stopRenew := l.renew(sessionID)
	return func() {
		stopRenew()
		// the caller's context may already be cancelled
		if err := l.leases.Release(context.Background(), leaseName(sessionID), l.holderID); err != nil {
			l.logger.Warn("failed to release session lease", zap.String("session_id", sessionID), zap.Error(err))
		}
		unlock()
	}, nil
}

func (l *SessionLocks) acquire(ctx context.Context, sessionID string) error {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.leases.Acquire(ctx, leaseName(sessionID), l.holderID, l.ttl)
		if err != nil {
			return apperrors.Unavailable("lease", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return apperrors.Unavailable("lease", ctx.Err())
		case <-ticker.C:
		}
	}
}

// renew keeps the session lease alive until the returned stop function is called. A lost
// lease stops the loop; the holder finishes its operation and the release is a no-op.
func (l *SessionLocks) renew(sessionID string) func() {
	stopCh := make(chan struct{})
	done := make(chan struct{})
	ticker := time.NewTicker(l.renewal)

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				err := l.leases.Renew(context.Background(), leaseName(sessionID), l.holderID, l.ttl)
				if errors.Is(err, store.ErrLeaseLost) {
					l.logger.Error("session lease lost",
						zap.String("session_id", sessionID),
						zap.String("holder_id", l.holderID))
					return
				}
				if err != nil {
					l.logger.Warn("failed to renew session lease", zap.String("session_id", sessionID), zap.Error(err))
				}
			case <-stopCh:
				return
			}
		}
	}()

	return func() {
		close(stopCh)
		<-done
	}
}
