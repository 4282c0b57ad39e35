package engine

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
)

// BreakerConfig configures the circuit breakers in front of the search index and the document
// store.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used by the daemon.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

func newBreaker(name string, cfg BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("dependency", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// Caller mistakes are answers, not outages.
		IsSuccessful: func(err error) bool {
			return err == nil || callerError(err)
		},
	})
}

// guarded runs fn through cb. Domain errors pass through; breaker rejections and
// infrastructure failures become Unavailable errors naming the dependency.
func guarded[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err == nil {
		v, _ := res.(T)
		return v, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		BreakerRejections.WithLabelValues(cb.Name()).Inc()
		return zero, apperrors.Unavailable(cb.Name(), err)
	}
	var de *apperrors.DomainError
	if errors.As(err, &de) {
		return zero, err
	}
	return zero, apperrors.Unavailable(cb.Name(), err)
}

// callerError reports whether err is a domain error caused by the request itself.
func callerError(err error) bool {
	var de *apperrors.DomainError
	if !errors.As(err, &de) {
		return false
	}
	switch de.Kind {
	case apperrors.KindNotFound, apperrors.KindValidation, apperrors.KindConfiguration:
		return true
	}
	return false
}
