package lead

import (
	"context"
	"fmt"

	"leadintake/internal/config"
	"leadintake/pkg/circuitbreaker"
	"leadintake/pkg/errors"
)

const breakerName = "postgres-leads"

// CircuitBreakerRepository fails fast while the lead store is unhealthy.
// Not-found and conflict results are answers, not failures, and never trip it.
type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerRepository(repo Repository, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	if !cfg.Enabled {
		return &CircuitBreakerRepository{repo: repo}
	}

	cbConfig := circuitbreaker.DefaultConfig(breakerName)
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = circuitbreaker.RatioTrip(cfg.MinRequests, cfg.FailureRatio)
	}

	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.NewWrapper(cbConfig),
	}
}

func call[T any](ctx context.Context, r *CircuitBreakerRepository, fn func() (T, error)) (T, error) {
	if r.cb == nil {
		return fn()
	}

	var answer error
	v, err := circuitbreaker.Do(ctx, r.cb, func() (T, error) {
		v, err := fn()
		if errors.IsNotFound(err) || errors.IsConflict(err) {
			answer = err
			return v, nil
		}
		return v, err
	})
	if err != nil {
		if r.cb.IsOpen() {
			return v, fmt.Errorf("circuit breaker is open for %s: %w", breakerName, err)
		}
		return v, err
	}
	return v, answer
}

func (r *CircuitBreakerRepository) FindByKey(ctx context.Context, tenantID string, key Key) (*Lead, error) {
	return call(ctx, r, func() (*Lead, error) {
		return r.repo.FindByKey(ctx, tenantID, key)
	})
}

func (r *CircuitBreakerRepository) Get(ctx context.Context, tenantID, id string) (*Lead, error) {
	return call(ctx, r, func() (*Lead, error) {
		return r.repo.Get(ctx, tenantID, id)
	})
}

func (r *CircuitBreakerRepository) InsertMinimal(ctx context.Context, l *Lead) (string, error) {
	return call(ctx, r, func() (string, error) {
		return r.repo.InsertMinimal(ctx, l)
	})
}

func (r *CircuitBreakerRepository) Update(ctx context.Context, l *Lead) error {
	_, err := call(ctx, r, func() (struct{}, error) {
		return struct{}{}, r.repo.Update(ctx, l)
	})
	return err
}

func (r *CircuitBreakerRepository) FillMissing(ctx context.Context, tenantID, id string, f Fields) error {
	_, err := call(ctx, r, func() (struct{}, error) {
		return struct{}{}, r.repo.FillMissing(ctx, tenantID, id, f)
	})
	return err
}

func (r *CircuitBreakerRepository) State() string {
	if r.cb == nil {
		return "disabled"
	}
	return r.cb.State().String()
}

func (r *CircuitBreakerRepository) IsOpen() bool {
	if r.cb == nil {
		return false
	}
	return r.cb.IsOpen()
}
