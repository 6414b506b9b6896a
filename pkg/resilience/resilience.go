package resilience

import (
	"context"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"

	"poll-service/pkg/zap"
)

// ErrUnavailable is returned without touching the downstream dependency while
// its circuit is open.
var ErrUnavailable = errors.New("dependency unavailable")

// Policy controls retry and breaker behaviour for one downstream dependency.
type Policy struct {
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	AttemptTimeout   time.Duration
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      3,
		InitialBackoff:   50 * time.Millisecond,
		MaxBackoff:       2 * time.Second,
		AttemptTimeout:   3 * time.Second,
		BreakerThreshold: 5,
		BreakerCooldown:  10 * time.Second,
	}
}

// Executor wraps a fallible remote call with retry-with-backoff where every
// attempt is gated by a circuit breaker. An open breaker fails the whole call
// immediately, before any retry delay is incurred.
type Executor struct {
	name     string
	policy   Policy
	breaker  *gobreaker.CircuitBreaker
	classify func(error) bool
	log      zap.Logger
}

// Option customises an Executor.
type Option func(*Executor)

// WithClassifier replaces the default transient-error classifier. Only errors
// the classifier accepts are retried and counted against the breaker.
func WithClassifier(classify func(error) bool) Option {
	return func(e *Executor) {
		e.classify = classify
	}
}

func NewExecutor(name string, policy Policy, log zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		name:     name,
		policy:   policy,
		classify: IsTransient,
		log:      log,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     policy.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= policy.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("circuit %s: %s -> %s", name, from, to)
		},
	})
	return e
}

// Do runs op until it succeeds, the attempt budget is spent, the context is
// cancelled, or the breaker opens. Non-transient errors propagate immediately
// without retry and without counting as a dependency failure.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.policy.InitialBackoff
	bo.MaxInterval = e.policy.MaxBackoff
	bo.MaxElapsedTime = 0

	var schedule backoff.BackOff = backoff.WithMaxRetries(bo, uint64(e.policy.MaxAttempts-1))
	schedule = backoff.WithContext(schedule, ctx)

	return backoff.Retry(func() error {
		var businessErr error
		_, err := e.breaker.Execute(func() (interface{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, e.policy.AttemptTimeout)
			defer cancel()

			opErr := op(attemptCtx)
			if opErr != nil && !e.classify(opErr) {
				// Constraint violations and the like are not the
				// dependency's fault; don't trip the breaker on them.
				businessErr = opErr
				return nil, nil
			}
			return nil, opErr
		})

		switch {
		case businessErr != nil:
			return backoff.Permanent(businessErr)
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(errors.Wrapf(ErrUnavailable, "%s circuit open", e.name))
		default:
			e.log.Warnf("%s attempt failed: %v", e.name, err)
			return err
		}
	}, schedule)
}

// transientError marks an error as retryable regardless of its type.
type transientError struct {
	err error
}

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// MarkTransient flags err for retry by the default classifier.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err looks like a recoverable infrastructure
// failure: connection refused/reset, timeouts, or anything explicitly marked.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var marked *transientError
	if errors.As(err, &marked) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
