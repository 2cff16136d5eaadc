package b2

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"time"
)

const (
	defaultMaxRetries  = 5
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffMax  = 30 * time.Second
)

// BackoffPolicy maps a zero-based attempt number to a delay: base doubling
// per attempt, randomized within ±50%, capped at Max.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration

	// Jitter returns a value in [0, 1). Defaults to math/rand; injected by
	// tests for deterministic delays.
	Jitter func() float64
}

func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	d := p.Base << uint(attempt)
	if d <= 0 || d > p.Max {
		d = p.Max
	}

	jitter := p.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}
	d = time.Duration(float64(d) * (0.5 + jitter()))
	if d > p.Max {
		d = p.Max
	}
	return d
}

// retryer reissues a single request until it succeeds, fails with a
// non-retryable error, or the attempt budget is spent. The budget is reset
// per logical call site, never shared across parts of a multi-part upload.
type retryer struct {
	maxAttempts int
	policy      BackoffPolicy

	// sleep waits for d or until ctx is done. Injected by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func newRetryer(maxAttempts int, policy BackoffPolicy) retryer {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxRetries
	}
	if policy.Base <= 0 {
		policy.Base = defaultBackoffBase
	}
	if policy.Max <= 0 {
		policy.Max = defaultBackoffMax
	}
	return retryer{maxAttempts: maxAttempts, policy: policy, sleep: sleepCtx}
}

// do runs fn up to maxAttempts times. An expired-token response triggers
// onExpired (re-authentication) and an immediate retry that does not count
// against the attempt budget; a second expiry within the same call is a
// hard failure.
func (r retryer) do(ctx context.Context, op string, fn func() error, onExpired func() error) error {
	reauthed := false
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var api *apiError
		if errors.As(err, &api) && api.expiredAuth() {
			if reauthed {
				return fmt.Errorf("%s: token expired again after re-authentication: %w", op, err)
			}
			reauthed = true
			if authErr := onExpired(); authErr != nil {
				return fmt.Errorf("%s: re-authenticate: %w", op, authErr)
			}
			if ctx.Err() != nil {
				return fmt.Errorf("%s: %w", op, ctx.Err())
			}
			attempt--
			continue
		}
		if !retryableError(err) {
			return fmt.Errorf("%s: %w", op, err)
		}

		if attempt >= r.maxAttempts {
			return fmt.Errorf("%s: %d attempts exhausted: %w", op, attempt, err)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		if err := r.sleep(ctx, r.policy.Delay(attempt-1)); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
}

// retryableError covers transient transport failures and the retryable API
// statuses. Context cancellation is never retried.
func retryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var api *apiError
	if errors.As(err, &api) {
		return api.retryable()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
