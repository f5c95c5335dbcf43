// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package remote

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tomtom215/tablesnap/internal/logging"
	"github.com/tomtom215/tablesnap/internal/metrics"
)

// Policy bounds how a remote call is retried.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean 1.
	MaxAttempts int

	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64

	// MaxRetryAfter caps how long a server hint may stall a call. A hint
	// above the cap ends the retry loop instead of being shortened. This
	// deviates from always waiting out the hint: a backup job would otherwise
	// block for as long as the remote asks. Zero disables the cap.
	MaxRetryAfter time.Duration

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns three attempts with 500ms..30s jittered backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:         3,
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         30 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
		MaxRetryAfter:       5 * time.Minute,
	}
}

func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = p.RandomizationFactor
	b.Reset()
	return b
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry runs fn until it succeeds, fails with an error that may not be
// retried, or runs out of attempts. Every failure goes through Classify and
// the last classified error is returned unchanged.
//
// The delay before the next attempt is the larger of the backoff interval
// and the error's Retry-After hint.
func Retry[T any](ctx context.Context, p Policy, op string, idempotent bool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := p.newBackOff()

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		apiErr := Classify(err)
		if attempt >= attempts || !apiErr.Retryable(idempotent) {
			return zero, apiErr
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			delay = p.MaxInterval
		}
		if hint := apiErr.RetryAfter(); hint > delay {
			if p.MaxRetryAfter > 0 && hint > p.MaxRetryAfter {
				logging.Ctx(ctx).Warn().
					Str("operation", op).
					Dur("retry_after", hint).
					Msg("Retry-After exceeds limit, giving up")
				return zero, apiErr
			}
			delay = hint
		}

		metrics.RemoteRetriesTotal.WithLabelValues(op, apiErr.Reason).Inc()
		logging.Ctx(ctx).Warn().
			Str("operation", op).
			Int("attempt", attempt).
			Int("code", apiErr.Code).
			Str("reason", apiErr.Reason).
			Dur("delay", delay).
			Msg("Remote call failed, retrying")

		if err := p.wait(ctx, delay); err != nil {
			return zero, apiErr
		}
	}
}
