// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torrents

import (
	"context"
	"math"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/tolokarr/internal/domain"
)

// errNotVerified marks an attempt whose remote call went through but whose
// post-condition was not observed yet. It stays internal to the executor.
var errNotVerified = errors.New("post-condition not verified")

// Executor runs a state-changing operation, waits out a verification delay,
// and confirms the post-condition against the remote client, retrying with
// exponential backoff on either a failed verification or a transport error.
type Executor struct {
	cfg domain.RetryConfig
}

// NewExecutor returns an executor with zero-value fields replaced by the
// defaults.
func NewExecutor(cfg domain.RetryConfig) *Executor {
	def := domain.DefaultRetryConfig()
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	if cfg.VerificationDelay <= 0 {
		cfg.VerificationDelay = def.VerificationDelay
	}
	return &Executor{cfg: cfg}
}

// Run executes op, sleeps the verification delay, then evaluates verify.
//
// (true, nil): the post-condition was observed.
// (false, nil): attempts ran out without the post-condition appearing; an
// expected outcome, already logged.
// (false, err): op or verify kept erroring until attempts ran out, or the
// context was cancelled.
//
// Verification predicates must tolerate duplicate application: op runs again
// on every retry, so a rename that already landed has to verify as success.
func (e *Executor) Run(ctx context.Context, name string, op func(context.Context) error, verify func(context.Context) (bool, error)) (bool, error) {
	attempts := 0

	err := retry.Do(
		func() error {
			attempts++
			if err := op(ctx); err != nil {
				return err
			}
			if err := Sleep(ctx, e.cfg.VerificationDelay); err != nil {
				return retry.Unrecoverable(err)
			}
			ok, err := verify(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return errNotVerified
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(e.cfg.MaxAttempts),
		retry.Delay(e.cfg.InitialDelay),
		retry.MaxDelay(e.cfg.MaxDelay),
		retry.DelayType(e.backoffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().
				Str("operation", name).
				Uint("attempt", n+1).
				Err(err).
				Msg("Operation not confirmed, retrying")
		}),
	)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, errNotVerified) {
		log.Warn().
			Str("operation", name).
			Int("attempts", attempts).
			Msg("Post-condition never observed within retry budget")
		return false, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	return false, errors.Wrapf(err, "failed to %s after %d attempts", name, attempts)
}

// backoffDelay grows the pause by the configured factor per attempt, capped at
// the maximum delay.
func (e *Executor) backoffDelay(n uint, _ error, _ *retry.Config) time.Duration {
	d := time.Duration(float64(e.cfg.InitialDelay) * math.Pow(e.cfg.BackoffFactor, float64(n)))
	if d > e.cfg.MaxDelay {
		d = e.cfg.MaxDelay
	}
	return d
}

// Sleep waits for d or until the context is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
