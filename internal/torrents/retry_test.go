package torrents

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/tolokarr/internal/domain"
)

func fastRetryConfig() domain.RetryConfig {
	return domain.RetryConfig{
		MaxAttempts:       4,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffFactor:     2,
		VerificationDelay: time.Millisecond,
	}
}

func TestExecutorVerifiedFirstTry(t *testing.T) {
	t.Parallel()

	e := NewExecutor(fastRetryConfig())
	var ops, verifies int32

	ok, err := e.Run(context.Background(), "rename file",
		func(context.Context) error {
			atomic.AddInt32(&ops, 1)
			return nil
		},
		func(context.Context) (bool, error) {
			atomic.AddInt32(&verifies, 1)
			return true, nil
		},
	)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), ops)
	assert.Equal(t, int32(1), verifies)
}

func TestExecutorRetriesUntilVerified(t *testing.T) {
	t.Parallel()

	e := NewExecutor(fastRetryConfig())
	var verifies int32

	ok, err := e.Run(context.Background(), "resume torrent",
		func(context.Context) error { return nil },
		func(context.Context) (bool, error) {
			return atomic.AddInt32(&verifies, 1) >= 3, nil
		},
	)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(3), verifies)
}

func TestExecutorVerificationTimeoutIsNotAnError(t *testing.T) {
	t.Parallel()

	e := NewExecutor(fastRetryConfig())
	var ops int32

	ok, err := e.Run(context.Background(), "rename folder",
		func(context.Context) error {
			atomic.AddInt32(&ops, 1)
			return nil
		},
		func(context.Context) (bool, error) { return false, nil },
	)

	require.NoError(t, err)
	assert.False(t, ok)
	// The operation is re-applied on every attempt; predicates must tolerate that.
	assert.Equal(t, int32(4), ops)
}

func TestExecutorWrapsExhaustedTransportErrors(t *testing.T) {
	t.Parallel()

	e := NewExecutor(fastRetryConfig())
	remote := errors.New("connection refused")

	ok, err := e.Run(context.Background(), "delete torrent",
		func(context.Context) error { return remote },
		func(context.Context) (bool, error) { return false, nil },
	)

	assert.False(t, ok)
	require.Error(t, err)
	assert.ErrorIs(t, err, remote)
	assert.Contains(t, err.Error(), "failed to delete torrent after 4 attempts")
}

func TestExecutorRecoversFromTransientErrors(t *testing.T) {
	t.Parallel()

	e := NewExecutor(fastRetryConfig())
	var ops int32

	ok, err := e.Run(context.Background(), "add torrent",
		func(context.Context) error {
			if atomic.AddInt32(&ops, 1) < 3 {
				return errors.New("temporarily unavailable")
			}
			return nil
		},
		func(context.Context) (bool, error) { return true, nil },
	)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(3), ops)
}

func TestExecutorHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	cfg := fastRetryConfig()
	cfg.VerificationDelay = time.Minute
	e := NewExecutor(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var result error

	go func() {
		defer close(done)
		_, result = e.Run(ctx, "resume torrent",
			func(context.Context) error { return nil },
			func(context.Context) (bool, error) { return false, nil },
		)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not stop after context cancellation")
	}
	assert.ErrorIs(t, result, context.Canceled)
}

func TestExecutorBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	e := NewExecutor(domain.RetryConfig{
		MaxAttempts:       10,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffFactor:     1.5,
		VerificationDelay: time.Millisecond,
	})

	assert.Equal(t, 1*time.Second, e.backoffDelay(0, nil, nil))
	assert.Equal(t, 1500*time.Millisecond, e.backoffDelay(1, nil, nil))
	assert.Equal(t, 2250*time.Millisecond, e.backoffDelay(2, nil, nil))
	// factor^6 exceeds the cap
	assert.Equal(t, 10*time.Second, e.backoffDelay(6, nil, nil))
	assert.Equal(t, 10*time.Second, e.backoffDelay(9, nil, nil))
}

func TestNewExecutorAppliesDefaults(t *testing.T) {
	t.Parallel()

	e := NewExecutor(domain.RetryConfig{})
	assert.Equal(t, domain.DefaultRetryConfig(), e.cfg)
}

func TestSleep(t *testing.T) {
	t.Parallel()

	require.NoError(t, Sleep(context.Background(), time.Millisecond))
	require.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Minute), context.Canceled)
}
