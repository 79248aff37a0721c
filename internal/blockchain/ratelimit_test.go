package blockchain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindow(t *testing.T) {
	const (
		requests = 5
		window   = 200 * time.Millisecond
	)
	limiter := NewRateLimiter(requests, window)
	ctx := context.Background()

	start := time.Now()
	for range requests {
		require.NoError(t, limiter.Acquire(ctx))
	}
	firstBatchDone := time.Now()

	require.NoError(t, limiter.Acquire(ctx))
	assert.GreaterOrEqual(t, time.Since(start), window, "permit R+1 falls outside the first window")

	for range requests - 1 {
		require.NoError(t, limiter.Acquire(ctx))
	}
	secondBatch := time.Since(firstBatchDone)

	// slack for the caller waking late after the first batch
	assert.GreaterOrEqual(t, secondBatch, window-10*time.Millisecond, "the second R permits span a full window")
	assert.Equal(t, uint64(2*requests), limiter.Acquired())
}

func TestRateLimiterSmoothsBursts(t *testing.T) {
	limiter := NewRateLimiter(4, 200*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, limiter.Acquire(ctx))
	start := time.Now()
	require.NoError(t, limiter.Acquire(ctx))

	// The second permit is released W/R after the first, not at the window boundary.
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRateLimiterConcurrentAcquire(t *testing.T) {
	const (
		requests = 10
		window   = 100 * time.Millisecond
		callers  = 20
	)
	limiter := NewRateLimiter(requests, window)

	start := time.Now()
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, limiter.Acquire(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(callers), limiter.Acquired())
	assert.GreaterOrEqual(t, time.Since(start), window)
}

func TestRateLimiterCancellation(t *testing.T) {
	limiter := NewRateLimiter(1, time.Hour)
	require.NoError(t, limiter.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := limiter.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, uint64(1), limiter.Acquired())
}

func TestRateLimiterConfiguration(t *testing.T) {
	limiter := NewRateLimiter(0, time.Second)
	assert.Equal(t, 1, limiter.Requests())
	assert.Equal(t, time.Second, limiter.Window())
}
