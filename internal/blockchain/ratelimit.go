package blockchain

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter bounds requests to R per window W.
//
// Permits are smoothed rather than reset at window boundaries: each acquisition
// becomes available W/R after the previous one, so R requests never fire at once.
// A single RateLimiter is shared by every request a Client sends, retries included.
type RateLimiter struct {
	limiter  *rate.Limiter
	requests int
	window   time.Duration
	acquired atomic.Uint64
}

// NewRateLimiter creates a limiter allowing requests per window
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests < 1 {
		requests = 1
	}
	interval := window / time.Duration(requests)

	return &RateLimiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		requests: requests,
		window:   window,
	}
}

// Acquire blocks until a permit is available or ctx is done
func (r *RateLimiter) Acquire(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	r.acquired.Add(1)
	return nil
}

// Acquired returns the number of permits handed out so far
func (r *RateLimiter) Acquired() uint64 {
	return r.acquired.Load()
}

// Requests returns the configured number of requests per window
func (r *RateLimiter) Requests() int {
	return r.requests
}

// Window returns the configured window
func (r *RateLimiter) Window() time.Duration {
	return r.window
}
