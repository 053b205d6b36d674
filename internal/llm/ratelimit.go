package llm

import (
	"context"
	"sync"
	"time"
)

// LimiterRegistry owns one fixed-window request counter per model
// identifier so that every agent referencing the same model name shares a
// single budget. Each model tracks (count, window_start): a request takes
// a slot in the current window, and once count reaches the model's
// max_requests, callers block cooperatively until window_start + period,
// at which point the window resets and counting starts over. Waiting
// callers are never failed, only delayed; cancellation comes solely from
// their context.
type LimiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*modelLimiter
}

// NewLimiterRegistry creates an empty registry.
func NewLimiterRegistry() *LimiterRegistry {
	return &LimiterRegistry{limiters: make(map[string]*modelLimiter)}
}

// modelLimiter is the fixed-window counter for one model.
type modelLimiter struct {
	mu          sync.Mutex
	maxRequests int
	period      time.Duration
	count       int
	windowStart time.Time
}

func newModelLimiter(maxRequests, windowSeconds int) *modelLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	return &modelLimiter{
		maxRequests: maxRequests,
		period:      time.Duration(windowSeconds) * time.Second,
	}
}

// wait blocks until a slot in the current window is available or ctx is
// cancelled. The loop re-checks after sleeping because another waiter may
// have taken the freed window's slots first.
func (l *modelLimiter) wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.period {
			l.windowStart = now
			l.count = 0
		}
		if l.count < l.maxRequests {
			l.count++
			l.mu.Unlock()
			return nil
		}
		resetAt := l.windowStart.Add(l.period)
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(resetAt)):
		}
	}
}

// For returns the limiter for model, creating it on first use with the
// given per-model configuration. Subsequent calls for the same model
// ignore maxRequests/windowSeconds and return the existing limiter, since
// the limit is a property of the model, fixed at first reference.
func (r *LimiterRegistry) For(model string, maxRequests, windowSeconds int) *modelLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[model]; ok {
		return l
	}
	l := newModelLimiter(maxRequests, windowSeconds)
	r.limiters[model] = l
	return l
}

// Wait blocks until a slot for model is available or ctx is cancelled.
func (r *LimiterRegistry) Wait(ctx context.Context, model string, maxRequests, windowSeconds int) error {
	return r.For(model, maxRequests, windowSeconds).wait(ctx)
}
