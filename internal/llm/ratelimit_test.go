package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterRegistry_SharesLimiterPerModel(t *testing.T) {
	r := NewLimiterRegistry()
	l1 := r.For("basic", 10, 60)
	l2 := r.For("basic", 999, 1)
	assert.Same(t, l1, l2, "second call for the same model must reuse the first limiter")

	l3 := r.For("light", 10, 60)
	assert.NotSame(t, l1, l3)
}

func TestLimiterRegistry_BlocksWhenWindowExhausted(t *testing.T) {
	r := NewLimiterRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// One slot per hour-long window: the second immediate Wait call must
	// block until the window resets and hit the context deadline instead.
	require.NoError(t, r.Wait(context.Background(), "scarce", 1, 3600))
	err := r.Wait(ctx, "scarce", 1, 3600)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestModelLimiter_CapsRequestsPerWindow(t *testing.T) {
	l := newModelLimiter(3, 3600)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.wait(context.Background()))
	}
	assert.Error(t, l.wait(ctx), "fourth request in the same window must block")
}

func TestModelLimiter_WindowResetAdmitsAgain(t *testing.T) {
	l := newModelLimiter(1, 1)
	l.period = 30 * time.Millisecond // shorten the window so the test doesn't sleep for a wall-clock second

	require.NoError(t, l.wait(context.Background()))

	start := time.Now()
	require.NoError(t, l.wait(context.Background()), "waiter must be admitted once the window resets")
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond, "second request must have waited for the reset")
}
