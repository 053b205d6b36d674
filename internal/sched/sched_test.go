package sched

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSleepUntil_ReturnsAtDeadline(t *testing.T) {
	var shutdown Shutdown
	deadline := time.Now().Add(30 * time.Millisecond)

	ok := SleepUntil(context.Background(), &shutdown, deadline, 10*time.Millisecond)
	assert.True(t, ok)
	assert.True(t, time.Now().After(deadline) || time.Now().Equal(deadline))
}

func TestSleepUntil_InterruptedByShutdown(t *testing.T) {
	var shutdown Shutdown
	deadline := time.Now().Add(time.Hour)

	go func() {
		time.Sleep(15 * time.Millisecond)
		shutdown.Request()
	}()

	start := time.Now()
	ok := SleepUntil(context.Background(), &shutdown, deadline, 10*time.Millisecond)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleepUntil_InterruptedByContext(t *testing.T) {
	var shutdown Shutdown
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()

	ok := SleepUntil(ctx, &shutdown, time.Now().Add(time.Hour), 10*time.Millisecond)
	assert.False(t, ok)
}

func TestShutdown_RequestedIdempotent(t *testing.T) {
	var s Shutdown
	assert.False(t, s.Requested())
	s.Request()
	s.Request()
	assert.True(t, s.Requested())
}
