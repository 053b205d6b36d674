// Package sched implements the refined-sleep scheduling contract shared by
// all three services. A Shutdown flag is set once, cooperatively, from the
// process's signal handler; SleepUntil and SleepFor split their wait into
// short quanta so the flag is observed promptly instead of oversleeping
// past a SIGTERM.
package sched

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultQuantum is the slice every long sleep is split into.
const DefaultQuantum = time.Second

// Shutdown is a process-wide cooperative cancellation flag. It has no
// constructor — the zero value is ready to use — so the same flag can be
// shared across goroutines without plumbing a pointer through every call
// that doesn't otherwise need one.
type Shutdown struct {
	flag atomic.Bool
}

// Request marks the flag as set. Idempotent.
func (s *Shutdown) Request() {
	s.flag.Store(true)
}

// Requested reports whether shutdown has been requested.
func (s *Shutdown) Requested() bool {
	return s.flag.Load()
}

// SleepUntil blocks until deadline, quantum at a time, returning early
// (with ok=false) if shutdown is requested or ctx is cancelled first. Wall
// clock is used deliberately: deadlines here are calendar-based ("next
// trigger at 16:30 local"), not monotonic durations, so a host suspension
// shortens the remaining wait instead of extending it.
func SleepUntil(ctx context.Context, shutdown *Shutdown, deadline time.Time, quantum time.Duration) (ok bool) {
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		wait := remaining
		if wait > quantum {
			wait = quantum
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
		if shutdown != nil && shutdown.Requested() {
			return false
		}
	}
}

// SleepFor blocks for d, quantum at a time, with the same early-return
// semantics as SleepUntil.
func SleepFor(ctx context.Context, shutdown *Shutdown, d time.Duration, quantum time.Duration) (ok bool) {
	return SleepUntil(ctx, shutdown, time.Now().Add(d), quantum)
}
