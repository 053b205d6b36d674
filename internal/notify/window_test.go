package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerMinutes_ParsesAndSorts(t *testing.T) {
	got := TriggerMinutes([]string{"16:30", "06:00", "bogus", "12:00"})
	assert.Equal(t, []int{6 * 60, 12 * 60, 16*60 + 30}, got)
}

func TestWindow_ShiftsOnlyLowerBound(t *testing.T) {
	loc, err := time.LoadLocation("America/Costa_Rica")
	require.NoError(t, err)

	// Triggers 06:00, 12:00; shift 30min; at 12:00 the window is
	// [05:30, 12:00).
	prev := time.Date(2024, 6, 1, 6, 0, 0, 0, loc)
	current := time.Date(2024, 6, 1, 12, 0, 0, 0, loc)

	from, to := Window(prev, current, 30*time.Minute)
	assert.Equal(t, time.Date(2024, 6, 1, 5, 30, 0, 0, loc), from)
	assert.Equal(t, current, to)
}

func TestPreviousAndCurrentTrigger_FindsMostRecentPair(t *testing.T) {
	loc, err := time.LoadLocation("America/Costa_Rica")
	require.NoError(t, err)
	minutes := TriggerMinutes([]string{"06:00", "12:00", "16:30"})

	now := time.Date(2024, 6, 1, 13, 0, 0, 0, loc)
	previous, current := PreviousAndCurrentTrigger(now, minutes, loc)

	assert.Equal(t, time.Date(2024, 6, 1, 6, 0, 0, 0, loc), previous)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, loc), current)
}

func TestPreviousAndCurrentTrigger_WrapsAcrossMidnight(t *testing.T) {
	loc, err := time.LoadLocation("America/Costa_Rica")
	require.NoError(t, err)
	minutes := TriggerMinutes([]string{"06:00", "12:00", "16:30"})

	// Just after midnight: the most recent trigger is yesterday's 16:30.
	now := time.Date(2024, 6, 2, 0, 30, 0, 0, loc)
	previous, current := PreviousAndCurrentTrigger(now, minutes, loc)

	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, loc), previous)
	assert.Equal(t, time.Date(2024, 6, 1, 16, 30, 0, 0, loc), current)
}

// TestPreviousAndCurrentTrigger_DSTBoundary exercises the window arithmetic
// across a DST transition. Costa Rica itself does not observe DST;
// America/New_York stands in purely to prove the minute-of-day
// construction is safe across a spring-forward boundary.
func TestPreviousAndCurrentTrigger_DSTBoundary(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	minutes := TriggerMinutes([]string{"06:00", "12:00"})

	// 2024-03-10 is the US spring-forward date (clocks jump 02:00 -> 03:00).
	now := time.Date(2024, 3, 10, 13, 0, 0, 0, loc)
	previous, current := PreviousAndCurrentTrigger(now, minutes, loc)

	assert.Equal(t, time.Date(2024, 3, 10, 6, 0, 0, 0, loc), previous)
	assert.Equal(t, time.Date(2024, 3, 10, 12, 0, 0, 0, loc), current)
	assert.Equal(t, 6*time.Hour, current.Sub(previous))
}

func TestWindow_BoundaryIsHalfOpen(t *testing.T) {
	loc := time.UTC
	prev := time.Date(2024, 6, 1, 6, 0, 0, 0, loc)
	current := time.Date(2024, 6, 1, 12, 0, 0, 0, loc)
	from, to := Window(prev, current, 0)

	// An article timestamped exactly at the current trigger is NOT in this
	// window; it belongs to the next one.
	articleAtTrigger := current
	assert.False(t, articleAtTrigger.Before(to))
	assert.True(t, from.Before(current))
}
