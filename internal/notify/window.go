package notify

import (
	"fmt"
	"sort"
	"time"
)

// TriggerMinutes parses configured "HH:MM" strings into sorted minute-of-day
// offsets, skipping any that fail to parse (a malformed entry is a
// configuration mistake, not something that should crash the service
// mid-run).
func TriggerMinutes(raw []string) []int {
	out := make([]int, 0, len(raw))
	for _, t := range raw {
		var h, m int
		if _, err := fmt.Sscanf(t, "%d:%d", &h, &m); err != nil {
			continue
		}
		out = append(out, h*60+m)
	}
	sort.Ints(out)
	return out
}

// triggerOnDate returns the wall-clock time in loc for a given minute-of-day
// offset on the given date.
func triggerOnDate(date time.Time, minuteOfDay int, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), minuteOfDay/60, minuteOfDay%60, 0, 0, loc)
}

// PreviousAndCurrentTrigger returns the trigger immediately at-or-before now
// (current) and the one immediately before that (previous), scanning
// backward at most two calendar days to handle triggers that wrap past
// midnight.
func PreviousAndCurrentTrigger(now time.Time, minutesOfDay []int, loc *time.Location) (previous, current time.Time) {
	now = now.In(loc)
	if len(minutesOfDay) == 0 {
		return time.Time{}, time.Time{}
	}

	var all []time.Time
	for _, dayOffset := range []int{-2, -1, 0} {
		date := now.AddDate(0, 0, dayOffset)
		for _, m := range minutesOfDay {
			all = append(all, triggerOnDate(date, m, loc))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Before(all[j]) })

	for i := len(all) - 1; i >= 0; i-- {
		if !all[i].After(now) {
			current = all[i]
			if i > 0 {
				previous = all[i-1]
			}
			break
		}
	}
	return previous, current
}

// Window computes the shifted half-open selection interval
// [shifted_prev_trigger, current_trigger) for the current trigger cycle:
// only the lower bound is shifted backward by the safety margin, to
// tolerate analysis lag on articles published just before the previous
// trigger. The upper bound is the current trigger time itself, unshifted
// and exclusive: a timestamp equal to the current trigger belongs to the
// next window, not this one.
func Window(previous, current time.Time, shift time.Duration) (from, to time.Time) {
	return previous.Add(-shift), current
}
