// Package streak derives current and longest streaks from completion dates.
package streak

import (
	"slices"

	"github.com/dukerupert/streakforge/internal/datekey"
)

// Result holds the derived streak values for one habit.
type Result struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// Compute returns the current and longest streak for the given completion days.
//
// The current streak is alive only while the latest completion is today or yesterday;
// yesterday counts so a streak is not reported broken before the day is over.
// Malformed keys are ignored and duplicates count once.
func Compute(dates []datekey.Key, today datekey.Key) Result {
	days := normalize(dates)
	if len(days) == 0 {
		return Result{}
	}

	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if datekey.DayDiff(days[i-1], days[i]) == 1 {
			run++
		} else {
			run = 1
		}
		longest = max(longest, run)
	}

	current := 0
	last := days[len(days)-1]
	if last == today || last == today.AddDays(-1) {
		current = 1
		for i := len(days) - 1; i > 0; i-- {
			if datekey.DayDiff(days[i-1], days[i]) != 1 {
				break
			}
			current++
		}
	}

	return Result{Current: current, Longest: max(longest, current)}
}

func normalize(dates []datekey.Key) []datekey.Key {
	days := make([]datekey.Key, 0, len(dates))
	for _, d := range dates {
		if d.Valid() {
			days = append(days, d)
		}
	}
	// YYYY-MM-DD sorts lexically in calendar order.
	slices.Sort(days)
	return slices.Compact(days)
}
