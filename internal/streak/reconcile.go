package streak

import (
	"github.com/dukerupert/streakforge/internal/datekey"
	"github.com/dukerupert/streakforge/internal/model"
)

// Snapshot is one user's state as last observed from the store.
type Snapshot struct {
	Profile     *model.Profile     `json:"profile"`
	Habits      []model.Habit      `json:"habits"`
	Completions []model.Completion `json:"completions"`
}

// Drift describes a habit whose stored aggregate disagrees with its completions.
type Drift struct {
	HabitID string          `json:"habit_id"`
	Stored  model.Aggregate `json:"stored"`
	Want    model.Aggregate `json:"want"`
}

// Reconciliation is the outcome of re-deriving every aggregate in a snapshot.
type Reconciliation struct {
	Aggregates       map[string]model.Aggregate `json:"aggregates"`
	HighestMaxStreak int                        `json:"highest_max_streak"`
	Drifted          []Drift                    `json:"drifted,omitempty"`
	ProfileStale     bool                       `json:"profile_stale"`
	DoneToday        map[string]bool            `json:"done_today"`
}

// Reconcile recomputes every habit aggregate and the profile-level best streak from a
// snapshot. It performs no I/O, so it can run on each change notification.
func Reconcile(s Snapshot, today datekey.Key) Reconciliation {
	byHabit := DatesByHabit(s.Completions)

	rec := Reconciliation{
		Aggregates: make(map[string]model.Aggregate, len(s.Habits)),
		DoneToday:  make(map[string]bool, len(s.Habits)),
	}
	for _, h := range s.Habits {
		r := Compute(byHabit[h.ID], today)
		want := model.Aggregate{CurrentStreak: r.Current, MaxStreak: r.Longest}
		rec.Aggregates[h.ID] = want
		rec.HighestMaxStreak = max(rec.HighestMaxStreak, want.MaxStreak)

		stored := model.Aggregate{CurrentStreak: h.CurrentStreak, MaxStreak: h.MaxStreak}
		if stored != want {
			rec.Drifted = append(rec.Drifted, Drift{HabitID: h.ID, Stored: stored, Want: want})
		}
	}
	for _, c := range s.Completions {
		if c.Date == today {
			rec.DoneToday[c.HabitID] = true
		}
	}

	if s.Profile != nil && s.Profile.HighestMaxStreak != rec.HighestMaxStreak {
		rec.ProfileStale = true
	}
	return rec
}

// DatesByHabit groups completion days by habit ID.
func DatesByHabit(completions []model.Completion) map[string][]datekey.Key {
	out := make(map[string][]datekey.Key)
	for _, c := range completions {
		out[c.HabitID] = append(out[c.HabitID], c.Date)
	}
	return out
}

// HighestMaxStreak is the best maxStreak across habits, or 0 with none.
func HighestMaxStreak(habits []model.Habit) int {
	best := 0
	for _, h := range habits {
		best = max(best, h.MaxStreak)
	}
	return best
}

// AllDone reports whether every habit has a completion on day. It is false with no habits.
func AllDone(habits []model.Habit, completions []model.Completion, day datekey.Key) bool {
	if len(habits) == 0 {
		return false
	}
	done := make(map[string]bool)
	for _, c := range completions {
		if c.Date == day {
			done[c.HabitID] = true
		}
	}
	for _, h := range habits {
		if !done[h.ID] {
			return false
		}
	}
	return true
}
