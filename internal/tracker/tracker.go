// Package tracker keeps habit streak aggregates in step with completions.
//
// Every mutation of a user's habits runs under that user's lock, and aggregate
// writes are compare-and-set on the habit version, so two toggles can no longer
// interleave their read-recompute-write cycles and lose an update. Failures are
// returned without rollback; the next toggle or a Recompute pass repairs any
// aggregate left behind.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/streakforge/internal/apperr"
	"github.com/dukerupert/streakforge/internal/datekey"
	"github.com/dukerupert/streakforge/internal/metrics"
	"github.com/dukerupert/streakforge/internal/model"
	"github.com/dukerupert/streakforge/internal/store"
	"github.com/dukerupert/streakforge/internal/streak"
	"github.com/dukerupert/streakforge/internal/websocket"
)

const maxAggregateAttempts = 3

// Store is the part of the habit store adapter the synchronizer needs.
type Store interface {
	AddHabit(ctx context.Context, userID string, h model.NewHabit) (string, error)
	GetHabit(ctx context.Context, userID, habitID string) (*model.Habit, error)
	ListHabits(ctx context.Context, userID string) ([]model.Habit, error)
	UpdateHabitAggregate(ctx context.Context, userID, habitID string, agg model.Aggregate, expectedVersion int64) error
	RenameHabit(ctx context.Context, userID, habitID, name string) error
	ReorderHabits(ctx context.Context, userID string, ids []string) error
	DeleteHabit(ctx context.Context, userID, habitID string) error

	FindCompletion(ctx context.Context, userID, habitID string, date datekey.Key) (*model.Completion, error)
	AddCompletion(ctx context.Context, userID string, c model.NewCompletion) (string, error)
	DeleteCompletion(ctx context.Context, userID, completionID string) error
	ListCompletions(ctx context.Context, userID, habitID string) ([]model.Completion, error)
	DeleteCompletionsForHabit(ctx context.Context, userID, habitID string) (int64, error)

	GetProfile(ctx context.Context, uid string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, uid string, u model.ProfileUpdate) error
}

// Publisher receives change notifications for a user.
type Publisher interface {
	Publish(userID string, msg websocket.Message)
}

// ToggleResult is the state of a habit after a toggle.
type ToggleResult struct {
	Habit            *model.Habit `json:"habit"`
	Date             datekey.Key  `json:"date"`
	Done             bool         `json:"done"`
	HighestMaxStreak int          `json:"highest_max_streak"`
}

type Synchronizer struct {
	store  Store
	hub    Publisher
	clock  *datekey.Clock
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a Synchronizer. hub may be nil.
func New(st Store, hub Publisher, clock *datekey.Clock, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		store:  st,
		hub:    hub,
		clock:  clock,
		logger: logger,
		locks:  make(map[string]*userLock),
	}
}

// Today is the current date key in the configured timezone.
func (s *Synchronizer) Today() datekey.Key {
	return s.clock.Today()
}

// Toggle flips the completion of habitID on date (today when empty), then
// recomputes the habit aggregate from all of its completions and refreshes the
// profile's highest max streak.
func (s *Synchronizer) Toggle(ctx context.Context, userID, habitID string, date datekey.Key) (*ToggleResult, error) {
	defer observe("toggle", time.Now())
	outcome := "error"
	defer func() { metrics.Toggles.WithLabelValues(outcome).Inc() }()

	today := s.clock.Today()
	if date == "" {
		date = today
	}
	if !date.Valid() {
		return nil, apperr.Validation("invalid date %q", date)
	}
	if datekey.DayDiff(today, date) > 0 {
		return nil, apperr.Validation("cannot complete a habit on a future date")
	}

	unlock := s.lock(userID)
	defer unlock()

	habit, err := s.store.GetHabit(ctx, userID, habitID)
	if err != nil {
		return nil, err
	}
	if habit == nil {
		return nil, apperr.NotFound("habit not found")
	}

	existing, err := s.store.FindCompletion(ctx, userID, habitID, date)
	if err != nil {
		return nil, err
	}

	extra := map[string]any{"habit_id": habitID, "date": date.String()}
	done := false
	if existing != nil {
		if err := s.store.DeleteCompletion(ctx, userID, existing.ID); err != nil {
			return nil, err
		}
		outcome = "removed"
		s.publish(userID, websocket.NewMessage("completion", "deleted", existing.ID, extra))
	} else {
		id, err := s.store.AddCompletion(ctx, userID, model.NewCompletion{HabitID: habitID, Date: date})
		switch {
		case errors.Is(err, store.ErrDuplicate):
			outcome = "already_present"
		case err != nil:
			return nil, err
		default:
			outcome = "added"
			s.publish(userID, websocket.NewMessage("completion", "created", id, extra))
		}
		done = true
	}

	updated, err := s.syncHabit(ctx, userID, habitID, today)
	if err != nil {
		outcome = "error"
		return nil, err
	}
	highest, err := s.syncProfile(ctx, userID)
	if err != nil {
		outcome = "error"
		return nil, err
	}

	s.logger.Debug("completion toggled", "user_id", userID, "habit_id", habitID, "date", date, "done", done)
	return &ToggleResult{Habit: updated, Date: date, Done: done, HighestMaxStreak: highest}, nil
}

// AddHabit creates a habit at the end of the user's list.
func (s *Synchronizer) AddHabit(ctx context.Context, userID, name string) (*model.Habit, error) {
	defer observe("add_habit", time.Now())

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("habit name is required")
	}

	unlock := s.lock(userID)
	defer unlock()

	habits, err := s.store.ListHabits(ctx, userID)
	if err != nil {
		return nil, err
	}
	id, err := s.store.AddHabit(ctx, userID, model.NewHabit{
		Name:      name,
		Order:     len(habits),
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	h, err := s.store.GetHabit(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("habit %s missing after insert", id)
	}

	s.publish(userID, websocket.NewMessage("habit", "created", id, nil))
	return h, nil
}

// RenameHabit changes a habit's name.
func (s *Synchronizer) RenameHabit(ctx context.Context, userID, habitID, name string) (*model.Habit, error) {
	defer observe("rename_habit", time.Now())

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("habit name is required")
	}

	unlock := s.lock(userID)
	defer unlock()

	err := s.store.RenameHabit(ctx, userID, habitID, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("habit not found")
	}
	if err != nil {
		return nil, err
	}
	h, err := s.store.GetHabit(ctx, userID, habitID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, apperr.NotFound("habit not found")
	}

	s.publish(userID, websocket.NewMessage("habit", "updated", habitID, map[string]any{"name": name}))
	return h, nil
}

// ReorderHabits sets the display order. ids must name every habit of the user exactly once.
func (s *Synchronizer) ReorderHabits(ctx context.Context, userID string, ids []string) error {
	defer observe("reorder_habits", time.Now())

	unlock := s.lock(userID)
	defer unlock()

	habits, err := s.store.ListHabits(ctx, userID)
	if err != nil {
		return err
	}
	if !samePermutation(habits, ids) {
		return apperr.Validation("sort order must list every habit exactly once")
	}
	if err := s.store.ReorderHabits(ctx, userID, ids); err != nil {
		return err
	}

	s.publish(userID, websocket.NewMessage("habit", "reordered", "", nil))
	return nil
}

// DeleteHabit removes a habit and then its completions, then refreshes the
// profile aggregate. A failure midway leaves orphaned completions, which no
// longer affect any aggregate.
func (s *Synchronizer) DeleteHabit(ctx context.Context, userID, habitID string) error {
	defer observe("delete_habit", time.Now())

	unlock := s.lock(userID)
	defer unlock()

	h, err := s.store.GetHabit(ctx, userID, habitID)
	if err != nil {
		return err
	}
	if h == nil {
		return apperr.NotFound("habit not found")
	}

	if err := s.store.DeleteHabit(ctx, userID, habitID); err != nil {
		return err
	}
	s.publish(userID, websocket.NewMessage("habit", "deleted", habitID, nil))

	n, err := s.store.DeleteCompletionsForHabit(ctx, userID, habitID)
	if err != nil {
		s.logger.Warn("habit deleted but completions remain", "user_id", userID, "habit_id", habitID, "error", err)
		return err
	}
	if n > 0 {
		s.publish(userID, websocket.NewMessage("completion", "deleted", "", map[string]any{"habit_id": habitID, "count": n}))
	}

	if _, err := s.syncProfile(ctx, userID); err != nil {
		return err
	}
	return nil
}

// Recompute re-derives every habit aggregate and the profile aggregate from
// the stored completions, writing only what drifted.
func (s *Synchronizer) Recompute(ctx context.Context, userID string) (*streak.Reconciliation, error) {
	defer observe("recompute", time.Now())

	unlock := s.lock(userID)
	defer unlock()

	today := s.clock.Today()
	snap, err := s.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec := streak.Reconcile(*snap, today)

	for _, d := range rec.Drifted {
		if _, err := s.syncHabit(ctx, userID, d.HabitID, today); err != nil {
			return nil, err
		}
	}
	if rec.ProfileStale || len(rec.Drifted) > 0 {
		if _, err := s.syncProfile(ctx, userID); err != nil {
			return nil, err
		}
	}

	if len(rec.Drifted) > 0 {
		s.logger.Info("aggregates repaired", "user_id", userID, "habits", len(rec.Drifted))
	}
	return &rec, nil
}

// Snapshot reads the user's profile, habits and completions.
func (s *Synchronizer) Snapshot(ctx context.Context, userID string) (*streak.Snapshot, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	habits, err := s.store.ListHabits(ctx, userID)
	if err != nil {
		return nil, err
	}
	completions, err := s.store.ListCompletions(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	return &streak.Snapshot{Profile: profile, Habits: habits, Completions: completions}, nil
}

func (s *Synchronizer) Habits(ctx context.Context, userID string) ([]model.Habit, error) {
	return s.store.ListHabits(ctx, userID)
}

func (s *Synchronizer) Completions(ctx context.Context, userID, habitID string) ([]model.Completion, error) {
	return s.store.ListCompletions(ctx, userID, habitID)
}

// syncHabit writes the aggregate derived from all of the habit's completions.
// The version is read before the completions so a concurrent writer forces a retry.
// The write happens even when the aggregate is unchanged: it bumps the version,
// which invalidates any other writer still holding an older read.
func (s *Synchronizer) syncHabit(ctx context.Context, userID, habitID string, today datekey.Key) (*model.Habit, error) {
	for attempt := 0; attempt < maxAggregateAttempts; attempt++ {
		h, err := s.store.GetHabit(ctx, userID, habitID)
		if err != nil {
			return nil, err
		}
		if h == nil {
			return nil, apperr.NotFound("habit not found")
		}

		completions, err := s.store.ListCompletions(ctx, userID, habitID)
		if err != nil {
			return nil, err
		}
		dates := make([]datekey.Key, len(completions))
		for i, c := range completions {
			dates[i] = c.Date
		}
		r := streak.Compute(dates, today)
		agg := model.Aggregate{CurrentStreak: r.Current, MaxStreak: r.Longest}

		err = s.store.UpdateHabitAggregate(ctx, userID, habitID, agg, h.Version)
		if errors.Is(err, store.ErrVersionConflict) {
			metrics.AggregateConflicts.Inc()
			s.logger.Debug("aggregate version conflict", "habit_id", habitID, "attempt", attempt+1)
			continue
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("habit not found")
		}
		if err != nil {
			return nil, err
		}

		h.CurrentStreak = agg.CurrentStreak
		h.MaxStreak = agg.MaxStreak
		h.Version++
		s.publish(userID, websocket.NewMessage("habit", "updated", habitID, map[string]any{
			"current_streak": agg.CurrentStreak,
			"max_streak":     agg.MaxStreak,
		}))
		return h, nil
	}

	s.logger.Warn("aggregate update gave up", "user_id", userID, "habit_id", habitID)
	return nil, fmt.Errorf("update habit %s aggregate: %w", habitID, store.ErrVersionConflict)
}

// syncProfile sets highestMaxStreak to the best maxStreak across the user's habits.
func (s *Synchronizer) syncProfile(ctx context.Context, userID string) (int, error) {
	habits, err := s.store.ListHabits(ctx, userID)
	if err != nil {
		return 0, err
	}
	highest := streak.HighestMaxStreak(habits)

	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	if p == nil {
		s.logger.Warn("no profile to update", "user_id", userID)
		return highest, nil
	}
	if p.HighestMaxStreak == highest {
		return highest, nil
	}

	if err := s.store.UpdateProfile(ctx, userID, model.ProfileUpdate{HighestMaxStreak: &highest}); err != nil {
		return 0, err
	}
	s.publish(userID, websocket.NewMessage("profile", "updated", userID, map[string]any{"highest_max_streak": highest}))
	return highest, nil
}

func (s *Synchronizer) publish(userID string, msg websocket.Message) {
	if s.hub != nil {
		s.hub.Publish(userID, msg)
	}
}

// lock serializes mutations for one user and returns the matching unlock.
func (s *Synchronizer) lock(userID string) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.mu.Unlock()
	}
}

func samePermutation(habits []model.Habit, ids []string) bool {
	if len(habits) != len(ids) {
		return false
	}
	owned := make(map[string]bool, len(habits))
	for _, h := range habits {
		owned[h.ID] = true
	}
	for _, id := range ids {
		if !owned[id] {
			return false
		}
		delete(owned, id)
	}
	return true
}

func observe(op string, start time.Time) {
	metrics.SyncDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
