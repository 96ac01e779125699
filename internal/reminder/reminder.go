// Package reminder sends each user a daily push reminder at their chosen time
// while any of their habits is still open for the day.
//
// Every user gets one single-shot timer aimed at the next occurrence of their
// reminder time. The timer is re-armed after it fires and whenever the user's
// reminder settings change, so nothing polls.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/streakforge/internal/datekey"
	"github.com/dukerupert/streakforge/internal/model"
	"github.com/dukerupert/streakforge/internal/push"
	"github.com/dukerupert/streakforge/internal/streak"
	"github.com/dukerupert/streakforge/internal/websocket"
)

const (
	Title = "StreakForge Reminder"
	Body  = "Don't forget to complete your habits and keep your streaks alive!"
)

type Store interface {
	GetProfile(ctx context.Context, uid string) (*model.Profile, error)
	ListReminderProfiles(ctx context.Context) ([]model.Profile, error)
	ListHabits(ctx context.Context, userID string) ([]model.Habit, error)
	ListCompletions(ctx context.Context, userID, habitID string) ([]model.Completion, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID string, payload push.Payload) (int, error)
}

type Subscriber interface {
	Subscribe(userID string, fn func(websocket.Message)) (cancel func())
}

// ParseTime parses a 24-hour "HH:MM" reminder time.
func ParseTime(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil || len(s) != 5 {
		return 0, 0, fmt.Errorf("invalid reminder time %q, want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// NextFire returns the first instant strictly after now that reads hhmm on a
// wall clock in loc.
func NextFire(now time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	hour, minute, err := ParseTime(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(now) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next, nil
}

type entry struct {
	timer *time.Timer
	at    time.Time
	gen   uint64
}

// Scheduler owns one reminder timer per user.
type Scheduler struct {
	store    Store
	notifier Notifier
	hub      Subscriber
	clock    *datekey.Clock
	logger   *slog.Logger

	mu          sync.Mutex
	entries     map[string]*entry
	gen         uint64
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

func NewScheduler(st Store, notifier Notifier, hub Subscriber, clock *datekey.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    st,
		notifier: notifier,
		hub:      hub,
		clock:    clock,
		logger:   logger,
		entries:  make(map[string]*entry),
	}
}

// Start arms a timer for every user with reminders enabled and begins
// following reminder changes published on the hub.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	profiles, err := s.store.ListReminderProfiles(ctx)
	if err != nil {
		return fmt.Errorf("list reminder profiles: %w", err)
	}
	for i := range profiles {
		s.arm(&profiles[i], time.Time{})
	}

	if s.hub != nil {
		unsubscribe := s.hub.Subscribe("", func(m websocket.Message) {
			if m.Entity != "profile" || m.Action != "updated" {
				return
			}
			_, enabled := m.Extra["reminders_enabled"]
			_, at := m.Extra["reminder_time"]
			if !enabled && !at {
				return
			}
			go s.Refresh(m.UserID)
		})
		s.mu.Lock()
		s.unsubscribe = unsubscribe
		s.mu.Unlock()
	}

	s.logger.Info("reminder scheduler started", "armed", len(profiles))
	return nil
}

// Stop cancels the hub subscription and every pending timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	for uid, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, uid)
	}
}

// Refresh re-reads a user's profile and re-arms or disarms their timer.
func (s *Scheduler) Refresh(userID string) {
	ctx := s.context()
	if ctx.Err() != nil {
		return
	}
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		s.logger.Error("refresh reminder", "user_id", userID, "error", err)
		return
	}
	if p == nil {
		s.disarm(userID)
		return
	}
	s.arm(p, time.Time{})
}

// Next reports when the user's reminder fires next.
func (s *Scheduler) Next(userID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		return time.Time{}, false
	}
	return e.at, true
}

// arm replaces the user's timer. after, when set, is the instant the previous
// timer was aimed at; the new target is strictly later than it.
func (s *Scheduler) arm(p *model.Profile, after time.Time) {
	if !p.RemindersEnabled || p.ReminderTime == nil {
		s.disarm(p.UID)
		return
	}

	now := s.clock.Now()
	from := now
	if after.After(from) {
		from = after
	}
	at, err := NextFire(from, *p.ReminderTime, s.clock.Location())
	if err != nil {
		s.logger.Warn("skipping reminder", "user_id", p.UID, "error", err)
		s.disarm(p.UID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil || s.ctx.Err() != nil {
		return
	}
	if old, ok := s.entries[p.UID]; ok {
		old.timer.Stop()
	}
	s.gen++
	gen := s.gen
	uid := p.UID
	s.entries[uid] = &entry{
		at:    at,
		gen:   gen,
		timer: time.AfterFunc(at.Sub(now), func() { s.fire(uid, gen) }),
	}
	s.logger.Debug("reminder armed", "user_id", uid, "at", at)
}

func (s *Scheduler) disarm(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[userID]; ok {
		e.timer.Stop()
		delete(s.entries, userID)
	}
}

func (s *Scheduler) fire(userID string, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[userID]
	if !ok || e.gen != gen {
		s.mu.Unlock()
		return
	}
	at := e.at
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		s.logger.Error("load profile for reminder", "user_id", userID, "error", err)
		return
	}
	if p == nil {
		s.disarm(userID)
		return
	}
	defer s.arm(p, at)

	if !p.RemindersEnabled || p.ReminderTime == nil {
		return
	}
	due, err := s.due(ctx, userID)
	if err != nil {
		s.logger.Error("check open habits", "user_id", userID, "error", err)
		return
	}
	if !due {
		return
	}

	sent, err := s.notifier.Notify(ctx, userID, push.Payload{Title: Title, Body: Body, URL: "/", Tag: "daily-reminder"})
	if err != nil {
		s.logger.Error("send reminder", "user_id", userID, "error", err)
		return
	}
	s.logger.Info("reminder sent", "user_id", userID, "devices", sent)
}

// due reports whether the user has habits and at least one is not done today.
func (s *Scheduler) due(ctx context.Context, userID string) (bool, error) {
	habits, err := s.store.ListHabits(ctx, userID)
	if err != nil {
		return false, err
	}
	if len(habits) == 0 {
		return false, nil
	}
	completions, err := s.store.ListCompletions(ctx, userID, "")
	if err != nil {
		return false, err
	}
	return !streak.AllDone(habits, completions, s.clock.Today()), nil
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return canceled
	}
	return s.ctx
}

var canceled = func() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}()
