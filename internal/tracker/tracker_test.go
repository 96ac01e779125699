package tracker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/streakforge/internal/apperr"
	"github.com/dukerupert/streakforge/internal/database"
	"github.com/dukerupert/streakforge/internal/datekey"
	"github.com/dukerupert/streakforge/internal/model"
	"github.com/dukerupert/streakforge/internal/store"
	"github.com/dukerupert/streakforge/internal/websocket"
)

const uid = "u1"

var today = datekey.MustParse("2026-10-16")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	sync *Synchronizer
	docs *store.Documents
	hub  *websocket.Hub
}

func setup(t *testing.T) fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	docs := store.NewDocuments(db)
	require.NoError(t, docs.CreateProfile(context.Background(), model.Profile{UID: uid, Email: "alice@example.com"}))

	hub := websocket.NewHub(discardLogger())
	clock := datekey.NewFixedClock(time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC), time.UTC)
	return fixture{sync: New(docs, hub, clock, discardLogger()), docs: docs, hub: hub}
}

func (f fixture) highest(t *testing.T) int {
	t.Helper()
	p, err := f.docs.GetProfile(context.Background(), uid)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.HighestMaxStreak
}

func TestToggleAddsThenRemoves(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	h, err := f.sync.AddHabit(ctx, uid, "Read")
	require.NoError(t, err)

	res, err := f.sync.Toggle(ctx, uid, h.ID, "")
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, today, res.Date)
	assert.Equal(t, 1, res.Habit.CurrentStreak)
	assert.Equal(t, 1, res.Habit.MaxStreak)
	assert.Equal(t, 1, res.HighestMaxStreak)
	assert.Equal(t, 1, f.highest(t))

	res, err = f.sync.Toggle(ctx, uid, h.ID, "")
	require.NoError(t, err)
	assert.False(t, res.Done)
	assert.Equal(t, 0, res.Habit.CurrentStreak)
	assert.Equal(t, 0, res.Habit.MaxStreak)
	assert.Equal(t, 0, f.highest(t))

	completions, err := f.docs.ListCompletions(ctx, uid, h.ID)
	require.NoError(t, err)
	assert.Empty(t, completions)
}

func TestToggleTwiceRestoresAggregate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	h, err := f.sync.AddHabit(ctx, uid, "Run")
	require.NoError(t, err)
	for _, d := range []datekey.Key{today.AddDays(-1), today.AddDays(-2)} {
		_, err := f.sync.Toggle(ctx, uid, h.ID, d)
		require.NoError(t, err)
	}

	before, err := f.docs.GetHabit(ctx, uid, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, before.CurrentStreak)

	res, err := f.sync.Toggle(ctx, uid, h.ID, today)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Habit.CurrentStreak)
	assert.Equal(t, 3, res.Habit.MaxStreak)

	res, err = f.sync.Toggle(ctx, uid, h.ID, today)
	require.NoError(t, err)
	assert.Equal(t, before.CurrentStreak, res.Habit.CurrentStreak)
	assert.Equal(t, before.MaxStreak, res.Habit.MaxStreak)
}

func TestToggleRejectsFutureAndMalformedDates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	h, err := f.sync.AddHabit(ctx, uid, "Read")
	require.NoError(t, err)

	_, err = f.sync.Toggle(ctx, uid, h.ID, today.AddDays(1))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.sync.Toggle(ctx, uid, h.ID, "16/10/2026")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	completions, err := f.docs.ListCompletions(ctx, uid, h.ID)
	require.NoError(t, err)
	assert.Empty(t, completions)
}

func TestToggleUnknownHabit(t *testing.T) {
	f := setup(t)

	_, err := f.sync.Toggle(context.Background(), uid, "missing", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestToggleOtherUsersHabit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	h, err := f.sync.AddHabit(ctx, uid, "Read")
	require.NoError(t, err)

	_, err = f.sync.Toggle(ctx, "intruder", h.ID, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteOnlyHabitResetsHighest(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	h, err := f.sync.AddHabit(ctx, uid, "Meditate")
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		_, err := f.sync.Toggle(ctx, uid, h.ID, today.AddDays(-i))
		require.NoError(t, err)
	}
	require.Equal(t, 7, f.highest(t))

	require.NoError(t, f.sync.DeleteHabit(ctx, uid, h.ID))

	assert.Equal(t, 0, f.highest(t))
	habits, err := f.docs.ListHabits(ctx, uid)
	require.NoError(t, err)
	assert.Empty(t, habits)
	completions, err := f.docs.ListCompletions(ctx, uid, "")
	require.NoError(t, err)
	assert.Empty(t, completions)
}

func TestDeleteHabitKeepsBestOfRemaining(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	long, _ := f.sync.AddHabit(ctx, uid, "Long")
	short, _ := f.sync.AddHabit(ctx, uid, "Short")
	for i := 0; i < 4; i++ {
		_, err := f.sync.Toggle(ctx, uid, long.ID, today.AddDays(-i))
		require.NoError(t, err)
	}
	_, err := f.sync.Toggle(ctx, uid, short.ID, today)
	require.NoError(t, err)
	require.Equal(t, 4, f.highest(t))

	require.NoError(t, f.sync.DeleteHabit(ctx, uid, long.ID))
	assert.Equal(t, 1, f.highest(t))

	err = f.sync.DeleteHabit(ctx, uid, long.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAddHabit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a, err := f.sync.AddHabit(ctx, uid, "  Read  ")
	require.NoError(t, err)
	assert.Equal(t, "Read", a.Name)
	assert.Equal(t, 0, a.Order)

	b, err := f.sync.AddHabit(ctx, uid, "Run")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Order)

	_, err = f.sync.AddHabit(ctx, uid, "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRenameHabit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	h, _ := f.sync.AddHabit(ctx, uid, "Read")

	renamed, err := f.sync.RenameHabit(ctx, uid, h.ID, "Read 20 pages")
	require.NoError(t, err)
	assert.Equal(t, "Read 20 pages", renamed.Name)

	_, err = f.sync.RenameHabit(ctx, uid, h.ID, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.sync.RenameHabit(ctx, uid, "missing", "x")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReorderHabits(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a, _ := f.sync.AddHabit(ctx, uid, "A")
	b, _ := f.sync.AddHabit(ctx, uid, "B")
	c, _ := f.sync.AddHabit(ctx, uid, "C")

	require.NoError(t, f.sync.ReorderHabits(ctx, uid, []string{c.ID, a.ID, b.ID}))
	habits, err := f.sync.Habits(ctx, uid)
	require.NoError(t, err)
	require.Len(t, habits, 3)
	assert.Equal(t, []string{"C", "A", "B"}, []string{habits[0].Name, habits[1].Name, habits[2].Name})

	err = f.sync.ReorderHabits(ctx, uid, []string{a.ID, b.ID})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	err = f.sync.ReorderHabits(ctx, uid, []string{a.ID, a.ID, b.ID})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRecomputeRepairsDrift(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	h, _ := f.sync.AddHabit(ctx, uid, "Read")
	for i := 0; i < 3; i++ {
		_, err := f.sync.Toggle(ctx, uid, h.ID, today.AddDays(-i))
		require.NoError(t, err)
	}

	stale, err := f.docs.GetHabit(ctx, uid, h.ID)
	require.NoError(t, err)
	require.NoError(t, f.docs.UpdateHabitAggregate(ctx, uid, h.ID, model.Aggregate{CurrentStreak: 9, MaxStreak: 9}, stale.Version))
	nine := 9
	require.NoError(t, f.docs.UpdateProfile(ctx, uid, model.ProfileUpdate{HighestMaxStreak: &nine}))

	rec, err := f.sync.Recompute(ctx, uid)
	require.NoError(t, err)
	require.Len(t, rec.Drifted, 1)
	assert.True(t, rec.ProfileStale)

	fixed, err := f.docs.GetHabit(ctx, uid, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, fixed.CurrentStreak)
	assert.Equal(t, 3, fixed.MaxStreak)
	assert.Equal(t, 3, f.highest(t))
}

// conflictStore fails the next n aggregate writes with a version conflict.
type conflictStore struct {
	Store
	n int
}

func (c *conflictStore) UpdateHabitAggregate(ctx context.Context, userID, habitID string, agg model.Aggregate, v int64) error {
	if c.n > 0 {
		c.n--
		return store.ErrVersionConflict
	}
	return c.Store.UpdateHabitAggregate(ctx, userID, habitID, agg, v)
}

func TestToggleRetriesVersionConflict(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	h, err := f.sync.AddHabit(ctx, uid, "Read")
	require.NoError(t, err)

	cs := &conflictStore{Store: f.docs, n: maxAggregateAttempts - 1}
	s := New(cs, nil, f.sync.clock, discardLogger())

	res, err := s.Toggle(ctx, uid, h.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Habit.CurrentStreak)
	assert.Equal(t, 0, cs.n)
}

func TestToggleGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	h, err := f.sync.AddHabit(ctx, uid, "Read")
	require.NoError(t, err)

	s := New(&conflictStore{Store: f.docs, n: maxAggregateAttempts}, nil, f.sync.clock, discardLogger())

	_, err = s.Toggle(ctx, uid, h.ID, "")
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	// The completion stays; the next toggle or a recompute repairs the aggregate.
	c, err := f.docs.FindCompletion(ctx, uid, h.ID, today)
	require.NoError(t, err)
	assert.NotNil(t, c)

	rec, err := f.sync.Recompute(ctx, uid)
	require.NoError(t, err)
	assert.Len(t, rec.Drifted, 1)
}

// interleaveStore runs between once, right after the first completions read,
// standing in for another process writing between a read and its write.
type interleaveStore struct {
	Store
	between func()
}

func (s *interleaveStore) ListCompletions(ctx context.Context, userID, habitID string) ([]model.Completion, error) {
	out, err := s.Store.ListCompletions(ctx, userID, habitID)
	if fn := s.between; fn != nil {
		s.between = nil
		fn()
	}
	return out, err
}

func TestUnchangedAggregateStillInvalidatesStaleWriter(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	h, err := f.sync.AddHabit(ctx, uid, "Read")
	require.NoError(t, err)
	_, err = f.sync.Toggle(ctx, uid, h.ID, today)
	require.NoError(t, err)

	// Two processes share the store but not the in-process user lock.
	other := New(f.docs, nil, f.sync.clock, discardLogger())
	is := &interleaveStore{Store: f.docs}
	is.between = func() {
		// Adding yesterday leaves the aggregate at 1/1, the value already stored.
		res, err := other.Toggle(ctx, uid, h.ID, today.AddDays(-1))
		require.NoError(t, err)
		require.True(t, res.Done)
	}
	s := New(is, nil, f.sync.clock, discardLogger())

	res, err := s.Toggle(ctx, uid, h.ID, today)
	require.NoError(t, err)
	assert.False(t, res.Done)

	got, err := f.docs.GetHabit(ctx, uid, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentStreak, "yesterday keeps the streak alive")
	assert.Equal(t, 1, got.MaxStreak)
	assert.Equal(t, 1, f.highest(t))
}

func TestConcurrentTogglesKeepEveryUpdate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	h, err := f.sync.AddHabit(ctx, uid, "Read")
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			_, err := f.sync.Toggle(ctx, uid, h.ID, today.AddDays(-offset))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := f.docs.GetHabit(ctx, uid, h.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.CurrentStreak)
	assert.Equal(t, n, got.MaxStreak)
	assert.Equal(t, n, f.highest(t))
}

func TestTogglePublishesChanges(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	h, err := f.sync.AddHabit(ctx, uid, "Read")
	require.NoError(t, err)

	var mu sync.Mutex
	var types []string
	cancel := f.hub.Subscribe(uid, func(m websocket.Message) {
		mu.Lock()
		types = append(types, m.Type)
		mu.Unlock()
	})
	defer cancel()

	_, err = f.sync.Toggle(ctx, uid, h.ID, "")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"completion_created", "habit_updated", "profile_updated"}, types)
}

func TestSnapshot(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	h, _ := f.sync.AddHabit(ctx, uid, "Read")
	_, err := f.sync.Toggle(ctx, uid, h.ID, "")
	require.NoError(t, err)

	snap, err := f.sync.Snapshot(ctx, uid)
	require.NoError(t, err)
	require.NotNil(t, snap.Profile)
	assert.Len(t, snap.Habits, 1)
	assert.Len(t, snap.Completions, 1)
}
