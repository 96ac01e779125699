package social

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/streakforge/internal/datekey"
	"github.com/dukerupert/streakforge/internal/model"
	"github.com/dukerupert/streakforge/internal/streak"
)

// Metric selects what the leaderboard ranks by.
type Metric string

const (
	// MetricHighestMaxStreak ranks by each user's all-time best streak.
	MetricHighestMaxStreak Metric = "highest_max_streak"
	// MetricCurrentStreakSum ranks by the sum of live current streaks across habits.
	MetricCurrentStreakSum Metric = "current_streak_sum"
)

// ParseMetric accepts the configured metric name; empty means highest_max_streak.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", MetricHighestMaxStreak:
		return MetricHighestMaxStreak, nil
	case MetricCurrentStreakSum:
		return MetricCurrentStreakSum, nil
	}
	return "", fmt.Errorf("unknown leaderboard metric %q", s)
}

type Entry struct {
	Rank             int    `json:"rank"`
	UID              string `json:"uid"`
	DisplayName      string `json:"display_name"`
	PhotoURL         string `json:"photo_url"`
	HighestMaxStreak int    `json:"highest_max_streak"`
	Score            int    `json:"score"`
	IsViewer         bool   `json:"is_viewer"`
}

// Leaderboard ranks the viewer and their friends by the configured metric.
func (g *Graph) Leaderboard(ctx context.Context, viewerID string) ([]Entry, error) {
	accepted, err := g.acceptedRequests(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	uids := make([]string, 0, len(accepted)+1)
	uids = append(uids, viewerID)
	for _, r := range accepted {
		uids = append(uids, r.Other(viewerID))
	}

	profiles, err := g.fetchProfiles(ctx, uids)
	if err != nil {
		return nil, err
	}

	var sums []int
	if g.metric == MetricCurrentStreakSum {
		sums, err = g.currentStreakSums(ctx, uids)
		if err != nil {
			return nil, err
		}
	}

	entries := make([]Entry, 0, len(uids))
	for i, p := range profiles {
		if p == nil {
			continue
		}
		e := Entry{
			UID:              p.UID,
			DisplayName:      p.DisplayName,
			PhotoURL:         p.PhotoURL,
			HighestMaxStreak: p.HighestMaxStreak,
			Score:            p.HighestMaxStreak,
			IsViewer:         p.UID == viewerID,
		}
		if sums != nil {
			e.Score = sums[i]
		}
		entries = append(entries, e)
	}
	return Rank(entries), nil
}

// Rank sorts entries by descending score, keeping input order for ties, and numbers them from 1.
func Rank(entries []Entry) []Entry {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(b.Score, a.Score)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// currentStreakSums derives each user's live current streaks from their
// completions; stored aggregates lag until the next toggle after a missed day.
func (g *Graph) currentStreakSums(ctx context.Context, uids []string) ([]int, error) {
	today := g.clock.Today()
	sums := make([]int, len(uids))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(profileFetchLimit)
	for i, uid := range uids {
		eg.Go(func() error {
			habits, err := g.store.ListHabits(ctx, uid)
			if err != nil {
				return fmt.Errorf("habits %s: %w", uid, err)
			}
			completions, err := g.store.ListCompletions(ctx, uid, "")
			if err != nil {
				return fmt.Errorf("completions %s: %w", uid, err)
			}
			sums[i] = sumCurrent(habits, completions, today)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return sums, nil
}

func sumCurrent(habits []model.Habit, completions []model.Completion, today datekey.Key) int {
	dates := make(map[string][]datekey.Key, len(habits))
	for _, c := range completions {
		dates[c.HabitID] = append(dates[c.HabitID], c.Date)
	}
	total := 0
	for _, h := range habits {
		total += streak.Compute(dates[h.ID], today).Current
	}
	return total
}
