package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/streakforge/internal/model"
)

type HabitStore struct {
	db *sql.DB
}

func NewHabitStore(db *sql.DB) *HabitStore {
	return &HabitStore{db: db}
}

func scanHabit(scanner interface{ Scan(...any) error }) (*model.Habit, error) {
	var h model.Habit
	err := scanner.Scan(&h.ID, &h.OwnerID, &h.Name, &h.CurrentStreak, &h.MaxStreak, &h.Order, &h.Version, &h.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

const habitCols = `id, owner_id, name, current_streak, max_streak, sort_order, version, created_at`

func (s *HabitStore) AddHabit(ctx context.Context, userID string, nh model.NewHabit) (string, error) {
	id := uuid.NewString()
	createdAt := nh.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO habits (id, owner_id, name, sort_order, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, userID, nh.Name, nh.Order, createdAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert habit: %w", err)
	}
	return id, nil
}

func (s *HabitStore) GetHabit(ctx context.Context, userID, habitID string) (*model.Habit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+habitCols+` FROM habits WHERE id = ? AND owner_id = ?`, habitID, userID)
	h, err := scanHabit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get habit: %w", err)
	}
	return h, nil
}

func (s *HabitStore) ListHabits(ctx context.Context, userID string) ([]model.Habit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+habitCols+` FROM habits WHERE owner_id = ? ORDER BY sort_order ASC, created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	defer rows.Close()

	var habits []model.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		habits = append(habits, *h)
	}
	return habits, rows.Err()
}

// UpdateHabitAggregate overwrites the streak fields if the habit is still at expectedVersion.
func (s *HabitStore) UpdateHabitAggregate(ctx context.Context, userID, habitID string, agg model.Aggregate, expectedVersion int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE habits SET current_streak = ?, max_streak = ?, version = version + 1
		 WHERE id = ? AND owner_id = ? AND version = ?`,
		agg.CurrentStreak, agg.MaxStreak, habitID, userID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update habit aggregate: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	h, err := s.GetHabit(ctx, userID, habitID)
	if err != nil {
		return err
	}
	if h == nil {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func (s *HabitStore) RenameHabit(ctx context.Context, userID, habitID, name string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE habits SET name = ? WHERE id = ? AND owner_id = ?`,
		name, habitID, userID,
	)
	if err != nil {
		return fmt.Errorf("rename habit: %w", err)
	}
	return requireOneRow(result)
}

// ReorderHabits sets sort_order to each habit's position in ids.
func (s *HabitStore) ReorderHabits(ctx context.Context, userID string, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE habits SET sort_order = ? WHERE id = ? AND owner_id = ?`, i, id, userID); err != nil {
			return fmt.Errorf("update sort order: %w", err)
		}
	}
	return tx.Commit()
}

func (s *HabitStore) DeleteHabit(ctx context.Context, userID, habitID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM habits WHERE id = ? AND owner_id = ?`, habitID, userID)
	if err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	return nil
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
