package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/streakforge/internal/datekey"
	"github.com/dukerupert/streakforge/internal/model"
)

type CompletionStore struct {
	db *sql.DB
}

func NewCompletionStore(db *sql.DB) *CompletionStore {
	return &CompletionStore{db: db}
}

func scanCompletion(scanner interface{ Scan(...any) error }) (*model.Completion, error) {
	var c model.Completion
	var day string
	err := scanner.Scan(&c.ID, &c.OwnerID, &c.HabitID, &day, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Date = datekey.Key(day)
	return &c, nil
}

const completionCols = `id, owner_id, habit_id, day, created_at`

func (s *CompletionStore) FindCompletion(ctx context.Context, userID, habitID string, date datekey.Key) (*model.Completion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+completionCols+` FROM completions WHERE owner_id = ? AND habit_id = ? AND day = ?`,
		userID, habitID, string(date),
	)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find completion: %w", err)
	}
	return c, nil
}

// AddCompletion returns ErrDuplicate if the habit already has a completion on that day.
func (s *CompletionStore) AddCompletion(ctx context.Context, userID string, nc model.NewCompletion) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO completions (id, owner_id, habit_id, day, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, userID, nc.HabitID, string(nc.Date), time.Now().UTC(),
	)
	if isUniqueViolation(err) {
		return "", ErrDuplicate
	}
	if err != nil {
		return "", fmt.Errorf("insert completion: %w", err)
	}
	return id, nil
}

func (s *CompletionStore) DeleteCompletion(ctx context.Context, userID, completionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM completions WHERE id = ? AND owner_id = ?`, completionID, userID)
	if err != nil {
		return fmt.Errorf("delete completion: %w", err)
	}
	return nil
}

// ListCompletions returns the user's completions, limited to one habit when habitID is set.
func (s *CompletionStore) ListCompletions(ctx context.Context, userID, habitID string) ([]model.Completion, error) {
	query := `SELECT ` + completionCols + ` FROM completions WHERE owner_id = ?`
	args := []any{userID}
	if habitID != "" {
		query += ` AND habit_id = ?`
		args = append(args, habitID)
	}
	query += ` ORDER BY day ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var completions []model.Completion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		completions = append(completions, *c)
	}
	return completions, rows.Err()
}

// DeleteCompletionsForHabit removes every completion of a habit and reports how many went.
func (s *CompletionStore) DeleteCompletionsForHabit(ctx context.Context, userID, habitID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM completions WHERE owner_id = ? AND habit_id = ?`, userID, habitID)
	if err != nil {
		return 0, fmt.Errorf("delete habit completions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
