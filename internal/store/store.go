// Package store persists habits, chat history, push tokens and turn events
// in Postgres.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lukasbauer/habitvoice/internal/habits"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Migrate creates missing tables and indexes. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ListHabits returns the user's habits in creation order with their
// completion days.
func (s *Store) ListHabits(ctx context.Context, userID string) ([]habits.Habit, error) {
	rows, err := s.db.Query(ctx, `
		SELECT h.id, h.user_id, h.name, h.color, h.created_at,
		       COALESCE(array_agg(e.day ORDER BY e.day) FILTER (WHERE e.day IS NOT NULL), '{}')
		FROM habits h
		LEFT JOIN habit_entries e ON e.habit_id = h.id
		WHERE h.user_id = $1
		GROUP BY h.id
		ORDER BY h.created_at, h.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []habits.Habit
	for rows.Next() {
		var h habits.Habit
		var days []time.Time
		if err := rows.Scan(&h.ID, &h.UserID, &h.Name, &h.Color, &h.CreatedAt, &days); err != nil {
			return nil, err
		}
		for _, d := range days {
			h.Completions = append(h.Completions, habits.CalendarDay(d))
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) CreateHabit(ctx context.Context, userID, name, color string) (habits.Habit, error) {
	h := habits.Habit{UserID: userID, Name: name, Color: color}
	err := s.db.QueryRow(ctx, `
		INSERT INTO habits (user_id, name, color)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, userID, name, color).Scan(&h.ID, &h.CreatedAt)
	if isUniqueViolation(err) {
		return habits.Habit{}, habits.ErrDuplicateHabit
	}
	if err != nil {
		return habits.Habit{}, err
	}
	return h, nil
}

// ToggleCompletion adds or removes one day in a single transaction.
func (s *Store) ToggleCompletion(ctx context.Context, userID, habitID string, day time.Time) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT true FROM habits WHERE id = $1 AND user_id = $2 FOR UPDATE
	`, habitID, userID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, habits.ErrNotFound
	}
	if err != nil {
		return false, err
	}

	key := habits.DateKey(habits.CalendarDay(day))
	tag, err := tx.Exec(ctx, `
		DELETE FROM habit_entries WHERE habit_id = $1 AND day = $2::date
	`, habitID, key)
	if err != nil {
		return false, err
	}
	completed := tag.RowsAffected() == 0
	if completed {
		if _, err := tx.Exec(ctx, `
			INSERT INTO habit_entries (habit_id, day) VALUES ($1, $2::date)
		`, habitID, key); err != nil {
			return false, err
		}
	}
	return completed, tx.Commit(ctx)
}

func (s *Store) RenameHabit(ctx context.Context, userID, habitID, newName string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE habits SET name = $3 WHERE id = $1 AND user_id = $2
	`, habitID, userID, newName)
	if isUniqueViolation(err) {
		return habits.ErrDuplicateHabit
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return habits.ErrNotFound
	}
	return nil
}

// DeleteHabit removes the habit; its entries go with it through the
// foreign key cascade.
func (s *Store) DeleteHabit(ctx context.Context, userID, habitID string) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM habits WHERE id = $1 AND user_id = $2
	`, habitID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return habits.ErrNotFound
	}
	return nil
}
