// Package habits applies resolved voice and chat commands to a user's habit
// store.
package habits

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

const DefaultColor = "#2ecc40"

var (
	ErrDuplicateHabit = errors.New("habits: duplicate habit name")
	ErrNotFound       = errors.New("habits: habit not found")
)

type Habit struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
	// Completions holds calendar days at midnight UTC, ascending.
	Completions []time.Time `json:"completions"`
}

// CompletedOn reports whether day is in the completion set.
func (h Habit) CompletedOn(day time.Time) bool {
	key := DateKey(day)
	for _, c := range h.Completions {
		if DateKey(c) == key {
			return true
		}
	}
	return false
}

// Store is the habit persistence the executor needs. Each method is a
// single atomic update; names compare case-insensitively.
type Store interface {
	ListHabits(ctx context.Context, userID string) ([]Habit, error)
	// CreateHabit fails with ErrDuplicateHabit on a name clash.
	CreateHabit(ctx context.Context, userID, name, color string) (Habit, error)
	// ToggleCompletion flips membership of day and reports the new state.
	ToggleCompletion(ctx context.Context, userID, habitID string, day time.Time) (bool, error)
	// RenameHabit keeps color and history; ErrDuplicateHabit on clash.
	RenameHabit(ctx context.Context, userID, habitID, newName string) error
	// DeleteHabit removes the habit and all of its completions.
	DeleteHabit(ctx context.Context, userID, habitID string) error
}

// DateKey is the canonical storage key of a calendar day.
func DateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// CalendarDay maps the wall-clock date of t to midnight UTC, the form
// completions are stored in.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func names(hs []Habit) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.Name
	}
	return out
}

func findByName(hs []Habit, name string) (Habit, bool) {
	for _, h := range hs {
		if strings.EqualFold(h.Name, name) {
			return h, true
		}
	}
	return Habit{}, false
}

func sortDays(days []time.Time) {
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
}
