package habits

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and for running the server
// without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	habits map[string][]*Habit // by user, in creation order
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{habits: make(map[string][]*Habit), now: time.Now}
}

func (m *MemoryStore) ListHabits(ctx context.Context, userID string) ([]Habit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Habit, 0, len(m.habits[userID]))
	for _, h := range m.habits[userID] {
		c := *h
		c.Completions = append([]time.Time(nil), h.Completions...)
		out = append(out, c)
	}
	return out, nil
}

func (m *MemoryStore) CreateHabit(ctx context.Context, userID, name, color string) (Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.habits[userID] {
		if strings.EqualFold(h.Name, name) {
			return Habit{}, ErrDuplicateHabit
		}
	}
	h := &Habit{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Color:     color,
		CreatedAt: m.now().UTC(),
	}
	m.habits[userID] = append(m.habits[userID], h)
	return *h, nil
}

func (m *MemoryStore) ToggleCompletion(ctx context.Context, userID, habitID string, day time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.find(userID, habitID)
	if h == nil {
		return false, ErrNotFound
	}
	day = CalendarDay(day)
	for i, c := range h.Completions {
		if c.Equal(day) {
			h.Completions = append(h.Completions[:i:i], h.Completions[i+1:]...)
			return false, nil
		}
	}
	h.Completions = append(h.Completions, day)
	sortDays(h.Completions)
	return true, nil
}

func (m *MemoryStore) RenameHabit(ctx context.Context, userID, habitID, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.find(userID, habitID)
	if h == nil {
		return ErrNotFound
	}
	for _, o := range m.habits[userID] {
		if o.ID != habitID && strings.EqualFold(o.Name, newName) {
			return ErrDuplicateHabit
		}
	}
	h.Name = newName
	return nil
}

func (m *MemoryStore) DeleteHabit(ctx context.Context, userID, habitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	hs := m.habits[userID]
	for i, h := range hs {
		if h.ID == habitID {
			m.habits[userID] = append(hs[:i:i], hs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) find(userID, habitID string) *Habit {
	for _, h := range m.habits[userID] {
		if h.ID == habitID {
			return h
		}
	}
	return nil
}
