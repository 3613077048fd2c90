package habits

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/lukasbauer/habitvoice/internal/intent"
	"github.com/lukasbauer/habitvoice/internal/resolve"
)

// Result is the outcome of one executed command.
type Result struct {
	Kind    intent.Kind
	Success bool
	// Mutated is set when the store changed.
	Mutated bool
	Message string
	Data    map[string]any
}

type Executor struct {
	store   Store
	matcher *resolve.Matcher
	locks   *UserLocks
	logger  *log.Logger
	now     func() time.Time
}

func NewExecutor(store Store, matcher *resolve.Matcher, logger *log.Logger) *Executor {
	if matcher == nil {
		matcher = resolve.NewMatcher(0)
	}
	return &Executor{
		store:   store,
		matcher: matcher,
		locks:   NewUserLocks(),
		logger:  logger,
		now:     time.Now,
	}
}

// Habits returns the user's habits for display.
func (e *Executor) Habits(ctx context.Context, userID string) ([]Habit, error) {
	return e.store.ListHabits(ctx, userID)
}

// Handle resolves cmd against the user's current habits and executes it.
// Mutating commands hold the user's write lock from the snapshot through
// the store update, so a rename cannot slip in between resolve and write.
// Resolution errors are returned with the partially resolved command and
// nothing is written.
func (e *Executor) Handle(ctx context.Context, userID string, cmd intent.Command) (Result, resolve.ResolvedCommand, error) {
	if cmd.Kind.Mutating() {
		unlock := e.locks.Lock(userID)
		defer unlock()
	}

	hs, err := e.store.ListHabits(ctx, userID)
	if err != nil {
		return Result{Kind: cmd.Kind}, resolve.ResolvedCommand{Command: cmd}, fmt.Errorf("list habits: %w", err)
	}

	now := e.now()
	rc, err := e.matcher.Resolve(cmd, names(hs), now)
	if err != nil {
		return Result{Kind: cmd.Kind}, rc, err
	}

	res, err := e.apply(ctx, userID, rc, hs, now)
	return res, rc, err
}

// Execute applies an already resolved command.
func (e *Executor) Execute(ctx context.Context, userID string, rc resolve.ResolvedCommand) (Result, error) {
	if rc.Kind.Mutating() {
		unlock := e.locks.Lock(userID)
		defer unlock()
	}
	hs, err := e.store.ListHabits(ctx, userID)
	if err != nil {
		return Result{Kind: rc.Kind}, fmt.Errorf("list habits: %w", err)
	}
	return e.apply(ctx, userID, rc, hs, e.now())
}

func (e *Executor) apply(ctx context.Context, userID string, rc resolve.ResolvedCommand, hs []Habit, now time.Time) (Result, error) {
	switch rc.Kind {
	case intent.Add:
		return e.add(ctx, userID, rc)
	case intent.Complete:
		return e.complete(ctx, userID, rc, hs, now)
	case intent.Rename:
		return e.rename(ctx, userID, rc, hs)
	case intent.Delete:
		return e.delete(ctx, userID, rc, hs)
	case intent.Status:
		return e.status(rc, hs, now)
	case intent.List:
		return e.list(hs, now), nil
	}
	return Result{Kind: rc.Kind}, fmt.Errorf("habits: %s is not a habit action", rc.Kind)
}

func (e *Executor) add(ctx context.Context, userID string, rc resolve.ResolvedCommand) (Result, error) {
	res := Result{Kind: intent.Add}
	if rc.Habit.Outcome == resolve.Matched {
		return res, ErrDuplicateHabit
	}
	h, err := e.store.CreateHabit(ctx, userID, rc.Habit.Requested, DefaultColor)
	if err != nil {
		return res, err
	}
	e.logger.Printf("habits: added %q for user %s", h.Name, userID)

	res.Success, res.Mutated = true, true
	res.Message = fmt.Sprintf("Perfect! I've added '%s' to your habits tracker. You can start tracking it today!", h.Name)
	res.Data = map[string]any{
		"habit_name": h.Name,
		"habit_id":   h.ID,
		"color":      h.Color,
		"created":    true,
	}
	return res, nil
}

func (e *Executor) complete(ctx context.Context, userID string, rc resolve.ResolvedCommand, hs []Habit, now time.Time) (Result, error) {
	res := Result{Kind: intent.Complete}
	h, ok := findByName(hs, rc.Habit.Matched)
	if !ok {
		return res, ErrNotFound
	}
	done, err := e.store.ToggleCompletion(ctx, userID, h.ID, rc.Date)
	if err != nil {
		return res, err
	}

	when := describeDay(rc.Date, now)
	res.Success, res.Mutated = true, true
	if done {
		res.Message = fmt.Sprintf("Awesome! I've marked '%s' as completed %s. You're building great habits!", h.Name, when)
	} else {
		res.Message = fmt.Sprintf("Okay, I've unmarked '%s' for %s.", h.Name, strings.TrimPrefix(when, "on "))
	}
	res.Data = map[string]any{
		"habit_name": h.Name,
		"habit_id":   h.ID,
		"date":       DateKey(rc.Date),
		"completed":  done,
	}
	return res, nil
}

func (e *Executor) rename(ctx context.Context, userID string, rc resolve.ResolvedCommand, hs []Habit) (Result, error) {
	res := Result{Kind: intent.Rename}
	h, ok := findByName(hs, rc.Habit.Matched)
	if !ok {
		return res, ErrNotFound
	}
	if other, clash := findByName(hs, rc.NewName); clash && other.ID != h.ID {
		return res, ErrDuplicateHabit
	}
	if err := e.store.RenameHabit(ctx, userID, h.ID, rc.NewName); err != nil {
		return res, err
	}

	res.Success, res.Mutated = true, true
	res.Message = fmt.Sprintf("Perfect! I've renamed '%s' to '%s'.", h.Name, rc.NewName)
	res.Data = map[string]any{
		"old_name": h.Name,
		"new_name": rc.NewName,
		"habit_id": h.ID,
	}
	return res, nil
}

func (e *Executor) delete(ctx context.Context, userID string, rc resolve.ResolvedCommand, hs []Habit) (Result, error) {
	res := Result{Kind: intent.Delete}
	h, ok := findByName(hs, rc.Habit.Matched)
	if !ok {
		return res, ErrNotFound
	}
	if err := e.store.DeleteHabit(ctx, userID, h.ID); err != nil {
		return res, err
	}
	e.logger.Printf("habits: deleted %q for user %s", h.Name, userID)

	res.Success, res.Mutated = true, true
	res.Message = fmt.Sprintf("I've successfully removed '%s' from your habits tracker.", h.Name)
	res.Data = map[string]any{
		"habit_name": h.Name,
		"habit_id":   h.ID,
		"deleted":    true,
	}
	return res, nil
}

func (e *Executor) status(rc resolve.ResolvedCommand, hs []Habit, now time.Time) (Result, error) {
	res := Result{Kind: intent.Status}
	h, ok := findByName(hs, rc.Habit.Matched)
	if !ok {
		return res, ErrNotFound
	}
	st := ComputeStats(h, now)

	var b strings.Builder
	fmt.Fprintf(&b, "For '%s': You've completed it %d out of the last %d days (%.1f%%). ", h.Name, st.CompletedDays, st.TotalDays, st.Rate)
	fmt.Fprintf(&b, "Current streak: %d %s. ", st.CurrentStreak, plural(st.CurrentStreak, "day", "days"))
	switch {
	case st.CompletedToday:
		b.WriteString("Today it's completed. Keep up the excellent work!")
	case st.CurrentStreak > 0:
		b.WriteString("Today it's not completed yet. You can still complete it today to keep your streak going!")
	default:
		b.WriteString("Today it's not completed yet. Start building your streak today!")
	}

	res.Success = true
	res.Message = b.String()
	res.Data = map[string]any{
		"habit_name":      h.Name,
		"completed_days":  st.CompletedDays,
		"total_days":      st.TotalDays,
		"completion_rate": st.Rate,
		"current_streak":  st.CurrentStreak,
		"completed_today": st.CompletedToday,
	}
	return res, nil
}

func (e *Executor) list(hs []Habit, now time.Time) Result {
	res := Result{Kind: intent.List, Success: true}
	if len(hs) == 0 {
		res.Message = "You don't have any habits yet. Try saying 'Add a habit to drink water' to get started!"
		res.Data = map[string]any{"habits": []any{}, "completed_today": []string{}, "total_count": 0}
		return res
	}

	items := make([]map[string]any, 0, len(hs))
	var done []string
	for _, h := range hs {
		today := h.CompletedOn(now)
		items = append(items, map[string]any{
			"id":              h.ID,
			"name":            h.Name,
			"color":           h.Color,
			"completed_today": today,
		})
		if today {
			done = append(done, h.Name)
		}
	}

	msg := fmt.Sprintf("Your habits are: %s. ", strings.Join(names(hs), ", "))
	if len(done) > 0 {
		msg += fmt.Sprintf("Today you've completed: %s. Great job!", strings.Join(done, ", "))
	} else {
		msg += "You haven't completed any habits today yet. You can do it!"
		done = []string{}
	}
	res.Message = msg
	res.Data = map[string]any{"habits": items, "completed_today": done, "total_count": len(hs)}
	return res
}

type Stats struct {
	CompletedDays  int
	TotalDays      int
	Rate           float64
	CurrentStreak  int
	CompletedToday bool
}

// ComputeStats measures h from its first tracked day (creation or earliest
// completion, whichever is first) through today. The current streak ends
// today, or yesterday while today is still open.
func ComputeStats(h Habit, now time.Time) Stats {
	today := CalendarDay(now)
	first := CalendarDay(h.CreatedAt)
	set := make(map[string]bool, len(h.Completions))
	for _, c := range h.Completions {
		c = CalendarDay(c)
		if c.After(today) {
			continue
		}
		if c.Before(first) {
			first = c
		}
		set[DateKey(c)] = true
	}
	if first.After(today) {
		first = today
	}

	st := Stats{
		CompletedDays:  len(set),
		TotalDays:      int(today.Sub(first).Hours()/24) + 1,
		CompletedToday: set[DateKey(today)],
	}
	st.Rate = math.Round(float64(st.CompletedDays)/float64(st.TotalDays)*1000) / 10

	d := today
	if !st.CompletedToday {
		d = d.AddDate(0, 0, -1)
	}
	for set[DateKey(d)] {
		st.CurrentStreak++
		d = d.AddDate(0, 0, -1)
	}
	return st
}

func describeDay(day, now time.Time) string {
	if DateKey(CalendarDay(day)) == DateKey(CalendarDay(now)) {
		return "today"
	}
	if DateKey(CalendarDay(day)) == DateKey(CalendarDay(now).AddDate(0, 0, -1)) {
		return "yesterday"
	}
	return "on " + day.Format("Monday, January 2")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
