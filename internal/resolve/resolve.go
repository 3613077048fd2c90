package resolve

import (
	"time"

	"github.com/lukasbauer/habitvoice/internal/intent"
)

// ResolvedCommand is a classified command with its references bound.
type ResolvedCommand struct {
	intent.Command
	Habit HabitRef
	// Date is a calendar day at midnight; today unless the command named one.
	Date time.Time
}

// Resolve binds the habit reference and date of cmd. Commands without a
// habit argument pass through with today's date. The returned error is
// ErrAmbiguous, ErrNotFound or wraps ErrDateParse; the ResolvedCommand is
// still populated so callers can compose a clarification.
func (m *Matcher) Resolve(cmd intent.Command, existing []string, today time.Time) (ResolvedCommand, error) {
	rc := ResolvedCommand{Command: cmd, Date: Day(today)}
	if !cmd.Kind.NeedsHabit() {
		return rc, nil
	}

	rc.Habit = m.ResolveHabit(cmd.HabitName, existing, cmd.Kind == intent.Add)
	if err := rc.Habit.Err(); err != nil {
		return rc, err
	}

	if cmd.Kind == intent.Complete {
		d, err := ResolveDate(cmd.DatePhrase, today)
		if err != nil {
			return rc, err
		}
		rc.Date = d
	}
	return rc, nil
}
