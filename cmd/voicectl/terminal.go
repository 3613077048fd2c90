package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/lukasbauer/habitvoice/internal/dispatch"
)

// terminal stands in for a UI: it prints replies and the actions a
// browser client would perform.
type terminal struct {
	out io.Writer
}

func (t terminal) Speak(_ context.Context, text string) error {
	fmt.Fprintf(t.out, "assistant: %s\n", text)
	return nil
}

func (t terminal) Navigate(route string) { fmt.Fprintf(t.out, "-> navigate %s\n", route) }
func (t terminal) Logout(route string)   { fmt.Fprintf(t.out, "-> logout, then %s\n", route) }
func (t terminal) Refresh()              { fmt.Fprintln(t.out, "-> refresh") }
func (t terminal) RefreshHabits()        { fmt.Fprintln(t.out, "-> refresh habits") }

func (t terminal) HabitDataChanged(action string, data map[string]any) {
	fmt.Fprintf(t.out, "-> %s %s%s\n", dispatch.EventHabitDataChanged, action, formatData(data))
}

// bothSpeakers prints a reply and speaks it aloud.
type bothSpeakers struct {
	first, second dispatch.Speaker
}

func (b bothSpeakers) Speak(ctx context.Context, text string) error {
	_ = b.first.Speak(ctx, text)
	return b.second.Speak(ctx, text)
}

func formatData(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
