// Package dispatch carries out a response envelope on the client: speak the
// reply, then perform the frontend action it asks for.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/lukasbauer/habitvoice/internal/respond"
)

// EventHabitDataChanged is the event name UIs listen for to refetch habits.
const EventHabitDataChanged = "habitDataChanged"

type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Navigator performs frontend actions.
type Navigator interface {
	Navigate(route string)
	Logout(route string)
	Refresh()
	RefreshHabits()
}

// Notifier receives habitDataChanged events.
type Notifier interface {
	HabitDataChanged(action string, data map[string]any)
}

// remembered bounds the set of dispatched turn IDs.
const remembered = 256

type Dispatcher struct {
	speaker  Speaker
	nav      Navigator
	notifier Notifier
	logger   *log.Logger

	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	ptrs  map[*respond.Envelope]struct{}
}

// New returns a Dispatcher. Any collaborator may be nil to skip that step.
func New(speaker Speaker, nav Navigator, notifier Notifier, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		speaker:  speaker,
		nav:      nav,
		notifier: notifier,
		logger:   logger,
		ids:      make(map[string]struct{}),
		ptrs:     make(map[*respond.Envelope]struct{}),
	}
}

// Dispatch performs env once. Envelopes are identified by TurnID, or by
// pointer when they have none; a repeat returns false and does nothing.
// Speech failures are logged and do not stop the frontend action.
func (d *Dispatcher) Dispatch(ctx context.Context, env *respond.Envelope) bool {
	if env == nil || !d.claim(env) {
		return false
	}

	if d.speaker != nil {
		if text := StripMarkdown(env.Reply); text != "" {
			if err := d.speaker.Speak(ctx, text); err != nil {
				d.logger.Printf("dispatch: speak: %v", err)
			}
		}
	}

	if fa := env.FrontendAction; fa != nil {
		if err := d.perform(fa); err != nil {
			d.logger.Printf("dispatch: %v", err)
		}
		return true
	}
	if env.Mutated() && d.notifier != nil {
		d.notifier.HabitDataChanged(env.HabitAction.Action, env.HabitAction.Data)
	}
	return true
}

func (d *Dispatcher) perform(fa *respond.FrontendAction) error {
	if d.nav == nil {
		return nil
	}
	switch fa.Type {
	case respond.ActionNavigate:
		d.nav.Navigate(fa.NavigateTo)
	case respond.ActionLogout:
		route := fa.NavigateTo
		if route == "" {
			route = "/login"
		}
		d.nav.Logout(route)
	case respond.ActionRefresh:
		d.nav.Refresh()
	case respond.ActionRefreshHabits:
		d.nav.RefreshHabits()
	default:
		return fmt.Errorf("unknown frontend action %q", fa.Type)
	}
	return nil
}

func (d *Dispatcher) claim(env *respond.Envelope) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if env.TurnID == "" {
		if _, ok := d.ptrs[env]; ok {
			return false
		}
		d.ptrs[env] = struct{}{}
		return true
	}

	if _, ok := d.ids[env.TurnID]; ok {
		return false
	}
	d.ids[env.TurnID] = struct{}{}
	d.order = append(d.order, env.TurnID)
	if len(d.order) > remembered {
		delete(d.ids, d.order[0])
		d.order = d.order[1:]
	}
	return true
}
