package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/lukasbauer/habitvoice/internal/eventlog"
)

type fakeTurnEvents map[string][]eventlog.Event

func (f fakeTurnEvents) List(ctx context.Context, turnID string) ([]eventlog.Event, error) {
	return f[turnID], nil
}

func TestAdminTurnEvents(t *testing.T) {
	events := fakeTurnEvents{
		"turn-1": {
			{TurnID: "turn-1", UserID: "u1", Type: eventlog.EventClassified, Data: json.RawMessage(`{"kind":"add_habit"}`), CreatedAt: time.Now()},
			{TurnID: "turn-1", UserID: "u1", Type: eventlog.EventResponded, Data: json.RawMessage(`{}`), CreatedAt: time.Now()},
		},
	}
	env := newTestEnv(t, RouterConfig{AdminUserIDs: []string{"admin"}}, Services{Events: events})

	if rec := env.do(t, authed(t, http.MethodGet, "/admin/turns/turn-1/events", "u1", nil)); rec.Code != http.StatusForbidden {
		t.Errorf("non-admin status = %d, want 403", rec.Code)
	}

	rec := env.do(t, authed(t, http.MethodGet, "/admin/turns/turn-1/events", "admin", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d", rec.Code)
	}
	if m := decode(t, rec); m["count"] != float64(2) || m["turn_id"] != "turn-1" {
		t.Errorf("body = %v", m)
	}

	if rec := env.do(t, authed(t, http.MethodGet, "/admin/turns/missing/events", "admin", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("missing turn status = %d, want 404", rec.Code)
	}
}
