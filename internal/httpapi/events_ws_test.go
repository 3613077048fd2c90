package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lukasbauer/habitvoice/internal/eventbus"
)

func TestEventsWS_StreamsHabitDataChanged(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, Services{})
	srv := httptest.NewServer(env.r.handler())
	defer srv.Close()

	tok, _, _ := IssueToken(testSecret, "u1", time.Hour)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events?token=" + tok
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Subscribers("u1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec := env.do(t, authed(t, http.MethodPost, "/chat", "u1", strings.NewReader(`{"message": "add a habit to stretch"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d", rec.Code)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev eventbus.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != eventbus.TypeHabitDataChanged || ev.UserID != "u1" || ev.Action != "add_habit" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Habit["habit_name"] != "Stretch" {
		t.Errorf("habit = %v", ev.Habit)
	}
}

func TestEventsWS_RejectsBadToken(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, Services{})
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/events?token=nope", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestEventsWS_NoBus(t *testing.T) {
	r := &Router{cfg: RouterConfig{JWTSecret: testSecret}, logger: testLogger()}
	tok, _, _ := IssueToken(testSecret, "u1", time.Hour)
	rec := httptest.NewRecorder()
	r.handleEventsWS(rec, httptest.NewRequest(http.MethodGet, "/events?token="+tok, nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestEventsWS_CheckOrigin(t *testing.T) {
	r := &Router{cfg: RouterConfig{AllowedOrigins: []string{"https://app.example.com/"}}}
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "api.example.com", true},
		{"https://api.example.com", "api.example.com", true},
		{"https://app.example.com", "api.example.com", true},
		{"https://evil.example.net", "api.example.com", false},
		{"::not a url", "api.example.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/events", nil)
		req.Host = tt.host
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := r.checkOrigin(req); got != tt.want {
			t.Errorf("checkOrigin(origin=%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}

	open := &Router{cfg: RouterConfig{AllowedOrigins: []string{"*"}}}
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Origin", "https://anything.test")
	if !open.checkOrigin(req) {
		t.Error(`"*" should allow any origin`)
	}
}

func TestEventsWS_RejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, Services{})
	srv := httptest.NewServer(env.r.handler())
	defer srv.Close()

	tok, _, _ := IssueToken(testSecret, "u1", time.Hour)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events?token=" + tok
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://evil.example.net"}})
	if err == nil {
		t.Fatal("dial from a foreign origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("resp = %v, want 403", resp)
	}
}
