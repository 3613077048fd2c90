package app

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lukasbauer/habitvoice/internal/httpapi"
	"github.com/lukasbauer/habitvoice/internal/respond"
)

func memoryConfig() Config {
	return Config{
		JWTSecret:            "test-secret",
		EventBus:             "memory",
		STTMode:              "disabled",
		LLMProvider:          "none",
		FuzzyAcceptThreshold: 0.5,
		MaxAudioBytes:        1 << 20,
		VoiceRatePerMinute:   60,
		VoiceBurst:           5,
		ChatHistoryLimit:     50,
		ChatContextTurns:     10,
		LLMTimeout:           time.Second,
	}
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	a, err := New(cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewRequiresJWTSecret(t *testing.T) {
	cfg := memoryConfig()
	cfg.JWTSecret = ""
	if _, err := New(cfg, log.New(io.Discard, "", 0)); err == nil {
		t.Fatal("expected error without JWT secret")
	}
}

func TestNewRejectsUnknownBus(t *testing.T) {
	cfg := memoryConfig()
	cfg.EventBus = "carrier-pigeon"
	if _, err := New(cfg, log.New(io.Discard, "", 0)); err == nil {
		t.Fatal("expected error for unknown event bus")
	}
}

func TestAppServesChatTurns(t *testing.T) {
	a := newTestApp(t, memoryConfig())
	if err := a.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h := a.Router()

	token, _, err := httpapi.IssueToken("test-secret", "user-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	post := func(msg string) respond.Envelope {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"`+msg+`"}`))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("POST /chat %q: status %d body %s", msg, rec.Code, rec.Body.String())
		}
		var env respond.Envelope
		if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return env
	}

	env := post("add a habit to drink water")
	if !env.Success || !env.ActionTaken || env.HabitAction == nil {
		t.Fatalf("add habit envelope = %+v", env)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/habits", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body struct {
		Habits []struct {
			Name string `json:"name"`
		} `json:"habits"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode habits: %v", err)
	}
	if len(body.Habits) != 1 {
		t.Fatalf("habits = %+v, want one", body.Habits)
	}

	env = post("how are you today")
	if env.ActionTaken || env.Reply == "" {
		t.Fatalf("conversation envelope = %+v", env)
	}
}

func TestVoiceStatusDisabledWithoutWhisper(t *testing.T) {
	a := newTestApp(t, memoryConfig())
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/voice-status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var st map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st["whisper_enabled"] != false {
		t.Fatalf("whisper_enabled = %v", st["whisper_enabled"])
	}
}

func TestCloseIsSafeAfterDrain(t *testing.T) {
	a := newTestApp(t, memoryConfig())
	a.Turns().StartDraining()
	a.Turns().Wait()
	if a.Turns().ActiveCount() != 0 {
		t.Fatalf("active = %d", a.Turns().ActiveCount())
	}
}
