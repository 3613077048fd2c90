package eventlog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestLoggerNew(t *testing.T) {
	if New(nil) == nil {
		t.Error("New(nil) should return a non-nil logger")
	}
}

func TestLoggerLogAsyncWithNilDB(t *testing.T) {
	logger := New(nil)

	// Should not panic
	logger.LogAsync("turn-1", "u1", EventTurnReceived, map[string]any{"source": "chat"})
	logger.LogAsync("", "u1", EventTurnReceived, nil)
}

func TestLoggerLogWithNilDB(t *testing.T) {
	logger := New(nil)

	if err := logger.Log(context.Background(), "turn-1", "u1", EventClassified, map[string]any{"kind": "add_habit"}); err != nil {
		t.Errorf("Log with nil DB should return nil error, got %v", err)
	}
	events, err := logger.List(context.Background(), "turn-1")
	if err != nil || events != nil {
		t.Errorf("List with nil DB = %v, %v", events, err)
	}
}

func TestNilLogger(t *testing.T) {
	var logger *Logger
	logger.LogAsync("turn-1", "u1", EventResponded, nil)
	if err := logger.Log(context.Background(), "turn-1", "u1", EventResponded, nil); err != nil {
		t.Errorf("nil logger Log = %v", err)
	}
}

func TestLoggerRoundTrip(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS turn_events (
		id BIGSERIAL PRIMARY KEY, turn_id TEXT NOT NULL, user_id TEXT NOT NULL,
		event_type TEXT NOT NULL, event_data JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW())`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	l := New(db)
	turn := uuid.NewString()
	l.Log(ctx, turn, "u1", EventTurnReceived, map[string]any{"source": "voice"})
	l.Log(ctx, turn, "u1", EventClassified, map[string]any{"kind": "complete_habit"})

	events, err := l.List(ctx, turn)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 2 || events[0].Type != EventTurnReceived || events[1].Type != EventClassified {
		t.Errorf("events = %+v", events)
	}
}
