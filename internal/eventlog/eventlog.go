package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType represents one step of a voice or chat turn.
type EventType string

const (
	EventTurnReceived     EventType = "turn_received"
	EventTranscribed      EventType = "transcribed"
	EventTranscribeFailed EventType = "transcribe_failed"
	EventClassified       EventType = "classified"
	EventResolveFailed    EventType = "resolve_failed"
	EventExecuted         EventType = "executed"
	EventExecuteFailed    EventType = "execute_failed"
	EventConversation     EventType = "conversation"
	EventResponded        EventType = "responded"
	EventDataChanged      EventType = "data_changed"
)

// Event is a stored turn event.
type Event struct {
	TurnID    string          `json:"turn_id"`
	UserID    string          `json:"user_id"`
	Type      EventType       `json:"event_type"`
	Data      json.RawMessage `json:"event_data"`
	CreatedAt time.Time       `json:"created_at"`
}

// Logger provides async event logging to the database
type Logger struct {
	db *pgxpool.Pool
}

// New creates a new event logger. A nil pool disables logging.
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, turnID, userID string, eventType EventType, data map[string]any) error {
	if l == nil || l.db == nil || turnID == "" {
		return nil
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO turn_events (turn_id, user_id, event_type, event_data)
		VALUES ($1, $2, $3, $4)
	`, turnID, userID, string(eventType), dataJSON)

	return err
}

// LogAsync logs an event without blocking the caller
func (l *Logger) LogAsync(turnID, userID string, eventType EventType, data map[string]any) {
	if l == nil || l.db == nil || turnID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, turnID, userID, eventType, data)
	}()
}

// List returns a turn's events in the order they were written.
func (l *Logger) List(ctx context.Context, turnID string) ([]Event, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}
	rows, err := l.db.Query(ctx, `
		SELECT turn_id, user_id, event_type, event_data, created_at
		FROM turn_events
		WHERE turn_id = $1
		ORDER BY id
	`, turnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.TurnID, &e.UserID, &typ, &e.Data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
