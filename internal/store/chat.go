package store

import (
	"context"
	"time"
)

// ChatTurn is one stored exchange between the user and the assistant.
type ChatTurn struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Message     string    `json:"message"`
	Response    string    `json:"response"`
	ActionTaken bool      `json:"action_taken"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Store) AppendChatTurn(ctx context.Context, t ChatTurn) (ChatTurn, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO chat_history (user_id, message, response, action_taken)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, t.UserID, t.Message, t.Response, t.ActionTaken).Scan(&t.ID, &t.CreatedAt)
	return t, err
}

// ListChatTurns returns the user's latest limit turns, oldest first.
func (s *Store) ListChatTurns(ctx context.Context, userID string, limit int) ([]ChatTurn, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, message, response, action_taken, created_at FROM (
			SELECT id, user_id, message, response, action_taken, created_at
			FROM chat_history
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) latest
		ORDER BY created_at, id
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := []ChatTurn{}
	for rows.Next() {
		var t ChatTurn
		if err := rows.Scan(&t.ID, &t.UserID, &t.Message, &t.Response, &t.ActionTaken, &t.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *Store) ClearChatHistory(ctx context.Context, userID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM chat_history WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
