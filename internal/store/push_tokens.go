package store

import (
	"context"
	"time"
)

// DevicePushToken is an APNs device token registered for reminders.
type DevicePushToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"` // "ios" or "android"
	CreatedAt time.Time `json:"created_at"`
}

// RegisterPushToken registers or updates a device push token for a user
func (s *Store) RegisterPushToken(ctx context.Context, userID, token, platform string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO device_push_tokens (user_id, token, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, token) DO UPDATE SET
			platform = EXCLUDED.platform,
			created_at = NOW()
	`, userID, token, platform)
	return err
}

// UnregisterPushToken removes a device push token
func (s *Store) UnregisterPushToken(ctx context.Context, token string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM device_push_tokens WHERE token = $1
	`, token)
	return err
}

// GetUserPushTokens returns all push tokens for a user
func (s *Store) GetUserPushTokens(ctx context.Context, userID string) ([]DevicePushToken, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, token, platform, created_at
		FROM device_push_tokens
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []DevicePushToken
	for rows.Next() {
		var t DevicePushToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.Platform, &t.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// ReminderTarget is a user with push tokens and habits still open on a day.
type ReminderTarget struct {
	UserID  string
	Pending []string
	Tokens  []string
}

// ListReminderTargets returns every user with a registered device and at
// least one habit not completed on day.
func (s *Store) ListReminderTargets(ctx context.Context, day time.Time) ([]ReminderTarget, error) {
	rows, err := s.db.Query(ctx, `
		SELECT h.user_id,
		       array_agg(DISTINCT h.name ORDER BY h.name),
		       (SELECT array_agg(t.token ORDER BY t.created_at) FROM device_push_tokens t WHERE t.user_id = h.user_id)
		FROM habits h
		WHERE EXISTS (SELECT 1 FROM device_push_tokens t WHERE t.user_id = h.user_id)
		  AND NOT EXISTS (SELECT 1 FROM habit_entries e WHERE e.habit_id = h.id AND e.day = $1::date)
		GROUP BY h.user_id
		ORDER BY h.user_id
	`, day.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReminderTarget
	for rows.Next() {
		var rt ReminderTarget
		if err := rows.Scan(&rt.UserID, &rt.Pending, &rt.Tokens); err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}
