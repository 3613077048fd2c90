package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lukasbauer/habitvoice/internal/conversation"
	"github.com/lukasbauer/habitvoice/internal/store"
)

// ChatLog stores chat turns. *store.Store implements it.
type ChatLog interface {
	AppendChatTurn(ctx context.Context, t store.ChatTurn) (store.ChatTurn, error)
	ListChatTurns(ctx context.Context, userID string, limit int) ([]store.ChatTurn, error)
	ClearChatHistory(ctx context.Context, userID string) (int64, error)
}

// History exposes a ChatLog as conversation context.
func History(log ChatLog) conversation.History {
	return conversation.HistoryFunc(func(ctx context.Context, userID string, n int) ([]conversation.Exchange, error) {
		turns, err := log.ListChatTurns(ctx, userID, n)
		if err != nil {
			return nil, err
		}
		out := make([]conversation.Exchange, len(turns))
		for i, t := range turns {
			out[i] = conversation.Exchange{Message: t.Message, Response: t.Response}
		}
		return out, nil
	})
}

// MemoryChatLog keeps chat turns in process, for running without Postgres.
type MemoryChatLog struct {
	mu    sync.Mutex
	turns map[string][]store.ChatTurn
	// max turns kept per user; older ones are dropped
	max int
}

func NewMemoryChatLog(max int) *MemoryChatLog {
	if max <= 0 {
		max = 200
	}
	return &MemoryChatLog{turns: make(map[string][]store.ChatTurn), max: max}
}

func (m *MemoryChatLog) AppendChatTurn(ctx context.Context, t store.ChatTurn) (store.ChatTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()
	list := append(m.turns[t.UserID], t)
	if len(list) > m.max {
		list = list[len(list)-m.max:]
	}
	m.turns[t.UserID] = list
	return t, nil
}

func (m *MemoryChatLog) ListChatTurns(ctx context.Context, userID string, limit int) ([]store.ChatTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.turns[userID]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	return append([]store.ChatTurn{}, list...), nil
}

func (m *MemoryChatLog) ClearChatHistory(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.turns[userID])
	delete(m.turns, userID)
	return int64(n), nil
}
