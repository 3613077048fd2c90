package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/lukasbauer/habitvoice/internal/habits"
	"github.com/lukasbauer/habitvoice/internal/pipeline"
)

const maxChatMessage = 2000

// chatMessage is one side of a stored exchange, as the chat UI renders it.
type chatMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"is_user"`
	Timestamp time.Time `json:"timestamp"`
}

// handleChat runs a typed (or client-transcribed) message through the same
// pipeline as voice.
func (r *Router) handleChat(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	msg := strings.TrimSpace(body.Message)
	if msg == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}
	if len(msg) > maxChatMessage {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message too long"})
		return
	}

	if !r.beginTurn(w) {
		return
	}
	defer r.turns.Done()

	env := r.pipeline.Text(req.Context(), user.ID, msg, pipeline.SourceChat)
	writeJSON(w, http.StatusOK, env)
}

// handleChatHistory returns the latest exchanges, oldest first, split into
// user and assistant messages.
func (r *Router) handleChatHistory(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	turns, err := r.pipeline.ChatHistory(req.Context(), user.ID, r.cfg.ChatHistoryLimit)
	if err != nil {
		r.logger.Printf("chat: failed to load history for user %s: %v", user.ID, err)
		captureError(req, err, "chat: load history")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "failed to retrieve chat history", "messages": []chatMessage{}})
		return
	}

	msgs := make([]chatMessage, 0, 2*len(turns))
	for _, t := range turns {
		msgs = append(msgs,
			chatMessage{ID: t.ID + ":u", Content: t.Message, IsUser: true, Timestamp: t.CreatedAt},
			chatMessage{ID: t.ID + ":a", Content: t.Response, IsUser: false, Timestamp: t.CreatedAt},
		)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": msgs})
}

func (r *Router) handleClearChatHistory(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	n, err := r.pipeline.ClearChatHistory(req.Context(), user.ID)
	if err != nil {
		r.logger.Printf("chat: failed to clear history for user %s: %v", user.ID, err)
		captureError(req, err, "chat: clear history")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "failed to clear chat history"})
		return
	}
	r.logger.Printf("chat: cleared %d turns for user %s", n, user.ID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n})
}

// handleListHabits serves the refetch clients do after habitDataChanged.
func (r *Router) handleListHabits(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	hs, err := r.pipeline.Habits(req.Context(), user.ID)
	if err != nil {
		r.logger.Printf("habits: failed to list for user %s: %v", user.ID, err)
		captureError(req, err, "habits: list")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load habits"})
		return
	}

	type habitView struct {
		ID          string   `json:"id"`
		Name        string   `json:"name"`
		Color       string   `json:"color"`
		CreatedAt   string   `json:"created_at"`
		Completions []string `json:"completions"`
	}
	out := make([]habitView, 0, len(hs))
	for _, h := range hs {
		days := make([]string, 0, len(h.Completions))
		for _, c := range h.Completions {
			days = append(days, habits.DateKey(c))
		}
		out = append(out, habitView{
			ID:          h.ID,
			Name:        h.Name,
			Color:       h.Color,
			CreatedAt:   h.CreatedAt.UTC().Format(time.RFC3339),
			Completions: days,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"habits": out})
}
