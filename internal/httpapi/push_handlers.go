package httpapi

import (
	"encoding/json"
	"net/http"
)

// handlePushRegister registers a device push token for habit reminders
func (r *Router) handlePushRegister(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if r.push == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "push notifications not available"})
		return
	}

	var body struct {
		Token    string `json:"token"`
		Platform string `json:"platform"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if body.Token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token is required"})
		return
	}
	if body.Platform != "ios" && body.Platform != "android" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "platform must be 'ios' or 'android'"})
		return
	}

	if err := r.push.RegisterPushToken(req.Context(), user.ID, body.Token, body.Platform); err != nil {
		r.logger.Printf("push: failed to register token: %v", err)
		captureError(req, err, "push: register token")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to register token"})
		return
	}

	r.logger.Printf("push: registered %s token for user %s", body.Platform, user.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handlePushUnregister removes a device push token
func (r *Router) handlePushUnregister(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if r.push == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "push notifications not available"})
		return
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if body.Token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token is required"})
		return
	}

	if err := r.push.UnregisterPushToken(req.Context(), body.Token); err != nil {
		r.logger.Printf("push: failed to unregister token: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to unregister token"})
		return
	}

	r.logger.Printf("push: unregistered token for user %s", user.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handlePushTest sends a test notification to every device of the user so
// they can check their reminder setup.
func (r *Router) handlePushTest(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if r.push == nil || r.pusher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "push notifications not available"})
		return
	}

	tokens, err := r.push.GetUserPushTokens(req.Context(), user.ID)
	if err != nil {
		r.logger.Printf("push: failed to list tokens: %v", err)
		captureError(req, err, "push: list tokens")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list tokens"})
		return
	}
	if len(tokens) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no registered devices"})
		return
	}

	sent := 0
	for _, t := range tokens {
		if err := r.pusher.SendTestNotification(t.Token, "Reminders are working. Keep your streaks going!"); err != nil {
			r.logger.Printf("push: test notification failed: %v", err)
			continue
		}
		sent++
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent, "devices": len(tokens)})
}
