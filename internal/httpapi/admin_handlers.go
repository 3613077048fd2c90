package httpapi

import (
	"net/http"
	"slices"
)

// withAdmin is middleware that requires admin authentication.
// It wraps withAuth and additionally checks the user against the admin list.
func (r *Router) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return r.withAuth(func(w http.ResponseWriter, req *http.Request) {
		authUser := getAuthUser(req.Context())
		if authUser == nil {
			http.Error(w, `{"error": "not authenticated"}`, http.StatusUnauthorized)
			return
		}
		if !slices.Contains(r.cfg.AdminUserIDs, authUser.ID) {
			http.Error(w, `{"error": "admin access required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// handleAdminTurnEvents returns the logged events of one turn, for tracing
// why a command was classified or resolved the way it was.
func (r *Router) handleAdminTurnEvents(w http.ResponseWriter, req *http.Request) {
	turnID := req.PathValue("turnId")
	if turnID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing turn ID"})
		return
	}
	if r.events == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event log not available"})
		return
	}

	events, err := r.events.List(req.Context(), turnID)
	if err != nil {
		r.logger.Printf("admin: failed to list events for turn %s: %v", turnID, err)
		captureError(req, err, "admin: list turn events")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list events"})
		return
	}
	if len(events) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "turn not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"turn_id": turnID,
		"events":  events,
		"count":   len(events),
	})
}
