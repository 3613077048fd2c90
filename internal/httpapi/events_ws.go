package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lukasbauer/habitvoice/internal/metrics"
)

const (
	eventsWriteWait  = 10 * time.Second
	eventsPongWait   = 60 * time.Second
	eventsPingPeriod = eventsPongWait * 9 / 10
)

// checkOrigin admits non-browser clients (no Origin header), the server's
// own origin and the configured AllowedOrigins. A ?token= leaks through
// logs and history, so cross-origin pages must be listed explicitly.
func (r *Router) checkOrigin(req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, req.Host) {
		return true
	}
	for _, allowed := range r.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// handleEventsWS streams the user's habitDataChanged events. Browsers
// cannot set headers on a websocket, so the token may come in ?token=.
func (r *Router) handleEventsWS(w http.ResponseWriter, req *http.Request) {
	token := req.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
	}
	user, err := r.parseToken(token)
	if err != nil {
		http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
		return
	}
	if r.bus == nil {
		http.Error(w, `{"error": "events not available"}`, http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: r.checkOrigin}
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("events_ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := r.bus.Subscribe(user.ID)
	defer cancel()
	metrics.EventSubscribers.Inc()
	defer metrics.EventSubscribers.Dec()
	r.logger.Printf("events_ws: user %s subscribed", user.ID)

	// The read loop only handles pongs and notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(eventsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(eventsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					r.logger.Printf("events_ws: read error for user %s: %v", user.ID, err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(eventsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			r.logger.Printf("events_ws: user %s disconnected", user.ID)
			return
		case <-req.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(eventsWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				r.logger.Printf("events_ws: write to user %s failed: %v", user.ID, err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteWait)); err != nil {
				return
			}
		}
	}
}
