package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lukasbauer/habitvoice/internal/eventbus"
	"github.com/lukasbauer/habitvoice/internal/eventlog"
	"github.com/lukasbauer/habitvoice/internal/pipeline"
	"github.com/lukasbauer/habitvoice/internal/store"
	"github.com/lukasbauer/habitvoice/internal/stt"
)

type RouterConfig struct {
	// JWT Authentication
	JWTSecret string

	// Voice upload limits
	MaxAudioBytes      int64
	VoiceRatePerMinute int // per user, 0 disables
	VoiceBurst         int

	ChatHistoryLimit int

	// Admin access (user IDs allowed to read turn event logs)
	AdminUserIDs []string

	// Browser origins allowed to open /events besides the server's own.
	// "*" allows any origin.
	AllowedOrigins []string
}

// PushTokenStore persists device tokens for habit reminders.
type PushTokenStore interface {
	RegisterPushToken(ctx context.Context, userID, token, platform string) error
	UnregisterPushToken(ctx context.Context, token string) error
	GetUserPushTokens(ctx context.Context, userID string) ([]store.DevicePushToken, error)
}

// TestPusher delivers a one-off notification to a device.
type TestPusher interface {
	SendTestNotification(deviceToken, message string) error
}

// TurnEventSource reads the per-turn event log.
type TurnEventSource interface {
	List(ctx context.Context, turnID string) ([]eventlog.Event, error)
}

// Services are the router's collaborators. Only Pipeline is required; a nil
// Bus, Push or Events makes the matching endpoints answer 503.
type Services struct {
	Pipeline *pipeline.Pipeline
	STT      stt.Gateway
	Bus      eventbus.Bus
	Push     PushTokenStore
	Pusher   TestPusher
	Events   TurnEventSource
	Turns    *TurnRegistry
}

type Router struct {
	cfg      RouterConfig
	logger   *log.Logger
	pipeline *pipeline.Pipeline
	stt      stt.Gateway
	bus      eventbus.Bus
	push     PushTokenStore
	pusher   TestPusher
	events   TurnEventSource
	turns    *TurnRegistry
	limiter  *userLimiter
	mux      *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, svc Services) http.Handler {
	return newRouter(cfg, logger, svc).handler()
}

func newRouter(cfg RouterConfig, logger *log.Logger, svc Services) *Router {
	if cfg.MaxAudioBytes <= 0 {
		cfg.MaxAudioBytes = 25 << 20
	}
	if cfg.ChatHistoryLimit <= 0 {
		cfg.ChatHistoryLimit = 50
	}
	if svc.STT == nil {
		svc.STT = stt.DisabledGateway{}
	}
	if svc.Turns == nil {
		svc.Turns = NewTurnRegistry()
	}
	r := &Router{
		cfg:      cfg,
		logger:   logger,
		pipeline: svc.Pipeline,
		stt:      svc.STT,
		bus:      svc.Bus,
		push:     svc.Push,
		pusher:   svc.Pusher,
		events:   svc.Events,
		turns:    svc.Turns,
		limiter:  newUserLimiter(cfg.VoiceRatePerMinute, cfg.VoiceBurst),
		mux:      http.NewServeMux(),
	}
	r.routes()
	return r
}

func (r *Router) handler() http.Handler {
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health and ops
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)
	r.mux.Handle("GET /metrics", promhttp.Handler())

	// Voice (status is public so the UI can hide the mic before login)
	r.mux.HandleFunc("GET /voice-status", r.handleVoiceStatus)
	r.mux.HandleFunc("POST /voice-audio", r.withAuth(r.handleVoiceAudio))

	// Chat
	r.mux.HandleFunc("POST /chat", r.withAuth(r.handleChat))
	r.mux.HandleFunc("GET /chat-history", r.withAuth(r.handleChatHistory))
	r.mux.HandleFunc("DELETE /chat-history", r.withAuth(r.handleClearChatHistory))

	// Habit data refetch and change notifications
	r.mux.HandleFunc("GET /api/habits", r.withAuth(r.handleListHabits))
	r.mux.HandleFunc("GET /events", r.handleEventsWS)

	// Push notifications (protected)
	r.mux.HandleFunc("POST /api/push/register", r.withAuth(r.handlePushRegister))
	r.mux.HandleFunc("POST /api/push/unregister", r.withAuth(r.handlePushUnregister))
	r.mux.HandleFunc("POST /api/push/test", r.withAuth(r.handlePushTest))

	// Admin turn debugging
	r.mux.HandleFunc("GET /admin/turns/{turnId}/events", r.withAdmin(r.handleAdminTurnEvents))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if r.turns.IsDraining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// beginTurn registers an in-flight turn; it writes 503 and returns false
// while the server drains.
func (r *Router) beginTurn(w http.ResponseWriter) bool {
	if !r.turns.Add() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "server is shutting down"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
