package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lukasbauer/habitvoice/internal/conversation"
	"github.com/lukasbauer/habitvoice/internal/eventbus"
	"github.com/lukasbauer/habitvoice/internal/eventlog"
	"github.com/lukasbauer/habitvoice/internal/habits"
	"github.com/lukasbauer/habitvoice/internal/httpapi"
	"github.com/lukasbauer/habitvoice/internal/jobs"
	"github.com/lukasbauer/habitvoice/internal/llm"
	"github.com/lukasbauer/habitvoice/internal/metrics"
	"github.com/lukasbauer/habitvoice/internal/notifications"
	"github.com/lukasbauer/habitvoice/internal/pipeline"
	"github.com/lukasbauer/habitvoice/internal/resolve"
	"github.com/lukasbauer/habitvoice/internal/store"
	"github.com/lukasbauer/habitvoice/internal/stt"
)

type App struct {
	cfg        Config
	logger     *log.Logger
	db         *pgxpool.Pool
	store      *store.Store
	eventLog   *eventlog.Logger
	bus        eventbus.Bus
	gateway    stt.Gateway
	pipeline   *pipeline.Pipeline
	discord    *notifications.Discord
	apns       *notifications.APNsClient
	reminders  *jobs.ReminderJob
	turns      *httpapi.TurnRegistry
	httpClient *http.Client // shared by the whisper and LLM providers
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		discord: notifications.NewDiscord(cfg.DiscordWebhookURL, logger),
		turns:   httpapi.NewTurnRegistry(),
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   5 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}

	var (
		habitStore habits.Store
		chats      pipeline.ChatLog
	)
	if cfg.DatabaseURL != "" {
		if err := a.openDB(); err != nil {
			return nil, err
		}
		habitStore, chats = a.store, a.store
	} else {
		logger.Println("app: DATABASE_URL not set, using in-memory stores")
		habitStore, chats = habits.NewMemoryStore(), pipeline.NewMemoryChatLog(0)
	}
	a.eventLog = eventlog.New(a.db)

	bus, err := a.newBus()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.bus = bus

	a.gateway = a.newGateway()

	exec := habits.NewExecutor(habitStore, resolve.NewMatcher(cfg.FuzzyAcceptThreshold), logger)
	replier := conversation.NewReplier(a.newLLM(), pipeline.History(chats), conversation.Config{
		ContextTurns: cfg.ChatContextTurns,
		Timeout:      cfg.LLMTimeout,
	}, logger)
	replier.OnFallback = func(reason string) {
		metrics.ConversationFallbacks.WithLabelValues(reason).Inc()
	}
	replier.OnBreakerOpen = func() {
		a.discord.NotifyBreakerOpen(context.Background(), "conversation-llm")
	}

	a.pipeline = pipeline.New(exec, replier, chats, a.bus, a.eventLog, logger)
	a.pipeline.OnError = func(err error, userID string) {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetUser(sentry.User{ID: userID})
			sentry.CaptureException(err)
		})
	}

	if err := a.setupReminders(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return err
	}
	s := store.New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	a.db, a.store = db, s
	return nil
}

func (a *App) newBus() (eventbus.Bus, error) {
	switch a.cfg.EventBus {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b, err := eventbus.NewRedisBus(ctx, a.cfg.RedisURL, a.logger)
		if err != nil {
			return nil, fmt.Errorf("redis event bus: %w", err)
		}
		return b, nil
	case "nats":
		b, err := eventbus.NewNATSBus(a.cfg.NATSURL, a.logger)
		if err != nil {
			return nil, fmt.Errorf("nats event bus: %w", err)
		}
		return b, nil
	case "memory":
		return eventbus.NewHub(a.logger), nil
	}
	return nil, fmt.Errorf("unknown EVENT_BUS %q", a.cfg.EventBus)
}

func (a *App) newGateway() stt.Gateway {
	switch a.cfg.STTMode {
	case "whisper":
		loader := stt.NewWhisperLoader(stt.WhisperConfig{
			BaseURL:  a.cfg.WhisperURL,
			Model:    a.cfg.WhisperModel,
			Language: a.cfg.WhisperLanguage,
			APIKey:   a.cfg.WhisperAPIKey,
		}, a.httpClient)
		return stt.NewRemoteGateway(loader, stt.RemoteConfig{
			Devices:           a.cfg.WhisperDevices,
			LoadTimeout:       a.cfg.ModelLoadTimeout,
			TranscribeTimeout: a.cfg.TranscribeTimeout,
			OnLoadFailed: func(err error) {
				metrics.ModelReady.Set(0)
				a.discord.NotifyModelLoadFailed(context.Background(), loader.ModelName(),
					strings.Join(a.cfg.WhisperDevices, ", "), err.Error())
			},
		}, a.logger)
	case "client":
		return stt.LocalGateway{Language: a.cfg.WhisperLanguage}
	}
	a.logger.Println("app: speech-to-text disabled")
	return stt.DisabledGateway{}
}

// newLLM returns nil when no provider is configured; conversation then
// answers from the keyword fallback.
func (a *App) newLLM() llm.Client {
	switch a.cfg.LLMProvider {
	case "openai":
		if a.cfg.OpenAIAPIKey == "" {
			a.logger.Println("app: LLM_PROVIDER=openai without OPENAI_API_KEY, using fallback replies")
			return nil
		}
		return llm.NewOpenAIClient(llm.OpenAIConfig{APIKey: a.cfg.OpenAIAPIKey, Model: a.cfg.OpenAIModel})
	case "ollama":
		return llm.NewOllamaClient(llm.OllamaConfig{BaseURL: a.cfg.OllamaURL, Model: a.cfg.OllamaModel})
	}
	return nil
}

// setupReminders creates the reminder job when both Postgres and APNs are
// configured. The job is started by Start.
func (a *App) setupReminders() error {
	apnsClient, err := notifications.NewAPNsClient(notifications.APNsConfig{
		KeyPath:    a.cfg.APNsKeyPath,
		KeyID:      a.cfg.APNsKeyID,
		TeamID:     a.cfg.APNsTeamID,
		BundleID:   a.cfg.APNsBundleID,
		Production: a.cfg.APNsProduction,
	}, a.logger)
	if err != nil {
		a.logger.Printf("Warning: APNs client initialization failed: %v", err)
		return nil
	}
	a.apns = apnsClient
	if apnsClient == nil || a.store == nil {
		return nil
	}
	a.reminders = jobs.NewReminderJob(a.store, apnsClient, a.logger, a.cfg.ReminderSchedule)
	return nil
}

// Start launches background work: the reminder schedule and, for the
// whisper gateway, the one-time model load.
func (a *App) Start(ctx context.Context) error {
	if a.reminders != nil {
		if err := a.reminders.Start(); err != nil {
			return err
		}
	}
	if g, ok := a.gateway.(*stt.RemoteGateway); ok {
		go func() {
			if err := g.Warm(ctx); err != nil {
				a.logger.Printf("app: speech model warm-up failed: %v", err)
				return
			}
			metrics.ModelReady.Set(1)
		}()
	}
	return nil
}

func (a *App) Router() http.Handler {
	routerCfg := httpapi.RouterConfig{
		JWTSecret:          a.cfg.JWTSecret,
		MaxAudioBytes:      a.cfg.MaxAudioBytes,
		VoiceRatePerMinute: a.cfg.VoiceRatePerMinute,
		VoiceBurst:         a.cfg.VoiceBurst,
		ChatHistoryLimit:   a.cfg.ChatHistoryLimit,
		AdminUserIDs:       a.cfg.AdminUserIDs,
		AllowedOrigins:     a.cfg.AllowedOrigins,
	}
	svc := httpapi.Services{
		Pipeline: a.pipeline,
		STT:      a.gateway,
		Bus:      a.bus,
		Turns:    a.turns,
	}
	// Only assign non-nil stores so the interfaces stay nil without Postgres.
	if a.store != nil {
		svc.Push = a.store
		svc.Events = a.eventLog
	}
	if a.apns != nil {
		svc.Pusher = a.apns
	}
	return httpapi.NewRouter(routerCfg, a.logger, svc)
}

// Turns exposes in-flight turn tracking for graceful shutdown.
func (a *App) Turns() *httpapi.TurnRegistry { return a.turns }

func (a *App) Close() error {
	if a.reminders != nil {
		a.reminders.Stop()
	}
	var err error
	if a.bus != nil {
		err = a.bus.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	return err
}
