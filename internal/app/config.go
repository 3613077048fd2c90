package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr        string
	DatabaseURL     string // empty runs on in-memory stores
	LogLevel        string
	SentryDSN       string
	ShutdownTimeout time.Duration

	// Speech-to-text: "whisper", "client" (transcribed on device) or "disabled"
	STTMode           string
	WhisperURL        string
	WhisperModel      string
	WhisperAPIKey     string
	WhisperLanguage   string
	WhisperDevices    []string
	ModelLoadTimeout  time.Duration
	TranscribeTimeout time.Duration

	// Conversation model: "openai", "ollama" or "none"
	LLMProvider      string
	OpenAIAPIKey     string
	OpenAIModel      string
	OllamaURL        string
	OllamaModel      string
	LLMTimeout       time.Duration
	ChatContextTurns int
	ChatHistoryLimit int

	// Habit name matching
	FuzzyAcceptThreshold float64

	// Voice upload limits
	MaxAudioBytes      int64
	VoiceRatePerMinute int
	VoiceBurst         int

	// habitDataChanged fanout: "memory", "redis" or "nats"
	EventBus string
	RedisURL string
	NATSURL  string

	// JWT Authentication
	JWTSecret string

	// Admin access (user IDs allowed to read turn event logs)
	AdminUserIDs   []string
	AllowedOrigins []string

	// Notifications
	DiscordWebhookURL string
	ReminderSchedule  string

	// APNs Push Notifications
	APNsKeyPath    string
	APNsKeyID      string
	APNsTeamID     string
	APNsBundleID   string
	APNsProduction bool
}

func LoadConfigFromEnv() Config {
	cfg := Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		SentryDSN:       getenv("SENTRY_DSN", ""),
		ShutdownTimeout: getenvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		WhisperURL:        getenv("WHISPER_URL", ""),
		WhisperModel:      getenv("WHISPER_MODEL", "large-v3"),
		WhisperAPIKey:     getenv("WHISPER_API_KEY", ""),
		WhisperLanguage:   getenv("WHISPER_LANGUAGE", "en"),
		WhisperDevices:    parseList(getenv("WHISPER_DEVICES", "cuda,cpu")),
		ModelLoadTimeout:  getenvDuration("MODEL_LOAD_TIMEOUT", 2*time.Minute),
		TranscribeTimeout: getenvDuration("TRANSCRIBE_TIMEOUT", 60*time.Second),

		OpenAIAPIKey:     getenv("OPENAI_API_KEY", ""),
		OpenAIModel:      getenv("OPENAI_MODEL", "gpt-4o-mini"),
		OllamaURL:        getenv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:      getenv("OLLAMA_MODEL", "llama3.2"),
		LLMTimeout:       getenvDuration("LLM_TIMEOUT", 15*time.Second),
		ChatContextTurns: getenvIntClamped("CHAT_CONTEXT_TURNS", 10, 0, 50),
		ChatHistoryLimit: getenvIntClamped("CHAT_HISTORY_LIMIT", 50, 1, 500),

		FuzzyAcceptThreshold: getenvFloatClamped("FUZZY_ACCEPT_THRESHOLD", 0.5, 0.1, 1.0),

		MaxAudioBytes:      int64(getenvIntClamped("MAX_AUDIO_MB", 25, 1, 100)) << 20,
		VoiceRatePerMinute: getenvIntClamped("VOICE_RATE_PER_MINUTE", 20, 0, 600),
		VoiceBurst:         getenvIntClamped("VOICE_BURST", 5, 1, 100),

		RedisURL: getenv("REDIS_URL", ""),
		NATSURL:  getenv("NATS_URL", ""),

		JWTSecret:      os.Getenv("JWT_SECRET"), // Required - no fallback for security
		AdminUserIDs:   parseList(os.Getenv("ADMIN_USER_IDS")),
		AllowedOrigins: parseList(os.Getenv("ALLOWED_ORIGINS")),

		DiscordWebhookURL: getenv("DISCORD_WEBHOOK_URL", ""),
		ReminderSchedule:  getenv("REMINDER_SCHEDULE", "0 20 * * *"),

		APNsKeyPath:    getenv("APNS_KEY_PATH", ""),
		APNsKeyID:      getenv("APNS_KEY_ID", ""),
		APNsTeamID:     getenv("APNS_TEAM_ID", ""),
		APNsBundleID:   getenv("APNS_BUNDLE_ID", ""),
		APNsProduction: getenvBool("APNS_PRODUCTION", false),
	}

	cfg.STTMode = getenv("STT_MODE", "")
	if cfg.STTMode == "" {
		cfg.STTMode = "disabled"
		if cfg.WhisperURL != "" {
			cfg.STTMode = "whisper"
		}
	}

	cfg.LLMProvider = getenv("LLM_PROVIDER", "")
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "none"
		if cfg.OpenAIAPIKey != "" {
			cfg.LLMProvider = "openai"
		}
	}

	cfg.EventBus = getenv("EVENT_BUS", "")
	if cfg.EventBus == "" {
		switch {
		case cfg.RedisURL != "":
			cfg.EventBus = "redis"
		case cfg.NATSURL != "":
			cfg.EventBus = "nats"
		default:
			cfg.EventBus = "memory"
		}
	}
	return cfg
}

// parseList splits a comma separated value, dropping blanks.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntClamped(k string, def, min, max int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func getenvFloatClamped(k string, def, min, max float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	if f < min {
		return min
	}
	if f > max {
		return max
	}
	return f
}

func getenvBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
