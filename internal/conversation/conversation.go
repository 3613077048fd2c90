// Package conversation answers free-form messages with the language model and
// falls back to canned replies when the model is slow or unavailable.
package conversation

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"time"

	"github.com/sony/gobreaker"

	"github.com/lukasbauer/habitvoice/internal/llm"
)

const (
	DefaultContextTurns = 10
	DefaultTimeout      = 15 * time.Second
)

// Exchange is one past user message and the reply it got.
type Exchange struct {
	Message  string
	Response string
}

// History returns up to n of the user's most recent exchanges, oldest first.
type History interface {
	Recent(ctx context.Context, userID string, n int) ([]Exchange, error)
}

// HistoryFunc adapts a function to History.
type HistoryFunc func(ctx context.Context, userID string, n int) ([]Exchange, error)

func (f HistoryFunc) Recent(ctx context.Context, userID string, n int) ([]Exchange, error) {
	return f(ctx, userID, n)
}

type Config struct {
	ContextTurns int
	Timeout      time.Duration
}

// Replier produces the reply for a Conversation command. Reply never fails.
type Replier struct {
	client  llm.Client
	history History
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	logger  *log.Logger
	pick    func(n int) int
	// OnFallback is called whenever a canned reply is used instead of the model.
	OnFallback func(reason string)
	// OnBreakerOpen is called when repeated model failures open the breaker.
	OnBreakerOpen func()
}

// NewReplier builds a Replier. client and history may be nil; without a
// client every reply comes from the keyword fallback.
func NewReplier(client llm.Client, history History, cfg Config, logger *log.Logger) *Replier {
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = DefaultContextTurns
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	r := &Replier{
		client:  client,
		history: history,
		cfg:     cfg,
		logger:  logger,
		pick:    rand.IntN,
	}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "conversation-llm",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Printf("conversation: breaker %s %s -> %s", name, from, to)
			if to == gobreaker.StateOpen && r.OnBreakerOpen != nil {
				r.OnBreakerOpen()
			}
		},
	})
	return r
}

// Reply returns the model's answer to text, or a fallback reply on any
// failure. The model sees the configured window of recent exchanges.
func (r *Replier) Reply(ctx context.Context, userID, text string) string {
	past := r.recent(ctx, userID)
	if r.client == nil {
		return r.fallback("no model configured", text, past)
	}

	messages := make([]llm.Message, 0, 2*len(past)+1)
	for _, ex := range past {
		messages = append(messages,
			llm.Message{Role: "user", Content: ex.Message},
			llm.Message{Role: "assistant", Content: ex.Response},
		)
	}
	messages = append(messages, llm.Message{Role: "user", Content: text})

	out, err := r.breaker.Execute(func() (interface{}, error) {
		cctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
		return r.client.Generate(cctx, messages)
	})
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return r.fallback("breaker open", text, past)
		case errors.Is(err, context.DeadlineExceeded):
			return r.fallback("timeout", text, past)
		}
		r.logger.Printf("conversation: model error for user %s: %v", userID, err)
		return r.fallback("model error", text, past)
	}
	return out.(string)
}

// Breaker reports the model circuit state.
func (r *Replier) Breaker() gobreaker.State {
	return r.breaker.State()
}

func (r *Replier) recent(ctx context.Context, userID string) []Exchange {
	if r.history == nil {
		return nil
	}
	past, err := r.history.Recent(ctx, userID, r.cfg.ContextTurns)
	if err != nil {
		r.logger.Printf("conversation: load history for user %s: %v", userID, err)
		return nil
	}
	if len(past) > r.cfg.ContextTurns {
		past = past[len(past)-r.cfg.ContextTurns:]
	}
	return past
}

func (r *Replier) fallback(reason, text string, past []Exchange) string {
	if r.OnFallback != nil {
		r.OnFallback(reason)
	}
	return FallbackReply(text, len(past) > 0, r.pick)
}
