// Package pipeline runs one voice or chat turn from text (or transcript) to
// response envelope.
package pipeline

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lukasbauer/habitvoice/internal/conversation"
	"github.com/lukasbauer/habitvoice/internal/eventbus"
	"github.com/lukasbauer/habitvoice/internal/eventlog"
	"github.com/lukasbauer/habitvoice/internal/habits"
	"github.com/lukasbauer/habitvoice/internal/intent"
	"github.com/lukasbauer/habitvoice/internal/metrics"
	"github.com/lukasbauer/habitvoice/internal/resolve"
	"github.com/lukasbauer/habitvoice/internal/respond"
	"github.com/lukasbauer/habitvoice/internal/store"
	"github.com/lukasbauer/habitvoice/internal/stt"
)

// Source names where a turn's text came from.
type Source string

const (
	SourceVoice Source = "voice"
	SourceChat  Source = "chat"
)

// Replier answers conversation turns.
type Replier interface {
	Reply(ctx context.Context, userID, text string) string
}

type Pipeline struct {
	exec    *habits.Executor
	replier Replier
	chats   ChatLog
	bus     eventbus.Bus
	events  *eventlog.Logger
	logger  *log.Logger
	now     func() time.Time
	// OnError receives unexpected failures, for error reporting.
	OnError func(err error, userID string)
}

// New builds a Pipeline. bus and events may be nil.
func New(exec *habits.Executor, replier Replier, chats ChatLog, bus eventbus.Bus, events *eventlog.Logger, logger *log.Logger) *Pipeline {
	return &Pipeline{
		exec:    exec,
		replier: replier,
		chats:   chats,
		bus:     bus,
		events:  events,
		logger:  logger,
		now:     time.Now,
	}
}

// Text runs a turn for typed or transcribed text.
func (p *Pipeline) Text(ctx context.Context, userID, text string, src Source) respond.Envelope {
	return p.run(ctx, uuid.NewString(), userID, text, src)
}

// Transcript runs a voice turn. An empty transcript ends the turn with a
// no-speech reply and nothing is classified.
func (p *Pipeline) Transcript(ctx context.Context, userID string, tr stt.Transcript) respond.Envelope {
	turnID := uuid.NewString()
	text := strings.TrimSpace(tr.Text)
	p.events.LogAsync(turnID, userID, eventlog.EventTranscribed, map[string]any{
		"text":       text,
		"confidence": tr.Confidence,
		"language":   tr.Language,
	})
	if text == "" {
		metrics.Turns.WithLabelValues(string(SourceVoice), "none", "no_speech").Inc()
		env := respond.FromFailure(respond.ErrNoSpeech, resolve.ResolvedCommand{})
		env.TurnID = turnID
		return env
	}
	return p.run(ctx, turnID, userID, text, SourceVoice)
}

// TranscribeFailed composes the reply for a failed transcription.
func (p *Pipeline) TranscribeFailed(userID string, err error) respond.Envelope {
	turnID := uuid.NewString()
	p.events.LogAsync(turnID, userID, eventlog.EventTranscribeFailed, map[string]any{"error": err.Error()})
	metrics.TranscribeErrors.WithLabelValues(transcribeCause(err)).Inc()
	metrics.Turns.WithLabelValues(string(SourceVoice), "none", "transcribe_failed").Inc()
	env := respond.FromFailure(err, resolve.ResolvedCommand{})
	env.TurnID = turnID
	return env
}

func (p *Pipeline) run(ctx context.Context, turnID, userID, text string, src Source) respond.Envelope {
	start := p.now()
	p.events.LogAsync(turnID, userID, eventlog.EventTurnReceived, map[string]any{"source": string(src), "text": text})

	cmd := intent.Classify(text)
	p.events.LogAsync(turnID, userID, eventlog.EventClassified, map[string]any{
		"kind":       cmd.Kind.String(),
		"habit_name": cmd.HabitName,
		"date":       cmd.DatePhrase,
	})

	var env respond.Envelope
	switch {
	case cmd.Kind == intent.Conversation:
		reply := p.replier.Reply(ctx, userID, text)
		p.events.LogAsync(turnID, userID, eventlog.EventConversation, nil)
		env = respond.FromConversation(reply)
	case cmd.Kind.NeedsHabit() || cmd.Kind == intent.List:
		env = p.habitAction(ctx, turnID, userID, cmd)
	default:
		env = respond.FromAppCommand(cmd)
	}
	env.TurnID = turnID

	p.record(ctx, userID, text, env)
	if env.Mutated() {
		p.publish(ctx, turnID, userID, env.HabitAction)
	}

	outcome := "ok"
	if !env.Success {
		outcome = "failed"
	}
	metrics.Turns.WithLabelValues(string(src), cmd.Kind.String(), outcome).Inc()
	metrics.TurnDuration.WithLabelValues(string(src)).Observe(p.now().Sub(start).Seconds())
	p.events.LogAsync(turnID, userID, eventlog.EventResponded, map[string]any{
		"success":      env.Success,
		"action_taken": env.ActionTaken,
	})
	return env
}

func (p *Pipeline) habitAction(ctx context.Context, turnID, userID string, cmd intent.Command) respond.Envelope {
	res, rc, err := p.exec.Handle(ctx, userID, cmd)
	if err == nil {
		p.events.LogAsync(turnID, userID, eventlog.EventExecuted, map[string]any{
			"action":  res.Kind.String(),
			"mutated": res.Mutated,
		})
		return respond.FromAction(res)
	}

	if expectedFailure(err) {
		p.events.LogAsync(turnID, userID, eventlog.EventResolveFailed, map[string]any{
			"error":      err.Error(),
			"requested":  rc.Habit.Requested,
			"outcome":    rc.Habit.Outcome.String(),
			"candidates": rc.Habit.Candidates,
		})
	} else {
		p.logger.Printf("pipeline: %s for user %s failed: %v", cmd.Kind, userID, err)
		p.events.LogAsync(turnID, userID, eventlog.EventExecuteFailed, map[string]any{"error": err.Error()})
		if p.OnError != nil {
			p.OnError(err, userID)
		}
	}
	return respond.FromFailure(err, rc)
}

// expectedFailure reports errors that come from what the user said rather
// than from the system.
func expectedFailure(err error) bool {
	return errors.Is(err, resolve.ErrAmbiguous) ||
		errors.Is(err, resolve.ErrNotFound) ||
		errors.Is(err, resolve.ErrDateParse) ||
		errors.Is(err, habits.ErrDuplicateHabit) ||
		errors.Is(err, habits.ErrNotFound)
}

// record saves conversation turns and successful commands to chat history.
func (p *Pipeline) record(ctx context.Context, userID, text string, env respond.Envelope) {
	if p.chats == nil || !env.Success {
		return
	}
	_, err := p.chats.AppendChatTurn(ctx, store.ChatTurn{
		UserID:      userID,
		Message:     text,
		Response:    env.Reply,
		ActionTaken: env.ActionTaken,
	})
	if err != nil {
		p.logger.Printf("pipeline: save chat turn for user %s: %v", userID, err)
	}
}

func (p *Pipeline) publish(ctx context.Context, turnID, userID string, ha *respond.HabitAction) {
	if p.bus == nil {
		return
	}
	ev := eventbus.Event{
		Type:   eventbus.TypeHabitDataChanged,
		UserID: userID,
		TurnID: turnID,
		Action: ha.Action,
		Habit:  ha.Data,
		At:     p.now().UTC(),
	}
	if err := p.bus.Publish(ctx, ev); err != nil {
		p.logger.Printf("pipeline: publish %s for user %s: %v", ev.Type, userID, err)
		return
	}
	metrics.DataChangedPublished.Inc()
	p.events.LogAsync(turnID, userID, eventlog.EventDataChanged, map[string]any{"action": ha.Action})
}

func transcribeCause(err error) string {
	switch {
	case errors.Is(err, stt.ErrServiceDisabled):
		return "disabled"
	case errors.Is(err, stt.ErrModelLoadFailed):
		return "model_load"
	case errors.Is(err, stt.ErrTimeout):
		return "timeout"
	case errors.Is(err, stt.ErrTranscriptionFailed):
		return "transcription"
	}
	return "other"
}

// ChatHistory returns the user's most recent turns, oldest first.
func (p *Pipeline) ChatHistory(ctx context.Context, userID string, limit int) ([]store.ChatTurn, error) {
	if p.chats == nil {
		return []store.ChatTurn{}, nil
	}
	return p.chats.ListChatTurns(ctx, userID, limit)
}

func (p *Pipeline) ClearChatHistory(ctx context.Context, userID string) (int64, error) {
	if p.chats == nil {
		return 0, nil
	}
	return p.chats.ClearChatHistory(ctx, userID)
}

// Habits returns the user's habits for the UI refetch.
func (p *Pipeline) Habits(ctx context.Context, userID string) ([]habits.Habit, error) {
	return p.exec.Habits(ctx, userID)
}

var _ Replier = (*conversation.Replier)(nil)
