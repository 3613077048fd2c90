package conversation

import (
	"context"
	"errors"
	"io"
	"log"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/lukasbauer/habitvoice/internal/llm"
)

type fakeClient struct {
	reply string
	err   error
	delay time.Duration
	calls atomic.Int32
	last  []llm.Message
}

func (f *fakeClient) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	f.calls.Add(1)
	f.last = messages
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func historyOf(n int) HistoryFunc {
	return func(ctx context.Context, userID string, limit int) ([]Exchange, error) {
		var out []Exchange
		for i := 0; i < n; i++ {
			out = append(out, Exchange{Message: "m", Response: "r"})
		}
		return out, nil
	}
}

func TestReply_UsesModelWithHistoryWindow(t *testing.T) {
	client := &fakeClient{reply: "Drink a glass of water first thing."}
	r := NewReplier(client, historyOf(14), Config{}, testLogger())

	got := r.Reply(context.Background(), "u1", "any tips?")
	if got != client.reply {
		t.Errorf("reply = %q, want model reply verbatim", got)
	}
	// 10 exchanges of two messages each, plus the new message.
	if len(client.last) != 21 {
		t.Fatalf("messages = %d, want 21", len(client.last))
	}
	if last := client.last[20]; last.Role != "user" || last.Content != "any tips?" {
		t.Errorf("last message = %+v", last)
	}
}

func TestReply_FallbackOnError(t *testing.T) {
	client := &fakeClient{err: errors.New("boom")}
	var reasons []string
	r := NewReplier(client, nil, Config{}, testLogger())
	r.OnFallback = func(reason string) { reasons = append(reasons, reason) }
	r.pick = func(int) int { return 0 }

	got := r.Reply(context.Background(), "u1", "hello there")
	if got != replyGroups[0].replies[0] {
		t.Errorf("reply = %q, want greeting fallback", got)
	}
	if !slices.Equal(reasons, []string{"model error"}) {
		t.Errorf("reasons = %v", reasons)
	}
}

func TestReply_Timeout(t *testing.T) {
	client := &fakeClient{reply: "late", delay: time.Second}
	r := NewReplier(client, nil, Config{Timeout: 10 * time.Millisecond}, testLogger())
	var reason string
	r.OnFallback = func(s string) { reason = s }

	start := time.Now()
	got := r.Reply(context.Background(), "u1", "what should I do today")
	if got == "late" || got == "" {
		t.Errorf("reply = %q, want fallback", got)
	}
	if reason != "timeout" {
		t.Errorf("reason = %q, want timeout", reason)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Reply did not honor the timeout")
	}
}

func TestReply_BreakerOpensAfterFailures(t *testing.T) {
	client := &fakeClient{err: errors.New("down")}
	r := NewReplier(client, nil, Config{}, testLogger())
	opened := 0
	r.OnBreakerOpen = func() { opened++ }

	for i := 0; i < 5; i++ {
		r.Reply(context.Background(), "u1", "hi")
	}
	if n := client.calls.Load(); n != 3 {
		t.Errorf("model calls = %d, want 3 before the breaker opens", n)
	}
	if r.Breaker() != gobreaker.StateOpen {
		t.Errorf("breaker = %v, want open", r.Breaker())
	}
	if opened != 1 {
		t.Errorf("OnBreakerOpen called %d times, want 1", opened)
	}
}

func TestReply_NoClient(t *testing.T) {
	r := NewReplier(nil, nil, Config{}, testLogger())
	if got := r.Reply(context.Background(), "u1", "hmm"); !slices.Contains(defaultReplies, got) {
		t.Errorf("reply = %q, want a default fallback", got)
	}
}

func TestFallbackReply(t *testing.T) {
	first := func(int) int { return 0 }
	tests := []struct {
		text       string
		hasContext bool
		want       string
	}{
		{"Hey!", false, replyGroups[0].replies[0]},
		{"this is nothing", false, defaultReplies[0]},
		{"how are you today", false, replyGroups[1].replies[0]},
		{"I want better habits", false, replyGroups[2].replies[0]},
		{"so busy at work", false, replyGroups[3].replies[0]},
		{"my goal is to improve", false, replyGroups[4].replies[0]},
		{"I'm so tired", false, replyGroups[5].replies[0]},
		{"tell me more", true, followUpReply},
		{"tell me more", false, defaultReplies[0]},
	}
	for _, tt := range tests {
		if got := FallbackReply(tt.text, tt.hasContext, first); got != tt.want {
			t.Errorf("FallbackReply(%q, %v) = %q, want %q", tt.text, tt.hasContext, got, tt.want)
		}
	}
}
