package dispatch

import (
	"context"
	"errors"
	"io"
	"log"
	"slices"
	"sync"
	"testing"

	"github.com/lukasbauer/habitvoice/internal/habits"
	"github.com/lukasbauer/habitvoice/internal/intent"
	"github.com/lukasbauer/habitvoice/internal/resolve"
	"github.com/lukasbauer/habitvoice/internal/respond"
)

type recorder struct {
	mu     sync.Mutex
	calls  []string
	spoken []string
	err    error
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
}

func (r *recorder) Speak(ctx context.Context, text string) error {
	r.mu.Lock()
	r.spoken = append(r.spoken, text)
	r.mu.Unlock()
	r.add("speak")
	return r.err
}

func (r *recorder) Navigate(route string) { r.add("navigate " + route) }
func (r *recorder) Logout(route string)   { r.add("logout " + route) }
func (r *recorder) Refresh()              { r.add("refresh") }
func (r *recorder) RefreshHabits()        { r.add("refresh_habits") }
func (r *recorder) HabitDataChanged(action string, data map[string]any) {
	r.add(EventHabitDataChanged + " " + action)
}

func newDispatcher(r *recorder) *Dispatcher {
	return New(r, r, r, log.New(io.Discard, "", 0))
}

func TestDispatch_SpeaksThenActs(t *testing.T) {
	r := &recorder{}
	d := newDispatcher(r)
	env := respond.FromAppCommand(intent.Command{Kind: intent.Logout})

	if !d.Dispatch(context.Background(), &env) {
		t.Fatal("first dispatch should run")
	}
	if want := []string{"speak", "logout /login"}; !slices.Equal(r.calls, want) {
		t.Errorf("calls = %v, want %v", r.calls, want)
	}
}

func TestDispatch_AtMostOnce(t *testing.T) {
	r := &recorder{}
	d := newDispatcher(r)

	byID := respond.FromConversation("hi")
	byID.TurnID = "turn-1"
	copyOf := byID
	d.Dispatch(context.Background(), &byID)
	if d.Dispatch(context.Background(), &copyOf) {
		t.Error("same turn ID dispatched twice")
	}

	anon := respond.FromConversation("hello")
	d.Dispatch(context.Background(), &anon)
	if d.Dispatch(context.Background(), &anon) {
		t.Error("same envelope dispatched twice")
	}
	if len(r.spoken) != 2 {
		t.Errorf("spoken = %v, want two utterances", r.spoken)
	}
}

func TestDispatch_DataChangedFallback(t *testing.T) {
	r := &recorder{}
	d := newDispatcher(r)
	env := respond.FromAction(habits.Result{Kind: intent.Complete, Success: true, Mutated: true, Message: "done"})
	env.FrontendAction = nil

	d.Dispatch(context.Background(), &env)
	if want := []string{"speak", "habitDataChanged complete_habit"}; !slices.Equal(r.calls, want) {
		t.Errorf("calls = %v, want %v", r.calls, want)
	}
}

func TestDispatch_SpeechErrorStillActs(t *testing.T) {
	r := &recorder{err: errors.New("no audio device")}
	d := newDispatcher(r)
	env := respond.FromAction(habits.Result{Kind: intent.Add, Success: true, Mutated: true, Message: "Added"})

	d.Dispatch(context.Background(), &env)
	if want := []string{"speak", "refresh_habits"}; !slices.Equal(r.calls, want) {
		t.Errorf("calls = %v, want %v", r.calls, want)
	}
}

func TestDispatch_FailureDoesNothingButSpeak(t *testing.T) {
	r := &recorder{}
	d := newDispatcher(r)
	env := respond.FromFailure(respond.ErrNoSpeech, resolve.ResolvedCommand{})

	d.Dispatch(context.Background(), &env)
	if want := []string{"speak"}; !slices.Equal(r.calls, want) {
		t.Errorf("calls = %v, want %v", r.calls, want)
	}
}

func TestStripMarkdown(t *testing.T) {
	tests := []struct{ in, want string }{
		{"**Great thinking!** Building habits is so powerful.", "Great thinking! Building habits is so powerful."},
		{"I love *small* steps and ***big*** wins", "I love small steps and big wins"},
		{"**Navigation**\n- \"Go home\"\n- \"Open chat\"", "Navigation\n\"Go home\"\n\"Open chat\""},
		{"## Tips\n1. Drink water", "Tips\nDrink water"},
		{"See [the docs](https://example.com) for `more`", "See the docs for more"},
		{"keep snake_case_names", "keep snake_case_names"},
	}
	for _, tt := range tests {
		if got := StripMarkdown(tt.in); got != tt.want {
			t.Errorf("StripMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type fakeTTS struct{ pcm []byte }

func (f fakeTTS) Synthesize(ctx context.Context, text string) ([]byte, error) { return f.pcm, nil }
func (f fakeTTS) SampleRate() int                                             { return 16000 }

type fakePlayer struct {
	got  []byte
	rate int
}

func (p *fakePlayer) Play(ctx context.Context, pcm []byte, rate int) error {
	p.got, p.rate = pcm, rate
	return nil
}

func TestTTSSpeaker(t *testing.T) {
	p := &fakePlayer{}
	s := NewTTSSpeaker(fakeTTS{pcm: []byte{1, 0, 2, 0}}, p)
	if err := s.Speak(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}
	if len(p.got) != 4 || p.rate != 16000 {
		t.Errorf("played %v at %d", p.got, p.rate)
	}
}
