package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/lukasbauer/habitvoice/internal/stt"
)

type fakeRecognizer struct {
	mu       sync.Mutex
	starts   int
	stops    int
	aborts   int
	fed      int
	startErr error
	onResult func(stt.Transcript)
	onError  func(error)
}

func (r *fakeRecognizer) Start(ctx context.Context, onResult func(stt.Transcript), onError func(error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	r.onResult = onResult
	r.onError = onError
	return r.startErr
}

func (r *fakeRecognizer) Feed(pcm []byte) {
	r.mu.Lock()
	r.fed += len(pcm)
	r.mu.Unlock()
}

func (r *fakeRecognizer) Stop() {
	r.mu.Lock()
	r.stops++
	r.mu.Unlock()
}

func (r *fakeRecognizer) Abort() {
	r.mu.Lock()
	r.aborts++
	r.mu.Unlock()
}

func (r *fakeRecognizer) result(tr stt.Transcript) {
	r.mu.Lock()
	cb := r.onResult
	r.mu.Unlock()
	cb(tr)
}

func (r *fakeRecognizer) counts() (starts, stops, aborts, fed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops, r.aborts, r.fed
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 64)}
}

func (r *recorder) sink(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) find(kind EventKind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return Event{}, false
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) wait(t *testing.T, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if ev, ok := r.find(kind); ok {
			return ev
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %d", kind)
		}
	}
}

// tone returns n samples of a constant-amplitude signal.
func tone(n int, amp int16) []byte {
	b := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(amp))
	}
	return b
}

// manualConfig disables the background ticker so tests drive ticks.
var manualConfig = Config{
	ActivationLevel: 0.05,
	TickInterval:    time.Hour,
	SilenceWindow:   2 * time.Hour,
	HardTimeout:     time.Hour,
}

func newTestSession(t *testing.T, cfg Config, mic *FakeMicrophone, rec *fakeRecognizer) (*Session, *recorder) {
	t.Helper()
	rc := newRecorder()
	s, err := New(cfg, mic, rec, rc.sink, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s, rc
}

func (s *Session) currentToken() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func TestNew_Unsupported(t *testing.T) {
	mic := &FakeMicrophone{Unsupported: errors.New("no audio backend")}
	s, err := New(Config{}, mic, &fakeRecognizer{}, nil, log.New(io.Discard, "", 0))
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("New err = %v, want ErrUnsupported", err)
	}
	for i := 0; i < 2; i++ {
		if err := s.Start(context.Background()); !errors.Is(err, ErrUnsupported) {
			t.Errorf("Start err = %v, want ErrUnsupported", err)
		}
	}
	if len(mic.Opened()) != 0 {
		t.Error("disabled session opened a device")
	}
}

func TestStart_PermissionDenied(t *testing.T) {
	mic := &FakeMicrophone{OpenErr: ErrPermissionDenied}
	s, rc := newTestSession(t, manualConfig, mic, &fakeRecognizer{})

	err := s.Start(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Start err = %v, want ErrPermissionDenied", err)
	}
	if s.State() != Idle {
		t.Errorf("State = %v, want idle", s.State())
	}
	if ev, ok := rc.find(EventError); !ok || !errors.Is(ev.Err, ErrPermissionDenied) {
		t.Errorf("error event = %+v, %v", ev, ok)
	}
}

func TestSession_ActivationAndSilence(t *testing.T) {
	mic := &FakeMicrophone{}
	rec := &fakeRecognizer{}
	s, rc := newTestSession(t, manualConfig, mic, rec)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != Armed {
		t.Fatalf("State = %v, want armed", s.State())
	}
	dev := mic.Opened()[0]
	tok := s.currentToken()

	// quiet input keeps the session armed
	dev.Push(tone(1600, 100))
	s.tick(tok)
	if s.State() != Armed {
		t.Fatalf("State = %v after quiet tick, want armed", s.State())
	}

	dev.Push(tone(1600, 16000))
	s.tick(tok)
	if s.State() != Listening {
		t.Fatalf("State = %v after loud tick, want listening", s.State())
	}
	if starts, _, _, _ := rec.counts(); starts != 1 {
		t.Errorf("recognizer starts = %d, want 1", starts)
	}

	dev.Push(tone(1600, 16000))
	if _, _, _, fed := rec.counts(); fed != 3200 {
		t.Errorf("fed = %d bytes, want 3200", fed)
	}

	for i := 0; i < 10 && s.State() == Listening; i++ {
		s.tick(tok)
	}
	if s.State() != Finalizing {
		t.Fatalf("State = %v after silence, want finalizing", s.State())
	}
	if _, stops, _, _ := rec.counts(); stops != 1 {
		t.Errorf("recognizer stops = %d, want 1", stops)
	}
	if dev.Closes() != 0 {
		t.Error("device released before the final result")
	}

	rec.result(stt.Transcript{Text: "mark water as done", Confidence: 0.9, IsFinal: true})
	ev := rc.wait(t, EventFinal)
	if ev.Transcript.Text != "mark water as done" || ev.BestEffort {
		t.Errorf("final event = %+v", ev)
	}
	if s.State() != Idle {
		t.Errorf("State = %v, want idle", s.State())
	}
	if dev.Closes() != 1 {
		t.Errorf("device closed %d times, want 1", dev.Closes())
	}
}

func TestSession_EmptyFinalResult(t *testing.T) {
	mic := &FakeMicrophone{}
	rec := &fakeRecognizer{}
	cfg := manualConfig
	cfg.ListenImmediately = true
	s, rc := newTestSession(t, cfg, mic, rec)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec.result(stt.Transcript{Text: "  ", IsFinal: true})
	rc.wait(t, EventEmpty)
	if rc.count(EventFinal) != 0 {
		t.Error("empty result forwarded as final")
	}
}

func TestSession_StopReleasesDeviceOnceAndCancelsTimers(t *testing.T) {
	mic := &FakeMicrophone{}
	rec := &fakeRecognizer{}
	cfg := manualConfig
	cfg.ListenImmediately = true
	cfg.HardTimeout = 30 * time.Millisecond
	s, rc := newTestSession(t, cfg, mic, rec)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec.result(stt.Transcript{Text: "show my", IsFinal: false})
	rc.wait(t, EventInterim)

	s.Stop()
	s.Stop()

	dev := mic.Opened()[0]
	if dev.Closes() != 1 {
		t.Errorf("device closed %d times, want 1", dev.Closes())
	}
	if _, _, aborts, _ := rec.counts(); aborts != 1 {
		t.Errorf("aborts = %d, want 1", aborts)
	}

	// late result from the stopped recognizer is dropped
	rec.result(stt.Transcript{Text: "show my habits", IsFinal: true})

	time.Sleep(100 * time.Millisecond)
	if n := rc.count(EventFinal) + rc.count(EventEmpty); n != 0 {
		t.Errorf("got %d final/empty events after stop, want 0", n)
	}
	if s.State() != Idle {
		t.Errorf("State = %v, want idle", s.State())
	}
}

func TestSession_HardTimeoutPromotesPartial(t *testing.T) {
	mic := &FakeMicrophone{}
	rec := &fakeRecognizer{}
	cfg := manualConfig
	cfg.ListenImmediately = true
	cfg.HardTimeout = 30 * time.Millisecond
	s, rc := newTestSession(t, cfg, mic, rec)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec.result(stt.Transcript{Text: "add a habit to read", Confidence: 0.6})

	ev := rc.wait(t, EventFinal)
	if !ev.BestEffort || !ev.Transcript.IsFinal || ev.Transcript.Text != "add a habit to read" {
		t.Errorf("final event = %+v", ev)
	}
	if _, _, aborts, _ := rec.counts(); aborts != 1 {
		t.Errorf("aborts = %d, want 1", aborts)
	}
	if mic.Opened()[0].Closes() != 1 {
		t.Error("device not released after timeout")
	}
}

func TestSession_HardTimeoutWithoutSpeech(t *testing.T) {
	mic := &FakeMicrophone{}
	rec := &fakeRecognizer{}
	cfg := manualConfig
	cfg.ListenImmediately = true
	cfg.HardTimeout = 30 * time.Millisecond
	s, rc := newTestSession(t, cfg, mic, rec)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rc.wait(t, EventEmpty)
	if rc.count(EventFinal) != 0 {
		t.Error("timeout without speech produced a final transcript")
	}
}

func TestSession_RestartTearsDownPrevious(t *testing.T) {
	mic := &FakeMicrophone{}
	rec := &fakeRecognizer{}
	cfg := manualConfig
	cfg.ListenImmediately = true
	s, _ := newTestSession(t, cfg, mic, rec)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	first := rec.onResult
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	devs := mic.Opened()
	if len(devs) != 2 {
		t.Fatalf("opened %d devices, want 2", len(devs))
	}
	if devs[0].Closes() != 1 || devs[1].Closes() != 0 {
		t.Errorf("closes = %d/%d, want 1/0", devs[0].Closes(), devs[1].Closes())
	}

	// callbacks from the first session carry a stale token
	first(stt.Transcript{Text: "stale", IsFinal: true})
	if s.State() != Listening {
		t.Errorf("State = %v, stale result should be ignored", s.State())
	}
}

func TestSession_RecognizerStartError(t *testing.T) {
	mic := &FakeMicrophone{}
	rec := &fakeRecognizer{startErr: errors.New("engine busy")}
	cfg := manualConfig
	cfg.ListenImmediately = true
	s, rc := newTestSession(t, cfg, mic, rec)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rc.wait(t, EventError)
	if s.State() != Idle {
		t.Errorf("State = %v, want idle", s.State())
	}
	if mic.Opened()[0].Closes() != 1 {
		t.Error("device not released after recognizer error")
	}
}

type fakeTranscriber struct {
	mu  sync.Mutex
	got []stt.AudioSegment
	err error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, seg stt.AudioSegment) (stt.Transcript, error) {
	f.mu.Lock()
	f.got = append(f.got, seg)
	f.mu.Unlock()
	if f.err != nil {
		return stt.Transcript{}, f.err
	}
	return stt.Transcript{Text: "list my habits", Confidence: 0.8}, nil
}

func TestSegmentRecognizer(t *testing.T) {
	ft := &fakeTranscriber{}
	r := NewSegmentRecognizer(ft)

	results := make(chan stt.Transcript, 1)
	r.Start(context.Background(), func(tr stt.Transcript) { results <- tr }, func(err error) { t.Errorf("onError: %v", err) })
	r.Feed(tone(160, 1000))
	r.Feed(tone(160, 1000))
	r.Stop()
	r.Feed(tone(160, 1000))

	select {
	case tr := <-results:
		if !tr.IsFinal || tr.Text != "list my habits" {
			t.Errorf("result = %+v", tr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.got) != 1 {
		t.Fatalf("transcribe calls = %d, want 1", len(ft.got))
	}
	seg := ft.got[0]
	if seg.MimeType != "audio/wav" {
		t.Errorf("MimeType = %q", seg.MimeType)
	}
	pcm, err := DecodeWAV(seg.Data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if len(pcm) != 640 {
		t.Errorf("pcm = %d bytes, want 640", len(pcm))
	}
}

func TestSegmentRecognizer_EmptyAndAbort(t *testing.T) {
	ft := &fakeTranscriber{}
	r := NewSegmentRecognizer(ft)

	results := make(chan stt.Transcript, 1)
	r.Start(context.Background(), func(tr stt.Transcript) { results <- tr }, func(error) {})
	r.Stop()
	select {
	case tr := <-results:
		if !tr.IsFinal || tr.Text != "" {
			t.Errorf("result = %+v, want empty final", tr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}

	r.Start(context.Background(), func(tr stt.Transcript) { results <- tr }, func(error) {})
	r.Feed(tone(160, 1000))
	r.Abort()
	r.Stop()

	select {
	case tr := <-results:
		t.Errorf("unexpected result after abort: %+v", tr)
	case <-time.After(50 * time.Millisecond):
	}
	if len(ft.got) != 0 {
		t.Errorf("transcribe calls = %d, want 0", len(ft.got))
	}
}

// slowTranscriber answers after delay unless its context ends first.
type slowTranscriber struct {
	delay time.Duration

	mu     sync.Mutex
	ctxErr error
}

func (f *slowTranscriber) Transcribe(ctx context.Context, seg stt.AudioSegment) (stt.Transcript, error) {
	select {
	case <-time.After(f.delay):
		return stt.Transcript{Text: "add a habit to stretch", Confidence: 0.8}, nil
	case <-ctx.Done():
		f.mu.Lock()
		f.ctxErr = ctx.Err()
		f.mu.Unlock()
		return stt.Transcript{}, ctx.Err()
	}
}

func (f *slowTranscriber) cancelled() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctxErr
}

// speakThenSilence feeds one loud chunk and ticks until the session stops
// listening.
func speakThenSilence(t *testing.T, s *Session, dev *FakeDevice) {
	t.Helper()
	tok := s.currentToken()
	dev.Push(tone(1600, 16000))
	for i := 0; i < 10 && s.State() == Listening; i++ {
		s.tick(tok)
	}
	if s.State() != Finalizing {
		t.Fatalf("State = %v after silence, want finalizing", s.State())
	}
}

func TestSession_SlowTranscriptionOutlivesHardTimeout(t *testing.T) {
	mic := &FakeMicrophone{}
	st := &slowTranscriber{delay: 300 * time.Millisecond}
	cfg := manualConfig
	cfg.ListenImmediately = true
	cfg.HardTimeout = 100 * time.Millisecond
	cfg.FinalizeTimeout = 5 * time.Second
	rc := newRecorder()
	s, err := New(cfg, mic, NewSegmentRecognizer(st), rc.sink, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	speakThenSilence(t, s, mic.Opened()[0])

	ev := rc.wait(t, EventFinal)
	if ev.Transcript.Text != "add a habit to stretch" || ev.BestEffort {
		t.Errorf("final event = %+v", ev)
	}
	if rc.count(EventEmpty) != 0 {
		t.Error("utterance reported as empty")
	}
	if err := st.cancelled(); err != nil {
		t.Errorf("transcription context ended early: %v", err)
	}
}

func TestSession_FinalizeTimeout(t *testing.T) {
	mic := &FakeMicrophone{}
	st := &slowTranscriber{delay: time.Hour}
	cfg := manualConfig
	cfg.ListenImmediately = true
	cfg.FinalizeTimeout = 50 * time.Millisecond
	rc := newRecorder()
	s, err := New(cfg, mic, NewSegmentRecognizer(st), rc.sink, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	speakThenSilence(t, s, mic.Opened()[0])

	rc.wait(t, EventEmpty)
	if s.State() != Idle {
		t.Errorf("State = %v, want idle", s.State())
	}
	if mic.Opened()[0].Closes() != 1 {
		t.Error("device not released after finalize timeout")
	}
}
