package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/lukasbauer/habitvoice/internal/stt"
)

// Session is a single-subscriber capture session. At most one recognition
// is active at a time; starting again tears the previous one down first.
//
// The sink may be called from the audio callback, timer and recognizer
// goroutines, never while the session lock is held.
type Session struct {
	cfg         Config
	mic         Microphone
	rec         Recognizer
	sink        func(Event)
	logger      *log.Logger
	unsupported error

	meter levelMeter

	mu        sync.Mutex
	state     State
	token     uint64
	dev       CaptureDevice
	quiet     time.Duration
	partial   stt.Transcript
	armTimer  *time.Timer
	hardTimer *time.Timer
	tickStop  chan struct{}
	recCancel context.CancelFunc
}

// New creates a session. When the microphone reports that capture is not
// supported the session is returned disabled together with ErrUnsupported,
// and every Start fails with ErrUnsupported.
func New(cfg Config, mic Microphone, rec Recognizer, sink func(Event), logger *log.Logger) (*Session, error) {
	if sink == nil {
		sink = func(Event) {}
	}
	s := &Session{
		cfg:    cfg.withDefaults(),
		mic:    mic,
		rec:    rec,
		sink:   sink,
		logger: logger,
	}

	var err error
	switch {
	case mic == nil || rec == nil:
		err = ErrUnsupported
	default:
		if serr := mic.Supported(); serr != nil {
			err = serr
			if !errors.Is(serr, ErrUnsupported) {
				err = fmt.Errorf("%w: %v", ErrUnsupported, serr)
			}
		}
	}
	if err != nil {
		s.unsupported = err
		logger.Printf("capture: disabled: %v", err)
		return s, err
	}
	return s, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start opens the microphone and arms the session. Open may block on a
// permission prompt; Stop during that time cancels the start and the
// device is closed as soon as it arrives.
func (s *Session) Start(ctx context.Context) error {
	if s.unsupported != nil {
		return ErrUnsupported
	}

	s.mu.Lock()
	effects := s.teardownLocked(true)
	s.token++
	tok := s.token
	effects = append(effects, s.setStateLocked(Arming))
	s.mu.Unlock()
	run(effects)

	dev, err := s.mic.Open(ctx)
	if err == nil {
		dev.SetCallback(s.onAudio(tok))
		if serr := dev.Start(); serr != nil {
			dev.ClearCallback()
			dev.Close()
			err = serr
		}
	}

	s.mu.Lock()
	if s.token != tok || s.state != Arming {
		s.mu.Unlock()
		if err == nil {
			release(dev)
		}
		return nil
	}
	if err != nil {
		if !errors.Is(err, ErrPermissionDenied) {
			err = fmt.Errorf("capture: open device: %w", err)
		}
		effects = s.teardownLocked(false)
		effects = append(effects, s.emitFunc(Event{Kind: EventError, Token: tok, Err: err}))
		s.mu.Unlock()
		run(effects)
		s.logger.Printf("capture: start failed: %v", err)
		return err
	}

	s.dev = dev
	s.meter.Reset()
	stop := make(chan struct{})
	s.tickStop = stop
	effects = []func(){s.setStateLocked(Armed), func() { go s.runTicker(tok, stop) }}
	if s.cfg.ListenImmediately {
		effects = append(effects, s.beginListeningLocked(tok)...)
	} else {
		s.armTimer = time.AfterFunc(s.cfg.HardTimeout, func() { s.armExpired(tok) })
	}
	s.mu.Unlock()
	run(effects)
	return nil
}

// Stop forces the session back to Idle from any state. Timers are
// cancelled, the device is released, and results still in flight from the
// recognizer are dropped.
func (s *Session) Stop() {
	s.mu.Lock()
	effects := s.teardownLocked(true)
	s.mu.Unlock()
	run(effects)
}

// Close stops the session for good.
func (s *Session) Close() {
	s.Stop()
}

func (s *Session) onAudio(tok uint64) DataCallback {
	return func(data []byte, _ uint32) {
		s.mu.Lock()
		if s.token != tok {
			s.mu.Unlock()
			return
		}
		st := s.state
		s.mu.Unlock()

		switch st {
		case Armed:
			s.meter.Add(data)
		case Listening:
			s.meter.Add(data)
			s.rec.Feed(data)
		}
	}
}

func (s *Session) runTicker(tok uint64, stop <-chan struct{}) {
	t := time.NewTicker(s.cfg.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.tick(tok)
		}
	}
}

// tick samples the rolling level and applies the activation and silence
// rules.
func (s *Session) tick(tok uint64) {
	level := s.meter.Tick()

	s.mu.Lock()
	if s.token != tok {
		s.mu.Unlock()
		return
	}
	var effects []func()
	switch s.state {
	case Armed:
		if level >= s.cfg.ActivationLevel {
			effects = s.beginListeningLocked(tok)
		}
	case Listening:
		if level >= s.cfg.ActivationLevel {
			s.quiet = 0
			break
		}
		s.quiet += s.cfg.TickInterval
		if s.quiet >= s.cfg.SilenceWindow {
			effects = s.finalizeLocked()
		}
	}
	s.mu.Unlock()
	run(effects)
}

func (s *Session) beginListeningLocked(tok uint64) []func() {
	if s.armTimer != nil {
		s.armTimer.Stop()
		s.armTimer = nil
	}
	s.quiet = 0
	s.partial = stt.Transcript{}
	s.hardTimer = time.AfterFunc(s.cfg.HardTimeout, func() { s.hardTimeout(tok) })

	ctx, cancel := context.WithCancel(context.Background())
	s.recCancel = cancel

	return []func(){
		s.setStateLocked(Listening),
		func() {
			if err := s.rec.Start(ctx, s.onResult(tok), s.onRecognizerError(tok)); err != nil {
				s.onRecognizerError(tok)(fmt.Errorf("capture: start recognizer: %w", err))
			}
		},
	}
}

// finalizeLocked asks the recognizer for its final result. The hard
// timeout no longer applies; the recognizer gets FinalizeTimeout instead.
func (s *Session) finalizeLocked() []func() {
	if s.hardTimer != nil {
		s.hardTimer.Stop()
	}
	tok := s.token
	s.hardTimer = time.AfterFunc(s.cfg.FinalizeTimeout, func() { s.hardTimeout(tok) })
	return []func(){s.setStateLocked(Finalizing), s.rec.Stop}
}

func (s *Session) onResult(tok uint64) func(stt.Transcript) {
	return func(tr stt.Transcript) {
		s.mu.Lock()
		if s.token != tok || (s.state != Listening && s.state != Finalizing) {
			s.mu.Unlock()
			return
		}
		text := strings.TrimSpace(tr.Text)
		if !tr.IsFinal {
			if text == "" {
				s.mu.Unlock()
				return
			}
			s.partial = tr
			s.mu.Unlock()
			s.sink(Event{Kind: EventInterim, Token: tok, State: Listening, Transcript: tr})
			return
		}

		ev := Event{Kind: EventFinal, Token: tok, Transcript: tr}
		if text == "" {
			ev = Event{Kind: EventEmpty, Token: tok}
		}
		effects := []func(){s.emitFunc(ev)}
		effects = append(effects, s.teardownLocked(false)...)
		s.mu.Unlock()
		run(effects)
	}
}

func (s *Session) onRecognizerError(tok uint64) func(error) {
	return func(err error) {
		s.mu.Lock()
		if s.token != tok || s.state == Idle {
			s.mu.Unlock()
			return
		}
		effects := []func(){s.emitFunc(Event{Kind: EventError, Token: tok, Err: err})}
		effects = append(effects, s.teardownLocked(true)...)
		s.mu.Unlock()
		s.logger.Printf("capture: recognizer error: %v", err)
		run(effects)
	}
}

// hardTimeout promotes the best partial transcript to a final one, or
// reports an empty result when nothing was heard. It fires after
// HardTimeout while listening or FinalizeTimeout while finalizing.
func (s *Session) hardTimeout(tok uint64) {
	s.mu.Lock()
	if s.token != tok || (s.state != Listening && s.state != Finalizing) {
		s.mu.Unlock()
		return
	}
	ev := Event{Kind: EventEmpty, Token: tok}
	if strings.TrimSpace(s.partial.Text) != "" {
		tr := s.partial
		tr.IsFinal = true
		ev = Event{Kind: EventFinal, Token: tok, Transcript: tr, BestEffort: true}
	}
	effects := []func(){s.emitFunc(ev)}
	effects = append(effects, s.teardownLocked(true)...)
	s.mu.Unlock()
	run(effects)
}

func (s *Session) armExpired(tok uint64) {
	s.mu.Lock()
	if s.token != tok || s.state != Armed {
		s.mu.Unlock()
		return
	}
	effects := []func(){s.emitFunc(Event{Kind: EventEmpty, Token: tok})}
	effects = append(effects, s.teardownLocked(false)...)
	s.mu.Unlock()
	run(effects)
}

// teardownLocked returns the session to Idle and invalidates the current
// token. The returned effects release the device and must run after the
// lock is dropped.
func (s *Session) teardownLocked(abort bool) []func() {
	if s.state == Idle {
		return nil
	}
	prev := s.state
	tok := s.token
	s.token++
	s.state = Idle
	s.quiet = 0
	s.partial = stt.Transcript{}

	if s.armTimer != nil {
		s.armTimer.Stop()
		s.armTimer = nil
	}
	if s.hardTimer != nil {
		s.hardTimer.Stop()
		s.hardTimer = nil
	}
	if s.tickStop != nil {
		close(s.tickStop)
		s.tickStop = nil
	}

	var effects []func()
	if abort && (prev == Listening || prev == Finalizing) {
		effects = append(effects, s.rec.Abort)
	}
	if s.recCancel != nil {
		effects = append(effects, s.recCancel)
		s.recCancel = nil
	}
	if dev := s.dev; dev != nil {
		s.dev = nil
		effects = append(effects, func() { release(dev) })
	}
	effects = append(effects, s.emitFunc(Event{Kind: EventStateChanged, Token: tok, State: Idle}))
	return effects
}

func (s *Session) setStateLocked(st State) func() {
	s.state = st
	return s.emitFunc(Event{Kind: EventStateChanged, Token: s.token, State: st})
}

func (s *Session) emitFunc(ev Event) func() {
	return func() { s.sink(ev) }
}

func release(dev CaptureDevice) {
	dev.ClearCallback()
	dev.Stop()
	dev.Close()
}

func run(effects []func()) {
	for _, f := range effects {
		f()
	}
}
