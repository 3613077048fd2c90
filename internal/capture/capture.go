// Package capture turns a live microphone stream into finalized transcripts,
// using signal-level voice activity detection to decide
// when a recognition session starts and ends.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/lukasbauer/habitvoice/internal/stt"
)

var (
	ErrPermissionDenied = errors.New("capture: microphone permission denied")
	ErrUnsupported      = errors.New("capture: audio capture unsupported")
)

const (
	SampleRate = 16000
	Channels   = 1
)

type DataCallback func(data []byte, frameCount uint32)

// CaptureDevice is an opened input device delivering 16-bit mono PCM.
type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
}

// Microphone opens capture devices. Open may block on a permission prompt.
type Microphone interface {
	// Supported returns ErrUnsupported if capture can never work here.
	Supported() error
	Open(ctx context.Context) (CaptureDevice, error)
}

// Recognizer is an incremental speech recognizer driven by the session.
// Results may arrive on any goroutine.
type Recognizer interface {
	Start(ctx context.Context, onResult func(stt.Transcript), onError func(error)) error
	Feed(pcm []byte)
	// Stop asks for a final result; one may still be delivered afterwards.
	Stop()
	// Abort discards the recognition without a final result.
	Abort()
}

type State int

const (
	Idle State = iota
	Arming
	Armed
	Listening
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Arming:
		return "arming"
	case Armed:
		return "armed"
	case Listening:
		return "listening"
	case Finalizing:
		return "finalizing"
	}
	return "unknown"
}

type EventKind int

const (
	EventStateChanged EventKind = iota
	EventInterim
	EventFinal
	EventEmpty
	EventError
)

// Event is delivered to the session's single subscriber.
type Event struct {
	Kind       EventKind
	Token      uint64
	State      State
	Transcript stt.Transcript
	// BestEffort is set when the hard timeout promoted a partial result.
	BestEffort bool
	Err        error
}

type Config struct {
	// ActivationLevel is the normalized RMS (0-1) treated as speech.
	ActivationLevel float64
	SilenceWindow   time.Duration
	HardTimeout     time.Duration
	// FinalizeTimeout bounds the wait for the final result once listening
	// has stopped. It replaces HardTimeout in Finalizing and has to cover a
	// remote transcription, cold model load included.
	FinalizeTimeout time.Duration
	TickInterval    time.Duration
	// ListenImmediately starts the recognizer as soon as the device is open
	// instead of waiting Armed for the level to cross ActivationLevel.
	ListenImmediately bool
}

func (c Config) withDefaults() Config {
	if c.ActivationLevel <= 0 {
		c.ActivationLevel = 0.02
	}
	if c.SilenceWindow <= 0 {
		c.SilenceWindow = 2 * time.Second
	}
	if c.HardTimeout <= 0 {
		c.HardTimeout = 10 * time.Second
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = 3 * time.Minute
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	return c
}
