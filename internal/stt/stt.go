package stt

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrServiceDisabled means no transcription backend is configured.
	ErrServiceDisabled = errors.New("stt: service disabled")
	// ErrModelLoadFailed is terminal for the lifetime of the process.
	ErrModelLoadFailed = errors.New("stt: model load failed")
	// ErrTranscriptionFailed applies to a single request and may be retried by the caller.
	ErrTranscriptionFailed = errors.New("stt: transcription failed")
	ErrTimeout             = errors.New("stt: timeout")
)

// AudioSegment is a finished recording handed over by a capture session.
type AudioSegment struct {
	Data       []byte
	MimeType   string // e.g. "audio/wav", "audio/webm"
	CapturedAt time.Time
}

// Transcript represents a speech-to-text transcription result.
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0-1
	Language   string  `json:"language"`
	IsFinal    bool    `json:"is_final"`
}

// ModelReadiness is the process-wide state of the transcription model.
type ModelReadiness struct {
	Attempted bool    `json:"attempted"`
	Ready     bool    `json:"ready"`
	Model     string  `json:"model"`
	Device    string  `json:"device"`
	Error     *string `json:"error"`
}

// Gateway turns an audio segment into a transcript.
type Gateway interface {
	Transcribe(ctx context.Context, seg AudioSegment) (Transcript, error)

	// Status reports readiness without triggering a load.
	Status() ModelReadiness

	// Enabled reports whether a backend is configured at all.
	Enabled() bool
}

// Model is a loaded speech model bound to one compute device.
type Model interface {
	Transcribe(ctx context.Context, seg AudioSegment) (Transcript, error)
}

// Loader loads a model onto a compute device. Loading may be slow.
type Loader interface {
	Load(ctx context.Context, device string) (Model, error)
	ModelName() string
}

// DisabledGateway is used when no transcription backend is configured.
type DisabledGateway struct{}

func (DisabledGateway) Transcribe(context.Context, AudioSegment) (Transcript, error) {
	return Transcript{}, ErrServiceDisabled
}

func (DisabledGateway) Status() ModelReadiness { return ModelReadiness{} }

func (DisabledGateway) Enabled() bool { return false }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
