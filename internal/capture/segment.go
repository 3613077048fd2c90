package capture

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/lukasbauer/habitvoice/internal/stt"
)

// Transcriber turns a finished segment into text. stt.Gateway satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, seg stt.AudioSegment) (stt.Transcript, error)
}

// SegmentRecognizer buffers the PCM of one listening window and hands it to
// a Transcriber as a WAV segment when the session stops listening.
type SegmentRecognizer struct {
	T Transcriber
	// MaxBytes caps the buffered PCM; 0 means 60s of audio.
	MaxBytes int

	mu       sync.Mutex
	active   bool
	buf      bytes.Buffer
	started  time.Time
	ctx      context.Context
	onResult func(stt.Transcript)
	onError  func(error)
}

func NewSegmentRecognizer(t Transcriber) *SegmentRecognizer {
	return &SegmentRecognizer{T: t}
}

func (r *SegmentRecognizer) Start(ctx context.Context, onResult func(stt.Transcript), onError func(error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = true
	r.buf.Reset()
	r.started = time.Now()
	r.ctx = ctx
	r.onResult = onResult
	r.onError = onError
	return nil
}

func (r *SegmentRecognizer) Feed(pcm []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	limit := r.MaxBytes
	if limit <= 0 {
		limit = SampleRate * 2 * 60
	}
	if room := limit - r.buf.Len(); room > 0 {
		if len(pcm) > room {
			pcm = pcm[:room]
		}
		r.buf.Write(pcm)
	}
}

func (r *SegmentRecognizer) Stop() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	pcm := bytes.Clone(r.buf.Bytes())
	r.buf.Reset()
	ctx, onResult, onError, started := r.ctx, r.onResult, r.onError, r.started
	r.mu.Unlock()

	if len(pcm) == 0 {
		go onResult(stt.Transcript{IsFinal: true})
		return
	}

	go func() {
		seg := stt.AudioSegment{
			Data:       EncodeWAV(pcm, SampleRate, Channels),
			MimeType:   "audio/wav",
			CapturedAt: started,
		}
		tr, err := r.T.Transcribe(ctx, seg)
		if err != nil {
			onError(err)
			return
		}
		tr.IsFinal = true
		onResult(tr)
	}()
}

func (r *SegmentRecognizer) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.buf.Reset()
}
