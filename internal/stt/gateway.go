package stt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// RemoteConfig holds configuration for the server-side gateway.
type RemoteConfig struct {
	// Devices lists compute devices in preference order. Only the first two
	// are used: the primary and a single fallback.
	Devices []string

	LoadTimeout       time.Duration
	TranscribeTimeout time.Duration

	// OnLoadFailed is called once when the model load fails terminally.
	OnLoadFailed func(err error)
}

// RemoteGateway lazily loads a speech model on first use. The load is
// attempted exactly once per process; a failed load is terminal.
type RemoteGateway struct {
	loader Loader
	cfg    RemoteConfig
	logger *log.Logger

	// loadMu serializes the one-time load so concurrent first callers
	// wait on the same attempt. mu guards the readiness fields and is
	// never held across a load, so Status does not block.
	loadMu sync.Mutex
	mu     sync.Mutex

	attempted bool
	ready     bool
	device    string
	loadErr   error
	model     Model

	fbMu        sync.Mutex
	fbAttempted bool
	fbModel     Model
	fbErr       error
}

// NewRemoteGateway creates a gateway around loader.
func NewRemoteGateway(loader Loader, cfg RemoteConfig, logger *log.Logger) *RemoteGateway {
	if len(cfg.Devices) == 0 {
		cfg.Devices = []string{"cpu", "cuda"}
	}
	if len(cfg.Devices) > 2 {
		cfg.Devices = cfg.Devices[:2]
	}
	if cfg.LoadTimeout == 0 {
		cfg.LoadTimeout = 2 * time.Minute
	}
	if cfg.TranscribeTimeout == 0 {
		cfg.TranscribeTimeout = 60 * time.Second
	}
	return &RemoteGateway{
		loader: loader,
		cfg:    cfg,
		logger: logger,
		device: cfg.Devices[0],
	}
}

func (g *RemoteGateway) Enabled() bool { return true }

// Status returns the current readiness without triggering a load.
func (g *RemoteGateway) Status() ModelReadiness {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := ModelReadiness{
		Attempted: g.attempted,
		Ready:     g.ready,
		Device:    g.device,
	}
	if g.ready {
		st.Model = g.loader.ModelName()
	}
	if g.loadErr != nil {
		msg := g.loadErr.Error()
		st.Error = &msg
	}
	return st
}

// Warm triggers the one-time load without transcribing anything.
func (g *RemoteGateway) Warm(ctx context.Context) error {
	_, err := g.ensureLoaded(ctx)
	return err
}

func (g *RemoteGateway) ensureLoaded(ctx context.Context) (Model, error) {
	g.loadMu.Lock()
	defer g.loadMu.Unlock()

	g.mu.Lock()
	if g.ready {
		m := g.model
		g.mu.Unlock()
		return m, nil
	}
	if g.attempted {
		err := g.loadErr
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrModelLoadFailed, err)
	}
	g.attempted = true
	g.mu.Unlock()

	// The load outlives the request that triggered it.
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.LoadTimeout)
	defer cancel()

	var lastErr error
	for _, device := range g.cfg.Devices {
		g.logger.Printf("stt: loading model %s on %s", g.loader.ModelName(), device)
		m, err := g.loader.Load(lctx, device)
		if err != nil {
			g.logger.Printf("stt: load on %s failed: %v", device, err)
			lastErr = err
			continue
		}

		g.mu.Lock()
		g.ready = true
		g.model = m
		g.device = device
		g.loadErr = nil
		g.mu.Unlock()

		g.logger.Printf("stt: model %s ready on %s", g.loader.ModelName(), device)
		return m, nil
	}

	g.mu.Lock()
	g.loadErr = lastErr
	g.mu.Unlock()

	if g.cfg.OnLoadFailed != nil {
		g.cfg.OnLoadFailed(lastErr)
	}
	return nil, fmt.Errorf("%w: %v", ErrModelLoadFailed, lastErr)
}

// Transcribe converts seg to text, loading the model on first use. A failure
// on the primary device is retried once on the fallback device.
func (g *RemoteGateway) Transcribe(ctx context.Context, seg AudioSegment) (Transcript, error) {
	if len(seg.Data) == 0 {
		return Transcript{}, fmt.Errorf("%w: empty audio", ErrTranscriptionFailed)
	}

	model, err := g.ensureLoaded(ctx)
	if err != nil {
		return Transcript{}, err
	}

	tr, err := g.transcribeWith(ctx, model, seg)
	if err == nil {
		return tr, nil
	}
	if errors.Is(err, ErrTimeout) {
		return Transcript{}, err
	}
	if ctx.Err() != nil {
		return Transcript{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, ctx.Err())
	}

	g.logger.Printf("stt: transcription on %s failed: %v", g.loadedDevice(), err)

	fb, fbErr := g.fallbackModel(ctx)
	if fbErr != nil {
		return Transcript{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	tr, err = g.transcribeWith(ctx, fb, seg)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return Transcript{}, err
		}
		return Transcript{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	return tr, nil
}

func (g *RemoteGateway) transcribeWith(ctx context.Context, m Model, seg AudioSegment) (Transcript, error) {
	tctx, cancel := context.WithTimeout(ctx, g.cfg.TranscribeTimeout)
	defer cancel()

	tr, err := m.Transcribe(tctx, seg)
	if err != nil {
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return Transcript{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return Transcript{}, err
	}
	tr.Confidence = clamp01(tr.Confidence)
	tr.IsFinal = true
	return tr, nil
}

func (g *RemoteGateway) loadedDevice() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.device
}

// fallbackModel returns a model on the fallback device. It is loaded at
// most once, and never when the primary load already ended up there: the
// other device is the one that failed to load.
func (g *RemoteGateway) fallbackModel(ctx context.Context) (Model, error) {
	if len(g.cfg.Devices) < 2 {
		return nil, errors.New("no fallback device")
	}
	if current := g.loadedDevice(); current != g.cfg.Devices[0] {
		return nil, fmt.Errorf("model already running on fallback device %s", current)
	}
	target := g.cfg.Devices[1]

	g.fbMu.Lock()
	defer g.fbMu.Unlock()

	if g.fbAttempted {
		return g.fbModel, g.fbErr
	}
	g.fbAttempted = true

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.LoadTimeout)
	defer cancel()

	g.logger.Printf("stt: loading fallback model on %s", target)
	g.fbModel, g.fbErr = g.loader.Load(lctx, target)
	if g.fbErr != nil {
		g.logger.Printf("stt: fallback load on %s failed: %v", target, g.fbErr)
	}
	return g.fbModel, g.fbErr
}
