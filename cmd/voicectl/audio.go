package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/lukasbauer/habitvoice/internal/capture"
)

// malgoMicrophone opens the default capture device as 16kHz mono S16.
type malgoMicrophone struct {
	ctx *malgo.AllocatedContext
}

func newMalgoMicrophone() (*malgoMicrophone, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo context: %w", err)
	}
	return &malgoMicrophone{ctx: ctx}, nil
}

func (m *malgoMicrophone) Supported() error {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return fmt.Errorf("%w: %v", capture.ErrUnsupported, err)
	}
	if len(devices) == 0 {
		return fmt.Errorf("%w: no capture devices", capture.ErrUnsupported)
	}
	return nil
}

func (m *malgoMicrophone) Open(ctx context.Context) (capture.CaptureDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &malgoCapture{}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = capture.Channels
	cfg.SampleRate = capture.SampleRate

	dev, err := malgo.InitDevice(m.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			if cb := c.cb.Load(); cb != nil {
				(*cb)(input, frameCount)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	c.device = dev
	return c, nil
}

func (m *malgoMicrophone) Close() {
	_ = m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	device *malgo.Device
	cb     atomic.Pointer[capture.DataCallback]
}

func (c *malgoCapture) Start() error { return c.device.Start() }
func (c *malgoCapture) Stop()        { _ = c.device.Stop() }
func (c *malgoCapture) Close()       { c.device.Uninit() }

func (c *malgoCapture) SetCallback(cb capture.DataCallback) { c.cb.Store(&cb) }
func (c *malgoCapture) ClearCallback()                      { c.cb.Store(nil) }

// malgoPlayer plays synthesized replies on the default output device.
type malgoPlayer struct {
	ctx *malgo.AllocatedContext
	mu  sync.Mutex
}

func newMalgoPlayer() (*malgoPlayer, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo context: %w", err)
	}
	return &malgoPlayer{ctx: ctx}, nil
}

// Play blocks until pcm has been written to the device or ctx ends.
func (p *malgoPlayer) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		pos  int
		once sync.Once
		done = make(chan struct{})
	)
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(sampleRate)

	dev, err := malgo.InitDevice(p.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			want := int(frameCount) * 2
			n := copy(output[:want], pcm[pos:])
			pos += n
			clear(output[n:want])
			if pos >= len(pcm) {
				once.Do(func() { close(done) })
			}
		},
	})
	if err != nil {
		return fmt.Errorf("playback device: %w", err)
	}
	defer dev.Uninit()

	if err := dev.Start(); err != nil {
		return fmt.Errorf("start playback: %w", err)
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
	_ = dev.Stop()
	return ctx.Err()
}

func (p *malgoPlayer) Close() {
	_ = p.ctx.Uninit()
	p.ctx.Free()
}
