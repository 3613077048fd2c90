package capture

import (
	"context"
	"os"
	"sync"
	"time"
)

const fakeChunkFrames = 1600 // 100ms at 16kHz

// FakeMicrophone hands out FakeDevices. It backs tests and WAV replay.
type FakeMicrophone struct {
	Unsupported error
	OpenErr     error
	// PCM is replayed by every opened device when non-empty.
	PCM      []byte
	Realtime bool

	mu     sync.Mutex
	opened []*FakeDevice
}

// NewWAVMicrophone replays a 16kHz mono WAV file in real time.
func NewWAVMicrophone(path string) (*FakeMicrophone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pcm, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	return &FakeMicrophone{PCM: pcm, Realtime: true}, nil
}

func (m *FakeMicrophone) Supported() error { return m.Unsupported }

func (m *FakeMicrophone) Open(ctx context.Context) (CaptureDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	d := &FakeDevice{pcm: m.PCM, realtime: m.Realtime}
	m.mu.Lock()
	m.opened = append(m.opened, d)
	m.mu.Unlock()
	return d, nil
}

// Opened returns the devices opened so far.
func (m *FakeMicrophone) Opened() []*FakeDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*FakeDevice(nil), m.opened...)
}

type FakeDevice struct {
	pcm      []byte
	realtime bool

	mu      sync.Mutex
	cb      DataCallback
	started bool
	closes  int
	stopCh  chan struct{}
	done    chan struct{}
}

func (d *FakeDevice) SetCallback(cb DataCallback) {
	d.mu.Lock()
	d.cb = cb
	d.mu.Unlock()
}

func (d *FakeDevice) ClearCallback() {
	d.mu.Lock()
	d.cb = nil
	d.mu.Unlock()
}

func (d *FakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = true
	if len(d.pcm) == 0 || d.stopCh != nil {
		return nil
	}
	d.stopCh = make(chan struct{})
	d.done = make(chan struct{})
	go d.replay(d.stopCh, d.done)
	return nil
}

func (d *FakeDevice) replay(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	chunk := fakeChunkFrames * 2
	for pos := 0; pos < len(d.pcm); pos += chunk {
		if d.realtime {
			select {
			case <-stop:
				return
			case <-time.After(100 * time.Millisecond):
			}
		}
		end := min(pos+chunk, len(d.pcm))
		d.Push(d.pcm[pos:end])
	}
	// trailing silence so a listening session can finalize
	silence := make([]byte, chunk)
	for {
		select {
		case <-stop:
			return
		case <-time.After(100 * time.Millisecond):
			d.Push(silence)
		}
	}
}

func (d *FakeDevice) Stop() {
	d.mu.Lock()
	stop, done := d.stopCh, d.done
	d.stopCh, d.done = nil, nil
	d.started = false
	d.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

func (d *FakeDevice) Close() {
	d.mu.Lock()
	d.closes++
	d.mu.Unlock()
}

// Push delivers PCM to the current callback, if any.
func (d *FakeDevice) Push(pcm []byte) {
	d.mu.Lock()
	cb := d.cb
	d.mu.Unlock()
	if cb != nil {
		cb(pcm, uint32(len(pcm)/2))
	}
}

// Closes reports how many times the device was closed.
func (d *FakeDevice) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

func (d *FakeDevice) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}
