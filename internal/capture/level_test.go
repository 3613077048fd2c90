package capture

import (
	"math"
	"testing"
)

func TestRMS(t *testing.T) {
	tests := []struct {
		name string
		pcm  []byte
		want float64
	}{
		{"empty", nil, 0},
		{"silence", tone(100, 0), 0},
		{"half scale", tone(100, 16384), 0.5},
		{"negative", tone(100, -16384), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RMS(tt.pcm); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RMS() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevelMeter_RollingAverage(t *testing.T) {
	var m levelMeter

	m.Add(tone(100, 16384))
	if got := m.Tick(); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("tick 1 = %v, want 0.5", got)
	}

	// empty intervals count as silence
	if got := m.Tick(); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("tick 2 = %v, want 0.25", got)
	}
	m.Tick()
	if got := m.Tick(); got != 0 {
		t.Errorf("tick 4 = %v, want 0 once the loud tick leaves the window", got)
	}

	m.Add(tone(100, 16384))
	m.Reset()
	if got := m.Tick(); got != 0 {
		t.Errorf("after Reset = %v, want 0", got)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	pcm := tone(10, 1234)
	wav := EncodeWAV(pcm, SampleRate, Channels)
	if len(wav) != WAVHeaderSize+len(pcm) {
		t.Fatalf("len = %d", len(wav))
	}
	got, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if string(got) != string(pcm) {
		t.Error("payload mismatch")
	}
	if _, err := DecodeWAV([]byte("not a wav")); err != ErrNotWAV {
		t.Errorf("err = %v, want ErrNotWAV", err)
	}
}
