package httpapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lukasbauer/habitvoice/internal/stt"
)

func TestVoiceStatus(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, Services{})
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/voice-status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	m := decode(t, rec)
	if m["whisper_enabled"] != true || m["ready"] != true || m["model"] != "base" || m["device"] != "cpu" {
		t.Errorf("body = %v", m)
	}
	if m["error"] != nil {
		t.Errorf("error = %v, want null", m["error"])
	}
}

func TestVoiceStatus_Disabled(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, Services{STT: stt.DisabledGateway{}})
	m := decode(t, env.do(t, httptest.NewRequest(http.MethodGet, "/voice-status", nil)))
	if m["whisper_enabled"] != false || m["ready"] != false || m["error"] == nil {
		t.Errorf("body = %v", m)
	}
}

func TestVoiceAudio_AddHabit(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, Services{})
	env.gw.transcript = stt.Transcript{Text: "Add a habit to drink water", Confidence: 0.92, Language: "en", IsFinal: true}
	events, cancel := env.hub.Subscribe("u1")
	defer cancel()

	rec := env.do(t, audioUpload(t, "u1", []byte("RIFF....WAVE")))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	m := decode(t, rec)
	if m["success"] != true || m["action_taken"] != true {
		t.Errorf("body = %v", m)
	}
	if m["transcript"] != "Add a habit to drink water" || m["confidence"] != 0.92 || m["language"] != "en" {
		t.Errorf("transcript fields = %v %v %v", m["transcript"], m["confidence"], m["language"])
	}
	if !strings.Contains(m["reply"].(string), "Drink Water") {
		t.Errorf("reply = %v", m["reply"])
	}
	if env.gw.got.MimeType != "audio/wav" || string(env.gw.got.Data) != "RIFF....WAVE" {
		t.Errorf("segment = %q %q", env.gw.got.MimeType, env.gw.got.Data)
	}

	select {
	case ev := <-events:
		if ev.Action != "add_habit" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Error("no habitDataChanged event")
	}
}

func TestVoiceAudio_Failures(t *testing.T) {
	tests := []struct {
		name      string
		tr        stt.Transcript
		err       error
		wantReply string
	}{
		{"empty transcript", stt.Transcript{Text: "  ", Confidence: 0.1}, nil, "No speech detected"},
		{"model load failed", stt.Transcript{}, fmt.Errorf("load large-v3: %w", stt.ErrModelLoadFailed), "Voice recognition is unavailable"},
		{"timeout", stt.Transcript{}, stt.ErrTimeout, "took too long"},
		{"unexpected", stt.Transcript{}, fmt.Errorf("boom"), "Sorry, I encountered an error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, RouterConfig{}, Services{})
			env.gw.transcript, env.gw.err = tt.tr, tt.err

			rec := env.do(t, audioUpload(t, "u1", []byte("data")))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			m := decode(t, rec)
			if m["success"] != false || !strings.Contains(m["reply"].(string), tt.wantReply) {
				t.Errorf("body = %v", m)
			}
			if strings.Contains(rec.Body.String(), "boom") {
				t.Error("internal error text leaked to the client")
			}
			if hs, _ := env.habits.ListHabits(t.Context(), "u1"); len(hs) != 0 {
				t.Errorf("habits mutated: %v", hs)
			}
		})
	}
}

func TestVoiceAudio_BadRequests(t *testing.T) {
	env := newTestEnv(t, RouterConfig{MaxAudioBytes: 1024}, Services{})

	req := authed(t, http.MethodPost, "/voice-audio", "u1", strings.NewReader("not multipart"))
	if rec := env.do(t, req); rec.Code != http.StatusBadRequest {
		t.Errorf("non-multipart status = %d", rec.Code)
	}

	if rec := env.do(t, audioUpload(t, "u1", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("empty file status = %d", rec.Code)
	}

	if rec := env.do(t, audioUpload(t, "u1", make([]byte, 4096))); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/voice-audio", nil)
	if rec := env.do(t, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", rec.Code)
	}
}

func TestVoiceAudio_RateLimited(t *testing.T) {
	env := newTestEnv(t, RouterConfig{VoiceRatePerMinute: 1, VoiceBurst: 1}, Services{})
	env.gw.transcript = stt.Transcript{Text: "show my habits"}

	if rec := env.do(t, audioUpload(t, "u1", []byte("a"))); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}
	if rec := env.do(t, audioUpload(t, "u1", []byte("a"))); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", rec.Code)
	}
}

func TestVoiceAudio_RejectedWhileDraining(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, Services{})
	env.r.turns.StartDraining()
	if rec := env.do(t, audioUpload(t, "u1", []byte("a"))); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestAudioMimeType(t *testing.T) {
	tests := []struct {
		declared, filename, want string
	}{
		{"audio/webm;codecs=opus", "blob", "audio/webm"},
		{"application/octet-stream", "clip.wav", "audio/wav"},
		{"", "voice.m4a", "audio/mp4"},
		{"", "recording", "audio/webm"},
	}
	for _, tt := range tests {
		if got := audioMimeType(tt.declared, tt.filename); got != tt.want {
			t.Errorf("audioMimeType(%q, %q) = %q, want %q", tt.declared, tt.filename, got, tt.want)
		}
	}
}
