package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lukasbauer/habitvoice/internal/respond"
	"github.com/lukasbauer/habitvoice/internal/stt"
)

func TestAPIClientChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["message"] != "show my habits" {
			t.Errorf("message = %q", body["message"])
		}
		_ = json.NewEncoder(w).Encode(respond.Envelope{TurnID: "t1", Reply: "You have no habits yet.", Success: true})
	}))
	defer srv.Close()

	env, err := newAPIClient(srv.URL+"/", "tok").Chat(t.Context(), "show my habits")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if env.TurnID != "t1" || !env.Success {
		t.Fatalf("env = %+v", env)
	}
}

func TestAPIClientErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"too many voice requests, slow down"}`)
	}))
	defer srv.Close()

	_, err := newAPIClient(srv.URL, "tok").Voice(t.Context(), stt.AudioSegment{Data: []byte("x"), MimeType: "audio/wav"})
	if err == nil || !strings.Contains(err.Error(), "429 too many voice requests") {
		t.Fatalf("err = %v", err)
	}
}

func TestVoiceTranscriberDeliversEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer file.Close()
		if header.Filename != "segment.wav" {
			t.Errorf("filename = %q", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "RIFFdata" {
			t.Errorf("audio = %q", data)
		}
		_, _ = io.WriteString(w, `{"turn_id":"t2","reply":"Added Stretch.","success":true,"action_taken":true,
			"habit_action":{"action":"add","data":{"name":"Stretch"}},"frontend_action":null,
			"transcript":"add a habit to stretch","confidence":0.9,"language":"en"}`)
	}))
	defer srv.Close()

	var got []respond.Envelope
	tr := &voiceTranscriber{
		api:     newAPIClient(srv.URL, "tok"),
		deliver: func(env respond.Envelope) { got = append(got, env) },
	}
	out, err := tr.Transcribe(t.Context(), stt.AudioSegment{Data: []byte("RIFFdata"), MimeType: "audio/wav"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if out.Text != "add a habit to stretch" || !out.IsFinal || out.Confidence != 0.9 {
		t.Fatalf("transcript = %+v", out)
	}
	if len(got) != 1 || got[0].TurnID != "t2" || got[0].HabitAction == nil {
		t.Fatalf("delivered = %+v", got)
	}
}

func TestVoiceTranscriberFailedTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"reply":"Voice recognition is not available right now.","success":false,"action_taken":false,"transcript":""}`)
	}))
	defer srv.Close()

	delivered := 0
	tr := &voiceTranscriber{
		api:     newAPIClient(srv.URL, "tok"),
		deliver: func(respond.Envelope) { delivered++ },
	}
	_, err := tr.Transcribe(t.Context(), stt.AudioSegment{Data: []byte("x"), MimeType: "audio/webm"})
	if err == nil || !strings.Contains(err.Error(), "not available") {
		t.Fatalf("err = %v", err)
	}
	if delivered != 1 {
		t.Fatalf("delivered = %d, want the failure reply to still be spoken", delivered)
	}
}

func TestEventsURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/events?token=a+b"},
		{"https://habits.example.com/", "wss://habits.example.com/events?token=a+b"},
	}
	for _, tt := range tests {
		got, err := newAPIClient(tt.base, "a b").EventsURL()
		if err != nil {
			t.Fatalf("EventsURL(%q): %v", tt.base, err)
		}
		if got != tt.want {
			t.Errorf("EventsURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestHistoryAndStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /chat-history", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"messages":[
			{"id":"t1:u","content":"hi","is_user":true,"timestamp":"2026-10-17T08:00:00Z"},
			{"id":"t1:a","content":"Hello!","is_user":false,"timestamp":"2026-10-17T08:00:01Z"}]}`)
	})
	mux.HandleFunc("GET /voice-status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"whisper_enabled":true,"attempted":true,"ready":true,"model":"large-v3","device":"cuda","error":null}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newAPIClient(srv.URL, "tok")
	msgs, err := c.History(t.Context())
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 2 || !msgs[0].IsUser || msgs[1].Content != "Hello!" {
		t.Fatalf("messages = %+v", msgs)
	}

	st, err := c.Status(t.Context())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.WhisperEnabled || !st.Ready || st.Device != "cuda" || st.Error != nil {
		t.Fatalf("status = %+v", st)
	}
}
