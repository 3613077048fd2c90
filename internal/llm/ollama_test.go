package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaGenerate(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"response":"You've got this!","done":true}`))
	}))
	defer srv.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: srv.URL + "/"})
	reply, err := client.Generate(context.Background(), []Message{{Role: "user", Content: "I feel lazy"}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply != "You've got this!" {
		t.Errorf("reply = %q", reply)
	}
	if got.Model != "llama3.2" || got.Stream {
		t.Errorf("request = %+v", got)
	}
	if !strings.HasSuffix(got.Prompt, "User: I feel lazy\nZelda:") {
		t.Errorf("prompt tail = %q", got.Prompt[len(got.Prompt)-40:])
	}
}

func TestOllamaGenerate_ErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	_, err := NewOllamaClient(OllamaConfig{BaseURL: srv.URL}).Generate(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("err = %v", err)
	}
}

func TestFlattenPrompt(t *testing.T) {
	got := FlattenPrompt([]Message{
		{Role: "system", Content: "Be kind."},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "bye"},
	}, "Zelda")
	want := "Be kind.\n\nUser: hi\nZelda: hello\nUser: bye\nZelda:"
	if got != want {
		t.Errorf("FlattenPrompt =\n%q\nwant\n%q", got, want)
	}
}
