package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lukasbauer/habitvoice/internal/respond"
	"github.com/lukasbauer/habitvoice/internal/stt"
)

// apiClient talks to the habitvoice HTTP API.
type apiClient struct {
	base       string
	token      string
	httpClient *http.Client
}

func newAPIClient(base, token string) *apiClient {
	return &apiClient{
		base:       strings.TrimRight(base, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

type voiceReply struct {
	respond.Envelope
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

type voiceStatus struct {
	WhisperEnabled bool `json:"whisper_enabled"`
	stt.ModelReadiness
}

type historyMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"is_user"`
	Timestamp time.Time `json:"timestamp"`
}

func (c *apiClient) Chat(ctx context.Context, message string) (respond.Envelope, error) {
	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return respond.Envelope{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/chat", bytes.NewReader(body))
	if err != nil {
		return respond.Envelope{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var env respond.Envelope
	err = c.do(req, &env)
	return env, err
}

// Voice uploads one recorded segment. The server transcribes it and runs
// the turn in the same request.
func (c *apiClient) Voice(ctx context.Context, seg stt.AudioSegment) (voiceReply, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", "segment"+extensionFor(seg.MimeType))
	if err != nil {
		return voiceReply{}, err
	}
	if _, err := part.Write(seg.Data); err != nil {
		return voiceReply{}, err
	}
	if err := mw.Close(); err != nil {
		return voiceReply{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/voice-audio", &buf)
	if err != nil {
		return voiceReply{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out voiceReply
	err = c.do(req, &out)
	return out, err
}

func (c *apiClient) Status(ctx context.Context) (voiceStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/voice-status", nil)
	if err != nil {
		return voiceStatus{}, err
	}
	var st voiceStatus
	err = c.do(req, &st)
	return st, err
}

func (c *apiClient) History(ctx context.Context) ([]historyMessage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/chat-history", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Messages []historyMessage `json:"messages"`
	}
	err = c.do(req, &out)
	return out.Messages, err
}

// EventsURL is the websocket endpoint carrying habitDataChanged events.
func (c *apiClient) EventsURL() (string, error) {
	u, err := url.Parse(c.base + "/events")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *apiClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *apiClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %d %s", req.Method, req.URL.Path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

// voiceTranscriber feeds capture segments to /voice-audio. The server runs
// the whole turn, so each envelope is handed to deliver as well.
type voiceTranscriber struct {
	api     *apiClient
	deliver func(respond.Envelope)
}

func (t *voiceTranscriber) Transcribe(ctx context.Context, seg stt.AudioSegment) (stt.Transcript, error) {
	reply, err := t.api.Voice(ctx, seg)
	if err != nil {
		return stt.Transcript{}, err
	}
	if t.deliver != nil {
		t.deliver(reply.Envelope)
	}
	if !reply.Success && strings.TrimSpace(reply.Transcript) == "" {
		return stt.Transcript{}, errors.New(reply.Reply)
	}
	return stt.Transcript{
		Text:       reply.Transcript,
		Confidence: reply.Confidence,
		Language:   reply.Language,
		IsFinal:    true,
	}, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "audio/wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	}
	return ".webm"
}
