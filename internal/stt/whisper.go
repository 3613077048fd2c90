package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

// commandPrompt biases the model toward the app's vocabulary.
const commandPrompt = "Go to analytics. Add a habit to exercise. Open settings. Show habits. Mark complete. Navigate home. Log out. Refresh page."

// WhisperConfig holds configuration for a self-hosted whisper server that
// exposes the OpenAI-compatible transcription API.
type WhisperConfig struct {
	BaseURL  string // e.g. "http://whisper:8000"
	Model    string // e.g. "large-v3"
	Language string
	APIKey   string // optional
}

// WhisperLoader loads models on a whisper server.
type WhisperLoader struct {
	cfg        WhisperConfig
	httpClient *http.Client
}

// NewWhisperLoader creates a loader. httpClient may be shared with other providers.
func NewWhisperLoader(cfg WhisperConfig, httpClient *http.Client) *WhisperLoader {
	if cfg.Model == "" {
		cfg.Model = "large-v3"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &WhisperLoader{cfg: cfg, httpClient: httpClient}
}

func (l *WhisperLoader) ModelName() string { return l.cfg.Model }

// Load asks the server to make the model available on device and waits
// until it reports it.
func (l *WhisperLoader) Load(ctx context.Context, device string) (Model, error) {
	u := fmt.Sprintf("%s/v1/models/%s?device=%s", l.cfg.BaseURL, url.PathEscape(l.cfg.Model), url.QueryEscape(device))

	httpReq, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	l.authorize(httpReq)

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("whisper load error: %s - %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	return &whisperModel{loader: l, device: device}, nil
}

func (l *WhisperLoader) authorize(req *http.Request) {
	if l.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.cfg.APIKey)
	}
}

type whisperModel struct {
	loader *WhisperLoader
	device string
}

type whisperSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	AvgLogProb float64 `json:"avg_logprob"`
}

type whisperResponse struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
	Segments []whisperSegment `json:"segments"`
}

func (m *whisperModel) Transcribe(ctx context.Context, seg AudioSegment) (Transcript, error) {
	cfg := m.loader.cfg

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio."+extensionFor(seg.MimeType))
	if err != nil {
		return Transcript{}, err
	}
	if _, err := part.Write(seg.Data); err != nil {
		return Transcript{}, err
	}

	writer.WriteField("model", cfg.Model)
	writer.WriteField("language", cfg.Language)
	writer.WriteField("response_format", "verbose_json")
	writer.WriteField("temperature", "0")
	writer.WriteField("prompt", commandPrompt)
	writer.WriteField("device", m.device)
	if err := writer.Close(); err != nil {
		return Transcript{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", cfg.BaseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	m.loader.authorize(httpReq)

	resp, err := m.loader.httpClient.Do(httpReq)
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Transcript{}, fmt.Errorf("whisper API error: %s - %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	var wr whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return Transcript{}, fmt.Errorf("failed to decode response: %w", err)
	}

	lang := wr.Language
	if lang == "" {
		lang = cfg.Language
	}
	return Transcript{
		Text:       strings.TrimSpace(wr.Text),
		Confidence: segmentConfidence(wr.Segments),
		Language:   lang,
		IsFinal:    true,
	}, nil
}

// segmentConfidence is the duration-weighted mean of exp(avg_logprob).
// Segments without a usable duration count with weight 1.
func segmentConfidence(segments []whisperSegment) float64 {
	if len(segments) == 0 {
		return 0
	}
	var sum, weight float64
	for _, s := range segments {
		w := s.End - s.Start
		if w <= 0 {
			w = 1
		}
		sum += math.Exp(s.AvgLogProb) * w
		weight += w
	}
	return clamp01(sum / weight)
}

func extensionFor(mime string) string {
	switch {
	case strings.Contains(mime, "wav"):
		return "wav"
	case strings.Contains(mime, "webm"):
		return "webm"
	case strings.Contains(mime, "ogg"):
		return "ogg"
	case strings.Contains(mime, "mpeg"), strings.Contains(mime, "mp3"):
		return "mp3"
	case strings.Contains(mime, "mp4"), strings.Contains(mime, "m4a"):
		return "m4a"
	default:
		return "wav"
	}
}
