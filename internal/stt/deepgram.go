package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

const deepgramWSURL = "wss://api.deepgram.com/v1/listen"

// DeepgramConfig configures a streaming recognizer for 16-bit mono PCM.
type DeepgramConfig struct {
	APIKey     string
	URL        string // defaults to the hosted endpoint
	Language   string
	Model      string // e.g., "nova-3"
	SampleRate int
	Punctuate  bool
}

type deepgramResponse struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal bool `json:"is_final"`
}

// DeepgramRecognizer streams capture audio to Deepgram and reports interim
// transcripts while the user speaks. It has the method set of
// capture.Recognizer; one recognition runs at a time.
type DeepgramRecognizer struct {
	cfg    DeepgramConfig
	dialer *websocket.Dialer
	logger *log.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	gen  uint64
}

func NewDeepgramRecognizer(cfg DeepgramConfig, logger *log.Logger) *DeepgramRecognizer {
	if cfg.URL == "" {
		cfg.URL = deepgramWSURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-3"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &DeepgramRecognizer{cfg: cfg, dialer: websocket.DefaultDialer, logger: logger}
}

func (d *DeepgramRecognizer) streamURL() string {
	q := url.Values{}
	q.Set("model", d.cfg.Model)
	if d.cfg.Language != "" {
		q.Set("language", d.cfg.Language)
	}
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(d.cfg.SampleRate))
	q.Set("channels", "1")
	q.Set("punctuate", strconv.FormatBool(d.cfg.Punctuate))
	q.Set("interim_results", "true")
	return d.cfg.URL + "?" + q.Encode()
}

// Start opens the stream. Interim results are delivered as they arrive;
// the final transcript is delivered once after Stop, when the service
// closes the stream.
func (d *DeepgramRecognizer) Start(ctx context.Context, onResult func(Transcript), onError func(error)) error {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.cfg.APIKey)

	conn, _, err := d.dialer.DialContext(ctx, d.streamURL(), headers)
	if err != nil {
		return fmt.Errorf("connect to Deepgram: %w", err)
	}

	d.mu.Lock()
	if d.conn != nil {
		_ = d.conn.Close()
	}
	d.gen++
	gen := d.gen
	d.conn = conn
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		d.closeConn(conn)
	}()
	go d.readLoop(conn, gen, onResult, onError)
	return nil
}

func (d *DeepgramRecognizer) readLoop(conn *websocket.Conn, gen uint64, onResult func(Transcript), onError func(error)) {
	var final []string
	var confSum float64
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !d.current(gen) {
				return
			}
			d.closeConn(conn)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || len(final) > 0 {
				tr := Transcript{Text: strings.Join(final, " "), IsFinal: true, Language: d.cfg.Language}
				if len(final) > 0 {
					tr.Confidence = clamp01(confSum / float64(len(final)))
				}
				onResult(tr)
				return
			}
			onError(fmt.Errorf("%w: deepgram stream: %v", ErrTranscriptionFailed, err))
			return
		}

		var resp deepgramResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			d.logger.Printf("deepgram: failed to parse response: %v", err)
			continue
		}
		if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
			continue
		}
		alt := resp.Channel.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			continue
		}
		heard := strings.Join(final, " ")
		if resp.IsFinal {
			final = append(final, text)
			confSum += alt.Confidence
			heard = strings.Join(final, " ")
		} else if heard != "" {
			heard += " " + text
		} else {
			heard = text
		}
		onResult(Transcript{Text: heard, Confidence: clamp01(alt.Confidence), Language: d.cfg.Language})
	}
}

func (d *DeepgramRecognizer) Feed(pcm []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return
	}
	if err := d.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		d.logger.Printf("deepgram: write audio: %v", err)
	}
}

// Stop asks Deepgram to flush; the final transcript follows asynchronously.
func (d *DeepgramRecognizer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return
	}
	_ = d.conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "CloseStream"}`))
}

// Abort drops the stream without delivering a final result.
func (d *DeepgramRecognizer) Abort() {
	d.mu.Lock()
	conn := d.conn
	d.conn = nil
	d.gen++
	d.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (d *DeepgramRecognizer) current(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gen == gen
}

func (d *DeepgramRecognizer) closeConn(conn *websocket.Conn) {
	d.mu.Lock()
	if d.conn == conn {
		d.conn = nil
	}
	d.mu.Unlock()
	_ = conn.Close()
}
