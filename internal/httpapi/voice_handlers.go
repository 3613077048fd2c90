package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/lukasbauer/habitvoice/internal/metrics"
	"github.com/lukasbauer/habitvoice/internal/respond"
	"github.com/lukasbauer/habitvoice/internal/stt"
)

// voiceResponse is the turn envelope plus what was heard.
type voiceResponse struct {
	respond.Envelope
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

type voiceStatus struct {
	WhisperEnabled bool `json:"whisper_enabled"`
	stt.ModelReadiness
}

// handleVoiceStatus reports model readiness without triggering a load.
func (r *Router) handleVoiceStatus(w http.ResponseWriter, _ *http.Request) {
	st := r.stt.Status()
	if !r.stt.Enabled() {
		msg := "voice recognition disabled"
		st.Error = &msg
	}
	writeJSON(w, http.StatusOK, voiceStatus{WhisperEnabled: r.stt.Enabled(), ModelReadiness: st})
}

// handleVoiceAudio transcribes an uploaded recording and runs it as a turn.
// Transcription failures still answer 200 with a success=false envelope.
func (r *Router) handleVoiceAudio(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if !r.limiter.Allow(user.ID) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many voice requests, slow down"})
		return
	}
	if !r.beginTurn(w) {
		return
	}
	defer r.turns.Done()

	if req.ContentLength > r.cfg.MaxAudioBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "audio file too large"})
		return
	}
	req.Body = http.MaxBytesReader(w, req.Body, r.cfg.MaxAudioBytes)
	if err := req.ParseMultipartForm(4 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "audio file too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart body"})
		return
	}
	file, header, err := req.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "audio file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read audio file"})
		return
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty audio file"})
		return
	}

	seg := stt.AudioSegment{
		Data:       data,
		MimeType:   audioMimeType(header.Header.Get("Content-Type"), header.Filename),
		CapturedAt: time.Now().UTC(),
	}
	r.logger.Printf("voice: %d bytes (%s) from user %s", len(data), seg.MimeType, user.ID)

	start := time.Now()
	tr, err := r.stt.Transcribe(req.Context(), seg)
	metrics.TranscribeDuration.Observe(time.Since(start).Seconds())
	if r.stt.Status().Ready {
		metrics.ModelReady.Set(1)
	} else {
		metrics.ModelReady.Set(0)
	}

	if err != nil {
		r.logger.Printf("voice: transcription failed for user %s: %v", user.ID, err)
		if !knownTranscribeError(err) {
			captureError(req, err, "voice: transcription failed")
		}
		env := r.pipeline.TranscribeFailed(user.ID, err)
		writeJSON(w, http.StatusOK, voiceResponse{Envelope: env})
		return
	}

	env := r.pipeline.Transcript(req.Context(), user.ID, tr)
	writeJSON(w, http.StatusOK, voiceResponse{
		Envelope:   env,
		Transcript: tr.Text,
		Confidence: tr.Confidence,
		Language:   tr.Language,
	})
}

func knownTranscribeError(err error) bool {
	return errors.Is(err, stt.ErrServiceDisabled) ||
		errors.Is(err, stt.ErrModelLoadFailed) ||
		errors.Is(err, stt.ErrTimeout) ||
		errors.Is(err, stt.ErrTranscriptionFailed)
}

// audioMimeType prefers the part's declared type and falls back to the
// file extension, then to webm, which browsers record by default.
func audioMimeType(declared, filename string) string {
	if declared != "" && declared != "application/octet-stream" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return mt
		}
	}
	switch filepath.Ext(filename) {
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	}
	return "audio/webm"
}
