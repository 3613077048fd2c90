package stt

import (
	"context"
	"strings"
)

// LocalGateway accepts transcripts that were already produced on the client
// by an on-device recognizer. Confidence from such recognizers is approximate.
type LocalGateway struct {
	Language string
}

func (g LocalGateway) Enabled() bool { return true }

func (g LocalGateway) Status() ModelReadiness {
	return ModelReadiness{Attempted: true, Ready: true, Model: "client", Device: "client"}
}

// Transcribe treats the segment payload as UTF-8 text from the client.
func (g LocalGateway) Transcribe(_ context.Context, seg AudioSegment) (Transcript, error) {
	return g.FromClient(string(seg.Data), -1), nil
}

// FromClient wraps a client-side transcript. A negative confidence means the
// recognizer did not report one.
func (g LocalGateway) FromClient(text string, confidence float64) Transcript {
	if confidence < 0 {
		confidence = 0.5
	}
	lang := g.Language
	if lang == "" {
		lang = "en"
	}
	return Transcript{
		Text:       strings.TrimSpace(text),
		Confidence: clamp01(confidence),
		Language:   lang,
		IsFinal:    true,
	}
}
