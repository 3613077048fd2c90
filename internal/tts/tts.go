// Package tts turns assistant replies into speech.
package tts

import "context"

// Client defines the interface for text-to-speech providers.
type Client interface {
	// Synthesize converts text to speech and returns raw 16-bit little-endian
	// mono PCM at the client's SampleRate.
	Synthesize(ctx context.Context, text string) ([]byte, error)
	SampleRate() int
}
