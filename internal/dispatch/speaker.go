package dispatch

import (
	"context"
	"fmt"

	"github.com/lukasbauer/habitvoice/internal/tts"
)

// Player plays 16-bit mono PCM and returns when playback ends.
type Player interface {
	Play(ctx context.Context, pcm []byte, sampleRate int) error
}

// TTSSpeaker speaks through a synthesis service and a local player.
type TTSSpeaker struct {
	client tts.Client
	player Player
}

func NewTTSSpeaker(client tts.Client, player Player) *TTSSpeaker {
	return &TTSSpeaker{client: client, player: player}
}

func (s *TTSSpeaker) Speak(ctx context.Context, text string) error {
	pcm, err := s.client.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	if len(pcm) == 0 {
		return nil
	}
	return s.player.Play(ctx, pcm, s.client.SampleRate())
}
