package capture

import (
	"encoding/binary"
	"errors"
)

const WAVHeaderSize = 44

var ErrNotWAV = errors.New("capture: not a PCM WAV file")

// EncodeWAV wraps 16-bit little-endian PCM in a canonical RIFF header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	out := make([]byte, WAVHeaderSize+len(pcm))
	le := binary.LittleEndian

	copy(out[0:], "RIFF")
	le.PutUint32(out[4:], uint32(36+len(pcm)))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	le.PutUint32(out[16:], 16)
	le.PutUint16(out[20:], 1) // PCM
	le.PutUint16(out[22:], uint16(channels))
	le.PutUint32(out[24:], uint32(sampleRate))
	le.PutUint32(out[28:], uint32(sampleRate*channels*2))
	le.PutUint16(out[32:], uint16(channels*2))
	le.PutUint16(out[34:], 16)
	copy(out[36:], "data")
	le.PutUint32(out[40:], uint32(len(pcm)))
	copy(out[WAVHeaderSize:], pcm)
	return out
}

// DecodeWAV returns the PCM payload of a canonical 44-byte-header WAV file.
func DecodeWAV(data []byte) ([]byte, error) {
	if len(data) < WAVHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}
	n := int(binary.LittleEndian.Uint32(data[40:44]))
	pcm := data[WAVHeaderSize:]
	if n < len(pcm) {
		pcm = pcm[:n]
	}
	return pcm, nil
}
