// Package audio wraps raw PCM returned by speech synthesis in a WAV
// container.
package audio

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// Format of the PCM produced by the speech model.
const (
	SpeechSampleRate    = 24000
	SpeechChannels      = 1
	SpeechBitsPerSample = 16
)

// MIMEType of the container produced by WAV.
const MIMEType = "audio/wav"

const headerSize = 44

// Format describes interleaved little-endian PCM samples.
type Format struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
}

// Speech is the format of synthesized speech.
var Speech = Format{
	Channels:      SpeechChannels,
	SampleRate:    SpeechSampleRate,
	BitsPerSample: SpeechBitsPerSample,
}

func (f Format) blockAlign() int { return f.Channels * f.BitsPerSample / 8 }

func (f Format) validate() error {
	switch {
	case f.Channels <= 0:
		return errors.Newf("invalid channel count %d", f.Channels)
	case f.SampleRate <= 0:
		return errors.Newf("invalid sample rate %d", f.SampleRate)
	case f.BitsPerSample <= 0 || f.BitsPerSample%8 != 0:
		return errors.Newf("invalid bits per sample %d", f.BitsPerSample)
	}
	return nil
}

// WAV prepends a canonical 44-byte RIFF header to pcm.
func WAV(pcm []byte, f Format) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if len(pcm)%f.blockAlign() != 0 {
		return nil, errors.Newf("pcm length %d is not a multiple of block size %d", len(pcm), f.blockAlign())
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + len(pcm))

	le := binary.LittleEndian
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, le, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, le, uint32(16)) // PCM fmt chunk size
	_ = binary.Write(&buf, le, uint16(1))  // PCM
	_ = binary.Write(&buf, le, uint16(f.Channels))
	_ = binary.Write(&buf, le, uint32(f.SampleRate))
	_ = binary.Write(&buf, le, uint32(f.SampleRate*f.blockAlign()))
	_ = binary.Write(&buf, le, uint16(f.blockAlign()))
	_ = binary.Write(&buf, le, uint16(f.BitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(&buf, le, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// Duration returns the playback length of pcm in f, in seconds.
func Duration(pcm []byte, f Format) float64 {
	if f.validate() != nil {
		return 0
	}
	return float64(len(pcm)) / float64(f.SampleRate*f.blockAlign())
}
