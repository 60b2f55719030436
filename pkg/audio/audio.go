// Package audio prepares uploaded audio for transcription: WAV decoding,
// stereo-to-mono downmix, and sample-rate conversion to the 16 kHz rate
// whisper.cpp requires.
//
// The transcription collaborator expects raw 16-bit signed little-endian
// mono PCM and does not resample; this package is the caller-side support
// that bridges arbitrary uploaded WAV files to that contract.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// TargetSampleRate is the sample rate whisper.cpp expects.
const TargetSampleRate = 16000

// ErrNotWAV is returned when the input does not start with a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE file")

// Clip is decoded PCM audio: 16-bit signed little-endian samples.
type Clip struct {
	// PCM is the interleaved sample data.
	PCM []byte

	// SampleRate is the sample rate in Hz.
	SampleRate int

	// Channels is the channel count (1 or 2).
	Channels int
}

// DecodeWAV parses a RIFF/WAVE container holding 16-bit PCM data.
// Compressed or float encodings are rejected.
func DecodeWAV(data []byte) (*Clip, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		sampleRate int
		channels   int
		bits       int
		pcm        []byte
	)

	// Walk the sub-chunks; files in the wild carry LIST/INFO chunks between
	// fmt and data.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body // tolerate a truncated final chunk
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("audio: fmt chunk too short (%d bytes)", size)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("audio: unsupported WAV encoding %d (want PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}

		// Chunks are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if sampleRate == 0 || channels == 0 {
		return nil, errors.New("audio: missing fmt chunk")
	}
	if bits != 16 {
		return nil, fmt.Errorf("audio: unsupported bit depth %d (want 16)", bits)
	}
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("audio: unsupported channel count %d", channels)
	}
	if len(pcm) == 0 {
		return nil, errors.New("audio: missing data chunk")
	}

	return &Clip{PCM: pcm, SampleRate: sampleRate, Channels: channels}, nil
}

// DownmixMono averages L and R channels of interleaved stereo PCM.
// Mono input is returned unchanged.
func DownmixMono(c *Clip) *Clip {
	if c.Channels == 1 {
		return c
	}

	numFrames := len(c.PCM) / 4
	mono := make([]byte, numFrames*2)
	for i := 0; i < numFrames; i++ {
		j := i * 4
		l := int16(binary.LittleEndian.Uint16(c.PCM[j : j+2]))
		r := int16(binary.LittleEndian.Uint16(c.PCM[j+2 : j+4]))
		m := int16((int32(l) + int32(r)) / 2)
		binary.LittleEndian.PutUint16(mono[i*2:i*2+2], uint16(m))
	}
	return &Clip{PCM: mono, SampleRate: c.SampleRate, Channels: 1}
}

// Resample converts mono PCM to dstRate. Input at dstRate is returned
// unchanged.
func Resample(c *Clip, dstRate int) (*Clip, error) {
	if c.Channels != 1 {
		return nil, fmt.Errorf("audio: resample requires mono input, got %d channels", c.Channels)
	}
	if c.SampleRate == dstRate {
		return c, nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(c.SampleRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}

	// Normalize to [-1, 1] float64 for the resampler, then back to int16.
	n := len(c.PCM) / 2
	input := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(c.PCM[i*2 : i*2+2]))
		input[i] = float64(s) / 32768.0
	}

	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("audio: resample: %w", err)
	}

	out := make([]byte, len(output)*2)
	for i, s := range output {
		v := int16(s * 32767.0)
		if s > 1.0 {
			v = 32767
		} else if s < -1.0 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(v))
	}

	return &Clip{PCM: out, SampleRate: dstRate, Channels: 1}, nil
}

// PrepareForTranscription decodes a WAV file, downmixes to mono, and
// resamples to TargetSampleRate. The result is ready to hand to an
// stt.Transcriber.
func PrepareForTranscription(wav []byte) ([]byte, error) {
	clip, err := DecodeWAV(wav)
	if err != nil {
		return nil, err
	}
	clip = DownmixMono(clip)
	clip, err = Resample(clip, TargetSampleRate)
	if err != nil {
		return nil, err
	}
	return clip.PCM, nil
}
