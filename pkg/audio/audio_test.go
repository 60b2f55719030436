package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

// makeWAV builds a minimal RIFF/WAVE container around pcm.
func makeWAV(t *testing.T, pcm []byte, sampleRate, channels, bits int) []byte {
	t.Helper()
	buf := make([]byte, 44+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*channels*bits/8))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*bits/8))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bits))
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}

// sinePCM synthesizes n samples of a sine wave as 16-bit mono PCM.
func sinePCM(n, sampleRate int, freq float64) []byte {
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := int16(16000 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(pcm[i*2:i*2+2], uint16(s))
	}
	return pcm
}

func TestDecodeWAV(t *testing.T) {
	t.Parallel()

	pcm := sinePCM(1600, 16000, 440)
	wav := makeWAV(t, pcm, 16000, 1, 16)

	clip, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if clip.SampleRate != 16000 || clip.Channels != 1 {
		t.Errorf("clip = %d Hz / %d ch", clip.SampleRate, clip.Channels)
	}
	if len(clip.PCM) != len(pcm) {
		t.Errorf("pcm length = %d, want %d", len(clip.PCM), len(pcm))
	}
}

func TestDecodeWAVRejectsNonWAV(t *testing.T) {
	t.Parallel()
	if _, err := DecodeWAV([]byte("definitely not audio data at all........................")); !errors.Is(err, ErrNotWAV) {
		t.Errorf("error = %v, want ErrNotWAV", err)
	}
	if _, err := DecodeWAV(nil); !errors.Is(err, ErrNotWAV) {
		t.Errorf("nil input error = %v, want ErrNotWAV", err)
	}
}

func TestDecodeWAVRejectsUnsupportedFormats(t *testing.T) {
	t.Parallel()

	// 8-bit depth.
	wav := makeWAV(t, make([]byte, 100), 16000, 1, 8)
	if _, err := DecodeWAV(wav); err == nil {
		t.Error("8-bit WAV accepted")
	}

	// 5.1 surround.
	wav = makeWAV(t, make([]byte, 120), 16000, 6, 16)
	if _, err := DecodeWAV(wav); err == nil {
		t.Error("6-channel WAV accepted")
	}
}

func TestDownmixMono(t *testing.T) {
	t.Parallel()

	// Two frames of stereo: L=1000/R=3000 and L=-2000/R=2000.
	stereo := make([]byte, 8)
	binary.LittleEndian.PutUint16(stereo[0:2], uint16(int16(1000)))
	binary.LittleEndian.PutUint16(stereo[2:4], uint16(int16(3000)))
	left := int16(-2000)
	binary.LittleEndian.PutUint16(stereo[4:6], uint16(left))
	binary.LittleEndian.PutUint16(stereo[6:8], uint16(int16(2000)))

	mono := DownmixMono(&Clip{PCM: stereo, SampleRate: 16000, Channels: 2})
	if mono.Channels != 1 || len(mono.PCM) != 4 {
		t.Fatalf("mono clip = %d ch, %d bytes", mono.Channels, len(mono.PCM))
	}
	if got := int16(binary.LittleEndian.Uint16(mono.PCM[0:2])); got != 2000 {
		t.Errorf("frame 0 = %d, want 2000", got)
	}
	if got := int16(binary.LittleEndian.Uint16(mono.PCM[2:4])); got != 0 {
		t.Errorf("frame 1 = %d, want 0", got)
	}
}

func TestDownmixMonoPassthrough(t *testing.T) {
	t.Parallel()
	clip := &Clip{PCM: sinePCM(100, 16000, 440), SampleRate: 16000, Channels: 1}
	if got := DownmixMono(clip); got != clip {
		t.Error("mono input was not returned unchanged")
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	// 0.1 s at 48 kHz down to 16 kHz: expect roughly a third of the samples.
	clip := &Clip{PCM: sinePCM(4800, 48000, 440), SampleRate: 48000, Channels: 1}
	out, err := Resample(clip, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if out.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", out.SampleRate)
	}
	n := len(out.PCM) / 2
	if n < 1400 || n > 1800 {
		t.Errorf("resampled sample count = %d, want about 1600", n)
	}
}

func TestResamplePassthrough(t *testing.T) {
	t.Parallel()
	clip := &Clip{PCM: sinePCM(100, 16000, 440), SampleRate: 16000, Channels: 1}
	out, err := Resample(clip, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if out != clip {
		t.Error("same-rate input was not returned unchanged")
	}
}

func TestResampleRejectsStereo(t *testing.T) {
	t.Parallel()
	clip := &Clip{PCM: make([]byte, 8), SampleRate: 48000, Channels: 2}
	if _, err := Resample(clip, 16000); err == nil {
		t.Error("stereo input accepted")
	}
}

func TestPrepareForTranscription(t *testing.T) {
	t.Parallel()

	// Stereo 48 kHz in, mono 16 kHz PCM out.
	stereo := make([]byte, 4800*4)
	mono48 := sinePCM(4800, 48000, 440)
	for i := 0; i < 4800; i++ {
		copy(stereo[i*4:i*4+2], mono48[i*2:i*2+2])
		copy(stereo[i*4+2:i*4+4], mono48[i*2:i*2+2])
	}
	wav := makeWAV(t, stereo, 48000, 2, 16)

	pcm, err := PrepareForTranscription(wav)
	if err != nil {
		t.Fatalf("PrepareForTranscription: %v", err)
	}
	n := len(pcm) / 2
	if n < 1400 || n > 1800 {
		t.Errorf("prepared sample count = %d, want about 1600", n)
	}
}
