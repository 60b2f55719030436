// This file contains the NativeTranscriber implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/aneeshram/artivox/pkg/provider/stt"
)

// Compile-time assertion that NativeTranscriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*NativeTranscriber)(nil)

// NativeTranscriber implements stt.Transcriber using the whisper.cpp Go
// bindings (CGO), eliminating HTTP overhead entirely. The model is loaded
// once at construction and shared across all Transcribe calls; each call
// creates its own whisper context, so concurrent transcriptions are safe.
type NativeTranscriber struct {
	model    whisperlib.Model
	language string

	closeOnce sync.Once
	closeErr  error
}

// NativeOption is a functional option for configuring a NativeTranscriber.
type NativeOption func(*NativeTranscriber)

// WithNativeLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(t *NativeTranscriber) { t.language = lang }
}

// NewNative creates a NativeTranscriber that loads the whisper.cpp model
// from the given GGUF/GGML file path. The caller must call Close when the
// transcriber is no longer needed so the model's memory is reclaimed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeTranscriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	t := &NativeTranscriber{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Close releases the whisper model. Safe to call more than once.
func (t *NativeTranscriber) Close() error {
	t.closeOnce.Do(func() {
		if t.model != nil {
			t.closeErr = t.model.Close()
		}
	})
	return t.closeErr
}

// Transcribe converts the PCM buffer to float32 samples, runs whisper.cpp
// inference using a fresh context, and returns the concatenated segment text.
func (t *NativeTranscriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &stt.TranscriptionError{Reason: "context cancelled", Err: err}
	}
	if len(pcm) == 0 {
		return "", &stt.TranscriptionError{Reason: "empty audio buffer"}
	}
	if len(pcm)%2 != 0 {
		return "", &stt.TranscriptionError{Reason: "odd byte count in 16-bit PCM data"}
	}

	samples := pcmToFloat32(pcm)

	// Each whisper context is NOT thread-safe, but the model can be shared
	// across goroutines, so a fresh context per call keeps Transcribe safe
	// for concurrent use.
	wctx, err := t.model.NewContext()
	if err != nil {
		return "", &stt.TranscriptionError{Reason: "create whisper context", Err: err}
	}

	if err := wctx.SetLanguage(t.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", t.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", &stt.TranscriptionError{Reason: "process audio", Err: err}
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", &stt.TranscriptionError{Reason: "read segment", Err: err}
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// pcmToFloat32 converts 16-bit signed little-endian mono PCM to the
// normalized float32 samples whisper.cpp expects.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(s) / 32768.0
	}
	return samples
}
