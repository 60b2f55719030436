// Package stt defines the Transcriber interface for batch speech-to-text
// backends.
//
// The pipeline submits one complete utterance per assessment, so the
// interface is deliberately batch-shaped: one PCM buffer in, one transcript
// out. Audio must be 16-bit signed little-endian PCM, mono, at the sample
// rate the backend expects (16 kHz for whisper.cpp); callers are responsible
// for decoding and resampling (see pkg/audio).
package stt

import (
	"context"
	"fmt"
)

// TranscriptionError reports a failed transcription attempt: malformed
// audio, an unsupported sample format, or a backend failure.
type TranscriptionError struct {
	// Reason is a short human-readable description of the failure.
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *TranscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stt: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("stt: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *TranscriptionError) Unwrap() error { return e.Err }

// Transcriber converts one complete audio buffer into text.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
type Transcriber interface {
	// Transcribe converts pcm (16-bit signed LE, mono) to text. The returned
	// text is raw backend output; callers normalize whitespace themselves.
	// Failures are reported as a *TranscriptionError.
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}
