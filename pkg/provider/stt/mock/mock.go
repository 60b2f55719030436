// Package mock provides a test double for the stt.Transcriber interface.
package mock

import (
	"context"
	"sync"

	"github.com/aneeshram/artivox/pkg/provider/stt"
)

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// PCM is the audio buffer passed to Transcribe.
	PCM []byte
}

// Transcriber is a mock implementation of stt.Transcriber. Zero value
// returns "" with no error; set Text and Err to control responses.
type Transcriber struct {
	mu sync.Mutex

	// Text is returned by Transcribe.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the configured Text and Err.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, TranscribeCall{Ctx: ctx, PCM: pcm})
	if t.Err != nil {
		return "", t.Err
	}
	return t.Text, nil
}
