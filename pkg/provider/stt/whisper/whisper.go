// Package whisper provides whisper.cpp-backed stt.Transcriber
// implementations.
//
// Two backends are available:
//
//   - Client submits audio to a running whisper-server binary (which exposes
//     a REST API at POST /inference) as a batch inference request.
//   - NativeTranscriber runs whisper.cpp in-process through the CGO bindings,
//     eliminating HTTP overhead entirely (see native.go).
//
// Usage:
//
//	c, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	text, err := c.Transcribe(ctx, pcm)
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/aneeshram/artivox/pkg/provider/stt"
)

const (
	// bitsPerSample is fixed at 16 for the 16-bit signed little-endian PCM
	// audio that whisper.cpp expects.
	bitsPerSample = 16

	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Compile-time assertion that Client implements stt.Transcriber.
var _ stt.Transcriber = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "large-v2"). When empty the server uses whichever model
// it was started with — this is the default.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(c *Client) {
		c.language = lang
	}
}

// WithSampleRate sets the audio sample rate in Hz. This must match the actual
// sample rate of PCM data passed to Transcribe. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(c *Client) {
		c.sampleRate = rate
	}
}

// WithHTTPTimeout sets the HTTP client timeout for inference requests.
// Defaults to 120 s — large models on CPU are slow.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// Client implements stt.Transcriber backed by a whisper.cpp HTTP server.
// It is safe for concurrent use.
type Client struct {
	serverURL  string
	model      string
	language   string
	sampleRate int
	httpClient *http.Client
}

// New creates a new Client that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	c := &Client{
		serverURL:  serverURL,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Transcribe encodes pcm as a WAV file and POSTs it to the whisper.cpp
// /inference endpoint as multipart/form-data.
func (c *Client) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", &stt.TranscriptionError{Reason: "empty audio buffer"}
	}
	if len(pcm)%2 != 0 {
		return "", &stt.TranscriptionError{Reason: "odd byte count in 16-bit PCM data"}
	}

	wav := encodeWAV(pcm, c.sampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", &stt.TranscriptionError{Reason: "create form file", Err: err}
	}
	if _, err := fw.Write(wav); err != nil {
		return "", &stt.TranscriptionError{Reason: "write wav data", Err: err}
	}

	if c.language != "" {
		if err := mw.WriteField("language", c.language); err != nil {
			return "", &stt.TranscriptionError{Reason: "write language field", Err: err}
		}
	}
	if c.model != "" {
		if err := mw.WriteField("model", c.model); err != nil {
			return "", &stt.TranscriptionError{Reason: "write model field", Err: err}
		}
	}

	if err := mw.Close(); err != nil {
		return "", &stt.TranscriptionError{Reason: "close multipart writer", Err: err}
	}

	endpoint := c.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", &stt.TranscriptionError{Reason: "create request", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &stt.TranscriptionError{Reason: "http request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &stt.TranscriptionError{Reason: fmt.Sprintf("server returned HTTP %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &stt.TranscriptionError{Reason: "read response body", Err: err}
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", &stt.TranscriptionError{Reason: "parse JSON response", Err: err}
	}

	return result.Text, nil
}

// encodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container suitable for direct inclusion in a multipart form
// upload.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}
