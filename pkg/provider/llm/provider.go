// Package llm defines the Provider interface for text-generation backends.
//
// A provider wraps a remote or local completion API (e.g., a llama.cpp
// server, Ollama, or OpenAI) and exposes a uniform synchronous interface so
// the analysis pipeline can request completions without coupling to any
// specific SDK. The pipeline never talks to a Provider directly — access is
// mediated by the engine resource manager, which serializes calls because
// local inference backends cannot safely serve concurrent requests.
//
// Implementors must propagate context cancellation promptly and must treat
// Close as idempotent.
package llm

import "context"

// Usage holds token accounting information returned by the backend.
// Counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the backend needs to produce a
// completion. Callers should treat a zero-value request as invalid; at
// minimum Prompt must be non-empty.
type CompletionRequest struct {
	// Prompt is the user-visible instruction driving the completion.
	Prompt string

	// SystemPrompt is an optional high-priority instruction injected before
	// the prompt. Providers without a dedicated system slot prepend it as a
	// "system"-role message.
	SystemPrompt string

	// MaxTokens caps the number of completion tokens the model may generate.
	// Every pipeline request sets this — it is the runtime bound that keeps
	// generation calls from blocking indefinitely.
	MaxTokens int

	// Temperature controls output randomness in [0.0, 1.0]. The pipeline
	// issues low-temperature requests for extraction stages and zero for
	// judge calls.
	Temperature float64

	// TopP is the nucleus sampling cutoff. Zero means the provider default.
	TopP float64

	// Stop lists sequences at which generation halts. Backends that do not
	// expose stop sequences ignore this field; MaxTokens still bounds the
	// call.
	Stop []string
}

// CompletionResponse is the full, non-streaming result of a completion.
type CompletionResponse struct {
	// Content is the raw generated text, including any noise surrounding the
	// structured payload the caller asked for.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any text-generation backend.
//
// Providers are not required to be safe for concurrent use: the engine
// manager guarantees mutual exclusion around every Complete call.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled before the
	// completion arrives. Content errors do not exist at this layer — a
	// malformed payload is still a successful completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Close releases any resources held by the provider (device memory for
	// in-process backends, idle connections for remote ones). Safe to call
	// more than once.
	Close() error
}
