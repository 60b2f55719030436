// Package engine owns the lifecycle of the loaded generation model.
//
// The underlying resource is large (a multi-gigabyte quantized model) and
// expensive to keep multiple copies of, so a [Manager] holds at most one
// loaded backend at a time, keyed by its source identifier. Acquiring the
// same source reuses the live handle without reloading; acquiring a
// different source releases the old backend first, so its memory (including
// device memory for in-process backends) is reclaimed before the new load
// begins.
//
// The backend is not assumed to be safe for concurrent invocation, so every
// operation — acquire, generate, release — serializes on a single weighted
// semaphore. Concurrency is bounded to one in-flight generation call
// process-wide; concurrent callers queue. This is an accepted throughput
// limitation, not a bug.
//
// Construct exactly one Manager per process and inject it into every
// consumer; the single-instance discipline is what preserves the
// "one loaded model" invariant without hidden global state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/aneeshram/artivox/internal/observe"
	"github.com/aneeshram/artivox/pkg/provider/llm"
)

// ErrNotLoaded is returned by Generate when no model is currently loaded.
var ErrNotLoaded = errors.New("engine: no model loaded")

// ErrStaleHandle is returned by Generate when the supplied handle does not
// match the currently loaded model — the caller held on to a handle across a
// release or a reload.
var ErrStaleHandle = errors.New("engine: handle does not match loaded model")

// LoadError reports a permanent model load failure: the initial load and the
// single forced-reload retry both failed.
type LoadError struct {
	// Source is the identifier that failed to load.
	Source string

	// Err is the error from the final load attempt.
	Err error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("engine: load model %q: %v", e.Source, e.Err)
}

// Unwrap returns the underlying load error.
func (e *LoadError) Unwrap() error { return e.Err }

// Request carries the parameters for one generation call. It is immutable
// once issued.
type Request struct {
	// Prompt is the full prompt text.
	Prompt string

	// MaxTokens bounds the completion length and therefore the call's
	// runtime.
	MaxTokens int

	// Temperature controls sampling randomness in [0.0, 1.0].
	Temperature float64

	// TopP is the nucleus sampling cutoff. Zero means backend default.
	TopP float64

	// Stop lists sequences at which generation halts.
	Stop []string
}

// Result is the outcome of a successful generation call.
type Result struct {
	// Text is the generated text with surrounding whitespace trimmed.
	Text string
}

// LoadFunc constructs a generation backend for a source identifier. The
// manager calls it under its own mutual exclusion; implementations need no
// internal locking.
type LoadFunc func(ctx context.Context, source string) (llm.Provider, error)

// Handle is an opaque reference to one loaded model. Handles become stale
// when the model they refer to is released or replaced.
type Handle struct {
	source string
	gen    uint64
}

// Source returns the source identifier this handle was acquired for.
func (h *Handle) Source() string { return h.source }

// Option is a functional option for configuring a Manager.
type Option func(*Manager)

// WithMetrics attaches metric instruments recording model loads, releases,
// and generation latency.
func WithMetrics(m *observe.Metrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// Manager serializes all access to the single loaded generation backend.
// It is safe for concurrent use; callers block until the in-flight operation
// completes.
type Manager struct {
	load    LoadFunc
	metrics *observe.Metrics

	// sem is the process-wide mutual exclusion for everything below. A
	// weighted semaphore rather than a plain mutex so queued callers can
	// abandon the wait on context cancellation.
	sem *semaphore.Weighted

	current llm.Provider
	source  string
	gen     uint64
	handle  *Handle
}

// NewManager creates a Manager that loads backends through load.
func NewManager(load LoadFunc, opts ...Option) *Manager {
	m := &Manager{
		load: load,
		sem:  semaphore.NewWeighted(1),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Acquire returns a handle for the model identified by source, loading it if
// necessary. When a handle for the same source is already live it is
// returned unchanged — no reload. When a different source is live, the old
// backend is released before the new one is loaded. A failed load is retried
// exactly once after a forced release; a second failure is reported as a
// *LoadError and the manager is left with nothing loaded.
func (m *Manager) Acquire(ctx context.Context, source string) (*Handle, error) {
	if source == "" {
		return nil, errors.New("engine: source must not be empty")
	}
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("engine: acquire: %w", err)
	}
	defer m.sem.Release(1)

	if m.current != nil && m.source == source {
		return m.handle, nil
	}

	// A different model is live: reclaim its memory before loading.
	m.releaseLocked()

	backend, err := m.load(ctx, source)
	if err != nil {
		slog.Warn("engine: model load failed, retrying after forced release",
			"source", source, "error", err)
		m.releaseLocked()
		backend, err = m.load(ctx, source)
		if err != nil {
			m.releaseLocked()
			return nil, &LoadError{Source: source, Err: err}
		}
	}

	m.current = backend
	m.source = source
	m.gen++
	m.handle = &Handle{source: source, gen: m.gen}

	if m.metrics != nil {
		m.metrics.ModelLoads.Add(ctx, 1)
		m.metrics.LoadedModels.Add(ctx, 1)
	}
	slog.Info("engine: model loaded", "source", source)

	return m.handle, nil
}

// Generate issues one generation call against the loaded model. It fails
// with ErrNotLoaded when nothing is loaded and ErrStaleHandle when h refers
// to a model that has since been released or replaced. The call is not
// retried on failure — retry, where it exists, is a pipeline-level policy.
func (m *Manager) Generate(ctx context.Context, h *Handle, req Request) (Result, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("engine: acquire: %w", err)
	}
	defer m.sem.Release(1)

	if m.current == nil {
		return Result{}, ErrNotLoaded
	}
	if h == nil || h.gen != m.gen {
		return Result{}, ErrStaleHandle
	}

	start := time.Now()
	resp, err := m.current.Complete(ctx, llm.CompletionRequest{
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	})
	if m.metrics != nil {
		m.metrics.GenerationDuration.Record(ctx, time.Since(start).Seconds())
		m.metrics.GenerationRequests.Add(ctx, 1)
		if err != nil {
			m.metrics.GenerationErrors.Add(ctx, 1)
		}
	}
	if err != nil {
		return Result{}, fmt.Errorf("engine: generate: %w", err)
	}

	return Result{Text: strings.TrimSpace(resp.Content)}, nil
}

// Release unloads the current model, if any. It is idempotent and always
// safe to call; a subsequent Acquire reloads from scratch.
func (m *Manager) Release() {
	// Release must succeed even mid-shutdown, so it waits without a caller
	// context.
	if err := m.sem.Acquire(context.Background(), 1); err != nil {
		return
	}
	defer m.sem.Release(1)
	m.releaseLocked()
}

// releaseLocked frees the current backend. Callers must hold the semaphore.
func (m *Manager) releaseLocked() {
	if m.current == nil {
		m.source = ""
		m.handle = nil
		return
	}
	if err := m.current.Close(); err != nil {
		slog.Warn("engine: backend close failed", "source", m.source, "error", err)
	}
	slog.Info("engine: model released", "source", m.source)
	if m.metrics != nil {
		m.metrics.ModelReleases.Add(context.Background(), 1)
		m.metrics.LoadedModels.Add(context.Background(), -1)
	}
	m.current = nil
	m.source = ""
	m.handle = nil
}
