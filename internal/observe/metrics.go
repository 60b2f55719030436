// Package observe provides application-wide observability primitives for
// artivox: OpenTelemetry metrics, tracing helpers, and structured-logging
// glue.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. Tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all artivox metrics.
const meterName = "github.com/aneeshram/artivox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks speech-to-text transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// GenerationDuration tracks single generation-call latency.
	GenerationDuration metric.Float64Histogram

	// StageDuration tracks per-pipeline-stage latency. Use with attribute:
	//   attribute.String("stage", ...)
	StageDuration metric.Float64Histogram

	// PipelineDuration tracks end-to-end assessment latency.
	PipelineDuration metric.Float64Histogram

	// --- Counters ---

	// GenerationRequests counts generation calls issued to the backend.
	GenerationRequests metric.Int64Counter

	// GenerationErrors counts failed generation calls.
	GenerationErrors metric.Int64Counter

	// CandidatesDropped counts candidate attempts discarded after exhausting
	// their retry budget. Use with attribute: attribute.String("stage", ...)
	CandidatesDropped metric.Int64Counter

	// ParseFallbacks counts structured-output parses that fell back to a
	// default value. Use with attribute: attribute.String("stage", ...)
	ParseFallbacks metric.Int64Counter

	// PipelineRuns counts completed runs. Use with attribute:
	//   attribute.String("status", "ok"|"failed")
	PipelineRuns metric.Int64Counter

	// ModelLoads counts model load operations.
	ModelLoads metric.Int64Counter

	// ModelReleases counts model release operations.
	ModelReleases metric.Int64Counter

	// --- Gauges ---

	// LoadedModels tracks the number of currently loaded models (0 or 1 by
	// construction).
	LoadedModels metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Local
// inference on CPU is slow, so the buckets reach well past a minute.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("artivox.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GenerationDuration, err = m.Float64Histogram("artivox.generation.duration",
		metric.WithDescription("Latency of a single generation call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("artivox.stage.duration",
		metric.WithDescription("Latency per pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("artivox.pipeline.duration",
		metric.WithDescription("End-to-end assessment pipeline latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.GenerationRequests, err = m.Int64Counter("artivox.generation.requests",
		metric.WithDescription("Total generation calls issued."),
	); err != nil {
		return nil, err
	}
	if met.GenerationErrors, err = m.Int64Counter("artivox.generation.errors",
		metric.WithDescription("Total failed generation calls."),
	); err != nil {
		return nil, err
	}
	if met.CandidatesDropped, err = m.Int64Counter("artivox.candidates.dropped",
		metric.WithDescription("Candidate attempts discarded after exhausting retries, by stage."),
	); err != nil {
		return nil, err
	}
	if met.ParseFallbacks, err = m.Int64Counter("artivox.parse.fallbacks",
		metric.WithDescription("Structured-output parses resolved to a default value, by stage."),
	); err != nil {
		return nil, err
	}
	if met.PipelineRuns, err = m.Int64Counter("artivox.pipeline.runs",
		metric.WithDescription("Completed pipeline runs by status."),
	); err != nil {
		return nil, err
	}
	if met.ModelLoads, err = m.Int64Counter("artivox.model.loads",
		metric.WithDescription("Model load operations."),
	); err != nil {
		return nil, err
	}
	if met.ModelReleases, err = m.Int64Counter("artivox.model.releases",
		metric.WithDescription("Model release operations."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.LoadedModels, err = m.Int64UpDownCounter("artivox.model.loaded",
		metric.WithDescription("Number of currently loaded models."),
	); err != nil {
		return nil, err
	}

	return met, nil
}
