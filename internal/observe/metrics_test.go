package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetricsCreatesAllInstruments(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m.TranscriptionDuration == nil || m.GenerationDuration == nil ||
		m.StageDuration == nil || m.PipelineDuration == nil {
		t.Error("a histogram instrument is nil")
	}
	if m.GenerationRequests == nil || m.GenerationErrors == nil ||
		m.CandidatesDropped == nil || m.ParseFallbacks == nil ||
		m.PipelineRuns == nil || m.ModelLoads == nil || m.ModelReleases == nil {
		t.Error("a counter instrument is nil")
	}
	if m.LoadedModels == nil {
		t.Error("LoadedModels gauge is nil")
	}
}

func TestCounterObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.CandidatesDropped.Add(ctx, 2, metric.WithAttributes(attribute.String("stage", "reference_ipa")))
	m.CandidatesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", "error_patterns")))

	rm := collect(t, reader)
	found := findMetric(rm, "artivox.candidates.dropped")
	if found == nil {
		t.Fatal("artivox.candidates.dropped not found")
	}
	sum, ok := found.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("data type = %T, want Sum[int64]", found.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("total dropped = %d, want 3", total)
	}
}

func TestGaugeObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.LoadedModels.Add(ctx, 1)
	m.LoadedModels.Add(ctx, -1)
	m.LoadedModels.Add(ctx, 1)

	rm := collect(t, reader)
	found := findMetric(rm, "artivox.model.loaded")
	if found == nil {
		t.Fatal("artivox.model.loaded not found")
	}
	sum, ok := found.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("data type = %T, want Sum[int64]", found.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("loaded models = %+v, want a single data point of 1", sum.DataPoints)
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.PipelineDuration.Record(ctx, 12.5)
	m.PipelineDuration.Record(ctx, 48.0)

	rm := collect(t, reader)
	found := findMetric(rm, "artivox.pipeline.duration")
	if found == nil {
		t.Fatal("artivox.pipeline.duration not found")
	}
	hist, ok := found.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data type = %T, want Histogram[float64]", found.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Errorf("histogram data points = %+v, want a single point with count 2", hist.DataPoints)
	}
}
