package analysis

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aneeshram/artivox/internal/engine"
	"github.com/aneeshram/artivox/internal/observe"
	"github.com/aneeshram/artivox/internal/profile"
	"github.com/aneeshram/artivox/pkg/provider/stt"
)

// Stage names used in failure reporting and telemetry.
const (
	StageTranscribe    = "transcribe"
	StageReferenceIPA  = "reference_ipa"
	StageTranscriptIPA = "transcript_ipa"
	StageIPAJudge      = "ipa_judge"
	StageErrorPatterns = "error_patterns"
	StageConsolidate   = "consolidate"
	StageSummary       = "summary"
)

// Generation budgets per call kind. Token budgets bound each call's runtime,
// so no extra timeout wrapper is needed.
const (
	ipaMaxTokens     = 200
	judgeMaxTokens   = 512
	errorsMaxTokens  = 1024
	organsMaxTokens  = 256
	summaryMaxTokens = 1024

	ipaTemperature     = 0.3
	judgeTemperature   = 0.2
	errorsTemperature  = 0.4
	summaryTemperature = 0.5
)

// defaultConfidence is the neutral score used when a judge verdict cannot be
// parsed.
const defaultConfidence = 5

// TranscriptionFailedError reports that the speech-to-text stage produced no
// usable text, either because the collaborator failed or because the result
// was empty after whitespace normalization.
type TranscriptionFailedError struct {
	// Err is the underlying transcription error, nil for an empty result.
	Err error
}

// Error implements the error interface.
func (e *TranscriptionFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis: transcription failed: %v", e.Err)
	}
	return "analysis: transcription produced no text"
}

// Unwrap returns the underlying transcription error, if any.
func (e *TranscriptionFailedError) Unwrap() error { return e.Err }

// StageError names the pipeline stage a run-terminating failure occurred in.
type StageError struct {
	// Stage is one of the Stage* constants.
	Stage string

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("analysis: stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying failure.
func (e *StageError) Unwrap() error { return e.Err }

// Sources names the model sources the pipeline generates with. Three
// generator sources feed the candidate attempts (attempt i uses source
// i mod 3) and one judge source handles selection calls. In the common
// deployment all four resolve to the same model; the manager then never
// reloads between calls.
type Sources struct {
	// Generators are the candidate-attempt model sources.
	Generators [3]string

	// Judge is the selection-call model source.
	Judge string
}

// Input is one assessment request.
type Input struct {
	// PCM is 16-bit signed little-endian mono audio at 16 kHz, as produced
	// by audio.PrepareForTranscription.
	PCM []byte

	// ReferenceText is the text the speaker was asked to read.
	ReferenceText string

	// Profile is the optional questionnaire side-channel. It is summarized
	// into the final report, never echoed verbatim. May be nil.
	Profile profile.Profile
}

// Option is a functional option for configuring a Pipeline.
type Option func(*Pipeline)

// WithMetrics attaches metric instruments to the pipeline.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithCandidates sets the number of independent attempts per candidate
// stage. Defaults to 3. Values below the quorum make every run fail.
func WithCandidates(k int) Option {
	return func(p *Pipeline) {
		if k > 0 {
			p.k = k
		}
	}
}

// WithAttemptTries sets how many times a single IPA attempt is tried before
// being dropped. Defaults to 2 (one retry).
func WithAttemptTries(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.tries = n
		}
	}
}

// Pipeline sequences the full assessment flow. It is safe for concurrent
// use; concurrent runs serialize on the manager's generation calls by
// construction.
type Pipeline struct {
	mgr     *engine.Manager
	stt     stt.Transcriber
	sources Sources
	metrics *observe.Metrics

	k     int
	tries int
}

// New creates a Pipeline generating through mgr and transcribing through
// transcriber.
func New(mgr *engine.Manager, transcriber stt.Transcriber, sources Sources, opts ...Option) *Pipeline {
	p := &Pipeline{
		mgr:     mgr,
		stt:     transcriber,
		sources: sources,
		k:       3,
		tries:   2,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes the full pipeline for one input. On success the Result is
// fully populated; every field holds either a parsed or a default value. On
// failure the returned error names the stage that aborted the run and no
// partial Result is exposed.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	ctx, span := observe.StartSpan(ctx, "analysis.Run")
	defer span.End()

	runStart := time.Now()
	res, err := p.run(ctx, in)

	if p.metrics != nil {
		status := "ok"
		if err != nil {
			status = "failed"
		}
		p.metrics.PipelineDuration.Record(ctx, time.Since(runStart).Seconds())
		p.metrics.PipelineRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, in Input) (*Result, error) {
	log := observe.Logger(ctx)
	res := &Result{
		RunID:         uuid.NewString(),
		ReferenceText: normalizeSpace(in.ReferenceText),
	}
	log = log.With("run_id", res.RunID)

	// Stage 1: transcription.
	transcript, err := p.transcribe(ctx, in.PCM)
	if err != nil {
		return nil, err
	}
	res.Transcript = transcript
	log.Info("transcription complete", "transcript", transcript)

	// Stage 2: IPA candidates for both texts.
	if res.ReferenceIPACandidates, err = p.ipaCandidates(ctx, StageReferenceIPA, res.ReferenceText); err != nil {
		return nil, err
	}
	if res.TranscriptIPACandidates, err = p.ipaCandidates(ctx, StageTranscriptIPA, res.Transcript); err != nil {
		return nil, err
	}
	log.Debug("ipa candidates collected",
		"reference_agreement", Agreement(res.ReferenceIPACandidates),
		"transcript_agreement", Agreement(res.TranscriptIPACandidates))

	// Stage 3: judge selects the best transcription pair.
	if res.IPA, err = p.judgeIPA(ctx, res); err != nil {
		return nil, err
	}

	// Stage 4: error-pattern candidates.
	if res.AnalysisCandidates, err = p.analysisCandidates(ctx, res); err != nil {
		return nil, err
	}

	// Stage 5: judge consolidates the analyses.
	if res.Consolidated, err = p.consolidate(ctx, res.AnalysisCandidates); err != nil {
		return nil, err
	}

	// Stage 6: final structured summary.
	if res.Summary, err = p.summarize(ctx, res, in.Profile); err != nil {
		return nil, err
	}

	log.Info("assessment complete",
		"total_errors", int(res.Summary.TotalErrors),
		"accuracy", res.Summary.ArticulationAccuracy)
	return res, nil
}

// transcribe runs the speech-to-text collaborator and normalizes the result.
func (p *Pipeline) transcribe(ctx context.Context, pcm []byte) (string, error) {
	start := time.Now()
	text, err := p.stt.Transcribe(ctx, pcm)
	p.recordStage(ctx, StageTranscribe, start)
	if p.metrics != nil {
		p.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return "", &TranscriptionFailedError{Err: err}
	}
	text = normalizeSpace(text)
	if text == "" {
		return "", &TranscriptionFailedError{}
	}
	return text, nil
}

// ipaCandidates collects k slash-delimited phonetic transcriptions of text,
// retrying each attempt up to p.tries times, and enforces the quorum.
func (p *Pipeline) ipaCandidates(ctx context.Context, stage, text string) ([]string, error) {
	start := time.Now()
	defer p.recordStage(ctx, stage, start)

	prompt := ipaPrompt(text)
	candidates, err := collectCandidates(ctx, p.k, p.tries,
		func(ctx context.Context, attempt int) (string, error) {
			return p.generate(ctx, p.generatorSource(attempt), engine.Request{
				Prompt:      prompt,
				MaxTokens:   ipaMaxTokens,
				Temperature: ipaTemperature,
			})
		},
		ExtractIPA,
		p.dropLogger(ctx, stage),
	)
	if err != nil {
		return nil, &StageError{Stage: stage, Err: err}
	}
	if len(candidates) < quorum {
		return nil, &StageError{Stage: stage, Err: &InsufficientCandidatesError{Stage: stage, Got: len(candidates), Want: quorum}}
	}
	return candidates, nil
}

// judgeIPA issues the selection call over both candidate sets. An
// unparseable or failed verdict falls back to candidate 0 for both texts
// with a neutral confidence.
func (p *Pipeline) judgeIPA(ctx context.Context, res *Result) (IPAVerdict, error) {
	start := time.Now()
	defer p.recordStage(ctx, StageIPAJudge, start)

	fallback := IPAVerdict{
		BestOriginal:   res.ReferenceIPACandidates[0],
		BestTranscript: res.TranscriptIPACandidates[0],
		Confidence:     defaultConfidence,
	}
	prompt := ipaJudgePrompt(res.ReferenceText, res.Transcript,
		res.ReferenceIPACandidates, res.TranscriptIPACandidates)

	verdict, err := judgeCandidates(ctx, func(ctx context.Context) (string, error) {
		return p.generate(ctx, p.sources.Judge, engine.Request{
			Prompt:      prompt,
			MaxTokens:   judgeMaxTokens,
			Temperature: judgeTemperature,
		})
	}, verdictMarker, verdictMarker, "}", fallback)
	if err != nil {
		return IPAVerdict{}, &StageError{Stage: StageIPAJudge, Err: err}
	}
	p.notePayload(ctx, StageIPAJudge, verdict.Fallback, verdict.Reason)

	v := verdict.Value
	if v.BestOriginal == "" {
		v.BestOriginal = fallback.BestOriginal
	}
	if v.BestTranscript == "" {
		v.BestTranscript = fallback.BestTranscript
	}
	if v.Confidence < 1 || v.Confidence > 10 {
		v.Confidence = defaultConfidence
	}
	return v, nil
}

// analysisCandidates runs k independent error-pattern attempts. Each attempt
// chains two calls: one for the error list and, when at least one error was
// found, one for the affected organs. An unparseable response at either
// sub-step degrades to an empty structure for that sub-step; only a failed
// generation call drops the attempt.
func (p *Pipeline) analysisCandidates(ctx context.Context, res *Result) ([]Analysis, error) {
	start := time.Now()
	defer p.recordStage(ctx, StageErrorPatterns, start)

	drop := p.dropLogger(ctx, StageErrorPatterns)
	errPrompt := errorsPrompt(res.ReferenceText, res.IPA.BestOriginal, res.Transcript, res.IPA.BestTranscript)

	candidates := make([]Analysis, 0, p.k)
	for attempt := 0; attempt < p.k; attempt++ {
		text, err := p.generate(ctx, p.generatorSource(attempt), engine.Request{
			Prompt:      errPrompt,
			MaxTokens:   errorsMaxTokens,
			Temperature: errorsTemperature,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, &StageError{Stage: StageErrorPatterns, Err: err}
			}
			drop(attempt, fmt.Sprintf("generation failed: %v", err))
			continue
		}

		errsPayload := ExtractJSON(text, errorsMarker, errorsMarker, "]", []ArticulationError{})
		p.notePayload(ctx, StageErrorPatterns, errsPayload.Fallback, errsPayload.Reason)
		cand := Analysis{Errors: errsPayload.Value, AffectedOrgans: []string{}}

		// No errors means nothing to map to organs; skip the second call.
		if len(cand.Errors) > 0 {
			organText, err := p.generate(ctx, p.sources.Judge, engine.Request{
				Prompt:      organsPrompt(cand.Errors),
				MaxTokens:   organsMaxTokens,
				Temperature: judgeTemperature,
			})
			if err != nil {
				if ctx.Err() != nil {
					return nil, &StageError{Stage: StageErrorPatterns, Err: err}
				}
				observe.Logger(ctx).Warn("organ mapping call failed, using empty set",
					"stage", StageErrorPatterns, "attempt", attempt, "error", err)
			} else {
				organPayload := ExtractJSON(organText, organsMarker, organsMarker, "]", []string{})
				p.notePayload(ctx, StageErrorPatterns, organPayload.Fallback, organPayload.Reason)
				cand.AffectedOrgans = filterOrgans(organPayload.Value)
			}
		}

		candidates = append(candidates, cand)
	}

	if len(candidates) < quorum {
		return nil, &StageError{Stage: StageErrorPatterns, Err: &InsufficientCandidatesError{Stage: StageErrorPatterns, Got: len(candidates), Want: quorum}}
	}
	return candidates, nil
}

// consolidate issues the judge call over the analysis candidates. On a
// fallback verdict candidate 0 is taken verbatim; a parsed verdict with an
// empty consolidation takes the selected candidate instead.
func (p *Pipeline) consolidate(ctx context.Context, candidates []Analysis) (Analysis, error) {
	start := time.Now()
	defer p.recordStage(ctx, StageConsolidate, start)

	fallback := AnalysisVerdict{
		SelectedIndex: 0,
		Confidence:    defaultConfidence,
		Consolidated:  candidates[0],
	}
	prompt := analysisJudgePrompt(candidates)

	verdict, err := judgeCandidates(ctx, func(ctx context.Context) (string, error) {
		return p.generate(ctx, p.sources.Judge, engine.Request{
			Prompt:      prompt,
			MaxTokens:   judgeMaxTokens,
			Temperature: judgeTemperature,
		})
	}, verdictMarker, verdictMarker, "}", fallback)
	if err != nil {
		return Analysis{}, &StageError{Stage: StageConsolidate, Err: err}
	}
	p.notePayload(ctx, StageConsolidate, verdict.Fallback, verdict.Reason)

	v := verdict.Value
	consolidated := v.Consolidated
	if len(consolidated.Errors) == 0 && len(consolidated.AffectedOrgans) == 0 {
		idx := int(v.SelectedIndex)
		if idx < 0 || idx >= len(candidates) {
			idx = 0
		}
		consolidated = candidates[idx]
	}
	if consolidated.Errors == nil {
		consolidated.Errors = []ArticulationError{}
	}
	consolidated.AffectedOrgans = filterOrgans(consolidated.AffectedOrgans)
	return consolidated, nil
}

// summarize issues the final report call. This stage's fallback is the one
// place the pipeline derives values from data instead of constants: when the
// generated summary cannot be parsed, the per-category breakdown is counted
// from the consolidated analysis.
func (p *Pipeline) summarize(ctx context.Context, res *Result, prof profile.Profile) (Summary, error) {
	start := time.Now()
	defer p.recordStage(ctx, StageSummary, start)

	breakdown := CountBreakdown(res.Consolidated.Errors)
	fallback := Summary{
		TotalErrors:           FlexInt(breakdown.Total()),
		ErrorBreakdown:        breakdown,
		MostAffectedOrgans:    res.Consolidated.AffectedOrgans,
		PsychologicalInsights: prof.Insight(),
		ArticulationAccuracy:  AccuracyModerate,
		PersonalizedExercises: []string{},
	}

	prompt := summaryPrompt(res.ReferenceText, res.Transcript,
		res.IPA.BestOriginal, res.IPA.BestTranscript, res.Consolidated, prof.Digest())

	payload, err := judgeCandidates(ctx, func(ctx context.Context) (string, error) {
		return p.generate(ctx, p.sources.Judge, engine.Request{
			Prompt:      prompt,
			MaxTokens:   summaryMaxTokens,
			Temperature: summaryTemperature,
		})
	}, summaryMarker, summaryMarker, "}", fallback)
	if err != nil {
		return Summary{}, &StageError{Stage: StageSummary, Err: err}
	}
	p.notePayload(ctx, StageSummary, payload.Fallback, payload.Reason)

	// Normalize the parsed report so no field is ever absent.
	s := payload.Value
	if s.MostAffectedOrgans == nil {
		s.MostAffectedOrgans = []string{}
	}
	if s.PersonalizedExercises == nil {
		s.PersonalizedExercises = []string{}
	}
	if s.PsychologicalInsights == "" {
		s.PsychologicalInsights = prof.Insight()
	}
	switch s.ArticulationAccuracy {
	case AccuracyHigh, AccuracyModerate, AccuracyLow:
	default:
		s.ArticulationAccuracy = AccuracyModerate
	}
	return s, nil
}

// generate acquires the handle for source and issues one generation call.
func (p *Pipeline) generate(ctx context.Context, source string, req engine.Request) (string, error) {
	h, err := p.mgr.Acquire(ctx, source)
	if err != nil {
		return "", err
	}
	result, err := p.mgr.Generate(ctx, h, req)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// generatorSource maps an attempt index onto the configured generators.
func (p *Pipeline) generatorSource(attempt int) string {
	return p.sources.Generators[attempt%len(p.sources.Generators)]
}

// dropLogger returns a dropFunc that logs and counts dropped attempts.
func (p *Pipeline) dropLogger(ctx context.Context, stage string) dropFunc {
	return func(attempt int, reason string) {
		observe.Logger(ctx).Warn("candidate attempt dropped",
			"stage", stage, "attempt", attempt, "reason", reason)
		if p.metrics != nil {
			p.metrics.CandidatesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
		}
	}
}

// notePayload logs and counts payload fallbacks.
func (p *Pipeline) notePayload(ctx context.Context, stage string, fell bool, reason string) {
	if !fell {
		return
	}
	observe.Logger(ctx).Warn("structured output fell back to default",
		"stage", stage, "reason", reason)
	if p.metrics != nil {
		p.metrics.ParseFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	}
}

// recordStage records stage latency.
func (p *Pipeline) recordStage(ctx context.Context, stage string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.StageDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
}

// filterOrgans drops entries outside the six-organ vocabulary and
// normalizes casing. Never returns nil.
func filterOrgans(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = strings.ToLower(strings.TrimSpace(o))
		if slices.Contains(Organs, o) && !slices.Contains(out, o) {
			out = append(out, o)
		}
	}
	return out
}

// normalizeSpace collapses all whitespace runs to single spaces and trims.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
