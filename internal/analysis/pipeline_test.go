package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aneeshram/artivox/internal/engine"
	"github.com/aneeshram/artivox/pkg/provider/llm"
	llmmock "github.com/aneeshram/artivox/pkg/provider/llm/mock"
	sttmock "github.com/aneeshram/artivox/pkg/provider/stt/mock"
)

// scriptedBackend routes generation calls to canned responses by matching a
// distinctive substring of each stage's prompt.
func scriptedBackend(t *testing.T, routes map[string]string) *llmmock.Provider {
	t.Helper()
	return &llmmock.Provider{
		CompleteFunc: func(_ int, req llm.CompletionRequest) (string, error) {
			for marker, response := range routes {
				if strings.Contains(req.Prompt, marker) {
					return response, nil
				}
			}
			t.Errorf("no scripted response for prompt: %.80q", req.Prompt)
			return "", nil
		},
	}
}

// newTestPipeline wires a pipeline around the given backend and transcript.
func newTestPipeline(backend *llmmock.Provider, transcript string) *Pipeline {
	mgr := engine.NewManager(func(context.Context, string) (llm.Provider, error) {
		return backend, nil
	})
	transcriber := &sttmock.Transcriber{Text: transcript}
	sources := Sources{
		Generators: [3]string{"model", "model", "model"},
		Judge:      "model",
	}
	return New(mgr, transcriber, sources)
}

// Prompt substrings unique to each stage, taken from the prompt templates.
const (
	routeIPA          = "Convert the following English text"
	routeIPAJudge     = "judging candidate IPA"
	routeErrors       = "list every articulation error"
	routeOrgans       = "identify which speech organs"
	routeAnalysisJudge = "independent articulation analyses"
	routeSummary      = "final assessment report"
)

func TestRunEndToEndLispScenario(t *testing.T) {
	t.Parallel()

	const (
		refIPA   = "/aɪ sɔː sæm ˈsɪtɪŋ ɒn ə bʌs/"
		transIPA = "/aɪ sɔː θæm ˈθɪtɪŋ ɒn ə bʌθ/"
	)

	// The IPA route answers for both texts; the scripted backend cannot tell
	// them apart, but the judge verdict pins the selected pair anyway.
	backend := scriptedBackend(t, map[string]string{
		routeIPA: "Here you go: " + refIPA,
		routeIPAJudge: `<<VERDICT>>{"best_ipa_original": "` + refIPA +
			`", "best_ipa_transcript": "` + transIPA + `", "confidence": 8}<<VERDICT>>`,
		routeErrors: `<<ERRORS>>[
			{"type": "Substitution", "original_sound": "s", "transcribed_sound": "θ", "position": "3"},
			{"type": "Substitution", "original_sound": "s", "transcribed_sound": "θ", "position": "4"},
			{"type": "Substitution", "original_sound": "s", "transcribed_sound": "θ", "position": "7"}
		]<<ERRORS>>`,
		routeOrgans: `<<ORGANS>>["tongue", "teeth"]<<ORGANS>>`,
		routeAnalysisJudge: `<<VERDICT>>{"selected_analysis": 0, "confidence": 9, "consolidated_analysis": {
			"errors": [
				{"type": "Substitution", "original_sound": "s", "transcribed_sound": "θ", "position": "3"},
				{"type": "Substitution", "original_sound": "s", "transcribed_sound": "θ", "position": "4"},
				{"type": "Substitution", "original_sound": "s", "transcribed_sound": "θ", "position": "7"}
			],
			"affected_speech_organs": ["tongue", "teeth"]}}<<VERDICT>>`,
		routeSummary: `<<SUMMARY>>{
			"total_errors": 3,
			"error_breakdown": {"substitution": 3, "omission": 0, "distortion": 0, "addition": 0},
			"most_affected_organs": ["tongue", "teeth"],
			"psychological_insights": "Mild frustration reported when misunderstood.",
			"articulation_accuracy": "Moderate",
			"personalized_exercises": ["Practice /s/ with tongue-tip placement drills."]
		}<<SUMMARY>>`,
	})

	p := newTestPipeline(backend, "I saw Tham thitting on a buth")
	res, err := p.Run(context.Background(), Input{
		PCM:           []byte{0, 0, 0, 0},
		ReferenceText: "I saw Sam sitting on a bus",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.RunID == "" {
		t.Error("RunID is empty")
	}
	if res.Transcript != "I saw Tham thitting on a buth" {
		t.Errorf("Transcript = %q", res.Transcript)
	}
	if len(res.ReferenceIPACandidates) != 3 || len(res.TranscriptIPACandidates) != 3 {
		t.Errorf("candidate counts = %d/%d, want 3/3",
			len(res.ReferenceIPACandidates), len(res.TranscriptIPACandidates))
	}
	if res.IPA.BestOriginal != refIPA || res.IPA.BestTranscript != transIPA {
		t.Errorf("IPA verdict = %+v", res.IPA)
	}
	if res.IPA.Confidence != 8 {
		t.Errorf("IPA confidence = %d, want 8", res.IPA.Confidence)
	}

	var foundSubstitution bool
	for _, e := range res.Consolidated.Errors {
		if e.Kind == Substitution && strings.Contains(e.OriginalSound, "s") && strings.Contains(e.ProducedSound, "θ") {
			foundSubstitution = true
		}
	}
	if !foundSubstitution {
		t.Errorf("no s→θ substitution detected: %+v", res.Consolidated.Errors)
	}

	var hasTongue bool
	for _, o := range res.Summary.MostAffectedOrgans {
		if o == "tongue" {
			hasTongue = true
		}
	}
	if !hasTongue {
		t.Errorf("most_affected_organs = %v, want to include tongue", res.Summary.MostAffectedOrgans)
	}
	if res.Summary.TotalErrors != 3 {
		t.Errorf("total_errors = %d, want 3", res.Summary.TotalErrors)
	}
	if res.Summary.ArticulationAccuracy != AccuracyModerate {
		t.Errorf("articulation_accuracy = %q", res.Summary.ArticulationAccuracy)
	}
}

func TestRunSummaryFallbackDerivesBreakdown(t *testing.T) {
	t.Parallel()

	backend := scriptedBackend(t, map[string]string{
		routeIPA:      "/ipa/",
		routeIPAJudge: "I am not going to answer in the requested format.",
		routeErrors: `<<ERRORS>>[
			{"type": "Substitution", "original_sound": "s", "transcribed_sound": "th", "position": "1"},
			{"type": "Substitution", "original_sound": "z", "transcribed_sound": "d", "position": "2"},
			{"type": "Omission", "original_sound": "t", "transcribed_sound": "", "position": "5"}
		]<<ERRORS>>`,
		routeOrgans:        `<<ORGANS>>["tongue"]<<ORGANS>>`,
		routeAnalysisJudge: "Again, no structured verdict from me.",
		routeSummary:       "And definitely no JSON summary.",
	})

	p := newTestPipeline(backend, "some transcript")
	res, err := p.Run(context.Background(), Input{
		PCM:           []byte{0, 0},
		ReferenceText: "some reference",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Unparseable IPA verdict selects candidate 0 with neutral confidence.
	if res.IPA.BestOriginal != res.ReferenceIPACandidates[0] {
		t.Errorf("fallback BestOriginal = %q, want candidate 0 %q",
			res.IPA.BestOriginal, res.ReferenceIPACandidates[0])
	}
	if res.IPA.Confidence != 5 {
		t.Errorf("fallback confidence = %d, want 5", res.IPA.Confidence)
	}

	// Unparseable consolidation verdict takes candidate 0 verbatim.
	if len(res.Consolidated.Errors) != 3 {
		t.Fatalf("consolidated errors = %d, want 3", len(res.Consolidated.Errors))
	}

	// The summary fallback derives the breakdown from the consolidated
	// analysis instead of defaulting it.
	if res.Summary.ErrorBreakdown.Substitution != 2 {
		t.Errorf("breakdown.substitution = %d, want 2", res.Summary.ErrorBreakdown.Substitution)
	}
	if res.Summary.ErrorBreakdown.Omission != 1 {
		t.Errorf("breakdown.omission = %d, want 1", res.Summary.ErrorBreakdown.Omission)
	}
	if res.Summary.TotalErrors != 3 {
		t.Errorf("total_errors = %d, want 3", res.Summary.TotalErrors)
	}
	if res.Summary.MostAffectedOrgans == nil || res.Summary.PersonalizedExercises == nil {
		t.Error("fallback summary has nil fields")
	}
	if res.Summary.PsychologicalInsights != "No significant psychological impact noted" {
		t.Errorf("psychological_insights = %q", res.Summary.PsychologicalInsights)
	}
}

func TestRunAbortsWhenQuorumNotMet(t *testing.T) {
	t.Parallel()

	// Only the very first generation call yields a parseable transcription;
	// every retry after that produces nothing usable.
	backend := &llmmock.Provider{
		CompleteFunc: func(call int, _ llm.CompletionRequest) (string, error) {
			if call == 0 {
				return "/only one/", nil
			}
			return "no transcription, sorry", nil
		},
	}

	p := newTestPipeline(backend, "transcript")
	_, err := p.Run(context.Background(), Input{
		PCM:           []byte{0, 0},
		ReferenceText: "reference",
	})
	if err == nil {
		t.Fatal("Run succeeded below quorum")
	}

	var ice *InsufficientCandidatesError
	if !errors.As(err, &ice) {
		t.Fatalf("error = %v, want *InsufficientCandidatesError", err)
	}
	if ice.Got != 1 || ice.Want != 3 {
		t.Errorf("quorum report = %d/%d, want 1/3", ice.Got, ice.Want)
	}

	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StageError", err)
	}
	if se.Stage != StageReferenceIPA {
		t.Errorf("failed stage = %q, want %q", se.Stage, StageReferenceIPA)
	}
}

func TestRunAbortsOnTranscriptionFailure(t *testing.T) {
	t.Parallel()

	backend := scriptedBackend(t, map[string]string{})

	t.Run("transcriber error", func(t *testing.T) {
		t.Parallel()
		mgr := engine.NewManager(func(context.Context, string) (llm.Provider, error) {
			return backend, nil
		})
		p := New(mgr, &sttmock.Transcriber{Err: errors.New("bad sample rate")},
			Sources{Generators: [3]string{"m", "m", "m"}, Judge: "m"})

		_, err := p.Run(context.Background(), Input{PCM: []byte{0, 0}, ReferenceText: "x"})
		var tf *TranscriptionFailedError
		if !errors.As(err, &tf) {
			t.Fatalf("error = %v, want *TranscriptionFailedError", err)
		}
	})

	t.Run("empty transcript after normalization", func(t *testing.T) {
		t.Parallel()
		p := newTestPipeline(backend, "   \n\t ")
		_, err := p.Run(context.Background(), Input{PCM: []byte{0, 0}, ReferenceText: "x"})
		var tf *TranscriptionFailedError
		if !errors.As(err, &tf) {
			t.Fatalf("error = %v, want *TranscriptionFailedError", err)
		}
	})
}

func TestRunNormalizesWhitespace(t *testing.T) {
	t.Parallel()

	backend := scriptedBackend(t, map[string]string{
		routeIPA:           "/x/",
		routeIPAJudge:      `<<VERDICT>>{"best_ipa_original": "/x/", "best_ipa_transcript": "/x/", "confidence": 7}<<VERDICT>>`,
		routeErrors:        `<<ERRORS>>[]<<ERRORS>>`,
		routeAnalysisJudge: `<<VERDICT>>{"selected_analysis": 0, "confidence": 7, "consolidated_analysis": {"errors": [], "affected_speech_organs": []}}<<VERDICT>>`,
		routeSummary: `<<SUMMARY>>{"total_errors": 0, "error_breakdown": {"substitution": 0, "omission": 0, "distortion": 0, "addition": 0},
			"most_affected_organs": [], "psychological_insights": "None.", "articulation_accuracy": "High", "personalized_exercises": []}<<SUMMARY>>`,
	})

	p := newTestPipeline(backend, "  hello \n  world  ")
	res, err := p.Run(context.Background(), Input{
		PCM:           []byte{0, 0},
		ReferenceText: "hello\tworld",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Transcript != "hello world" {
		t.Errorf("Transcript = %q, want %q", res.Transcript, "hello world")
	}
	if res.ReferenceText != "hello world" {
		t.Errorf("ReferenceText = %q, want %q", res.ReferenceText, "hello world")
	}

	// Zero errors short-circuit the organ-mapping call, so the organs route
	// must never have been hit (scriptedBackend errors on unknown prompts).
	if res.Summary.ArticulationAccuracy != AccuracyHigh {
		t.Errorf("articulation_accuracy = %q, want High", res.Summary.ArticulationAccuracy)
	}
}
