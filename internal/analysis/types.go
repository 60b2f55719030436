// Package analysis implements the articulation-assessment pipeline: it turns
// one audio sample and one reference text into a structured phonetic-error
// report by sequencing generation calls through an engine.Manager.
//
// The pipeline is built around two hard problems. First, the generation
// backend produces free text, so every stage must pull a structured payload
// out of noisy output and fall back to a well-defined default instead of
// aborting. Second, stochastic output means no single call can be trusted, so
// the IPA and error-pattern stages each collect several independent
// candidates and issue one extra "judge" call to pick among them.
package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ErrorKind classifies an articulation error by the SODA taxonomy.
type ErrorKind string

// The four SODA error categories.
const (
	Substitution ErrorKind = "Substitution"
	Omission     ErrorKind = "Omission"
	Distortion   ErrorKind = "Distortion"
	Addition     ErrorKind = "Addition"
)

// ParseErrorKind normalizes a free-text category label to an ErrorKind.
// Generated output varies in casing and sometimes appends noise, so matching
// is prefix-based and case-insensitive. Unrecognized labels map to Distortion
// as the least specific category.
func ParseErrorKind(s string) ErrorKind {
	switch t := strings.ToLower(strings.TrimSpace(s)); {
	case strings.HasPrefix(t, "sub"):
		return Substitution
	case strings.HasPrefix(t, "omi"):
		return Omission
	case strings.HasPrefix(t, "dis"):
		return Distortion
	case strings.HasPrefix(t, "add"):
		return Addition
	default:
		return Distortion
	}
}

// UnmarshalJSON accepts any casing for the category label.
func (k *ErrorKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*k = ParseErrorKind(s)
	return nil
}

// FlexString is a string that also accepts a JSON number. Generated output
// sometimes emits word positions as bare integers instead of quoted strings.
type FlexString string

// UnmarshalJSON implements tolerant decoding for FlexString.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexString(n.String())
		return nil
	}
	return fmt.Errorf("analysis: cannot decode %q as string or number", data)
}

// FlexInt is an int that also accepts a quoted JSON number.
type FlexInt int

// UnmarshalJSON implements tolerant decoding for FlexInt.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("analysis: cannot decode %q as int", s)
		}
		*f = FlexInt(v)
		return nil
	}
	return fmt.Errorf("analysis: cannot decode %q as int", data)
}

// ArticulationError is a single detected mispronunciation.
type ArticulationError struct {
	// Kind is the SODA category of the error.
	Kind ErrorKind `json:"type"`

	// OriginalSound is the expected sound from the reference text.
	OriginalSound string `json:"original_sound"`

	// ProducedSound is the sound actually produced by the speaker.
	ProducedSound string `json:"transcribed_sound"`

	// Position marks where in the utterance the error occurred, usually a
	// word index or the affected word.
	Position FlexString `json:"position"`
}

// Organs is the fixed vocabulary of speech organs an analysis may name.
var Organs = []string{"lips", "teeth", "tongue", "palate", "velum", "glottis"}

// Analysis is one error-pattern candidate: the detected errors plus the
// speech organs implicated by them.
type Analysis struct {
	// Errors lists the detected articulation errors. May be empty.
	Errors []ArticulationError `json:"errors"`

	// AffectedOrgans is a subset of the six-organ vocabulary. Empty when
	// Errors is empty.
	AffectedOrgans []string `json:"affected_speech_organs"`
}

// Breakdown counts errors per SODA category.
type Breakdown struct {
	Substitution int `json:"substitution"`
	Omission     int `json:"omission"`
	Distortion   int `json:"distortion"`
	Addition     int `json:"addition"`
}

// CountBreakdown derives a Breakdown from a list of errors. This is the
// deterministic fallback for the summary stage: when the generated summary
// cannot be parsed, the breakdown is computed from the consolidated analysis
// rather than defaulted.
func CountBreakdown(errs []ArticulationError) Breakdown {
	var b Breakdown
	for _, e := range errs {
		switch e.Kind {
		case Substitution:
			b.Substitution++
		case Omission:
			b.Omission++
		case Distortion:
			b.Distortion++
		case Addition:
			b.Addition++
		}
	}
	return b
}

// Total returns the sum over all categories.
func (b Breakdown) Total() int {
	return b.Substitution + b.Omission + b.Distortion + b.Addition
}

// Accuracy levels for the qualitative rating in a Summary.
const (
	AccuracyHigh     = "High"
	AccuracyModerate = "Moderate"
	AccuracyLow      = "Low"
)

// Summary is the final structured report of a pipeline run.
type Summary struct {
	// TotalErrors is the total detected error count.
	TotalErrors FlexInt `json:"total_errors"`

	// ErrorBreakdown counts errors per SODA category.
	ErrorBreakdown Breakdown `json:"error_breakdown"`

	// MostAffectedOrgans lists the organs implicated most often.
	MostAffectedOrgans []string `json:"most_affected_organs"`

	// PsychologicalInsights summarizes the optional profile side-channel.
	// Never echoes profile answers verbatim.
	PsychologicalInsights string `json:"psychological_insights"`

	// ArticulationAccuracy is one of High, Moderate, or Low.
	ArticulationAccuracy string `json:"articulation_accuracy"`

	// PersonalizedExercises suggests practice exercises for the speaker.
	PersonalizedExercises []string `json:"personalized_exercises"`
}

// IPAVerdict is the judge's selection of the best phonetic transcription
// pair out of the reference and transcript candidate sets.
type IPAVerdict struct {
	// BestOriginal is the chosen IPA transcription of the reference text.
	BestOriginal string `json:"best_ipa_original"`

	// BestTranscript is the chosen IPA transcription of the spoken text.
	BestTranscript string `json:"best_ipa_transcript"`

	// Confidence is the judge's self-reported confidence in [1, 10].
	Confidence FlexInt `json:"confidence"`
}

// AnalysisVerdict is the judge's consolidation of the error-pattern
// candidate set.
type AnalysisVerdict struct {
	// SelectedIndex is the zero-based index of the chosen candidate.
	SelectedIndex FlexInt `json:"selected_analysis"`

	// Confidence is the judge's self-reported confidence in [1, 10].
	Confidence FlexInt `json:"confidence"`

	// Consolidated is the merged analysis; it may combine elements from
	// several candidates rather than copying one verbatim.
	Consolidated Analysis `json:"consolidated_analysis"`
}

// Result is the complete outcome of one pipeline run. A Result is only ever
// returned fully populated; every field holds either a parsed or a
// well-defined default value.
type Result struct {
	// RunID uniquely identifies this pipeline run.
	RunID string `json:"run_id"`

	// ReferenceText is the text the speaker was asked to read.
	ReferenceText string `json:"reference_text"`

	// Transcript is the normalized speech-to-text output.
	Transcript string `json:"transcript"`

	// ReferenceIPACandidates are the parsed reference-text IPA attempts.
	ReferenceIPACandidates []string `json:"reference_ipa_candidates"`

	// TranscriptIPACandidates are the parsed transcript IPA attempts.
	TranscriptIPACandidates []string `json:"transcript_ipa_candidates"`

	// IPA is the judge-selected best transcription pair.
	IPA IPAVerdict `json:"ipa"`

	// AnalysisCandidates are the independent error-pattern attempts.
	AnalysisCandidates []Analysis `json:"analysis_candidates"`

	// Consolidated is the judge-merged error analysis.
	Consolidated Analysis `json:"consolidated_analysis"`

	// Summary is the final structured report.
	Summary Summary `json:"summary"`
}
