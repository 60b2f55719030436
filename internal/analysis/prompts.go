package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Sentinel markers the prompts instruct the model to wrap payloads in. The
// same marker opens and closes a payload; Extract handles both sides.
const (
	verdictMarker = "<<VERDICT>>"
	errorsMarker  = "<<ERRORS>>"
	organsMarker  = "<<ORGANS>>"
	summaryMarker = "<<SUMMARY>>"
)

const ipaPromptTemplate = `You are a phonetics expert. Convert the following English text into its International Phonetic Alphabet (IPA) transcription.

Text: %q

Respond with ONLY the IPA transcription wrapped in forward slashes, like /transcription/. Do not add any explanation.`

// ipaPrompt asks for a slash-delimited IPA transcription of text.
func ipaPrompt(text string) string {
	return fmt.Sprintf(ipaPromptTemplate, text)
}

const ipaJudgePromptTemplate = `You are a phonetics expert judging candidate IPA transcriptions.

Reference text: %q
Candidate IPA transcriptions of the reference text:
%s

Spoken transcript: %q
Candidate IPA transcriptions of the spoken transcript:
%s

Pick the most accurate transcription from each list. Reason briefly, then emit your verdict as a JSON object wrapped in %s markers:

%s{"best_ipa_original": "...", "best_ipa_transcript": "...", "confidence": 1-10}%s`

// ipaJudgePrompt embeds both candidate sets and asks the judge to select the
// best pair.
func ipaJudgePrompt(refText, transcript string, refCands, transCands []string) string {
	return fmt.Sprintf(ipaJudgePromptTemplate,
		refText, numberedList(refCands),
		transcript, numberedList(transCands),
		verdictMarker, verdictMarker, verdictMarker)
}

const errorsPromptTemplate = `You are a speech-language pathologist. Compare the expected pronunciation with what the speaker actually produced and list every articulation error.

Expected text: %q
Expected IPA: %s
Produced text: %q
Produced IPA: %s

Classify each error as one of: Substitution, Omission, Distortion, Addition.

Emit the errors as a JSON array wrapped in %s markers. Each element must have the keys "type", "original_sound", "transcribed_sound", and "position" (the affected word or its index). If there are no errors, emit an empty array.

%s[{"type": "Substitution", "original_sound": "s", "transcribed_sound": "th", "position": "2"}]%s`

// errorsPrompt asks for a delimited list of articulation errors between the
// selected IPA pair.
func errorsPrompt(refText, refIPA, transcript, transIPA string) string {
	return fmt.Sprintf(errorsPromptTemplate,
		refText, refIPA, transcript, transIPA,
		errorsMarker, errorsMarker, errorsMarker)
}

const organsPromptTemplate = `You are a speech-language pathologist. Given the following articulation errors, identify which speech organs are affected.

Errors:
%s

Choose only from this list: lips, teeth, tongue, palate, velum, glottis.

Emit the affected organs as a JSON array of strings wrapped in %s markers:

%s["tongue", "teeth"]%s`

// organsPrompt maps an error list to the six-organ vocabulary. The error
// list is embedded as JSON so the judge sees exactly what was detected.
func organsPrompt(errs []ArticulationError) string {
	encoded, err := json.Marshal(errs)
	if err != nil {
		encoded = []byte("[]")
	}
	return fmt.Sprintf(organsPromptTemplate,
		string(encoded), organsMarker, organsMarker, organsMarker)
}

const analysisJudgePromptTemplate = `You are a senior speech-language pathologist reviewing %d independent articulation analyses of the same speech sample.

%s

Select the most accurate analysis and merge in any valid errors the others found that it missed. Reason briefly, then emit your verdict as a JSON object wrapped in %s markers:

%s{"selected_analysis": 0, "confidence": 1-10, "consolidated_analysis": {"errors": [...], "affected_speech_organs": [...]}}%s`

// analysisJudgePrompt embeds all error-pattern candidates and asks the judge
// to select and consolidate.
func analysisJudgePrompt(candidates []Analysis) string {
	var b strings.Builder
	for i, c := range candidates {
		encoded, err := json.Marshal(c)
		if err != nil {
			encoded = []byte("{}")
		}
		fmt.Fprintf(&b, "Analysis %d: %s\n", i, encoded)
	}
	return fmt.Sprintf(analysisJudgePromptTemplate,
		len(candidates), b.String(),
		verdictMarker, verdictMarker, verdictMarker)
}

const summaryPromptTemplate = `You are a speech-language pathologist writing a final assessment report.

Reference text: %q
Spoken transcript: %q
Reference IPA: %s
Transcript IPA: %s
Consolidated error analysis: %s
%s
Write the report as a JSON object wrapped in %s markers with exactly these keys: "total_errors" (integer), "error_breakdown" (object with integer keys "substitution", "omission", "distortion", "addition"), "most_affected_organs" (array of strings), "psychological_insights" (one short sentence; summarize the speaker profile if given, never quote it), "articulation_accuracy" (one of "High", "Moderate", "Low"), "personalized_exercises" (array of short exercise suggestions).

%s{...}%s`

// summaryPrompt combines everything the pipeline has produced into the final
// report request. profileDigest may be empty.
func summaryPrompt(refText, transcript, refIPA, transIPA string, consolidated Analysis, profileDigest string) string {
	encoded, err := json.Marshal(consolidated)
	if err != nil {
		encoded = []byte("{}")
	}
	profileSection := ""
	if profileDigest != "" {
		profileSection = "Speaker profile (context only, do not quote):\n" + profileDigest + "\n"
	}
	return fmt.Sprintf(summaryPromptTemplate,
		refText, transcript, refIPA, transIPA, string(encoded),
		profileSection, summaryMarker, summaryMarker, summaryMarker)
}

// numberedList renders candidates as "0: value" lines for judge prompts.
func numberedList(items []string) string {
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "%d: %s\n", i, it)
	}
	return b.String()
}
