// Package profile models the optional speaker questionnaire that accompanies
// an assessment request. The profile is an opaque side-channel: it is
// summarized into the final report's insight field but never required for
// pipeline correctness and never echoed verbatim.
package profile

import (
	"fmt"
	"sort"
	"strings"
)

// Questionnaire field names. The set is fixed; unknown keys are carried
// through the digest but have no special handling.
const (
	FieldFullName           = "full_name"
	FieldGender             = "gender"
	FieldNativeLanguage     = "native_language"
	FieldPriorTherapy       = "prior_speech_therapy"
	FieldRepeatFrequency    = "self_assess_freq"
	FieldDifficultySounds   = "difficulty_pronounce"
	FieldDifficultyType     = "difficulty_type"
	FieldSpeechImpact       = "speech_impact"
	FieldAnxiousSpeaking    = "anxious_speaking"
	FieldAvoidsInteraction  = "avoid_difficulties"
	FieldFeelsMisunderstood = "misunderstood"
	FieldStruggleContexts   = "context_struggle"
	FieldWorseWhenStressed  = "stressed_tired"
	FieldExercisePreference = "exercise_type"
	FieldDailyTime          = "time_dedicate"
	FieldComments           = "final_comments"
)

// neutralInsight is the report insight used when no profile was supplied.
const neutralInsight = "No significant psychological impact noted"

// Profile maps questionnaire field names to free-text or enum answers. A nil
// Profile is valid and means no questionnaire was filled in.
type Profile map[string]string

// Digest renders the profile as stable "key: value" lines for embedding in a
// prompt. Identifying fields (name) are excluded; the model only needs the
// speech-relevant answers. Returns "" for a nil or empty profile.
func (p Profile) Digest() string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		if k == FieldFullName {
			continue
		}
		if strings.TrimSpace(p[k]) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, p[k])
	}
	return b.String()
}

// Insight returns the fallback insight string for a report whose generated
// summary could not be parsed. Absence of a profile degrades to a neutral
// statement; otherwise the self-reported impact level anchors the insight.
func (p Profile) Insight() string {
	if len(p) == 0 {
		return neutralInsight
	}
	impact := p[FieldSpeechImpact]
	if strings.TrimSpace(impact) == "" {
		impact = "Moderate"
	}
	return "Based on profile: " + impact
}
