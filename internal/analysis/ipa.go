package analysis

import "strings"

// ExtractIPA pulls a slash-delimited phonetic transcription out of raw
// generated text. The preferred form is the span between the first and last
// slash; when only one slash is present the text was truncated, so the last
// complete slash-separated segment is taken instead. Returns ok=false when
// no slash appears at all, which marks the attempt as unparseable.
//
// The returned transcription keeps its surrounding slashes, matching the
// conventional IPA notation /.../.
func ExtractIPA(text string) (ipa string, ok bool) {
	first := strings.Index(text, "/")
	if first < 0 {
		return "", false
	}
	last := strings.LastIndex(text, "/")
	if last > first {
		inner := strings.TrimSpace(text[first+1 : last])
		if inner == "" {
			return "", false
		}
		return "/" + inner + "/", true
	}

	// Single slash: generation was cut off before the closing delimiter.
	// Take whatever follows it as the best available segment.
	inner := strings.TrimSpace(text[first+1:])
	inner = strings.TrimRight(inner, "/")
	if inner == "" {
		return "", false
	}
	return "/" + inner + "/", true
}
