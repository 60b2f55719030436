package analysis

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Payload is the outcome of extracting a typed structure from raw generated
// text. Extraction never fails hard: when parsing is impossible, Value holds
// a caller-supplied default and Fallback is true. Callers always receive a
// usable value.
type Payload[T any] struct {
	// Value is the parsed payload, or the default when Fallback is true.
	Value T

	// Fallback reports whether Value is the default rather than parsed.
	Fallback bool

	// Reason describes why the fallback was taken. Empty when Fallback is
	// false.
	Reason string
}

// Extract returns the substring wrapped by the open and close markers. The
// markers may be identical (a sentinel used on both sides). When the close
// marker is missing the text was likely truncated mid-generation, so
// everything after the open marker is returned. When no open marker is
// present the whole trimmed text is returned; some backends emit the bare
// payload without repeating the requested markers.
func Extract(text, open, close string) string {
	start := strings.Index(text, open)
	if start < 0 {
		return strings.TrimSpace(text)
	}
	rest := text[start+len(open):]
	if end := strings.Index(rest, close); end >= 0 {
		return strings.TrimSpace(rest[:end])
	}
	return strings.TrimSpace(rest)
}

// DecodeJSON parses payload into T, tolerating the malformations generated
// output commonly exhibits. The attempts, in order:
//
//  1. Parse the payload as-is.
//  2. Append closer and parse again. Generation is frequently cut off at the
//     final closing brace or bracket, so restoring it is usually enough.
//  3. Run the payload through jsonrepair (unquoted keys, trailing commas,
//     single quotes) and parse the repaired text.
//
// When every attempt fails the returned Payload carries def with Fallback
// set; a parse failure is never surfaced as an error.
func DecodeJSON[T any](payload, closer string, def T) Payload[T] {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Payload[T]{Value: def, Fallback: true, Reason: "empty payload"}
	}

	var v T
	if err := json.Unmarshal([]byte(payload), &v); err == nil {
		return Payload[T]{Value: v}
	}

	if closer != "" && !strings.HasSuffix(payload, closer) {
		var w T
		if err := json.Unmarshal([]byte(payload+closer), &w); err == nil {
			return Payload[T]{Value: w}
		}
	}

	repaired, err := jsonrepair.JSONRepair(payload)
	if err == nil {
		var r T
		if err := json.Unmarshal([]byte(repaired), &r); err == nil {
			return Payload[T]{Value: r}
		}
	}

	return Payload[T]{Value: def, Fallback: true, Reason: "unparseable payload"}
}

// ExtractJSON combines Extract and DecodeJSON: it pulls the marker-wrapped
// payload out of text and decodes it, falling back to def.
func ExtractJSON[T any](text, open, close, closer string, def T) Payload[T] {
	return DecodeJSON(Extract(text, open, close), closer, def)
}
