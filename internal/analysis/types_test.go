package analysis

import (
	"encoding/json"
	"testing"
)

func TestParseErrorKind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want ErrorKind
	}{
		{"Substitution", Substitution},
		{"substitution", Substitution},
		{"SUBSTITUTION ERROR", Substitution},
		{"Omission", Omission},
		{"omissions/deletions", Omission},
		{"Distortion", Distortion},
		{"Addition", Addition},
		{"  addition ", Addition},
		{"something else", Distortion},
	}
	for _, tt := range tests {
		if got := ParseErrorKind(tt.in); got != tt.want {
			t.Errorf("ParseErrorKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestArticulationErrorTolerantDecoding(t *testing.T) {
	t.Parallel()

	// Position as a bare number and a lowercase category, both of which
	// generated output produces regularly.
	raw := `{"type": "substitution", "original_sound": "s", "transcribed_sound": "th", "position": 2}`
	var e ArticulationError
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if e.Kind != Substitution {
		t.Errorf("Kind = %q, want Substitution", e.Kind)
	}
	if e.Position != "2" {
		t.Errorf("Position = %q, want %q", e.Position, "2")
	}
}

func TestFlexIntAcceptsQuotedNumbers(t *testing.T) {
	t.Parallel()

	var v struct {
		Confidence FlexInt `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(`{"confidence": "8"}`), &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v.Confidence != 8 {
		t.Errorf("Confidence = %d, want 8", v.Confidence)
	}
	if err := json.Unmarshal([]byte(`{"confidence": 5}`), &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v.Confidence != 5 {
		t.Errorf("Confidence = %d, want 5", v.Confidence)
	}
}

func TestCountBreakdown(t *testing.T) {
	t.Parallel()
	errs := []ArticulationError{
		{Kind: Substitution},
		{Kind: Substitution},
		{Kind: Omission},
		{Kind: Addition},
	}
	b := CountBreakdown(errs)
	if b.Substitution != 2 || b.Omission != 1 || b.Distortion != 0 || b.Addition != 1 {
		t.Errorf("CountBreakdown = %+v", b)
	}
	if b.Total() != 4 {
		t.Errorf("Total = %d, want 4", b.Total())
	}
}
