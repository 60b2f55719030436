package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCollectCandidatesDropsUnparseableAfterRetries(t *testing.T) {
	t.Parallel()

	// Attempts 0 and 2 never produce a slash; attempt 1 succeeds first try.
	var calls []int
	generate := func(_ context.Context, attempt int) (string, error) {
		calls = append(calls, attempt)
		if attempt == 1 {
			return "/ok/", nil
		}
		return "no transcription here", nil
	}

	var dropped []int
	candidates, err := collectCandidates(context.Background(), 3, 2, generate, ExtractIPA,
		func(attempt int, _ string) { dropped = append(dropped, attempt) })
	if err != nil {
		t.Fatalf("collectCandidates: %v", err)
	}

	if len(candidates) != 1 || candidates[0] != "/ok/" {
		t.Errorf("candidates = %v, want exactly [/ok/]", candidates)
	}
	if len(dropped) != 2 {
		t.Errorf("dropped attempts = %v, want 2 drops", dropped)
	}
	// Failing attempts get 2 tries each, the succeeding one stops after 1.
	if len(calls) != 5 {
		t.Errorf("generation calls = %d, want 5 (2+1+2)", len(calls))
	}
}

func TestCollectCandidatesDropsOnGenerationFailure(t *testing.T) {
	t.Parallel()

	genErr := errors.New("backend exploded")
	generate := func(_ context.Context, attempt int) (string, error) {
		if attempt == 0 {
			return "", genErr
		}
		return "/fine/", nil
	}

	var reasons []string
	candidates, err := collectCandidates(context.Background(), 3, 1, generate, ExtractIPA,
		func(_ int, reason string) { reasons = append(reasons, reason) })
	if err != nil {
		t.Fatalf("collectCandidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Errorf("candidates = %v, want 2", candidates)
	}
	if len(reasons) != 1 || !strings.Contains(reasons[0], "generation failed") {
		t.Errorf("drop reasons = %v", reasons)
	}
}

func TestCollectCandidatesAbortsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	generate := func(ctx context.Context, _ int) (string, error) {
		cancel()
		return "", ctx.Err()
	}

	_, err := collectCandidates(ctx, 3, 2, generate, ExtractIPA, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestJudgeCandidatesFallsBackOnUnparseableVerdict(t *testing.T) {
	t.Parallel()

	fallback := IPAVerdict{BestOriginal: "/a/", BestTranscript: "/b/", Confidence: 5}
	got, err := judgeCandidates(context.Background(),
		func(context.Context) (string, error) {
			return "I pick the second one because it sounds right.", nil
		},
		verdictMarker, verdictMarker, "}", fallback)
	if err != nil {
		t.Fatalf("judgeCandidates: %v", err)
	}
	if !got.Fallback {
		t.Fatal("expected fallback verdict")
	}
	if got.Value != fallback {
		t.Errorf("Value = %+v, want the fallback verdict", got.Value)
	}
}

func TestJudgeCandidatesFallsBackOnCallFailure(t *testing.T) {
	t.Parallel()

	fallback := IPAVerdict{Confidence: 5}
	got, err := judgeCandidates(context.Background(),
		func(context.Context) (string, error) {
			return "", errors.New("resource exhausted")
		},
		verdictMarker, verdictMarker, "}", fallback)
	if err != nil {
		t.Fatalf("judgeCandidates: %v", err)
	}
	if !got.Fallback {
		t.Fatal("expected fallback verdict")
	}
	if !strings.Contains(got.Reason, "judge call failed") {
		t.Errorf("Reason = %q", got.Reason)
	}
}

func TestJudgeCandidatesParsesTruncatedVerdict(t *testing.T) {
	t.Parallel()

	text := `Candidate 0 is closest. <<VERDICT>>{"best_ipa_original": "/a/", "best_ipa_transcript": "/b/", "confidence": 8`
	got, err := judgeCandidates(context.Background(),
		func(context.Context) (string, error) { return text, nil },
		verdictMarker, verdictMarker, "}", IPAVerdict{})
	if err != nil {
		t.Fatalf("judgeCandidates: %v", err)
	}
	if got.Fallback {
		t.Fatalf("unexpected fallback: %s", got.Reason)
	}
	if got.Value.BestOriginal != "/a/" || got.Value.Confidence != 8 {
		t.Errorf("Value = %+v", got.Value)
	}
}

func TestAgreement(t *testing.T) {
	t.Parallel()

	if got := Agreement([]string{"/abc/"}); got != 1.0 {
		t.Errorf("single candidate agreement = %v, want 1.0", got)
	}
	if got := Agreement([]string{"/abc/", "/abc/", "/abc/"}); got != 1.0 {
		t.Errorf("identical candidates agreement = %v, want 1.0", got)
	}
	same := Agreement([]string{"/sæm/", "/sæm/"})
	diff := Agreement([]string{"/sæm/", "/θæm ftʃ ʒlk/"})
	if diff >= same {
		t.Errorf("dissimilar agreement %v not below identical agreement %v", diff, same)
	}
}
