package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/antzucaro/matchr"
)

// quorum is the minimum number of parsed candidates a consolidation stage
// needs before it may proceed.
const quorum = 3

// InsufficientCandidatesError reports that a stage could not gather enough
// parseable candidates to reach its quorum. The run aborts rather than
// continuing on guessed data.
type InsufficientCandidatesError struct {
	// Stage names the pipeline stage that failed.
	Stage string

	// Got is the number of candidates successfully parsed.
	Got int

	// Want is the required quorum.
	Want int
}

// Error implements the error interface.
func (e *InsufficientCandidatesError) Error() string {
	return fmt.Sprintf("analysis: stage %s: %d of %d required candidates", e.Stage, e.Got, e.Want)
}

// generateFunc issues one generation call for a candidate attempt and
// returns the raw text. The attempt index is informational.
type generateFunc func(ctx context.Context, attempt int) (string, error)

// parseFunc extracts a typed candidate from raw text. ok=false marks the
// text as unparseable for this stage.
type parseFunc[T any] func(text string) (T, bool)

// dropFunc is notified when an attempt is abandoned after exhausting its
// tries. Used for logging and metrics.
type dropFunc func(attempt int, reason string)

// collectCandidates runs k independent generation attempts and parses each
// into a candidate. An attempt whose text fails to parse is retried up to
// tries times in total, then dropped; the policy is best effort, not retry
// until k succeed. Generation-call failures likewise drop the attempt,
// except context cancellation, which aborts the whole collection.
//
// The returned set may be shorter than k. Quorum enforcement is the
// caller's responsibility.
func collectCandidates[T any](ctx context.Context, k, tries int, generate generateFunc, parse parseFunc[T], onDrop dropFunc) ([]T, error) {
	if tries < 1 {
		tries = 1
	}
	candidates := make([]T, 0, k)

	for attempt := 0; attempt < k; attempt++ {
		var (
			parsed T
			ok     bool
			reason string
		)
		for try := 0; try < tries && !ok; try++ {
			text, err := generate(ctx, attempt)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, err
				}
				reason = fmt.Sprintf("generation failed: %v", err)
				continue
			}
			if parsed, ok = parse(text); !ok {
				reason = "unparseable output"
			}
		}
		if !ok {
			if onDrop != nil {
				onDrop(attempt, reason)
			}
			continue
		}
		candidates = append(candidates, parsed)
	}

	return candidates, nil
}

// judgeCandidates issues one judge generation call and decodes its verdict.
// A judge whose call fails or whose output cannot be parsed never aborts
// the run: the returned Payload carries the deterministic fallback verdict
// instead. Context cancellation is the one exception and propagates.
func judgeCandidates[T any](ctx context.Context, generate func(context.Context) (string, error), open, close, closer string, fallback T) (Payload[T], error) {
	text, err := generate(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Payload[T]{}, err
		}
		return Payload[T]{Value: fallback, Fallback: true, Reason: fmt.Sprintf("judge call failed: %v", err)}, nil
	}
	return ExtractJSON(text, open, close, closer, fallback), nil
}

// Agreement measures how similar a candidate set is to itself: the mean
// pairwise Jaro-Winkler similarity across all candidates, in [0, 1]. A set
// of one (or zero) candidates trivially agrees with itself. Used as a
// diagnostic signal alongside judge confidence.
func Agreement(candidates []string) float64 {
	if len(candidates) < 2 {
		return 1.0
	}
	var sum float64
	var pairs int
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			sum += matchr.JaroWinkler(candidates[i], candidates[j], false)
			pairs++
		}
	}
	return sum / float64(pairs)
}
