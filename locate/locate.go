// Package locate implements the layered locator (C4): given a haystack, a
// needle, and a minimum score, it finds the single byte range in haystack
// that the needle refers to, falling back through four tiers of increasing
// tolerance before giving up.
package locate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/junovhs/applydiff/aerr"
	"github.com/junovhs/applydiff/normalize"
)

// AmbiguityGap is the minimum separation between the best and second-best
// fuzzy scores required to accept the best one. Two nearly-tied candidates
// mean the patch under-specifies its target.
const AmbiguityGap = 0.02

// MinScore and MaxScore bound the caller-supplied min_score parameter.
const (
	MinScore = 0.1
	MaxScore = 1.0
)

// Result is a located byte range plus the confidence score that produced it.
type Result struct {
	StartByte int
	EndByte   int
	Score     float64
}

// Find runs the four-tier fallback described in the package doc and returns
// the first unambiguous hit. log may be nil. Any attrs attached to ctx via
// skribe.ContextWithAttr (rid, op, ...) ride along on every record Find emits.
func Find(ctx context.Context, haystack, needle string, minScore float64, log *slog.Logger) (Result, error) {
	if log == nil {
		log = slog.Default()
	}
	if minScore < MinScore || minScore > MaxScore {
		minScore = clamp(minScore)
	}

	if needle == "" {
		log.InfoContext(ctx, "append/create mode", "subsystem", "locate")
		return Result{StartByte: len(haystack), EndByte: len(haystack), Score: 1.0}, nil
	}

	if r, err, ok := tryExact(ctx, haystack, needle, log); ok {
		return r, err
	}

	ranges := normalize.LineRanges(haystack)
	if len(ranges) == 0 {
		ranges = []normalize.LineRange{{Start: 0, End: len(haystack)}}
	}

	if r, ok := tryWhitespaceNormalized(ctx, haystack, needle, ranges, log); ok {
		return r, nil
	}
	if r, ok := tryIndentNormalized(ctx, haystack, needle, ranges, log); ok {
		return r, nil
	}
	return tryFuzzy(ctx, haystack, needle, ranges, minScore, log)
}

func clamp(f float64) float64 {
	switch {
	case f < MinScore:
		return MinScore
	case f > MaxScore:
		return MaxScore
	default:
		return f
	}
}

// tryExact is Tier 1. ok is false when no decision was reached (zero
// matches — fall through to the normalized tiers).
func tryExact(ctx context.Context, haystack, needle string, log *slog.Logger) (Result, error, bool) {
	first := strings.Index(haystack, needle)
	if first < 0 {
		return Result{}, nil, false
	}
	if strings.Count(haystack, needle) > 1 {
		return Result{}, aerr.New(aerr.Apply, aerr.CodeAmbiguousMatch,
			"multiple exact matches; the patch was authored against stale context"), true
	}
	log.InfoContext(ctx, "unique exact match", "subsystem", "locate", "start", first)
	return Result{StartByte: first, EndByte: first + len(needle), Score: 1.0}, nil, true
}

func tryWhitespaceNormalized(ctx context.Context, haystack, needle string, ranges []normalize.LineRange, log *slog.Logger) (Result, bool) {
	needleNorm := normalize.HorizontalWhitespace(normalize.Newlines(needle))
	n := len(normalize.LineRanges(normalize.Newlines(needle)))
	if n == 0 {
		n = 1
	}
	return windowSearch(ctx, haystack, ranges, n, func(slice string) bool {
		return normalize.HorizontalWhitespace(normalize.Newlines(slice)) == needleNorm
	}, "ws_normalized_match", log)
}

func tryIndentNormalized(ctx context.Context, haystack, needle string, ranges []normalize.LineRange, log *slog.Logger) (Result, bool) {
	needleNorm := normalize.RelativeIndent(normalize.HorizontalWhitespace(normalize.Newlines(needle)))
	n := len(normalize.LineRanges(normalize.Newlines(needle)))
	if n == 0 {
		n = 1
	}
	return windowSearch(ctx, haystack, ranges, n, func(slice string) bool {
		return normalize.RelativeIndent(normalize.HorizontalWhitespace(normalize.Newlines(slice))) == needleNorm
	}, "indent_normalized_match", log)
}

// windowSearch enumerates every contiguous window of line ranges whose size
// is in [max(n-1,0), n+1] (skipping 0), testing each with pred both as-is
// and without its trailing line ending (so a needle authored without a final
// newline still matches a window that has one), and returns the unique match
// if exactly one window qualifies.
func windowSearch(ctx context.Context, haystack string, ranges []normalize.LineRange, n int, pred func(string) bool, action string, log *slog.Logger) (Result, bool) {
	lo := n - 1
	if lo < 0 {
		lo = 0
	}
	hi := n + 1

	var found []Result
	for w := lo; w <= hi; w++ {
		if w == 0 || w > len(ranges) {
			continue
		}
		for i := 0; i+w <= len(ranges); i++ {
			start := ranges[i].Start
			end := ranges[i+w-1].End
			slice := haystack[start:end]
			if pred(slice) || pred(strings.TrimSuffix(strings.TrimSuffix(slice, "\n"), "\r")) {
				found = append(found, Result{StartByte: start, EndByte: end, Score: 1.0})
			}
		}
	}
	if len(found) == 1 {
		log.InfoContext(ctx, action, "subsystem", "locate", "start", found[0].StartByte, "end", found[0].EndByte)
		return found[0], true
	}
	return Result{}, false
}

// noMatchErr builds a NoMatch error, attaching the closest line in haystack
// as a diagnostic hint when one clears a reasonable similarity bar. The hint
// never changes the Ok/Err outcome, only the error's message.
func noMatchErr(haystack, needle string) error {
	line, ratio := NoMatchHint(haystack, needle)
	if line == "" || ratio < 0.5 {
		return aerr.New(aerr.Apply, aerr.CodeNoMatch, "no suitable match found for the block")
	}
	return aerr.Newf(aerr.Apply, aerr.CodeNoMatch,
		"no suitable match found for the block; closest line (%.0f%% similar): %q", ratio*100, line)
}

// tryFuzzy is Tier 4: normalized Damerau-Levenshtein scoring over the same
// window enumeration, with the ambiguity-gap guard.
func tryFuzzy(ctx context.Context, haystack, needle string, ranges []normalize.LineRange, minScore float64, log *slog.Logger) (Result, error) {
	needleNorm := normalize.Newlines(needle)
	n := len(normalize.LineRanges(needleNorm))
	if n == 0 {
		n = 1
	}
	lo := n - 1
	if lo < 0 {
		lo = 0
	}
	hi := n + 1

	var best Result
	haveBest := false
	second := -1.0

	for w := lo; w <= hi; w++ {
		if w == 0 || w > len(ranges) {
			continue
		}
		for i := 0; i+w <= len(ranges); i++ {
			start := ranges[i].Start
			end := ranges[i+w-1].End
			slice := normalize.Newlines(haystack[start:end])
			score := normalizedDamerauLevenshtein(slice, needleNorm)

			if !haveBest || score > best.Score {
				if haveBest {
					second = best.Score
				}
				best = Result{StartByte: start, EndByte: end, Score: score}
				haveBest = true
			} else if score > second {
				second = score
			}
		}
	}

	if !haveBest {
		log.ErrorContext(ctx, "no suitable match found", "subsystem", "locate")
		return Result{}, noMatchErr(haystack, needle)
	}

	gap := best.Score - second
	switch {
	case best.Score >= minScore && gap >= AmbiguityGap:
		log.InfoContext(ctx, "fuzzy match success", "subsystem", "locate", "score", best.Score)
		return best, nil
	case best.Score >= minScore && gap < AmbiguityGap && second >= minScore:
		log.ErrorContext(ctx, "ambiguous match", "subsystem", "locate", "best", best.Score, "second", second)
		return Result{}, aerr.New(aerr.Apply, aerr.CodeAmbiguousMatch,
			"multiple locations matched with similar confidence")
	default:
		log.ErrorContext(ctx, "no suitable match found", "subsystem", "locate", "best", best.Score)
		return Result{}, noMatchErr(haystack, needle)
	}
}
