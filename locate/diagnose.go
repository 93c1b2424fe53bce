package locate

import (
	"strings"

	"github.com/xrash/smetrics"
)

// NoMatchHint finds the haystack line most similar to needle's first line,
// for surfacing in a NoMatch error's diagnostic message — not part of the
// matching algorithm itself. Grounded on the HandleNoMatch/
// FindMostSimilarLine helper in the internal-tools-edit.go reference
// implementation, which uses a Jaro-Winkler ratio for the same purpose.
func NoMatchHint(haystack, needle string) (line string, ratio float64) {
	needleFirst := firstLine(needle)
	if needleFirst == "" {
		return "", 0
	}

	best := ""
	bestRatio := 0.0
	for _, l := range strings.Split(haystack, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		r := smetrics.JaroWinkler(needleFirst, l, 0.7, 4)
		if r > bestRatio {
			bestRatio = r
			best = l
		}
	}
	return best, bestRatio
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
