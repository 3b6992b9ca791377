package memory

import "strings"

// similarityThreshold is the Jaccard score above which a recalled memory is
// considered to restate the response and is suppressed. Token-set Jaccard
// is a known-coarse heuristic, kept for compatibility with established
// behavior.
const similarityThreshold = 0.7

// jaccard computes token-set similarity between two texts in [0,1].
func jaccard(a, b string) float64 {
	sa := tokenSet(a)
	sb := tokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	inter := 0
	for tok := range sa {
		if sb[tok] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,!?;:\"'()[]")
		if tok != "" {
			set[tok] = true
		}
	}
	return set
}
