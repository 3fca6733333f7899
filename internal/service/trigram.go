package service

import "strings"

// trigramSet extracts the set of three-character shingles from s, lowercased,
// padded with two leading and one trailing space per word so that word
// boundaries contribute to the signature (mirrors pg_trgm extraction, which
// the equipment search index relies on).
func trigramSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(s)) {
		padded := "  " + word + " "
		for i := 0; i+3 <= len(padded); i++ {
			set[padded[i:i+3]] = struct{}{}
		}
	}
	return set
}

// TrigramSimilarity returns the Jaccard similarity of the trigram sets of a
// and b, in [0, 1].
func TrigramSimilarity(a, b string) float64 {
	sa := trigramSet(a)
	sb := trigramSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}

	shared := 0
	for t := range sa {
		if _, ok := sb[t]; ok {
			shared++
		}
	}

	union := len(sa) + len(sb) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// TrigramDistance is 1 - similarity; lower means more alike.
func TrigramDistance(a, b string) float64 {
	return 1 - TrigramSimilarity(a, b)
}
