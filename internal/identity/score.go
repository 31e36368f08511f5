package identity

import (
	"strings"

	"github.com/agext/levenshtein"
)

// Threshold is the confidence at or above which two names are the same patient.
const Threshold = 0.85

// Score returns a confidence in [0, 1] that a and b name the same person.
// It is symmetric.
//
//	1.00  identical after Normalize
//	0.95  same CoreName
//	0.90  same words in a different order
//	else  edit-distance similarity of the normalized forms
func Score(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1.0
	}

	if ca := CoreName(a); ca != "" && ca == CoreName(b) {
		return 0.95
	}

	if sameWords(na, nb) {
		return 0.90
	}

	return clamp(levenshtein.Similarity(na, nb, nil))
}

func sameWords(a, b string) bool {
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 || len(wa) != len(wb) {
		return false
	}
	for w := range wa {
		if !wb[w] {
			return false
		}
	}
	return true
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
