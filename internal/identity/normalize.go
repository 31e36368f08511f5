// Package identity decides whether a newly observed patient name refers to a
// known patient.
package identity

import (
	"strings"
	"unicode"
)

// honorifics are dropped when they appear as whole words.
var honorifics = map[string]bool{
	"dr": true, "dr.": true,
	"mr": true, "mr.": true,
	"mrs": true, "mrs.": true,
	"ms": true, "ms.": true,
	"prof": true, "prof.": true,
}

// Normalize canonicalizes a person name for comparison: lowercase, single
// spaces, no honorifics, only letters, digits and spaces. It is idempotent.
func Normalize(raw string) string {
	s := dropHonorifics(strings.Fields(strings.ToLower(raw)))
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s)
	// Punctuation removal can expose a new honorific ("d.r" -> "dr").
	return dropHonorifics(strings.Fields(s))
}

func dropHonorifics(words []string) string {
	kept := words[:0]
	for _, w := range words {
		if !honorifics[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// CoreName reduces a name to "first last". A single comma in the written
// form is read as "Last, First".
func CoreName(raw string) string {
	if parts := strings.Split(raw, ","); len(parts) == 2 {
		last, first := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if last != "" && first != "" {
			raw = first + " " + last
		}
	}

	words := strings.Fields(Normalize(raw))
	switch len(words) {
	case 0:
		return ""
	case 1:
		return words[0]
	default:
		return words[0] + " " + words[len(words)-1]
	}
}
