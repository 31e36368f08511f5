// Package extract turns decoded lab-report pages into labeled fields and
// test results.
package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	spaceRunRe  = regexp.MustCompile(`\s+`)
	columnGapRe = regexp.MustCompile(`\t|\s{2,}`)
)

// edgePunct is trimmed from both ends of a cleaned fragment.
const edgePunct = ".,;:-_ "

// NormalizeFragment folds compatibility characters (non-breaking spaces,
// full-width digits, ligatures) into their canonical forms.
func NormalizeFragment(s string) string {
	return norm.NFKC.String(s)
}

// CollapseSpace replaces every whitespace run with a single space and trims.
func CollapseSpace(s string) string {
	return strings.TrimSpace(spaceRunRe.ReplaceAllString(s, " "))
}

// Clean prepares a raw field fragment for output: compatibility folding,
// whitespace collapse, then edge punctuation removal.
func Clean(s string) string {
	s = CollapseSpace(NormalizeFragment(s))
	return strings.Trim(s, edgePunct)
}

// SplitColumns splits a layout-preserved text line on tabs and runs of two
// or more whitespace characters. Empty columns are dropped.
func SplitColumns(line string) []string {
	parts := columnGapRe.Split(strings.TrimSpace(NormalizeFragment(line)), -1)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Lines splits page text into lines, accepting \n and \r\n endings.
func Lines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}
