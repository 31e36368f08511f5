package extract

import (
	"regexp"
	"strings"
)

// headingMarkers match anywhere in a line: repeated column headers, patient
// banner labels, the doctor signature block and page furniture.
var headingMarkers = regexp.MustCompile(`(?i)(` +
	`\bTEST\s*NAME\b|\bTEST\s*DESCRIPTION\b|\bPATIENT\s*NAME\b|\bAGE\s*/\s*(?:GENDER|SEX)\b|` +
	`\bCLIENT\s*NAME\b|\bREFERRAL\b|\bREF\.?\s*BY\b|\bSAMPLE\s*(?:TYPE|ID)\b|` +
	`\bSCAN\s*TO\b|\bPRINT(?:ED)?\s*(?:DATE|ON)\b|\bEND\s*OF\s*REPORT\b|` +
	`\bPAGE\s*(?:NO\b|\d+)|\bREG(?:ISTRATION)?\.?\s*NO\b|\bM\.\s?D\b|\bMBBS\b|\bPATHOLOGIST\b|` +
	`\b(?:BILLED|COLLECTED|REPORTED|REGISTERED|RECEIVED)\s*ON\b|\bBIOLOGICAL\s*REF|\*\*\*)`)

// sectionTitles are whole-line panel headings printed above groups of tests.
var sectionTitles = map[string]bool{
	"PACKAGE":                      true,
	"COMPLETE BLOOD COUNT":         true,
	"COMPLETE BLOOD COUNT (CBC)":   true,
	"CBC":                          true,
	"HAEMATOLOGY":                  true,
	"HEMATOLOGY":                   true,
	"BIOCHEMISTRY":                 true,
	"HAEMOGLOBIN":                  true,
	"HEMOGLOBIN":                   true,
	"RBC INDICES":                  true,
	"RED BLOOD CELLS":              true,
	"WHITE BLOOD CELLS":            true,
	"DIFFERENTIAL COUNT":           true,
	"DIFFERENTIAL LEUCOCYTE COUNT": true,
	"ABSOLUTE COUNTS":              true,
	"ABSOLUTE LEUCOCYTE COUNT":     true,
	"PLATELETS":                    true,
	"PLATELET INDICES":             true,
	"LIPID PROFILE":                true,
	"LIVER FUNCTION TEST":          true,
	"KIDNEY FUNCTION TEST":         true,
	"RENAL FUNCTION TEST":          true,
	"THYROID PROFILE":              true,
	"URINE ROUTINE":                true,
	"URINE ROUTINE EXAMINATION":    true,
	"BLOOD SUGAR":                  true,
}

// isHeading reports whether a line or row is a known non-data heading.
// cells are the line's columns; the first column is checked against the
// section titles so "PLATELETS" alone is a heading but "Platelet Count" is not.
func isHeading(cells []string) bool {
	cells = compact(cells)
	if len(cells) == 0 {
		return true
	}
	if len(cells) == 1 && sectionTitles[strings.ToUpper(Clean(cells[0]))] {
		return true
	}
	return headingMarkers.MatchString(strings.Join(cells, "  "))
}
