package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  John   Smith  ", "John Smith"},
		{"John Smith.", "John Smith"},
		{":  Blood  ", "Blood"},
		{"__EDTA Whole Blood--", "EDTA Whole Blood"},
		{"Haemoglobin (Hb)", "Haemoglobin (Hb)"},
		{"John Smith", "John Smith"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestNormalizeFragmentFoldsFullWidth(t *testing.T) {
	assert.Equal(t, "14.8", NormalizeFragment("１４.８"))
}

func TestSplitColumns(t *testing.T) {
	assert.Equal(t,
		[]string{"Haemoglobin (Hb)", "14.8", "g/dL", "13.0 - 17.0"},
		SplitColumns("Haemoglobin (Hb)       14.8       g/dL      13.0 - 17.0"))
	assert.Equal(t, []string{"a", "b c", "d"}, SplitColumns("  a\tb c  d  "))
	assert.Empty(t, SplitColumns("    "))
}

func TestLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b", ""}, Lines("a\r\nb\n"))
}
