package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"14.8", 14.8, true},
		{" 190 ", 190, true},
		{"-2.5", -2.5, true},
		{".5", 0.5, true},
		{"1,200", 0, false},
		{"14,8", 0, false},
		{"1e3", 0, false},
		{"Inf", 0, false},
		{"H 190", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestParseReferenceRange_Numeric(t *testing.T) {
	rr := ParseReferenceRange("13.0 - 17.0")
	require.NotNil(t, rr.Min)
	require.NotNil(t, rr.Max)
	assert.InDelta(t, 13.0, *rr.Min, 1e-9)
	assert.InDelta(t, 17.0, *rr.Max, 1e-9)
	assert.Equal(t, "13.0 - 17.0", rr.RawText)

	rr = ParseReferenceRange("70-140")
	require.NotNil(t, rr.Min)
	assert.InDelta(t, 70.0, *rr.Min, 1e-9)
	assert.InDelta(t, 140.0, *rr.Max, 1e-9)
}

func TestParseReferenceRange_Descriptive(t *testing.T) {
	for _, in := range []string{"< 10", "> 40", "Negative", "", "Up to 5", "17 - 13"} {
		t.Run(in, func(t *testing.T) {
			rr := ParseReferenceRange(in)
			assert.Nil(t, rr.Min)
			assert.Nil(t, rr.Max)
			assert.Equal(t, in, rr.RawText)
		})
	}
}

func TestLooksLikeRange(t *testing.T) {
	assert.True(t, looksLikeRange("1.0 - 3.0"))
	assert.True(t, looksLikeRange("< 200"))
	assert.True(t, looksLikeRange("≤ 5"))
	assert.False(t, looksLikeRange("mg/dL"))
	assert.False(t, looksLikeRange(""))
}
