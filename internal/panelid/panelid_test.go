package panelid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEquivalenceClass(t *testing.T) {
	inputs := []string{"21", "R21", "Panel 21", "p-021", "r021", " pnl 21 ", "#21", "P#21", "PN-21", "R-21"}
	for _, input := range inputs {
		got, ok := Normalize(input)
		require.True(t, ok, "input %q", input)
		assert.Equal(t, "P021", got, "input %q", input)
	}
}

func TestNormalizeSuffixAndPadding(t *testing.T) {
	cases := map[string]string{
		"P-021A":     "P021A",
		"R21AB":      "P021AB",
		"panel 7":    "P007",
		"P0007":      "P007",
		"1234":       "P1234",
		"R000":       "P000",
		"roll 12-b":  "P012",
		"Seam P14E":  "P014E",
		"Seam P14 E": "P014",
		"12abcd":     "P012ABC",
		"P021":       "P021",
		"  p021a  ":  "P021A",
	}
	for input, want := range cases {
		got, ok := Normalize(input)
		require.True(t, ok, "input %q", input)
		assert.Equal(t, want, got, "input %q", input)
	}
}

func TestNormalizeRejectsLabelsWithoutDigits(t *testing.T) {
	for _, input := range []string{"", "   ", "PANEL", "zzz-not-a-panel", "R", "#"} {
		got, ok := Normalize(input)
		assert.False(t, ok, "input %q", input)
		assert.Empty(t, got)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{"21", "R21", "Panel 21", "p-021", "P-021A", "R21AB", "1234", "roll 12-b", "12abcd", "Seam P14 E"}
	for _, input := range inputs {
		once, ok := Normalize(input)
		require.True(t, ok)
		twice, ok := Normalize(once)
		require.True(t, ok)
		assert.Equal(t, once, twice, "input %q", input)
	}
}

func TestCanonicalAndEqual(t *testing.T) {
	label := "r21"
	got, ok := Canonical(&label)
	require.True(t, ok)
	assert.Equal(t, "P021", got)

	_, ok = Canonical(nil)
	assert.False(t, ok)

	assert.True(t, Equal("Panel 21", "R021"))
	assert.False(t, Equal("21", "22"))
	assert.False(t, Equal("none", "none"))
}
