// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teticio/kindle2pdf/internal/kindle"
)

func testFont() map[string]kindle.Font {
	return map[string]kindle.Font{
		"f0": {
			FontKey:    "f0",
			UnitsPerEm: 1000,
			Glyphs: map[string]kindle.Glyph{
				"1": {Path: "M0 0L500 0L500 500L0 500Z"},
				"2": {Path: "M0 0L250 500L500 0Zm10 10L20 20"},
			},
		},
	}
}

func glyphRun(glyphs []int, xs []float64) kindle.Child {
	return kindle.Child{
		Type:      "run",
		FontKey:   "f0",
		FontSize:  12,
		Glyphs:    glyphs,
		XPosition: xs,
		TextColor: "#000000",
	}
}

func TestRunFragment(t *testing.T) {
	frag, err := runFragment(glyphRun([]int{1, 2}, []float64{0, 10}), testFont(), []float64{1, 0, 0, 1, 72, 72})
	require.NoError(t, err)

	assert.Contains(t, frag, `matrix(1, 0, 0, 1, 72, 72)`)
	assert.Contains(t, frag, `translate(0, 0) scale(0.012)`)
	assert.Contains(t, frag, `translate(10, 0) scale(0.012)`)
	// Relative move commands split subpaths incorrectly and are stripped.
	assert.NotContains(t, frag, "m10 10")
}

func TestRunFragmentSkipsMissingGlyphs(t *testing.T) {
	frag, err := runFragment(glyphRun([]int{7, 1}, []float64{0, 10}), testFont(), []float64{1, 0, 0, 1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(frag, "<path"))
}

func TestRunFragmentErrors(t *testing.T) {
	fonts := testFont()
	zeroEm := map[string]kindle.Font{"f0": {FontKey: "f0"}}
	identity := []float64{1, 0, 0, 1, 0, 0}

	tests := []struct {
		name  string
		child kindle.Child
		fonts map[string]kindle.Font
	}{
		{"unknown font", kindle.Child{Type: "run", FontKey: "missing"}, fonts},
		{"zero unitsPerEm", glyphRun([]int{1}, []float64{0}), zeroEm},
		{"missing x position", glyphRun([]int{1, 2}, []float64{0}), fonts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runFragment(tt.child, tt.fonts, identity)
			assert.Error(t, err)
		})
	}
}

func TestPageSVGWrapsFragmentsIntoOneDocument(t *testing.T) {
	fonts := testFont()
	var frags []string
	for i := 0; i < 3; i++ {
		frag, err := runFragment(glyphRun([]int{1}, []float64{0}), fonts, []float64{1, 0, 0, 1, float64(i) * 10, 72})
		require.NoError(t, err)
		frags = append(frags, frag)
	}

	svg := pageSVG(frags, 595.28, 841.89)
	assert.Equal(t, 1, strings.Count(svg, "<svg"))
	assert.Equal(t, 3, strings.Count(svg, "matrix("))
	assert.Contains(t, svg, `viewBox="0 0 595.28 841.89"`)

	// The combined document still rasterizes.
	img, err := rasterizeSVG(svg, 100, 141)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
}
