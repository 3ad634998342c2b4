// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"fmt"
	"image"
	"regexp"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/teticio/kindle2pdf/internal/kindle"
)

// relativeMovePattern matches relative move commands in glyph outline paths.
// The renderer emits them between subpaths and they produce extraneous lines
// when drawn as a single path.
var relativeMovePattern = regexp.MustCompile(`m[\d\.\,\-\s]+`)

// runFragment reconstructs one glyph run as an SVG group in page point
// space. Each glyph outline is translated to its x position and scaled from
// font units to the run's font size; the run transform places the group.
func runFragment(child kindle.Child, fonts map[string]kindle.Font, transform []float64) (string, error) {
	font, ok := fonts[child.FontKey]
	if !ok {
		return "", fmt.Errorf("unknown font key %q", child.FontKey)
	}
	if font.UnitsPerEm == 0 {
		return "", fmt.Errorf("font %q has zero unitsPerEm", child.FontKey)
	}

	var glyphs strings.Builder
	for i, glyph := range child.Glyphs {
		outline, ok := font.Glyphs[fmt.Sprintf("%d", glyph)]
		if !ok || outline.Path == "" {
			continue
		}
		if i >= len(child.XPosition) {
			return "", fmt.Errorf("glyph %d has no x position", i)
		}
		path := relativeMovePattern.ReplaceAllString(outline.Path, "")
		fmt.Fprintf(&glyphs,
			`<g transform="translate(%g, 0) scale(%g)"><path d="%s" fill="%s" stroke="%s"/></g>`,
			child.XPosition[i], child.FontSize/font.UnitsPerEm, path, child.TextColor, child.TextColor)
		glyphs.WriteString("\n")
	}

	return fmt.Sprintf(`<g transform="matrix(%g, %g, %g, %g, %g, %g)">
%s</g>`,
		transform[0], transform[1], transform[2], transform[3], transform[4], transform[5],
		glyphs.String()), nil
}

// pageSVG wraps all of a page's run fragments into one page-sized SVG
// document, so the whole page rasterizes once.
func pageSVG(fragments []string, pageW, pageH float64) string {
	return fmt.Sprintf(`<?xml version="1.0" standalone="no"?>
<svg version="1.1" xmlns="http://www.w3.org/2000/svg" width="%g" height="%g" viewBox="0 0 %g %g">
%s
</svg>`,
		pageW, pageH, pageW, pageH, strings.Join(fragments, "\n"))
}

// rasterizeSVG renders an SVG document onto a transparent raster at the
// given pixel dimensions.
func rasterizeSVG(svg string, widthPx, heightPx int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(strings.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("parsing SVG: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, widthPx, heightPx))
	icon.SetTarget(0, 0, float64(widthPx), float64(heightPx))

	scanner := rasterx.NewScannerGV(widthPx, heightPx, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(widthPx, heightPx, scanner), 1.0)
	return img, nil
}
