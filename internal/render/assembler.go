// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package render assembles fetched book pages into a PDF document. All
// binary PDF structure is delegated to gopdf; this package only places
// content, anchors and links.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/signintech/gopdf"

	"github.com/teticio/kindle2pdf/internal/kindle"
	"github.com/teticio/kindle2pdf/pkg/types"
)

// PageSource is the consuming side of a page stream: Next returns pages in
// order and kindle.ErrEndOfBook after the last one.
type PageSource interface {
	Next() (*kindle.Page, error)
}

// Assemble writes one PDF page per fetched page to outPath, preserving
// source order and the configured page dimensions. Position anchors and
// internal links are carried over from the book layout. The document is
// written to a temp file and renamed into place so an interrupted run never
// leaves a truncated PDF. Returns the number of pages written.
func Assemble(src PageSource, title string, endPosition int, outPath string, cfg types.RenderConfig, w io.Writer) (int, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: gopdf.Rect{W: cfg.PageWidth, H: cfg.PageHeight}})
	pdf.SetInfo(gopdf.PdfInfo{Title: title, Producer: "kindle2pdf"})

	count := 0
	nextAnchor := 0
	lastEnd := -1
	for {
		page, err := src.Next()
		if errors.Is(err, kindle.ErrEndOfBook) {
			break
		}
		if err != nil {
			if errors.Is(err, kindle.ErrPageOrder) {
				return count, &RenderError{Page: count, Reason: "backend returned pages out of order", Err: err}
			}
			return count, err
		}

		if page.EndPosition <= lastEnd {
			return count, &RenderError{Page: page.Index, Reason: "duplicate or regressing page position"}
		}
		lastEnd = page.EndPosition

		pdf.AddPage()
		if err := drawPage(pdf, page, endPosition, cfg, &nextAnchor); err != nil {
			return count, err
		}
		count++

		fmt.Fprintf(w, "rendered page %d (position %d of %d)\n", page.Index+1, page.EndPosition, endPosition)
	}

	if count == 0 {
		return 0, &RenderError{Page: 0, Reason: "no pages to assemble"}
	}

	if err := writeAtomic(pdf, outPath); err != nil {
		return count, err
	}
	return count, nil
}

// drawPage places one page's children onto the current PDF page and
// registers its position anchors. Glyph runs are collected across the page
// and rasterized as a single overlay, so each output page embeds one raster
// no matter how many runs it carries.
func drawPage(pdf *gopdf.GoPdf, page *kindle.Page, endPosition int, cfg types.RenderConfig, nextAnchor *int) error {
	scale := 72.0 / float64(cfg.DPI)

	var runs []string
	for _, child := range page.Children {
		if len(child.Transform) < 6 {
			return &RenderError{Page: page.Index, Reason: "malformed child transform"}
		}

		// Anchor every position up to the child start, so internal links
		// resolve even for positions that fall between children.
		if child.StartPositionID != nil {
			for pos := *nextAnchor; pos <= *child.StartPositionID; pos++ {
				pdf.SetAnchor(anchorName(pos))
			}
			if *child.StartPositionID+1 > *nextAnchor {
				*nextAnchor = *child.StartPositionID + 1
			}
		}

		t := make([]float64, 6)
		for i, v := range child.Transform {
			t[i] = v * scale
		}
		width := child.Rect.Right * t[0]
		height := child.Rect.Bottom * t[3]
		x := t[4]
		y := t[5]

		switch child.Type {
		case "run":
			frag, err := runFragment(child, page.Fonts, t)
			if err != nil {
				return &RenderError{Page: page.Index, Reason: "building glyph run", Err: err}
			}
			runs = append(runs, frag)

		case "image":
			raw, ok := page.Images[child.ImageReference]
			if !ok {
				return &RenderError{Page: page.Index, Reason: fmt.Sprintf("missing image %q", child.ImageReference)}
			}
			if _, _, err := image.DecodeConfig(bytes.NewReader(raw)); err != nil {
				return &RenderError{Page: page.Index, Reason: fmt.Sprintf("undecodable image %q", child.ImageReference), Err: err}
			}
			holder, err := gopdf.ImageHolderByBytes(raw)
			if err != nil {
				return &RenderError{Page: page.Index, Reason: fmt.Sprintf("loading image %q", child.ImageReference), Err: err}
			}
			if err := pdf.ImageByHolder(holder, x, y, &gopdf.Rect{W: width, H: height}); err != nil {
				return &RenderError{Page: page.Index, Reason: fmt.Sprintf("placing image %q", child.ImageReference), Err: err}
			}
		}

		if child.Link != nil && child.Link.LinkPositionID < endPosition {
			pdf.AddInternalLink(anchorName(child.Link.LinkPositionID), x, y, width, height)
		}
	}

	if len(runs) > 0 {
		overlay, err := rasterizeSVG(pageSVG(runs, cfg.PageWidth, cfg.PageHeight),
			int(cfg.PageWidth*float64(cfg.DPI)/72), int(cfg.PageHeight*float64(cfg.DPI)/72))
		if err != nil {
			return &RenderError{Page: page.Index, Reason: "rasterizing glyph runs", Err: err}
		}
		if err := pdf.ImageFrom(overlay, 0, 0, &gopdf.Rect{W: cfg.PageWidth, H: cfg.PageHeight}); err != nil {
			return &RenderError{Page: page.Index, Reason: "placing glyph runs", Err: err}
		}
	}

	for pos := *nextAnchor; pos <= page.EndPosition; pos++ {
		pdf.SetAnchor(anchorName(pos))
	}
	if page.EndPosition+1 > *nextAnchor {
		*nextAnchor = page.EndPosition + 1
	}
	return nil
}

func anchorName(pos int) string {
	return fmt.Sprintf("pos-%d", pos)
}

// writeAtomic writes the document next to outPath and renames it into place.
func writeAtomic(pdf *gopdf.GoPdf, outPath string) error {
	dir := filepath.Dir(outPath)
	tmp, err := os.CreateTemp(dir, ".kindle2pdf-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := pdf.WriteTo(tmp)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing PDF: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
