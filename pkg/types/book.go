// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Book holds the index record for one rendered book.
type Book struct {
	// ASIN is the Amazon Standard Identification Number of the book.
	ASIN string `json:"asin" yaml:"asin"`

	// Title is the book title as reported by the reading session.
	Title string `json:"title" yaml:"title"`

	// Pages is the number of pages in the assembled PDF.
	Pages int `json:"pages" yaml:"pages"`

	// PDFPath is the local filesystem path of the assembled PDF.
	PDFPath string `json:"pdf_path" yaml:"pdf_path"`

	// RenderedAt is when the PDF was assembled.
	RenderedAt time.Time `json:"rendered_at" yaml:"rendered_at"`

	// Uploaded reports whether the PDF has been uploaded to reMarkable.
	Uploaded bool `json:"uploaded" yaml:"uploaded"`
}
