// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import "fmt"

// RenderError indicates a page whose raw content could not be turned into
// PDF output: an undecodable image, a malformed glyph run, or pages arriving
// out of order.
type RenderError struct {
	Page   int
	Reason string
	Err    error
}

func (e *RenderError) Error() string {
	msg := fmt.Sprintf("cannot render page %d: %s", e.Page, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RenderError) Unwrap() error { return e.Err }
