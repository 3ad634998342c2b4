// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across pipeline stages.
package httputil

import (
	"io"
	"net/http"

	"github.com/teticio/kindle2pdf/pkg/types"
)

// NewClient builds the HTTP client used for one invocation. Every network
// call in the pipeline is sequential and terminal on failure, so the client
// carries only a timeout; transport may be nil for the default transport
// (the capture layer substitutes a recording RoundTripper here).
func NewClient(cfg types.HTTPConfig, transport http.RoundTripper) *http.Client {
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
}

// DrainClose discards and closes a response body so the underlying
// connection can be reused.
func DrainClose(body io.ReadCloser) {
	io.Copy(io.Discard, body)
	body.Close()
}
