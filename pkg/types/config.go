// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds the configuration and data structures shared across
// the kindle2pdf and pdf2remarkable pipelines.
package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "kindle2pdf/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// RenderConfig holds settings for the rendering pipeline: how the Kindle
// backend is asked to lay out pages and how the PDF is assembled.
type RenderConfig struct {
	HTTPConfig `yaml:",inline"`

	// FontSize is the font size the backend renders the book with (default 12).
	FontSize int `json:"font_size" yaml:"font_size"`

	// DPI is the raster resolution for page content (default 160).
	DPI int `json:"dpi" yaml:"dpi"`

	// PageWidth and PageHeight are the PDF page dimensions in points
	// (default A4: 595.28 x 841.89).
	PageWidth  float64 `json:"page_width" yaml:"page_width"`
	PageHeight float64 `json:"page_height" yaml:"page_height"`

	// MarginLeft, MarginRight, MarginTop and MarginBottom are the page
	// margins in inches (default 0.5).
	MarginLeft   float64 `json:"margin_left" yaml:"margin_left"`
	MarginRight  float64 `json:"margin_right" yaml:"margin_right"`
	MarginTop    float64 `json:"margin_top" yaml:"margin_top"`
	MarginBottom float64 `json:"margin_bottom" yaml:"margin_bottom"`

	// BatchPages is the number of pages requested from the renderer per
	// round trip (default 6).
	BatchPages int `json:"batch_pages" yaml:"batch_pages"`

	// AlwaysRefresh forces a fresh reading session before every batch.
	// Used with capture record/replay so request sequences are reproducible.
	AlwaysRefresh bool `json:"always_refresh,omitempty" yaml:"always_refresh,omitempty"`
}

// CaptureMode selects how the capture transport behaves.
type CaptureMode string

const (
	// CaptureOff disables the capture transport.
	CaptureOff CaptureMode = "off"

	// CaptureRecord appends every backend response to the capture file.
	CaptureRecord CaptureMode = "record"

	// CaptureReplay serves responses from the capture file instead of the network.
	CaptureReplay CaptureMode = "replay"
)

// CaptureConfig holds settings for the response capture layer
// (--save-mock / --load-mock).
type CaptureConfig struct {
	// Mode selects off, record or replay.
	Mode CaptureMode `json:"mode" yaml:"mode"`

	// Path is the capture file location (default "responses.jsonl").
	Path string `json:"path" yaml:"path"`
}

// RemarkableConfig holds settings for the reMarkable Cloud pairing and upload steps.
type RemarkableConfig struct {
	HTTPConfig `yaml:",inline"`

	// TokenPath is the registration file location (default "~/.pdf2remarkable").
	// Deleting the file forces re-pairing.
	TokenPath string `json:"token_path" yaml:"token_path"`

	// DeviceDesc is the device description reported during pairing
	// (default "browser-chrome").
	DeviceDesc string `json:"device_desc" yaml:"device_desc"`
}

// LibraryConfig holds settings for the local rendered-book index.
type LibraryConfig struct {
	// Dir is the directory holding the index database (default "~/.kindle2pdf").
	Dir string `json:"dir" yaml:"dir"`
}

// Config groups all component configurations for one invocation. It is
// materialized from viper once at startup and passed by value; components
// never read ambient global state.
type Config struct {
	Render     RenderConfig     `json:"render" yaml:"render"`
	Capture    CaptureConfig    `json:"capture" yaml:"capture"`
	Remarkable RemarkableConfig `json:"remarkable" yaml:"remarkable"`
	Library    LibraryConfig    `json:"library" yaml:"library"`
}
