// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/teticio/kindle2pdf/pkg/types"
)

type stubTransport struct{}

func (stubTransport) RoundTrip(*http.Request) (*http.Response, error) { return nil, nil }

func TestNewClient(t *testing.T) {
	client := NewClient(types.HTTPConfig{Timeout: 30 * time.Second}, stubTransport{})
	assert.Equal(t, 30*time.Second, client.Timeout)
	assert.Equal(t, stubTransport{}, client.Transport)

	client = NewClient(types.HTTPConfig{}, nil)
	assert.Nil(t, client.Transport)
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestDrainClose(t *testing.T) {
	body := &closeTracker{Reader: strings.NewReader("leftover bytes")}
	DrainClose(body)
	assert.True(t, body.closed)

	rest, err := io.ReadAll(body)
	assert.NoError(t, err)
	assert.Empty(t, rest)
}
