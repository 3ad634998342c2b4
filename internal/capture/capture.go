// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package capture records backend responses to an append-only JSONL file and
// replays them in later runs. It sits behind the pipeline's HTTP client as a
// RoundTripper, so the rest of the system is unaware of record/replay mode.
//
// Entries are keyed by a hash of the request URL and query parameters with
// per-session fields blanked, so a replayed run matches the recorded one even
// though tokens differ. Account-identifying response fields are redacted
// before anything is written to disk.
package capture

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/teticio/kindle2pdf/pkg/types"
)

// volatileParams are query parameters excluded from the request hash because
// they change between sessions.
var volatileParams = []string{"token", "expiration"}

// sensitiveKeys are top-level JSON response fields blanked before a response
// is written to the capture file.
var sensitiveKeys = []string{"clientHashId", "deviceSessionToken", "eid", "kindleSessionId"}

// entry is one line of the capture file.
type entry struct {
	Hash     string `json:"hash"`
	Status   int    `json:"status"`
	Response string `json:"response"`
	Encoding string `json:"encoding,omitempty"` // "base64" for binary bodies
}

// Transport is an http.RoundTripper that records or replays responses.
type Transport struct {
	mode types.CaptureMode
	base http.RoundTripper

	file    *os.File           // record mode
	pending map[string][]entry // replay mode, FIFO per hash
}

// New opens the capture file for the given mode and returns a Transport
// wrapping base. In record mode the file is truncated; in replay mode it is
// read fully up front. base may be nil for http.DefaultTransport.
func New(cfg types.CaptureConfig, base http.RoundTripper) (*Transport, error) {
	if base == nil {
		base = http.DefaultTransport
	}
	t := &Transport{mode: cfg.Mode, base: base}

	switch cfg.Mode {
	case types.CaptureRecord:
		f, err := os.Create(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("creating capture file: %w", err)
		}
		t.file = f

	case types.CaptureReplay:
		data, err := os.ReadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("reading capture file: %w", err)
		}
		t.pending = make(map[string][]entry)
		for _, line := range bytes.Split(data, []byte("\n")) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var e entry
			if err := json.Unmarshal(line, &e); err != nil {
				return nil, fmt.Errorf("parsing capture line: %w", err)
			}
			t.pending[e.Hash] = append(t.pending[e.Hash], e)
		}

	default:
		return nil, fmt.Errorf("capture mode %q is not recordable or replayable", cfg.Mode)
	}
	return t, nil
}

// Close releases the capture file in record mode.
func (t *Transport) Close() error {
	if t.file != nil {
		return t.file.Close()
	}
	return nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	hash := HashRequest(req.URL)

	if t.mode == types.CaptureReplay {
		return t.replay(req, hash)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading response for capture: %w", err)
	}

	if err := t.record(hash, resp.StatusCode, body); err != nil {
		return nil, err
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

func (t *Transport) replay(req *http.Request, hash string) (*http.Response, error) {
	queue := t.pending[hash]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no recorded response for %s", req.URL.Path)
	}
	e := queue[0]
	t.pending[hash] = queue[1:]

	body := []byte(e.Response)
	if e.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(e.Response)
		if err != nil {
			return nil, fmt.Errorf("decoding recorded response: %w", err)
		}
		body = decoded
	}

	status := e.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewReader(body)),
		Request:    req,
	}, nil
}

func (t *Transport) record(hash string, status int, body []byte) error {
	e := entry{Hash: hash, Status: status}

	if redacted, ok := Redact(body); ok {
		e.Response = string(redacted)
	} else {
		e.Response = base64.StdEncoding.EncodeToString(body)
		e.Encoding = "base64"
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding capture entry: %w", err)
	}
	if _, err := t.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing capture entry: %w", err)
	}
	return t.file.Sync()
}

// HashRequest derives the capture key for a request URL. Volatile query
// parameters are blanked so the key is stable across sessions.
func HashRequest(u *url.URL) string {
	params := u.Query()
	for _, p := range volatileParams {
		if params.Has(p) {
			params.Set(p, "")
		}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(u.Scheme + "://" + u.Host + u.Path)
	for _, k := range keys {
		b.WriteString("&" + k + "=" + strings.Join(params[k], ","))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Redact blanks sensitive top-level fields of a JSON object body. The second
// return value reports whether the body was JSON; binary bodies are returned
// untouched with ok=false so the caller can encode them instead.
func Redact(body []byte) ([]byte, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		// Not a JSON object; also accept other JSON values as-is.
		if json.Valid(body) {
			return body, true
		}
		return body, false
	}

	for _, k := range sensitiveKeys {
		if _, present := obj[k]; present {
			obj[k] = json.RawMessage(`""`)
		}
	}

	redacted, err := json.Marshal(obj)
	if err != nil {
		return body, false
	}
	return redacted, true
}
