// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package kindle implements the Kindle Cloud Reader protocol: session
// bootstrap from browser cookies, the page rendering request loop, and
// decryption of page images.
package kindle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/teticio/kindle2pdf/internal/browser"
	"github.com/teticio/kindle2pdf/internal/httputil"
	"github.com/teticio/kindle2pdf/pkg/types"
)

// Endpoint bases are declared as vars so tests can substitute an httptest server.
var (
	deviceTokenURL  = "https://read.amazon.com/service/web/register/getDeviceToken"
	startReadingURL = "https://read.amazon.com/service/mobile/reader/startReading"
)

const (
	// cookieDomain is the suffix used when extracting browser cookies.
	cookieDomain = "amazon.com"

	// deviceSerial identifies the Cloud Reader web client to the backend.
	deviceSerial = "A2CTZ977SKFQZY"

	// clientVersion is the Cloud Reader client version reported to startReading.
	clientVersion = "20000100"
)

// Auth is the short-lived rendering token issued by startReading.
type Auth struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"` // milliseconds since epoch
}

// Session is a bootstrapped reading session for one book. It lives for the
// duration of one invocation and is never persisted.
type Session struct {
	ASIN        string
	Title       string
	Revision    string
	EndPosition int

	auth      Auth
	adpToken  string
	sessionID string
	cookies   []*http.Cookie

	client *http.Client
	src    browser.CookieSource
	cfg    types.RenderConfig
	w      io.Writer
}

// StartSession bootstraps a reading session for asin: it extracts the
// logged-in browser cookies, registers a device session token, opens a
// reading session and fetches the book metadata. No token or cookie is
// persisted. Failures surface as *AuthenticationError or *NotOwnedError.
func StartSession(ctx context.Context, client *http.Client, src browser.CookieSource, asin string, cfg types.RenderConfig, w io.Writer) (*Session, error) {
	s := &Session{
		ASIN:   asin,
		client: client,
		src:    src,
		cfg:    cfg,
		w:      w,
	}
	if err := s.bootstrap(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) bootstrap(ctx context.Context) error {
	cookies, err := s.src.CookiesForDomain(cookieDomain)
	if err != nil {
		return &AuthenticationError{Reason: "reading browser cookies", Err: err}
	}
	s.cookies = cookies

	s.sessionID = ""
	for _, c := range cookies {
		if c.Name == "session-id" {
			s.sessionID = c.Value
			break
		}
	}
	if s.sessionID == "" {
		return &AuthenticationError{Reason: "no session-id cookie found"}
	}

	if err := s.registerDevice(ctx); err != nil {
		return err
	}
	if err := s.startReading(ctx); err != nil {
		return err
	}
	return nil
}

// registerDevice exchanges the browser session cookies for a device session
// token, which authorizes the reader API calls.
func (s *Session) registerDevice(ctx context.Context) error {
	params := url.Values{
		"serialNumber": {deviceSerial},
		"deviceType":   {deviceSerial},
	}

	req, err := s.newRequest(ctx, deviceTokenURL, params)
	if err != nil {
		return err
	}
	req.Header.Set("x-amzn-sessionid", s.sessionID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting device token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		httputil.DrainClose(resp.Body)
		return &AuthenticationError{Reason: fmt.Sprintf("device token request returned HTTP %d", resp.StatusCode)}
	}

	var body struct {
		DeviceSessionToken string `json:"deviceSessionToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("parsing device token response: %w", err)
	}
	// The token may be empty when replaying a capture file: the field is
	// redacted on record, and every later call is served from the file too.
	// A genuinely bad token fails the next request instead.
	s.adpToken = body.DeviceSessionToken
	return nil
}

// startReading opens the reading session and loads the book metadata.
func (s *Session) startReading(ctx context.Context) error {
	params := url.Values{
		"asin":          {s.ASIN},
		"clientVersion": {clientVersion},
	}

	req, err := s.newRequest(ctx, startReadingURL, params)
	if err != nil {
		return err
	}
	req.Header.Set("x-adp-session-token", s.adpToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("starting reading session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AuthenticationError{Reason: fmt.Sprintf("startReading returned HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("startReading returned HTTP %d", resp.StatusCode)
	}

	var body struct {
		IsOwned                   bool   `json:"isOwned"`
		IsSample                  bool   `json:"isSample"`
		MetadataURL               string `json:"metadataUrl"`
		KaramelToken              Auth   `json:"karamelToken"`
		DownloadRestrictionReason *struct {
			ReasonCode string `json:"reasonCode"`
		} `json:"downloadRestrictionReason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("parsing startReading response: %w", err)
	}

	if body.DownloadRestrictionReason != nil {
		return &NotOwnedError{ASIN: s.ASIN, Reason: body.DownloadRestrictionReason.ReasonCode}
	}
	if !body.IsOwned || body.IsSample {
		return &NotOwnedError{ASIN: s.ASIN}
	}

	s.auth = body.KaramelToken
	return s.loadMetadata(ctx, body.MetadataURL)
}

// loadMetadata fetches the book metadata document. The body is a JSONP-style
// loadMetadata(...) call wrapping the actual JSON payload.
func (s *Session) loadMetadata(ctx context.Context, metadataURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return fmt.Errorf("creating metadata request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching book metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("metadata request returned HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading metadata: %w", err)
	}

	text := string(raw)
	start := strings.Index(text, "loadMetadata(")
	end := strings.LastIndex(text, ");")
	if start < 0 || end < 0 || end <= start {
		return fmt.Errorf("unexpected metadata format")
	}
	text = text[start+len("loadMetadata(") : end]

	var meta struct {
		Title       string          `json:"title"`
		Version     json.RawMessage `json:"version"`
		EndPosition int             `json:"endPosition"`
	}
	if err := json.Unmarshal([]byte(text), &meta); err != nil {
		return fmt.Errorf("parsing metadata: %w", err)
	}

	// version is a string in some metadata documents and a number in others.
	var revision string
	if err := json.Unmarshal(meta.Version, &revision); err != nil {
		revision = string(meta.Version)
	}

	s.Title = meta.Title
	s.Revision = revision
	s.EndPosition = meta.EndPosition
	return nil
}

// refresh re-runs the bootstrap sequence, replacing the session tokens. The
// rendering token expires after a few minutes, so long books refresh
// mid-fetch.
func (s *Session) refresh(ctx context.Context) error {
	fmt.Fprintln(s.w, "refreshing reading session")
	return s.bootstrap(ctx)
}

// expiringSoon reports whether the rendering token expires within 5 seconds.
func (s *Session) expiringSoon(nowMillis int64) bool {
	return nowMillis > s.auth.ExpiresAt-5000
}

// newRequest builds a GET request with the session cookies attached.
func (s *Session) newRequest(ctx context.Context, base string, params url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	for _, c := range s.cookies {
		req.AddCookie(c)
	}
	return req, nil
}
