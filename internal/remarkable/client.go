// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package remarkable implements the reMarkable Cloud device pairing
// handshake and document upload: a one-time code buys a long-lived device
// token, which buys short-lived access tokens for individual uploads.
package remarkable

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/teticio/kindle2pdf/internal/httputil"
	"github.com/teticio/kindle2pdf/pkg/types"
)

// Endpoint bases, overridable in tests.
var (
	accessTokenURL = "https://webapp.cloud.remarkable.com/token/json/2/user/new"
	uploadURL      = "https://internal.cloud.remarkable.com/doc/v2/files"
)

// Client uploads documents to the reMarkable Cloud.
type Client struct {
	http *http.Client
	cfg  types.RemarkableConfig
}

// NewClient returns a Client using the given HTTP client.
func NewClient(client *http.Client, cfg types.RemarkableConfig) *Client {
	return &Client{http: client, cfg: cfg}
}

// AccessToken exchanges the device token for a short-lived access token.
// A rejected device token returns *ReauthRequiredError; the remedy is
// deleting the registration file to force re-pairing.
func (c *Client) AccessToken(ctx context.Context, reg *Registration) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, accessTokenURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+reg.DeviceToken)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting access token: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		httputil.DrainClose(resp.Body)
		return "", &ReauthRequiredError{TokenPath: c.cfg.TokenPath, Status: resp.StatusCode}
	default:
		httputil.DrainClose(resp.Body)
		return "", &UploadError{Status: resp.StatusCode, Err: fmt.Errorf("access token request failed")}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading access token: %w", err)
	}
	return string(bytes.TrimSpace(body)), nil
}

// Upload pushes the PDF at path as a new document titled title. The input
// is validated locally first so a bad file never reaches the cloud; the
// upload itself is all-or-nothing on the service side. Returns the page
// count of the uploaded document.
func (c *Client) Upload(ctx context.Context, reg *Registration, path, title string) (int, error) {
	if err := api.ValidateFile(path, nil); err != nil {
		return 0, fmt.Errorf("%s is not a valid PDF: %w", path, err)
	}
	pages, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("counting pages of %s: %w", path, err)
	}

	token, err := c.AccessToken(ctx, reg)
	if err != nil {
		return 0, err
	}

	pdf, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}

	meta, err := json.Marshal(map[string]string{"file_name": title})
	if err != nil {
		return 0, fmt.Errorf("encoding document metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(pdf))
	if err != nil {
		return 0, fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("rm-meta", base64.StdEncoding.EncodeToString(meta))
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &UploadError{Err: err}
	}
	defer httputil.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &UploadError{Status: resp.StatusCode}
	}
	return pages, nil
}
