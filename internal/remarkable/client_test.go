// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package remarkable

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/signintech/gopdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestPDF produces a minimal one-page PDF fixture.
func writeTestPDF(t *testing.T) string {
	t.Helper()
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: gopdf.Rect{W: 595.28, H: 841.89}})
	pdf.AddPage()

	path := filepath.Join(t.TempDir(), "book.pdf")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = pdf.WriteTo(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return path
}

func overrideCloudURLs(tsURL string) func() {
	origToken := accessTokenURL
	origUpload := uploadURL
	accessTokenURL = tsURL + "/token/json/2/user/new"
	uploadURL = tsURL + "/doc/v2/files"
	return func() {
		accessTokenURL = origToken
		uploadURL = origUpload
	}
}

func TestUpload(t *testing.T) {
	pdfPath := writeTestPDF(t)
	reg := &Registration{DeviceToken: "device-token"}

	var uploaded []byte
	var uploadHeaders http.Header
	mux := http.NewServeMux()
	mux.HandleFunc("/token/json/2/user/new", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer device-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, "access-token")
	})
	mux.HandleFunc("/doc/v2/files", func(w http.ResponseWriter, r *http.Request) {
		uploadHeaders = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		uploaded = body
		w.WriteHeader(http.StatusCreated)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	defer overrideCloudURLs(ts.URL)()

	client := NewClient(ts.Client(), testRemarkableConfig(t))
	pages, err := client.Upload(context.Background(), reg, pdfPath, "My Book")
	require.NoError(t, err)
	assert.Equal(t, 1, pages)

	assert.Equal(t, "Bearer access-token", uploadHeaders.Get("Authorization"))
	assert.Equal(t, "application/pdf", uploadHeaders.Get("Content-Type"))

	meta, err := base64.StdEncoding.DecodeString(uploadHeaders.Get("rm-meta"))
	require.NoError(t, err)
	var parsed map[string]string
	require.NoError(t, json.Unmarshal(meta, &parsed))
	assert.Equal(t, "My Book", parsed["file_name"])

	// Raw PDF bytes, not a multipart wrapper.
	want, err := os.ReadFile(pdfPath)
	require.NoError(t, err)
	assert.Equal(t, want, uploaded)
}

func TestUploadRejectedDeviceToken(t *testing.T) {
	pdfPath := writeTestPDF(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/token/json/2/user/new", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	defer overrideCloudURLs(ts.URL)()

	cfg := testRemarkableConfig(t)
	client := NewClient(ts.Client(), cfg)
	_, err := client.Upload(context.Background(), &Registration{DeviceToken: "stale"}, pdfPath, "My Book")

	var reauthErr *ReauthRequiredError
	require.ErrorAs(t, err, &reauthErr)
	assert.Equal(t, cfg.TokenPath, reauthErr.TokenPath)
	assert.Contains(t, reauthErr.Error(), "re-pair")
}

func TestUploadServerError(t *testing.T) {
	pdfPath := writeTestPDF(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/token/json/2/user/new", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "access-token")
	})
	mux.HandleFunc("/doc/v2/files", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	defer overrideCloudURLs(ts.URL)()

	client := NewClient(ts.Client(), testRemarkableConfig(t))
	_, err := client.Upload(context.Background(), &Registration{DeviceToken: "device-token"}, pdfPath, "My Book")

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, http.StatusInternalServerError, uploadErr.Status)
}

func TestUploadRejectsInvalidPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0o644))

	// Validation fails before any network traffic.
	client := NewClient(http.DefaultClient, testRemarkableConfig(t))
	_, err := client.Upload(context.Background(), &Registration{DeviceToken: "device-token"}, path, "Broken")
	assert.Error(t, err)
}
