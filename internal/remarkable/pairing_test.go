// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package remarkable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teticio/kindle2pdf/pkg/types"
)

// pairingServer accepts the one valid code and returns a fresh token per
// successful pairing. seenDeviceID holds the deviceID of the last request.
func pairingServer(t *testing.T, validCode string) (ts *httptest.Server, seenDeviceID *string) {
	t.Helper()
	issued := 0
	seenDeviceID = new(string)
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code       string `json:"code"`
			DeviceID   string `json:"deviceID"`
			DeviceDesc string `json:"deviceDesc"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.DeviceID)
		assert.Equal(t, "browser-chrome", req.DeviceDesc)
		*seenDeviceID = req.DeviceID

		if req.Code != validCode {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		issued++
		fmt.Fprintf(w, "device-token-%d", issued)
	}))
	t.Cleanup(ts.Close)
	return ts, seenDeviceID
}

func overrideRegisterURL(tsURL string) func() {
	orig := deviceRegisterURL
	deviceRegisterURL = tsURL
	return func() { deviceRegisterURL = orig }
}

func testRemarkableConfig(t *testing.T) types.RemarkableConfig {
	t.Helper()
	return types.RemarkableConfig{
		HTTPConfig: types.HTTPConfig{UserAgent: "kindle2pdf-test/0.1"},
		TokenPath:  filepath.Join(t.TempDir(), ".pdf2remarkable"),
	}
}

func TestPair(t *testing.T) {
	ts, seenDeviceID := pairingServer(t, "abcdefgh")
	defer overrideRegisterURL(ts.URL)()
	cfg := testRemarkableConfig(t)

	frozen := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	origNow := nowFunc
	nowFunc = func() time.Time { return frozen }
	defer func() { nowFunc = origNow }()

	pairer, err := NewPairer(ts.Client(), cfg)
	require.NoError(t, err)
	assert.Equal(t, StateUnpaired, pairer.State())

	reg, err := pairer.Pair(context.Background(), "abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, StatePaired, pairer.State())
	assert.Equal(t, "device-token-1", reg.DeviceToken)
	assert.Equal(t, frozen, reg.PairedAt)
	// The persisted identity is exactly the one announced to the service.
	assert.Equal(t, *seenDeviceID, reg.DeviceID)

	info, err := os.Stat(cfg.TokenPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadRegistration(cfg.TokenPath)
	require.NoError(t, err)
	assert.Equal(t, reg.DeviceToken, loaded.DeviceToken)
	assert.Equal(t, reg.DeviceID, loaded.DeviceID)
}

func TestPairRejectedCodeWritesNothing(t *testing.T) {
	ts, _ := pairingServer(t, "abcdefgh")
	defer overrideRegisterURL(ts.URL)()
	cfg := testRemarkableConfig(t)

	pairer, err := NewPairer(ts.Client(), cfg)
	require.NoError(t, err)

	_, err = pairer.Pair(context.Background(), "wrong")

	var pairErr *PairingError
	require.ErrorAs(t, err, &pairErr)
	assert.Equal(t, http.StatusUnauthorized, pairErr.Status)
	assert.Contains(t, pairErr.Error(), "one-time code")

	// The machine stays in Pairing and no file appears; a fresh code works.
	assert.Equal(t, StatePairing, pairer.State())
	assert.NoFileExists(t, cfg.TokenPath)

	reg, err := pairer.Pair(context.Background(), "abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, StatePaired, pairer.State())
	assert.NotEmpty(t, reg.DeviceToken)
}

func TestRePairAfterDeleteIssuesNewToken(t *testing.T) {
	ts, _ := pairingServer(t, "abcdefgh")
	defer overrideRegisterURL(ts.URL)()
	cfg := testRemarkableConfig(t)

	pairer, err := NewPairer(ts.Client(), cfg)
	require.NoError(t, err)
	first, err := pairer.Pair(context.Background(), "abcdefgh")
	require.NoError(t, err)

	require.NoError(t, os.Remove(cfg.TokenPath))

	pairer, err = NewPairer(ts.Client(), cfg)
	require.NoError(t, err)
	assert.Equal(t, StateUnpaired, pairer.State())

	second, err := pairer.Pair(context.Background(), "abcdefgh")
	require.NoError(t, err)
	assert.NotEqual(t, first.DeviceToken, second.DeviceToken)
}

func TestEnsurePairedUsesExistingRegistration(t *testing.T) {
	cfg := testRemarkableConfig(t)
	require.NoError(t, SaveRegistration(&Registration{DeviceToken: "existing"}, cfg.TokenPath))

	var out bytes.Buffer
	reg, err := EnsurePaired(context.Background(), http.DefaultClient, cfg, "", strings.NewReader(""), &out)
	require.NoError(t, err)
	assert.Equal(t, "existing", reg.DeviceToken)
	assert.Empty(t, out.String(), "must not prompt when already paired")
}

func TestEnsurePairedPromptsForCode(t *testing.T) {
	ts, _ := pairingServer(t, "abcdefgh")
	defer overrideRegisterURL(ts.URL)()
	cfg := testRemarkableConfig(t)

	var out bytes.Buffer
	reg, err := EnsurePaired(context.Background(), ts.Client(), cfg, "", strings.NewReader("abcdefgh\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "device-token-1", reg.DeviceToken)
	assert.Contains(t, out.String(), PairURL)
}

func TestEnsurePairedEmptyCode(t *testing.T) {
	cfg := testRemarkableConfig(t)
	_, err := EnsurePaired(context.Background(), http.DefaultClient, cfg, "", strings.NewReader("\n"), &bytes.Buffer{})

	var pairErr *PairingError
	assert.ErrorAs(t, err, &pairErr)
}

func TestPairingStateString(t *testing.T) {
	assert.Equal(t, "unpaired", StateUnpaired.String())
	assert.Equal(t, "pairing", StatePairing.String())
	assert.Equal(t, "paired", StatePaired.String())
}
