// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package remarkable

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrationRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".pdf2remarkable")
	reg := &Registration{
		DeviceToken: "token-value",
		DeviceID:    "11111111-2222-3333-4444-555555555555",
		DeviceDesc:  "browser-chrome",
		PairedAt:    time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, SaveRegistration(reg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadRegistration(path)
	require.NoError(t, err)
	assert.Equal(t, reg.DeviceToken, loaded.DeviceToken)
	assert.Equal(t, reg.DeviceID, loaded.DeviceID)
	assert.Equal(t, reg.DeviceDesc, loaded.DeviceDesc)
	assert.True(t, reg.PairedAt.Equal(loaded.PairedAt))
}

func TestLoadRegistrationLegacyBareToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".pdf2remarkable")
	require.NoError(t, os.WriteFile(path, []byte("legacy-raw-token\n"), 0o600))

	loaded, err := LoadRegistration(path)
	require.NoError(t, err)
	assert.Equal(t, "legacy-raw-token", loaded.DeviceToken)
	assert.Empty(t, loaded.DeviceID)
}

func TestLoadRegistrationMissing(t *testing.T) {
	_, err := LoadRegistration(filepath.Join(t.TempDir(), ".pdf2remarkable"))
	assert.ErrorIs(t, err, ErrNotPaired)
}

func TestLoadRegistrationEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".pdf2remarkable")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))

	_, err := LoadRegistration(path)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotPaired)
}

func TestSaveRegistrationOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".pdf2remarkable")
	require.NoError(t, SaveRegistration(&Registration{DeviceToken: "first"}, path))
	require.NoError(t, SaveRegistration(&Registration{DeviceToken: "second"}, path))

	loaded, err := LoadRegistration(path)
	require.NoError(t, err)
	assert.Equal(t, "second", loaded.DeviceToken)
}
