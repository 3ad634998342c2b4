// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package remarkable

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotPaired indicates no registration file exists; the device must be
// paired before uploading.
var ErrNotPaired = errors.New("device not paired")

// Registration is the long-lived device credential issued once per pairing.
// It is persisted as JSON in a hidden file in the user's home directory and
// treated as secret. Deleting the file forces re-pairing; tokens are never
// auto-refreshed.
type Registration struct {
	// DeviceToken is the long-lived credential scoped to this pairing.
	DeviceToken string `json:"device_token"`

	// DeviceID is the UUID reported during pairing.
	DeviceID string `json:"device_id"`

	// DeviceDesc is the device description reported during pairing.
	DeviceDesc string `json:"device_desc"`

	// PairedAt is when the pairing completed.
	PairedAt time.Time `json:"paired_at"`
}

// DefaultTokenPath returns the registration file location in the invoking
// user's home directory.
func DefaultTokenPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".pdf2remarkable"), nil
}

// LoadRegistration reads the registration file at path. A missing file
// returns ErrNotPaired. Files written by older versions contain the bare
// token text instead of JSON; those are accepted as-is.
func LoadRegistration(path string) (*Registration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotPaired
		}
		return nil, fmt.Errorf("reading registration file: %w", err)
	}

	var reg Registration
	if err := json.Unmarshal(data, &reg); err != nil || reg.DeviceToken == "" {
		token := strings.TrimSpace(string(data))
		if token == "" {
			return nil, fmt.Errorf("registration file %s is empty", path)
		}
		return &Registration{DeviceToken: token}, nil
	}
	return &reg, nil
}

// SaveRegistration persists the registration with a write-then-rename so an
// interrupted run never truncates the token file. Mode 0600: the token is a
// credential.
func SaveRegistration(reg *Registration, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registration: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pdf2remarkable-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(append(data, '\n'))
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing registration: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("restricting registration permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming registration file: %w", err)
	}
	return nil
}
