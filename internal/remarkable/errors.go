// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package remarkable

import "fmt"

// PairingError indicates the one-time code was rejected during device
// pairing. The operator fetches a fresh code and re-runs the command; no
// registration is persisted.
type PairingError struct {
	Status int
	Err    error
}

func (e *PairingError) Error() string {
	msg := "device pairing failed"
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + " (the one-time code may be invalid or expired; fetch a fresh one and retry)"
}

func (e *PairingError) Unwrap() error { return e.Err }

// ReauthRequiredError indicates the persisted device token was rejected by
// the cloud. The remedy is deleting the token file to force re-pairing.
type ReauthRequiredError struct {
	TokenPath string
	Status    int
}

func (e *ReauthRequiredError) Error() string {
	return fmt.Sprintf("device token rejected (HTTP %d); delete %s to re-pair", e.Status, e.TokenPath)
}

// UploadError indicates the cloud rejected the document upload. Uploads are
// atomic on the service side: a failed upload leaves no partial document.
type UploadError struct {
	Status int
	Err    error
}

func (e *UploadError) Error() string {
	msg := "upload rejected"
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + " (re-run the command to retry)"
}

func (e *UploadError) Unwrap() error { return e.Err }
