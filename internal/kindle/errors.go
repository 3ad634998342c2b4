// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kindle

import "fmt"

// AuthenticationError indicates that no usable Kindle Cloud Reader session
// could be established or that an established session was rejected mid-run.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	msg := "authentication failed"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + " (log in to https://read.amazon.com in Chrome, then close the browser and retry)"
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// NotOwnedError indicates the account holds no usable license for the
// requested edition.
type NotOwnedError struct {
	ASIN   string
	Reason string
}

func (e *NotOwnedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("full book %s is not owned by this account (%s)", e.ASIN, e.Reason)
	}
	return fmt.Sprintf("full book %s is not owned by this account", e.ASIN)
}
