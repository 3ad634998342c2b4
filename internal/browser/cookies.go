// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package browser extracts authentication cookies from the invoking user's
// browser profile. Cookie-store formats are OS and browser specific, so the
// extraction mechanism sits behind the narrow CookieSource interface and the
// rest of the system only ever sees plain http.Cookie values.
package browser

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/chrome"
)

// ErrNoCookies indicates that no cookies for the requested domain were found
// in any readable cookie store.
var ErrNoCookies = errors.New("no cookies found for domain")

// CookieSource yields the stored cookies for a domain. Implementations make
// no network calls.
type CookieSource interface {
	CookiesForDomain(domain string) ([]*http.Cookie, error)
}

// ChromeSource reads cookies from the local Chrome profile via kooky.
type ChromeSource struct{}

// CookiesForDomain returns all valid Chrome cookies whose domain ends with
// domain. A locked cookie store (Chrome running on Windows) surfaces as an
// error naming the store; an empty result returns ErrNoCookies.
func (ChromeSource) CookiesForDomain(domain string) ([]*http.Cookie, error) {
	stores := kooky.FindAllCookieStores()

	var cookies []*http.Cookie
	var readErr error
	for _, store := range stores {
		if store.Browser() != "chrome" {
			continue
		}
		kookies, err := store.ReadCookies(kooky.Valid, kooky.DomainHasSuffix(domain))
		if err != nil {
			// Remember the failure but keep trying other profiles.
			readErr = fmt.Errorf("reading cookie store %s: %w", store.FilePath(), err)
			store.Close()
			continue
		}
		for _, k := range kookies {
			c := k.Cookie
			cookies = append(cookies, &c)
		}
		store.Close()
	}

	if len(cookies) == 0 {
		if readErr != nil {
			return nil, readErr
		}
		return nil, fmt.Errorf("%w: %s", ErrNoCookies, domain)
	}
	return cookies, nil
}

// StaticSource serves a fixed cookie set. Used by tests and replay mode,
// where no browser profile is available.
type StaticSource []*http.Cookie

// CookiesForDomain returns the fixed cookie set regardless of domain.
func (s StaticSource) CookiesForDomain(domain string) ([]*http.Cookie, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCookies, domain)
	}
	return s, nil
}
