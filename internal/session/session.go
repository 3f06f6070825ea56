// Package session supplies the authenticated platform session a sync pass
// threads through resolver, fetcher and send primitive. The session is an
// explicit value, never process-global state, so concurrent host passes
// cannot cross-contaminate cookies.
package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Credentials is the opaque authenticated-session identity handed over by the
// credential provider: a host account label plus its cookie set.
type Credentials struct {
	Account string
	Cookies []*http.Cookie
}

// Provider supplies credentials for a host's automated-session identity. The
// interactive login flow behind it is out of scope here.
type Provider interface {
	Credentials(ctx context.Context, hostID int64) (*Credentials, error)
	// Invalidate signals that the platform rejected the session; the next
	// Credentials call must produce a fresh login.
	Invalidate(hostID int64)
}

// Session is the per-pass authenticated session. Exactly one exists per sync
// pass and it must be closed on every exit path; leaked browser processes
// exhaust system resources under repeated scheduled runs.
type Session struct {
	Account   string
	BaseURL   *url.URL
	ExpiresAt time.Time

	jar    http.CookieJar
	client *http.Client

	browserMu sync.Mutex
	browser   *Browser
}

// New builds a session from credentials. When the platform's access-token
// cookie is a JWT, its exp claim is decoded (unverified; we only need the
// timestamp, not trust) to know expiry without a network round trip.
func New(creds *Credentials, baseURL string, timeout time.Duration) (*Session, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid platform base URL: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	jar.SetCookies(base, creds.Cookies)

	s := &Session{
		Account: creds.Account,
		BaseURL: base,
		jar:     jar,
		client: &http.Client{
			Jar:     jar,
			Timeout: timeout,
			// Login redirects must be visible to the caller, not followed
			// silently into a rendered login page.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}

	s.ExpiresAt = peekTokenExpiry(creds.Cookies)
	if !s.ExpiresAt.IsZero() {
		log.Debug().Str("account", creds.Account).Time("expires_at", s.ExpiresAt).Msg("session token expiry decoded")
	}

	return s, nil
}

// HTTPClient returns the cookie-carrying client for SPA-internal requests.
func (s *Session) HTTPClient() *http.Client {
	return s.client
}

// Cookies returns the current cookie set for the platform origin.
func (s *Session) Cookies() []*http.Cookie {
	return s.jar.Cookies(s.BaseURL)
}

// LikelyExpired reports whether the decoded token expiry has passed. A zero
// expiry means the token was opaque and expiry is only discoverable by use.
func (s *Session) LikelyExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Close releases the session's browser instance if one was started. Safe to
// call multiple times and on sessions that never opened a browser.
func (s *Session) Close() {
	s.browserMu.Lock()
	defer s.browserMu.Unlock()
	if s.browser != nil {
		s.browser.close()
		s.browser = nil
	}
}

// peekTokenExpiry scans known access-token cookie names for a JWT and
// returns its exp claim.
func peekTokenExpiry(cookies []*http.Cookie) time.Time {
	tokenNames := map[string]bool{"access_token": true, "_at": true, "jwt": true}
	parser := jwt.NewParser()

	for _, c := range cookies {
		if !tokenNames[c.Name] {
			continue
		}
		claims := jwt.RegisteredClaims{}
		if _, _, err := parser.ParseUnverified(c.Value, &claims); err != nil {
			continue
		}
		if claims.ExpiresAt != nil {
			return claims.ExpiresAt.Time
		}
	}
	return time.Time{}
}
