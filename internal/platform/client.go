package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/guestsync/internal/session"
	"github.com/guestsync/internal/syncerrors"
)

// Client issues the same authenticated requests the platform's single-page
// application issues internally, instead of re-rendering pages per fetch.
// All calls are rate limited; the platform has no sanctioned API and bursty
// traffic is the fastest way to get a session flagged.
type Client struct {
	base    *url.URL
	sess    *session.Session
	limiter *rate.Limiter
}

// NewClient creates a platform API client bound to one pass session.
func NewClient(sess *session.Session, perSecond float64, burst int) *Client {
	if perSecond <= 0 {
		perSecond = 2
	}
	if burst <= 0 {
		burst = 5
	}
	return &Client{
		base:    sess.BaseURL,
		sess:    sess,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// ThreadSummary is one entry of the inbox listing.
type ThreadSummary struct {
	OpaqueID         string `json:"id"`
	NumericID        int64  `json:"-"`
	GuestDisplayName string `json:"guest_name"`
	ListingID        string `json:"listing_id"`
	// Direct marks host<->guest conversations outside any listing context.
	Direct bool `json:"direct"`
}

// RawThread is the platform's thread-detail payload, kept loose on purpose:
// normalization (normalize.go) is the one place that checks shapes.
type RawThread struct {
	OpaqueID     string           `json:"id"`
	ListingID    string           `json:"listing_id"`
	GuestName    string           `json:"guest_name"`
	Participants []RawParticipant `json:"participants"`
	Messages     []RawMessage     `json:"messages"`
}

// RawParticipant is one thread participant as the platform reports it.
type RawParticipant struct {
	AccountID   string `json:"account_id"`
	Role        string `json:"role"` // "guest" | "host" | "cohost" | "support" ...
	DisplayName string `json:"display_name"`
}

// RawMessage is one message as the platform reports it; timestamps arrive as
// strings in more than one format.
type RawMessage struct {
	ID              string `json:"id"`
	SenderAccountID string `json:"sender_account_id"`
	Content         string `json:"content"`
	CreatedAt       string `json:"created_at"`
}

// RawListing is one listing visible to the authenticated session.
type RawListing struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FetchThreads returns the session's inbox summaries, decoding each opaque
// thread id so callers can correlate with page URLs.
func (c *Client) FetchThreads(ctx context.Context) ([]ThreadSummary, error) {
	var payload struct {
		Threads []ThreadSummary `json:"threads"`
	}
	if err := c.getJSON(ctx, "/api/internal/v1/threads", &payload); err != nil {
		return nil, err
	}

	for i := range payload.Threads {
		_, numericID, err := DecodeThreadID(payload.Threads[i].OpaqueID)
		if err != nil {
			log.Warn().Str("opaque_id", payload.Threads[i].OpaqueID).Err(err).
				Msg("undecodable thread id in inbox listing")
			continue
		}
		payload.Threads[i].NumericID = numericID
	}
	return payload.Threads, nil
}

// FetchThread returns the full thread snapshot for a numeric thread id. The
// remote always returns complete history, not deltas.
func (c *Client) FetchThread(ctx context.Context, numericID int64) (*RawThread, error) {
	path := "/api/internal/v1/threads/" + url.PathEscape(EncodeThreadID(numericID))
	var thread RawThread
	if err := c.getJSON(ctx, path+"?include=messages,participants", &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// FetchListings enumerates the listings visible to the session.
func (c *Client) FetchListings(ctx context.Context) ([]RawListing, error) {
	var payload struct {
		Listings []RawListing `json:"listings"`
	}
	if err := c.getJSON(ctx, "/api/internal/v1/listings", &payload); err != nil {
		return nil, err
	}
	return payload.Listings, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	reqURL := c.base.ResolveReference(&url.URL{Path: strings.SplitN(path, "?", 2)[0]})
	if idx := strings.Index(path, "?"); idx >= 0 {
		reqURL.RawQuery = path[idx+1:]
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	// The SPA sends this header on its internal calls; its absence is served
	// a rendered page instead of JSON.
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.sess.HTTPClient().Do(req)
	if err != nil {
		return &syncerrors.FetchError{Transport: "browser_automation", Detail: err.Error()}
	}
	defer resp.Body.Close()

	if isLoginRedirect(resp) {
		return fmt.Errorf("thread fetch redirected to login: %w", syncerrors.ErrSessionExpired)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("thread fetch rejected (status %d): %w", resp.StatusCode, syncerrors.ErrSessionExpired)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &syncerrors.FetchError{
			Transport:  "browser_automation",
			StatusCode: resp.StatusCode,
			Detail:     string(body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &syncerrors.FetchError{Transport: "browser_automation", Detail: "malformed response: " + err.Error()}
	}
	return nil
}

// isLoginRedirect reports whether the platform answered with a redirect to a
// login surface instead of the requested resource.
func isLoginRedirect(resp *http.Response) bool {
	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return false
	}
	loc := resp.Header.Get("Location")
	return strings.Contains(loc, "/login") || strings.Contains(loc, "/signin") || strings.Contains(loc, "/authenticate")
}
