package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guestsync/internal/platform"
	"github.com/guestsync/internal/session"
	"github.com/guestsync/internal/syncerrors"
	"github.com/guestsync/pkg/models"
)

// platformFixture serves an inbox of two threads: one bound to listing L-1,
// one direct (no listing context).
func platformFixture(t *testing.T) *platform.Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/internal/v1/threads", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"threads":[
			{"id":"` + platform.EncodeThreadID(1) + `","guest_name":"Mina","listing_id":"L-1"},
			{"id":"` + platform.EncodeThreadID(2) + `","guest_name":"Sam","direct":true}
		]}`))
	})
	mux.HandleFunc("/api/internal/v1/threads/", func(w http.ResponseWriter, r *http.Request) {
		opaque := strings.TrimPrefix(r.URL.Path, "/api/internal/v1/threads/")
		w.Write([]byte(`{
			"id": "` + opaque + `",
			"listing_id": "L-1",
			"participants": [
				{"account_id": "g1", "role": "guest", "display_name": "Mina"},
				{"account_id": "h1", "role": "host", "display_name": "The Host"}
			],
			"messages": [
				{"id": "m1", "sender_account_id": "g1", "content": "Hi!", "created_at": "2026-08-01T10:00:00Z"},
				{"id": "m2", "sender_account_id": "h1", "content": "Hello back", "created_at": "2026-08-01T10:01:00Z"}
			]
		}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	sess, err := session.New(&session.Credentials{Account: "host@example.com"}, server.URL, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	return platform.NewClient(sess, 100, 100)
}

func TestPlatformSourceFiltersByListing(t *testing.T) {
	source := NewPlatformSource(platformFixture(t), nil)

	threads, err := source.Threads(context.Background(), models.ResolvedListing{
		ListingID:         7,
		ExternalListingID: "L-1",
		Transport:         models.TransportBrowserAutomation,
	})
	require.NoError(t, err)

	require.Len(t, threads, 1)
	assert.Equal(t, "Mina", threads[0].GuestDisplayName)
	assert.Equal(t, models.TransportBrowserAutomation, threads[0].Transport)
	require.Len(t, threads[0].Messages, 2)
	assert.True(t, threads[0].Messages[0].IsGuest)
	assert.False(t, threads[0].Messages[0].LowConfidence)
	assert.False(t, threads[0].Messages[1].IsGuest)
}

func TestPlatformSourceDirectThreads(t *testing.T) {
	source := NewPlatformSource(platformFixture(t), nil)

	threads, err := source.Threads(context.Background(), models.ResolvedListing{
		ListingID:    7,
		Transport:    models.TransportBrowserAutomation,
		DirectThread: true,
	})
	require.NoError(t, err)

	require.Len(t, threads, 1)
	assert.Equal(t, platform.EncodeThreadID(2), threads[0].ExternalThreadID)
}

func TestPlatformSourceSessionExpiryPropagates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/internal/v1/threads", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/login")
		w.WriteHeader(http.StatusFound)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	sess, err := session.New(&session.Credentials{Account: "host@example.com"}, server.URL, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	source := NewPlatformSource(platform.NewClient(sess, 100, 100), nil)
	_, err = source.Threads(context.Background(), models.ResolvedListing{ExternalListingID: "L-1"})
	require.Error(t, err)
	assert.True(t, syncerrors.IsSessionExpired(err))
}

func TestPlatformSourceSkipsUndecodableThreadID(t *testing.T) {
	var fetched []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/internal/v1/threads", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"threads":[
			{"id":"!!!","listing_id":"L-1"},
			{"id":"` + platform.EncodeThreadID(3) + `","listing_id":"L-1"}
		]}`))
	})
	mux.HandleFunc("/api/internal/v1/threads/", func(w http.ResponseWriter, r *http.Request) {
		fetched = append(fetched, strings.TrimPrefix(r.URL.Path, "/api/internal/v1/threads/"))
		w.Write([]byte(`{
			"id": "` + platform.EncodeThreadID(3) + `",
			"listing_id": "L-1",
			"participants": [{"account_id": "g1", "role": "guest", "display_name": "Ana"}],
			"messages": [{"id": "m1", "sender_account_id": "g1", "content": "Hola", "created_at": "2026-08-02T08:00:00Z"}]
		}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	sess, err := session.New(&session.Credentials{Account: "host@example.com"}, server.URL, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	source := NewPlatformSource(platform.NewClient(sess, 100, 100), nil)
	threads, err := source.Threads(context.Background(), models.ResolvedListing{ExternalListingID: "L-1"})
	require.NoError(t, err)

	// The garbage id never turns into a detail fetch; its sibling survives.
	require.Len(t, threads, 1)
	assert.Equal(t, "Ana", threads[0].GuestDisplayName)
	require.Len(t, fetched, 1)
	assert.Equal(t, platform.EncodeThreadID(3), fetched[0])
}

func TestPlatformSourceSkipsBrokenThread(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/internal/v1/threads", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"threads":[
			{"id":"` + platform.EncodeThreadID(1) + `","listing_id":"L-1"},
			{"id":"` + platform.EncodeThreadID(2) + `","listing_id":"L-1"}
		]}`))
	})
	mux.HandleFunc("/api/internal/v1/threads/"+platform.EncodeThreadID(1), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/internal/v1/threads/"+platform.EncodeThreadID(2), func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id": "` + platform.EncodeThreadID(2) + `",
			"listing_id": "L-1",
			"participants": [{"account_id": "g1", "role": "guest", "display_name": "Sam"}],
			"messages": [{"id": "m1", "sender_account_id": "g1", "content": "Hey", "created_at": "2026-08-01T09:00:00Z"}]
		}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	sess, err := session.New(&session.Credentials{Account: "host@example.com"}, server.URL, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	source := NewPlatformSource(platform.NewClient(sess, 100, 100), nil)
	threads, err := source.Threads(context.Background(), models.ResolvedListing{ExternalListingID: "L-1"})
	require.NoError(t, err)

	// The broken thread is skipped, its sibling survives.
	require.Len(t, threads, 1)
	assert.Equal(t, "Sam", threads[0].GuestDisplayName)
}
