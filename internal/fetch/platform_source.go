package fetch

import (
	"context"

	"github.com/guestsync/internal/logging"
	"github.com/guestsync/internal/platform"
	"github.com/guestsync/pkg/models"
)

// PlatformSource fetches threads through the browser-automation transport's
// internal API client and runs them through shape normalization.
type PlatformSource struct {
	client  *platform.Client
	passLog *logging.SyncLogger
}

// NewPlatformSource creates a source over an authenticated platform client.
func NewPlatformSource(client *platform.Client, passLog *logging.SyncLogger) *PlatformSource {
	return &PlatformSource{client: client, passLog: passLog}
}

// Threads returns normalized snapshots for every inbox thread belonging to
// the listing. Direct host<->guest threads (no listing context) are matched
// when the resolved listing carries the DirectThread flag.
func (s *PlatformSource) Threads(ctx context.Context, listing models.ResolvedListing) ([]Thread, error) {
	summaries, err := s.client.FetchThreads(ctx)
	if err != nil {
		return nil, err
	}

	var threads []Thread
	for _, summary := range summaries {
		if summary.NumericID == 0 {
			// Undecodable opaque id (already warned at decode time); a zero
			// id would fetch a thread that cannot exist.
			s.passLog.Log("skipping thread with undecodable id %q", summary.OpaqueID)
			continue
		}
		if listing.DirectThread {
			if !summary.Direct {
				continue
			}
		} else if summary.ListingID != listing.ExternalListingID {
			continue
		}

		raw, err := s.client.FetchThread(ctx, summary.NumericID)
		if err != nil {
			// One thread's fetch failure must not sink its siblings; the
			// session-expiry case is the exception and propagates.
			if isSessionExpiry(err) {
				return threads, err
			}
			s.passLog.LogError("fetch thread "+summary.OpaqueID, err)
			continue
		}

		normalized, err := platform.Normalize(raw)
		if err != nil {
			s.passLog.LogError("normalize thread "+summary.OpaqueID, err)
			continue
		}
		if normalized.LowConfidenceCount > 0 {
			s.passLog.LogLowConfidence(normalized.ExternalThreadID, "participant role map incomplete")
		}

		thread := Thread{
			ExternalThreadID: normalized.ExternalThreadID,
			GuestDisplayName: normalized.GuestDisplayName,
			Transport:        models.TransportBrowserAutomation,
		}
		for _, m := range normalized.Messages {
			thread.Messages = append(thread.Messages, Message{
				ExternalID:    m.ExternalID,
				Content:       m.Content,
				IsGuest:       m.IsGuest,
				SentAt:        m.SentAt,
				LowConfidence: m.Confidence == platform.ConfidenceHeuristic,
			})
		}
		threads = append(threads, thread)
	}
	return threads, nil
}
