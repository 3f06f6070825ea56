package fetch

import (
	"context"

	"github.com/guestsync/internal/pms"
	"github.com/guestsync/pkg/models"
)

// PMSSource fetches threads through the official PMS API.
type PMSSource struct {
	client *pms.Client
}

// NewPMSSource creates a source over a PMS client.
func NewPMSSource(client *pms.Client) *PMSSource {
	return &PMSSource{client: client}
}

// Threads returns normalized snapshots for a PMS listing. The PMS labels
// direction itself, so every message is full confidence.
func (s *PMSSource) Threads(ctx context.Context, listing models.ResolvedListing) ([]Thread, error) {
	pmsThreads, err := s.client.FetchThreads(ctx, listing.ExternalListingID)
	if err != nil {
		return nil, err
	}

	var threads []Thread
	for _, t := range pmsThreads {
		thread := Thread{
			ExternalThreadID: t.ID,
			GuestDisplayName: t.GuestName,
			BookingID:        t.BookingID,
			Transport:        models.TransportPMSAPI,
		}
		for _, m := range t.Messages {
			thread.Messages = append(thread.Messages, Message{
				ExternalID: m.ID,
				Content:    m.Text,
				IsGuest:    m.Direction == "guest",
				SentAt:     m.CreatedAt,
			})
		}
		threads = append(threads, thread)
	}
	return threads, nil
}
