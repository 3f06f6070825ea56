// Package fetch normalizes inbound conversation data from both transports
// into one message shape. Whatever the PMS API or the platform SPA return,
// the orchestrator only ever sees Thread and Message.
package fetch

import (
	"context"
	"time"

	"github.com/guestsync/pkg/models"
)

// Message is one normalized inbound unit. Both transports return full
// thread snapshots, never deltas; dedup happens at the store.
type Message struct {
	ExternalID    string
	Content       string
	IsGuest       bool
	SentAt        time.Time
	LowConfidence bool
}

// Thread is one normalized conversation snapshot.
type Thread struct {
	ExternalThreadID string
	GuestDisplayName string
	BookingID        string
	Transport        models.TransportType
	Messages         []Message
}

// Source pulls conversation snapshots for one resolved listing. A failed
// fetch is scoped to its listing: the orchestrator records it and moves on.
type Source interface {
	Threads(ctx context.Context, listing models.ResolvedListing) ([]Thread, error)
}
