package models

import (
	"time"
)

// TransportType identifies which channel a conversation or message moved through.
type TransportType string

const (
	TransportPMSAPI            TransportType = "pms_api"
	TransportBrowserAutomation TransportType = "browser_automation"
	TransportLocal             TransportType = "local"
)

// Direction of a message relative to the host.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ConversationStatus tracks whether a thread is still active.
type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "open"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation is one guest<->host thread tied to a listing.
// (ExternalThreadID, SourceTransport) is the dedup key for remote threads:
// the same remote thread must never produce two rows.
type Conversation struct {
	ID               int64              `json:"id"`
	ListingID        int64              `json:"listing_id"`
	GuestDisplayName string             `json:"guest_display_name"`
	ExternalThreadID *string            `json:"external_thread_id,omitempty"`
	SourceTransport  TransportType      `json:"source_transport"`
	Status           ConversationStatus `json:"status"`
	LastMessageAt    time.Time          `json:"last_message_at"`
	CreatedAt        time.Time          `json:"created_at"`
}

// Message is one unit of conversation content. Messages are append-only;
// corrections arrive as new messages, never as edits.
type Message struct {
	ID                int64             `json:"id"`
	ConversationID    int64             `json:"conversation_id"`
	Content           string            `json:"content"`
	Direction         Direction         `json:"direction"`
	IsAIGenerated     bool              `json:"is_ai_generated"`
	ExternalMessageID *string           `json:"external_message_id,omitempty"`
	SentAt            time.Time         `json:"sent_at"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Channel returns the transport that actually delivered an outbound message,
// which may differ from the first transport attempted.
func (m *Message) Channel() TransportType {
	if m.Metadata == nil {
		return ""
	}
	return TransportType(m.Metadata["channel"])
}

// Property is the slice of the listing registry this core touches.
type Property struct {
	ID                int64   `json:"id"`
	HostID            int64   `json:"host_id"`
	Name              string  `json:"name"`
	ExternalListingID *string `json:"external_listing_id,omitempty"`
	PMSEnabled        bool    `json:"pms_enabled"`
	AutomationEnabled bool    `json:"automation_enabled"`
}

// ResolvedListing is one unit of work for a sync pass: a local listing, the
// remote identifier it maps to, and the transport that is authoritative for it.
type ResolvedListing struct {
	ListingID         int64
	ExternalListingID string
	Transport         TransportType
	// DirectThread marks host<->guest conversations the platform surfaces
	// outside any specific listing; they attach to the host's first listing.
	DirectThread bool
}

// Booking is the minimal booking record needed for PMS delivery.
type Booking struct {
	ID        string    `json:"id"`
	ListingID int64     `json:"listing_id"`
	GuestName string    `json:"guest_name"`
	CheckIn   time.Time `json:"check_in"`
	CheckOut  time.Time `json:"check_out"`
}

// DeliveryResult reports the outcome of one outbound delivery attempt chain.
// SessionExpired marks failures caused by the automated session being
// rejected; callers abort the rest of the pass instead of trying the next
// conversation.
type DeliveryResult struct {
	Success        bool          `json:"success"`
	ChannelUsed    TransportType `json:"channel_used,omitempty"`
	MessageID      *string       `json:"message_id,omitempty"`
	Error          string        `json:"error,omitempty"`
	SessionExpired bool          `json:"session_expired,omitempty"`
}

// SyncReport is the return value of one syncHost pass. Every pass completes
// and reports; partial failures land in Errors rather than aborting the pass.
type SyncReport struct {
	HostID             int64     `json:"host_id"`
	PassID             string    `json:"pass_id"`
	ListingsFound      int       `json:"listings_found"`
	ConversationsFound int       `json:"conversations_found"`
	MessagesProcessed  int       `json:"messages_processed"`
	RepliesSent        int       `json:"replies_sent"`
	Errors             []string  `json:"errors"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
}

// AddError appends a scoped failure to the pass report.
func (r *SyncReport) AddError(context string, err error) {
	if err == nil {
		return
	}
	r.Errors = append(r.Errors, context+": "+err.Error())
}
