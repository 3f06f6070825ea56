package platform

import (
	"fmt"
	"strings"
	"time"
)

// Confidence of a sender classification.
type Confidence string

const (
	// ConfidenceRoleMap means the sender matched the thread's participant
	// role map. This is the designed path.
	ConfidenceRoleMap Confidence = "role_map"
	// ConfidenceHeuristic means no participant matched and classification
	// fell back to content/role-absence heuristics. Lossy; always logged.
	ConfidenceHeuristic Confidence = "heuristic"
)

// NormalizedMessage is the validated intermediate shape the rest of the
// pipeline consumes. Raw platform payloads never travel past this point, so
// a platform shape change is absorbed here and nowhere else.
type NormalizedMessage struct {
	ExternalID string
	Content    string
	IsGuest    bool
	SentAt     time.Time
	Confidence Confidence
}

// NormalizedThread is a thread after shape validation.
type NormalizedThread struct {
	ExternalThreadID string
	NumericID        int64
	ListingID        string
	GuestDisplayName string
	Messages         []NormalizedMessage
	// LowConfidenceCount tallies messages classified heuristically.
	LowConfidenceCount int
}

// Timestamp formats observed from the platform. Checked in order.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Autoreply phrasings the platform injects on the host's behalf. A message
// matching one of these is host-side even when the sender is unknown.
var autoreplyMarkers = []string{
	"automatic reply",
	"this is an automated response",
	"thank you for your enquiry",
}

// Normalize validates a raw thread and classifies each message's sender.
// Shape errors are terminal for the thread (the orchestrator counts it as
// zero messages this pass); classification never fails, it degrades.
func Normalize(raw *RawThread) (*NormalizedThread, error) {
	if raw == nil {
		return nil, fmt.Errorf("nil thread payload")
	}
	if raw.OpaqueID == "" {
		return nil, fmt.Errorf("thread payload missing id")
	}

	_, numericID, err := DecodeThreadID(raw.OpaqueID)
	if err != nil {
		return nil, fmt.Errorf("thread payload has undecodable id: %w", err)
	}

	roleByAccount := make(map[string]string, len(raw.Participants))
	guestName := raw.GuestName
	for _, p := range raw.Participants {
		if p.AccountID == "" {
			continue
		}
		roleByAccount[p.AccountID] = strings.ToLower(p.Role)
		if guestName == "" && strings.EqualFold(p.Role, "guest") {
			guestName = p.DisplayName
		}
	}

	thread := &NormalizedThread{
		ExternalThreadID: raw.OpaqueID,
		NumericID:        numericID,
		ListingID:        raw.ListingID,
		GuestDisplayName: guestName,
	}

	for i, m := range raw.Messages {
		if m.Content == "" {
			// Media-only or withdrawn messages carry no text; skip rather
			// than ingest an empty row.
			continue
		}

		sentAt, err := parseTimestamp(m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("message %d has unparseable timestamp %q: %w", i, m.CreatedAt, err)
		}

		isGuest, confidence := classifySender(m, roleByAccount)
		if confidence == ConfidenceHeuristic {
			thread.LowConfidenceCount++
		}

		thread.Messages = append(thread.Messages, NormalizedMessage{
			ExternalID: m.ID,
			Content:    m.Content,
			IsGuest:    isGuest,
			SentAt:     sentAt,
			Confidence: confidence,
		})
	}

	return thread, nil
}

// classifySender maps a message to guest/host. The participant role map is
// authoritative; when the sender is absent from it, fall back to heuristics
// and report the result as low confidence.
func classifySender(m RawMessage, roleByAccount map[string]string) (isGuest bool, confidence Confidence) {
	if role, ok := roleByAccount[m.SenderAccountID]; ok {
		switch role {
		case "guest":
			return true, ConfidenceRoleMap
		case "host", "cohost", "support":
			return false, ConfidenceRoleMap
		}
	}

	// Heuristic 1: autoreply phrasing is host-side machinery.
	lower := strings.ToLower(m.Content)
	for _, marker := range autoreplyMarkers {
		if strings.Contains(lower, marker) {
			return false, ConfidenceHeuristic
		}
	}

	// Heuristic 2: a sender that is not any known self-side participant is
	// more likely the guest; the role map contains the host account even
	// when guest entries are missing.
	for _, role := range roleByAccount {
		if role == "host" || role == "cohost" {
			return true, ConfidenceHeuristic
		}
	}

	// Last resort: assume guest, so an unmatched inbound still gets a reply
	// rather than being silently treated as our own.
	return true, ConfidenceHeuristic
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, format := range timestampFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
