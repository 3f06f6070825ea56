package syncer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guestsync/internal/delivery"
	"github.com/guestsync/internal/fetch"
	"github.com/guestsync/internal/reply"
	"github.com/guestsync/internal/syncerrors"
	"github.com/guestsync/pkg/models"
)

// memStore mirrors the store's idempotency semantics in memory: the
// (external_thread_id, source_transport) dedup key for conversations and the
// (conversation_id, content, direction) gate for messages.
type memStore struct {
	conversations []*models.Conversation
	messages      map[int64][]*models.Message
	properties    map[int64]*models.Property
	bookings      map[int64]*models.Booking
	nextID        int64

	// appendedAt records the SentAt of every write in insertion order.
	appendedAt []time.Time
}

func newMemStore() *memStore {
	return &memStore{
		messages:   make(map[int64][]*models.Message),
		properties: make(map[int64]*models.Property),
		bookings:   make(map[int64]*models.Booking),
	}
}

func (s *memStore) UpsertConversation(_ context.Context, conv *models.Conversation) error {
	for _, existing := range s.conversations {
		if existing.ExternalThreadID != nil && conv.ExternalThreadID != nil &&
			*existing.ExternalThreadID == *conv.ExternalThreadID &&
			existing.SourceTransport == conv.SourceTransport {
			conv.ID = existing.ID
			return nil
		}
	}
	s.nextID++
	conv.ID = s.nextID
	stored := *conv
	s.conversations = append(s.conversations, &stored)
	return nil
}

func (s *memStore) AppendMessageIfNew(_ context.Context, msg *models.Message) (bool, error) {
	for _, existing := range s.messages[msg.ConversationID] {
		if existing.Content == msg.Content && existing.Direction == msg.Direction {
			return false, nil
		}
	}
	s.nextID++
	msg.ID = s.nextID
	stored := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], &stored)
	s.appendedAt = append(s.appendedAt, msg.SentAt)
	return true, nil
}

func (s *memStore) ListMessages(_ context.Context, conversationID int64) ([]*models.Message, error) {
	return s.messages[conversationID], nil
}

func (s *memStore) LatestMessage(_ context.Context, conversationID int64) (*models.Message, error) {
	msgs := s.messages[conversationID]
	if len(msgs) == 0 {
		return nil, nil
	}
	latest := msgs[0]
	for _, m := range msgs[1:] {
		if !m.SentAt.Before(latest.SentAt) {
			latest = m
		}
	}
	return latest, nil
}

func (s *memStore) GetConversation(_ context.Context, id int64) (*models.Conversation, error) {
	for _, conv := range s.conversations {
		if conv.ID == id {
			return conv, nil
		}
	}
	return nil, fmt.Errorf("conversation not found: %d", id)
}

func (s *memStore) PropertyByID(_ context.Context, id int64) (*models.Property, error) {
	prop, ok := s.properties[id]
	if !ok {
		return nil, fmt.Errorf("property not found: %d", id)
	}
	return prop, nil
}

func (s *memStore) LatestBookingForListing(_ context.Context, listingID int64) (*models.Booking, error) {
	return s.bookings[listingID], nil
}

type fakeSource struct {
	threads []fetch.Thread
	err     error
}

func (f *fakeSource) Threads(_ context.Context, _ models.ResolvedListing) ([]fetch.Thread, error) {
	return f.threads, f.err
}

type fakeGenerator struct {
	text  string
	err   error
	calls int
}

func (f *fakeGenerator) GenerateReply(_ context.Context, _ string, _ reply.ListingContext) (string, error) {
	f.calls++
	return f.text, f.err
}

type stubPMS struct {
	err   error
	calls int
}

func (s *stubPMS) SendMessage(_ context.Context, _, _, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "pms-ack-1", nil
}

func pmsListing() models.ResolvedListing {
	return models.ResolvedListing{
		ListingID:         7,
		ExternalListingID: "L-1",
		Transport:         models.TransportPMSAPI,
	}
}

func guestThread(messages ...fetch.Message) fetch.Thread {
	return fetch.Thread{
		ExternalThreadID: "T-1",
		GuestDisplayName: "Mina",
		BookingID:        "B-9",
		Transport:        models.TransportPMSAPI,
		Messages:         messages,
	}
}

func testOrchestrator(st *memStore, src fetch.Source, gen reply.Generator, pms delivery.PMSSender) *Orchestrator {
	st.properties[7] = &models.Property{ID: 7, HostID: 1, Name: "Harbour Loft", PMSEnabled: true}
	router := delivery.NewRouter(st, pms, "booking", nil)
	return New(st, nil, nil, gen, router, src, Options{PMSChannel: "booking"})
}

func newReport() *models.SyncReport {
	return &models.SyncReport{HostID: 1, PassID: "test", Errors: []string{}}
}

func TestFreshThreadGetsOneAIReply(t *testing.T) {
	st := newMemStore()
	src := &fakeSource{threads: []fetch.Thread{guestThread(fetch.Message{
		ExternalID: "m1",
		Content:    "What time is check-in?",
		IsGuest:    true,
		SentAt:     time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	})}}
	gen := &fakeGenerator{text: "Check-in is from 3pm."}
	o := testOrchestrator(st, src, gen, &stubPMS{})

	ctx := context.Background()
	report := newReport()

	pending, expired := o.fetchPhase(ctx, []models.ResolvedListing{pmsListing()}, nil, report, nil)
	require.False(t, expired)
	require.Len(t, pending, 1)
	assert.Equal(t, "What time is check-in?", pending[0].guestMessage.Content)

	generated := o.generatePhase(ctx, pending, report, nil)
	require.Len(t, generated, 1)

	require.False(t, o.deliverPhase(ctx, nil, generated, report, nil))

	require.Len(t, st.conversations, 1)
	msgs := st.messages[st.conversations[0].ID]
	require.Len(t, msgs, 2)
	assert.Equal(t, models.DirectionInbound, msgs[0].Direction)

	outbound := msgs[1]
	assert.Equal(t, models.DirectionOutbound, outbound.Direction)
	assert.True(t, outbound.IsAIGenerated)
	assert.Equal(t, "Check-in is from 3pm.", outbound.Content)
	assert.Equal(t, models.TransportPMSAPI, outbound.Channel())

	assert.Equal(t, 1, report.ConversationsFound)
	assert.Equal(t, 1, report.MessagesProcessed)
	assert.Equal(t, 1, report.RepliesSent)
	assert.Empty(t, report.Errors)

	// The next pass sees the reply as the newest message and leaves the
	// conversation alone.
	pending, expired = o.fetchPhase(ctx, []models.ResolvedListing{pmsListing()}, nil, newReport(), nil)
	require.False(t, expired)
	assert.Empty(t, pending)
	assert.Equal(t, 1, gen.calls)
}

func TestReingestionIsIdempotent(t *testing.T) {
	st := newMemStore()
	src := &fakeSource{threads: []fetch.Thread{guestThread(fetch.Message{
		ExternalID: "m1",
		Content:    "Hi there",
		IsGuest:    true,
		SentAt:     time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	})}}
	o := testOrchestrator(st, src, &fakeGenerator{text: "Hello"}, &stubPMS{})

	ctx := context.Background()
	listings := []models.ResolvedListing{pmsListing()}

	first := newReport()
	_, expired := o.fetchPhase(ctx, listings, nil, first, nil)
	require.False(t, expired)

	// The transports return full snapshots every pass; a second ingestion of
	// the same thread must not grow the store.
	second := newReport()
	pending, expired := o.fetchPhase(ctx, listings, nil, second, nil)
	require.False(t, expired)

	require.Len(t, st.conversations, 1, "same remote thread never produces two conversations")
	require.Len(t, st.messages[st.conversations[0].ID], 1)
	assert.Equal(t, 1, first.MessagesProcessed)
	assert.Zero(t, second.MessagesProcessed, "re-ingested messages are not counted as new")
	require.Len(t, pending, 1, "the unanswered guest message still awaits a reply")
}

func TestIngestionWritesAscendingSentOrder(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	st := newMemStore()
	// Snapshot order deliberately scrambled; insertion must sort by sentAt.
	src := &fakeSource{threads: []fetch.Thread{guestThread(
		fetch.Message{ExternalID: "m3", Content: "third", IsGuest: true, SentAt: base.Add(2 * time.Minute)},
		fetch.Message{ExternalID: "m1", Content: "first", IsGuest: true, SentAt: base},
		fetch.Message{ExternalID: "m2", Content: "second", IsGuest: false, SentAt: base.Add(time.Minute)},
	)}}
	o := testOrchestrator(st, src, &fakeGenerator{text: "ok"}, &stubPMS{})

	_, expired := o.fetchPhase(context.Background(), []models.ResolvedListing{pmsListing()}, nil, newReport(), nil)
	require.False(t, expired)

	require.Len(t, st.appendedAt, 3)
	for i := 1; i < len(st.appendedAt); i++ {
		assert.False(t, st.appendedAt[i].Before(st.appendedAt[i-1]),
			"write %d arrived out of sent order", i)
	}
}

func TestDeliverPhaseStopsOnSessionExpiry(t *testing.T) {
	st := newMemStore()
	pms := &stubPMS{err: fmt.Errorf("redirected to login: %w", syncerrors.ErrSessionExpired)}
	o := testOrchestrator(st, &fakeSource{}, &fakeGenerator{text: "ok"}, pms)

	generated := []*pendingReply{
		{
			conversation: &models.Conversation{ID: 1},
			listing:      st.properties[7],
			replyText:    "First reply",
			bookingID:    "B-9",
		},
		{
			conversation: &models.Conversation{ID: 2},
			listing:      st.properties[7],
			replyText:    "Second reply",
			bookingID:    "B-9",
		},
	}

	report := newReport()
	require.True(t, o.deliverPhase(context.Background(), nil, generated, report, nil))
	assert.Equal(t, 1, pms.calls, "expiry aborts before the next conversation is attempted")
	assert.Zero(t, report.RepliesSent)
}
