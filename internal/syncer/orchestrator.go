// Package syncer ties resolver, fetcher, store, reply generator and delivery
// router into one pass-per-host synchronization cycle.
package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/guestsync/internal/delivery"
	"github.com/guestsync/internal/fetch"
	"github.com/guestsync/internal/logging"
	"github.com/guestsync/internal/platform"
	"github.com/guestsync/internal/reply"
	"github.com/guestsync/internal/resolver"
	"github.com/guestsync/internal/session"
	"github.com/guestsync/internal/syncerrors"
	"github.com/guestsync/pkg/models"
)

// Options configures the orchestrator.
type Options struct {
	PlatformBaseURL string
	RequestTimeout  time.Duration
	RatePerSecond   float64
	RateBurst       int
	BrowserOptions  session.BrowserOptions
	PMSChannel      string
	RecentContext   int // messages of context handed to the reply generator
}

// Store is the slice of the persistence layer one pass touches.
// *store.Store satisfies it.
type Store interface {
	UpsertConversation(ctx context.Context, conv *models.Conversation) error
	AppendMessageIfNew(ctx context.Context, msg *models.Message) (bool, error)
	ListMessages(ctx context.Context, conversationID int64) ([]*models.Message, error)
	LatestMessage(ctx context.Context, conversationID int64) (*models.Message, error)
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	PropertyByID(ctx context.Context, id int64) (*models.Property, error)
	LatestBookingForListing(ctx context.Context, listingID int64) (*models.Booking, error)
}

// Orchestrator runs synchronization passes. Passes for different hosts may
// run concurrently; a per-host in-flight guard keeps a single host from ever
// having two passes at once, which would double-send replies.
type Orchestrator struct {
	store       Store
	credentials session.Provider
	resolver    *resolver.Resolver
	generator   reply.Generator
	router      *delivery.Router
	pmsSource   fetch.Source // nil without a PMS integration
	opts        Options

	mu       sync.Mutex
	inFlight map[int64]bool
}

// New creates an orchestrator.
func New(st Store, creds session.Provider, res *resolver.Resolver, gen reply.Generator, router *delivery.Router, pmsSource fetch.Source, opts Options) *Orchestrator {
	if opts.RecentContext <= 0 {
		opts.RecentContext = 6
	}
	return &Orchestrator{
		store:       st,
		credentials: creds,
		resolver:    res,
		generator:   gen,
		router:      router,
		pmsSource:   pmsSource,
		opts:        opts,
		inFlight:    make(map[int64]bool),
	}
}

// pendingReply is one conversation awaiting a generated reply.
type pendingReply struct {
	conversation *models.Conversation
	listing      *models.Property
	guestMessage *models.Message
	bookingID    string
	replyText    string
}

// SyncHost runs one synchronization pass for a host. It never panics or
// raises past a pass: every pass completes and reports partial success
// counts plus accumulated errors.
func (o *Orchestrator) SyncHost(ctx context.Context, hostID int64) *models.SyncReport {
	report := &models.SyncReport{
		HostID:    hostID,
		PassID:    uuid.NewString()[:8],
		StartedAt: time.Now(),
		Errors:    []string{},
	}
	defer func() { report.FinishedAt = time.Now() }()

	if !o.acquire(hostID) {
		report.AddError("pass", fmt.Errorf("a sync pass for host %d is already in flight", hostID))
		return report
	}
	defer o.release(hostID)

	passLog, err := logging.StartSyncLogging(report.PassID, hostID)
	if err != nil {
		log.Warn().Err(err).Msg("pass logging unavailable, continuing without")
	}
	defer passLog.Close()

	machine := newPassMachine(report.PassID)
	fire := func(trigger passTrigger) {
		if err := machine.Fire(trigger); err != nil {
			// A refused transition is a programming error, not a pass error.
			log.Error().Err(err).Str("pass_id", report.PassID).Msg("state machine refused transition")
		}
	}

	// The pass owns exactly one automated session; it is released on every
	// exit path, success or failure.
	sess, platformClient := o.openSession(ctx, hostID, report, passLog)
	if sess != nil {
		defer sess.Close()
	}

	fire(triggerStart)
	passLog.LogSection("resolving listings")

	listings, err := o.resolver.Resolve(ctx, hostID, platformClient, passLog)
	if err != nil {
		report.AddError("resolve", err)
		if syncerrors.IsSessionExpired(err) {
			o.handleExpiry(hostID, report, passLog)
			fire(triggerAbort)
			return report
		}
	}
	report.ListingsFound = len(listings)
	fire(triggerResolved)

	passLog.LogSection("fetching inbound messages")
	pending, expired := o.fetchPhase(ctx, listings, platformClient, report, passLog)
	if expired {
		o.handleExpiry(hostID, report, passLog)
		fire(triggerAbort)
		return report
	}
	fire(triggerFetched)

	passLog.LogSection("generating replies")
	generated := o.generatePhase(ctx, pending, report, passLog)
	fire(triggerGenerated)

	passLog.LogSection("delivering replies")
	if expired := o.deliverPhase(ctx, sess, generated, report, passLog); expired {
		o.handleExpiry(hostID, report, passLog)
		fire(triggerAbort)
		return report
	}
	fire(triggerFinish)

	log.Info().
		Int64("host_id", hostID).
		Str("pass_id", report.PassID).
		Int("listings", report.ListingsFound).
		Int("conversations", report.ConversationsFound).
		Int("messages", report.MessagesProcessed).
		Int("replies", report.RepliesSent).
		Int("errors", len(report.Errors)).
		Msg("sync pass finished")
	return report
}

// openSession builds the per-pass platform session. A credential failure is
// a pass error but not fatal: PMS-only hosts can still sync.
func (o *Orchestrator) openSession(ctx context.Context, hostID int64, report *models.SyncReport, passLog *logging.SyncLogger) (*session.Session, *platform.Client) {
	creds, err := o.credentials.Credentials(ctx, hostID)
	if err != nil {
		report.AddError("credentials", err)
		passLog.LogError("load credentials", err)
		return nil, nil
	}

	sess, err := session.New(creds, o.opts.PlatformBaseURL, o.opts.RequestTimeout)
	if err != nil {
		report.AddError("session", err)
		passLog.LogError("build session", err)
		return nil, nil
	}

	if sess.LikelyExpired() {
		passLog.Log("session token expiry already passed, requesting fresh credentials")
		o.credentials.Invalidate(hostID)
		report.AddError("session", syncerrors.ErrSessionExpired)
		sess.Close()
		return nil, nil
	}

	return sess, platform.NewClient(sess, o.opts.RatePerSecond, o.opts.RateBurst)
}

// fetchPhase ingests inbound messages listing by listing and returns the
// conversations whose newest message is an unanswered guest message.
func (o *Orchestrator) fetchPhase(ctx context.Context, listings []models.ResolvedListing, platformClient *platform.Client, report *models.SyncReport, passLog *logging.SyncLogger) (pending []*pendingReply, expired bool) {
	for _, listing := range listings {
		source := o.sourceFor(listing, platformClient, passLog)
		if source == nil {
			report.AddError(fmt.Sprintf("listing %d", listing.ListingID), syncerrors.ErrTransportUnavailable)
			continue
		}

		threads, err := source.Threads(ctx, listing)
		if err != nil {
			report.AddError(fmt.Sprintf("listing %d fetch", listing.ListingID), err)
			if syncerrors.IsSessionExpired(err) {
				return pending, true
			}
			continue
		}

		for _, thread := range threads {
			p, err := o.ingestThread(ctx, listing, thread, report)
			if err != nil {
				report.AddError(fmt.Sprintf("thread %s", thread.ExternalThreadID), err)
				continue
			}
			if p != nil {
				pending = append(pending, p)
			}
		}
	}

	return pending, false
}

// ingestThread writes one thread snapshot into the store, in ascending
// sentAt order so the reply generator always sees the true most-recent
// guest message. Returns a pendingReply when the conversation needs one.
func (o *Orchestrator) ingestThread(ctx context.Context, listing models.ResolvedListing, thread fetch.Thread, report *models.SyncReport) (*pendingReply, error) {
	externalID := thread.ExternalThreadID
	conv := &models.Conversation{
		ListingID:        listing.ListingID,
		GuestDisplayName: thread.GuestDisplayName,
		ExternalThreadID: &externalID,
		SourceTransport:  thread.Transport,
	}
	if err := o.store.UpsertConversation(ctx, conv); err != nil {
		return nil, err
	}
	report.ConversationsFound++

	messages := append([]fetch.Message(nil), thread.Messages...)
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].SentAt.Before(messages[j].SentAt)
	})

	for _, m := range messages {
		direction := models.DirectionOutbound
		if m.IsGuest {
			direction = models.DirectionInbound
		}

		msg := &models.Message{
			ConversationID: conv.ID,
			Content:        m.Content,
			Direction:      direction,
			SentAt:         m.SentAt,
			Metadata: map[string]string{
				"channel": string(thread.Transport),
			},
		}
		if m.ExternalID != "" {
			id := m.ExternalID
			msg.ExternalMessageID = &id
		}
		if m.LowConfidence {
			msg.Metadata["classification"] = "heuristic"
		}

		inserted, err := o.store.AppendMessageIfNew(ctx, msg)
		if err != nil {
			return nil, err
		}
		if inserted {
			report.MessagesProcessed++
		}
	}

	latest, err := o.store.LatestMessage(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if latest == nil || latest.Direction != models.DirectionInbound {
		return nil, nil
	}

	prop, err := o.store.PropertyByID(ctx, conv.ListingID)
	if err != nil {
		return nil, err
	}

	bookingID := thread.BookingID
	if bookingID == "" {
		if booking, err := o.store.LatestBookingForListing(ctx, conv.ListingID); err == nil && booking != nil {
			bookingID = booking.ID
		}
	}

	return &pendingReply{
		conversation: conv,
		listing:      prop,
		guestMessage: latest,
		bookingID:    bookingID,
	}, nil
}

// generatePhase asks the reply service for text, one conversation at a
// time. Generation failures are per-conversation errors.
func (o *Orchestrator) generatePhase(ctx context.Context, pending []*pendingReply, report *models.SyncReport, passLog *logging.SyncLogger) []*pendingReply {
	var generated []*pendingReply
	for _, p := range pending {
		listingCtx := reply.ListingContext{
			ListingName: p.listing.Name,
			GuestName:   p.conversation.GuestDisplayName,
		}
		if history, err := o.store.ListMessages(ctx, p.conversation.ID); err == nil {
			start := len(history) - o.opts.RecentContext
			if start < 0 {
				start = 0
			}
			for _, m := range history[start:] {
				prefix := "host"
				if m.Direction == models.DirectionInbound {
					prefix = "guest"
				}
				listingCtx.RecentMessages = append(listingCtx.RecentMessages, prefix+": "+m.Content)
			}
		}

		text, err := o.generator.GenerateReply(ctx, p.guestMessage.Content, listingCtx)
		if err != nil {
			report.AddError(fmt.Sprintf("conversation %d generate", p.conversation.ID), err)
			passLog.LogError(fmt.Sprintf("generate reply for conversation %d", p.conversation.ID), err)
			continue
		}

		p.replyText = text
		generated = append(generated, p)
	}
	return generated
}

// deliverPhase routes each generated reply. Delivery failures are
// per-conversation; a no-channel outcome leaves the conversation awaiting a
// future pass or a manual reply.
func (o *Orchestrator) deliverPhase(ctx context.Context, sess *session.Session, generated []*pendingReply, report *models.SyncReport, passLog *logging.SyncLogger) bool {
	for _, p := range generated {
		result := o.router.Deliver(ctx, sess, delivery.Request{
			Listing:      p.listing,
			Conversation: p.conversation,
			ReplyText:    p.replyText,
			BookingID:    p.bookingID,
			AIGenerated:  true,
		}, passLog)

		if !result.Success {
			report.AddError(fmt.Sprintf("conversation %d deliver", p.conversation.ID), fmt.Errorf("%s", result.Error))
			if result.SessionExpired {
				return true
			}
			continue
		}
		report.RepliesSent++
	}
	return false
}

func (o *Orchestrator) sourceFor(listing models.ResolvedListing, platformClient *platform.Client, passLog *logging.SyncLogger) fetch.Source {
	switch listing.Transport {
	case models.TransportPMSAPI:
		if o.pmsSource == nil {
			return nil
		}
		return o.pmsSource
	case models.TransportBrowserAutomation:
		if platformClient == nil {
			return nil
		}
		return fetch.NewPlatformSource(platformClient, passLog)
	default:
		return nil
	}
}

func (o *Orchestrator) handleExpiry(hostID int64, report *models.SyncReport, passLog *logging.SyncLogger) {
	passLog.Log("session expired, aborting remainder of pass for host %d", hostID)
	o.credentials.Invalidate(hostID)
	log.Warn().Int64("host_id", hostID).Str("pass_id", report.PassID).Msg("pass short-circuited by session expiry")
}

func (o *Orchestrator) acquire(hostID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[hostID] {
		return false
	}
	o.inFlight[hostID] = true
	return true
}

func (o *Orchestrator) release(hostID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, hostID)
}

