package syncer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/guestsync/internal/delivery"
	"github.com/guestsync/internal/logging"
	"github.com/guestsync/pkg/models"
)

// SendTestReply delivers operator-supplied text into an existing
// conversation through the normal delivery router, bypassing reply
// generation. It shares the per-host in-flight guard with SyncHost so a
// manual send never races a running pass for the same host.
func (o *Orchestrator) SendTestReply(ctx context.Context, conversationID int64, text string) models.DeliveryResult {
	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return models.DeliveryResult{Error: fmt.Sprintf("load conversation: %v", err)}
	}
	if conv == nil {
		return models.DeliveryResult{Error: fmt.Sprintf("conversation %d not found", conversationID)}
	}

	prop, err := o.store.PropertyByID(ctx, conv.ListingID)
	if err != nil {
		return models.DeliveryResult{Error: fmt.Sprintf("load listing: %v", err)}
	}
	if prop == nil {
		return models.DeliveryResult{Error: fmt.Sprintf("listing %d not found", conv.ListingID)}
	}

	if !o.acquire(prop.HostID) {
		return models.DeliveryResult{Error: fmt.Sprintf("a sync pass for host %d is in flight, try again later", prop.HostID)}
	}
	defer o.release(prop.HostID)

	report := &models.SyncReport{HostID: prop.HostID, Errors: []string{}}
	passLog, err := logging.StartSyncLogging(fmt.Sprintf("test-%d", conversationID), prop.HostID)
	if err != nil {
		log.Warn().Err(err).Msg("pass logging unavailable, continuing without")
	}
	defer passLog.Close()

	sess, _ := o.openSession(ctx, prop.HostID, report, passLog)
	if sess != nil {
		defer sess.Close()
	}

	var bookingID string
	if booking, err := o.store.LatestBookingForListing(ctx, conv.ListingID); err == nil && booking != nil {
		bookingID = booking.ID
	}

	result := o.router.Deliver(ctx, sess, delivery.Request{
		Listing:      prop,
		Conversation: conv,
		ReplyText:    text,
		BookingID:    bookingID,
		AIGenerated:  false,
	}, passLog)

	log.Info().
		Int64("conversation_id", conversationID).
		Bool("success", result.Success).
		Str("channel", string(result.ChannelUsed)).
		Msg("test reply delivery finished")
	return result
}
