// Package delivery routes outbound replies through an ordered list of
// transports, failing over from the PMS API to browser automation. The
// attempt order and stop condition are data, not buried branching logic.
package delivery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/guestsync/internal/logging"
	"github.com/guestsync/internal/platform"
	"github.com/guestsync/internal/session"
	"github.com/guestsync/internal/syncerrors"
	"github.com/guestsync/pkg/models"
)

// PMSSender is the slice of the PMS client the router needs.
type PMSSender interface {
	SendMessage(ctx context.Context, bookingID, text, channel string) (string, error)
}

// UISender is the slice of the UI send primitive the router needs.
type UISender interface {
	Send(ctx context.Context, sess *session.Session, numericThreadID int64, text string, passLog *logging.SyncLogger) (*platform.SendOutcome, error)
}

// MessageAppender persists outbound messages. *store.Store satisfies it.
type MessageAppender interface {
	AppendMessageIfNew(ctx context.Context, msg *models.Message) (bool, error)
}

// Router picks a transport for each outbound reply and records the outbound
// message with the channel that actually delivered it.
type Router struct {
	store      MessageAppender
	pms        PMSSender // nil when no PMS integration is configured
	pmsChannel string
	ui         UISender // nil when browser automation is disabled
}

// NewRouter creates a delivery router. Either sender may be nil.
func NewRouter(st MessageAppender, pms PMSSender, pmsChannel string, ui UISender) *Router {
	return &Router{store: st, pms: pms, pmsChannel: pmsChannel, ui: ui}
}

// Request carries everything one delivery needs.
type Request struct {
	Listing      *models.Property
	Conversation *models.Conversation
	ReplyText    string
	BookingID    string // optional; required for the PMS channel
	AIGenerated  bool
}

// attempt is one entry of the ordered channel list.
type attempt struct {
	channel models.TransportType
	skip    string // non-empty: why this channel is not eligible
	send    func(ctx context.Context) (messageID *string, err error)
}

// Deliver walks the channel list in priority order, stopping at the first
// success. On success the outbound message is persisted with
// metadata.channel set to the channel that actually delivered - never the
// first one attempted. With no eligible channel, delivery fails immediately
// and nothing is persisted.
func (r *Router) Deliver(ctx context.Context, sess *session.Session, req Request, passLog *logging.SyncLogger) models.DeliveryResult {
	attempts := r.buildAttempts(sess, req, passLog)

	var lastErr error
	for _, att := range attempts {
		if att.skip != "" {
			passLog.Log("channel %s skipped: %s", att.channel, att.skip)
			continue
		}

		messageID, err := att.send(ctx)
		if err != nil {
			if syncerrors.IsSessionExpired(err) {
				// Not a channel problem; every later automated call would
				// fail identically, so surface it to the pass.
				return models.DeliveryResult{Success: false, Error: err.Error(), SessionExpired: true}
			}
			// Demote to the next channel; keep the original error for
			// diagnostics.
			passLog.LogError(fmt.Sprintf("channel %s send", att.channel), err)
			lastErr = err
			continue
		}

		if err := r.persistOutbound(ctx, req, att.channel, messageID); err != nil {
			// The remote send already happened; losing the local record is
			// worse than reporting it, but delivery itself succeeded.
			passLog.LogError("persist outbound message", err)
		}

		log.Info().
			Int64("conversation_id", req.Conversation.ID).
			Str("channel", string(att.channel)).
			Msg("reply delivered")
		return models.DeliveryResult{Success: true, ChannelUsed: att.channel, MessageID: messageID}
	}

	if lastErr != nil {
		return models.DeliveryResult{Success: false, Error: lastErr.Error()}
	}
	return models.DeliveryResult{Success: false, Error: syncerrors.ErrNoDeliveryChannel.Error()}
}

// buildAttempts assembles the ordered channel list for one request:
// PMS API first when integration, listing flag and booking id line up;
// browser automation as the universal fallback.
func (r *Router) buildAttempts(sess *session.Session, req Request, passLog *logging.SyncLogger) []attempt {
	pmsAttempt := attempt{channel: models.TransportPMSAPI}
	switch {
	case r.pms == nil:
		pmsAttempt.skip = "no PMS integration configured"
	case !req.Listing.PMSEnabled:
		pmsAttempt.skip = "PMS disabled for listing"
	case req.BookingID == "":
		pmsAttempt.skip = "no booking id known for conversation"
	default:
		pmsAttempt.send = func(ctx context.Context) (*string, error) {
			ack, err := r.pms.SendMessage(ctx, req.BookingID, req.ReplyText, r.pmsChannel)
			if err != nil {
				return nil, err
			}
			return &ack, nil
		}
	}

	uiAttempt := attempt{channel: models.TransportBrowserAutomation}
	numericThreadID, threadErr := conversationThreadID(req.Conversation)
	switch {
	case r.ui == nil:
		uiAttempt.skip = "browser automation disabled"
	case !req.Listing.AutomationEnabled:
		uiAttempt.skip = "browser automation disabled for listing"
	case sess == nil:
		uiAttempt.skip = "no automated session available"
	case threadErr != nil:
		uiAttempt.skip = threadErr.Error()
	default:
		uiAttempt.send = func(ctx context.Context) (*string, error) {
			outcome, err := r.ui.Send(ctx, sess, numericThreadID, req.ReplyText, passLog)
			if err != nil {
				return nil, err
			}
			if !outcome.Success {
				return nil, fmt.Errorf("UI send reported failure")
			}
			return outcome.MessageID, nil
		}
	}

	return []attempt{pmsAttempt, uiAttempt}
}

func (r *Router) persistOutbound(ctx context.Context, req Request, channel models.TransportType, messageID *string) error {
	msg := &models.Message{
		ConversationID:    req.Conversation.ID,
		Content:           req.ReplyText,
		Direction:         models.DirectionOutbound,
		IsAIGenerated:     req.AIGenerated,
		ExternalMessageID: messageID,
		SentAt:            time.Now(),
		Metadata: map[string]string{
			"channel":    string(channel),
			"listing_id": strconv.FormatInt(req.Listing.ID, 10),
		},
	}
	_, err := r.store.AppendMessageIfNew(ctx, msg)
	return err
}

// conversationThreadID extracts the numeric platform thread id from a
// conversation's external identifier.
func conversationThreadID(conv *models.Conversation) (int64, error) {
	if conv.ExternalThreadID == nil || *conv.ExternalThreadID == "" {
		return 0, fmt.Errorf("conversation has no external thread id")
	}
	_, numericID, err := platform.DecodeThreadID(*conv.ExternalThreadID)
	if err != nil {
		return 0, fmt.Errorf("conversation thread id undecodable: %w", err)
	}
	return numericID, nil
}
