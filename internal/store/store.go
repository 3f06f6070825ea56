package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/guestsync/pkg/models"
)

// Store provides the canonical, append-mostly conversation/message record.
// It is the only mutable state shared across concurrent host passes; all
// writes go through idempotent upsert/append operations so passes for
// different hosts need no cross-host locking.
type Store struct {
	db *sql.DB
}

// New creates a new store instance
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertConversation creates or returns the conversation identified by the
// (external_thread_id, source_transport) dedup key. Conversations are created
// lazily on first inbound or outbound message and never hard-deleted.
func (s *Store) UpsertConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.Status == "" {
		conv.Status = models.ConversationOpen
	}
	if conv.LastMessageAt.IsZero() {
		conv.LastMessageAt = time.Now()
	}

	if conv.ExternalThreadID == nil {
		query := `
		INSERT INTO conversations (listing_id, guest_display_name, external_thread_id, source_transport, status, last_message_at)
		VALUES ($1, $2, NULL, $3, $4, $5)
		RETURNING id, created_at
		`
		err := s.db.QueryRowContext(ctx, query,
			conv.ListingID, conv.GuestDisplayName, conv.SourceTransport, conv.Status, conv.LastMessageAt,
		).Scan(&conv.ID, &conv.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		return nil
	}

	query := `
	INSERT INTO conversations (listing_id, guest_display_name, external_thread_id, source_transport, status, last_message_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (external_thread_id, source_transport) WHERE external_thread_id IS NOT NULL
	DO UPDATE SET guest_display_name = CASE
		WHEN conversations.guest_display_name = '' THEN EXCLUDED.guest_display_name
		ELSE conversations.guest_display_name
	END
	RETURNING id, guest_display_name, status, last_message_at, created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		conv.ListingID, conv.GuestDisplayName, *conv.ExternalThreadID, conv.SourceTransport, conv.Status, conv.LastMessageAt,
	).Scan(&conv.ID, &conv.GuestDisplayName, &conv.Status, &conv.LastMessageAt, &conv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}
	return nil
}

// AppendMessageIfNew inserts a message unless the conversation already holds
// one with the same (content, direction). The remote transports return full
// thread history on every fetch, so this gate is what keeps re-ingestion
// idempotent across passes. Returns whether a row was actually written.
func (s *Store) AppendMessageIfNew(ctx context.Context, msg *models.Message) (bool, error) {
	var metadata interface{}
	if len(msg.Metadata) > 0 {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return false, fmt.Errorf("failed to marshal message metadata: %w", err)
		}
		metadata = raw
	}

	query := `
	INSERT INTO messages (conversation_id, content, direction, is_ai_generated, external_message_id, sent_at, metadata)
	SELECT $1, $2, $3, $4, $5, $6, $7
	WHERE NOT EXISTS (
		SELECT 1 FROM messages
		WHERE conversation_id = $1 AND content = $2 AND direction = $3
	)
	RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		msg.ConversationID, msg.Content, msg.Direction, msg.IsAIGenerated,
		msg.ExternalMessageID, msg.SentAt, metadata,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err == sql.ErrNoRows {
		// Duplicate (content, direction) within the conversation; nothing written.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to append message: %w", err)
	}

	touch := `UPDATE conversations SET last_message_at = GREATEST(last_message_at, $2) WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, touch, msg.ConversationID, msg.SentAt); err != nil {
		return true, fmt.Errorf("failed to touch conversation: %w", err)
	}

	log.Debug().
		Int64("conversation_id", msg.ConversationID).
		Str("direction", string(msg.Direction)).
		Msg("message appended")
	return true, nil
}

// ListMessages returns a conversation's messages in ascending sent order.
func (s *Store) ListMessages(ctx context.Context, conversationID int64) ([]*models.Message, error) {
	query := `
	SELECT id, conversation_id, content, direction, is_ai_generated, external_message_id, sent_at, metadata, created_at
	FROM messages
	WHERE conversation_id = $1
	ORDER BY sent_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// LatestMessage returns the newest message in a conversation, or nil.
func (s *Store) LatestMessage(ctx context.Context, conversationID int64) (*models.Message, error) {
	query := `
	SELECT id, conversation_id, content, direction, is_ai_generated, external_message_id, sent_at, metadata, created_at
	FROM messages
	WHERE conversation_id = $1
	ORDER BY sent_at DESC, id DESC
	LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, conversationID)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	query := `
	SELECT id, listing_id, guest_display_name, external_thread_id, source_transport, status, last_message_at, created_at
	FROM conversations
	WHERE id = $1
	`
	var conv models.Conversation
	var externalID sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID, &conv.ListingID, &conv.GuestDisplayName, &externalID,
		&conv.SourceTransport, &conv.Status, &conv.LastMessageAt, &conv.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if externalID.Valid {
		conv.ExternalThreadID = &externalID.String
	}
	return &conv, nil
}

// ListConversationsByHost returns all conversations for a host's listings,
// most recently active first.
func (s *Store) ListConversationsByHost(ctx context.Context, hostID int64) ([]*models.Conversation, error) {
	query := `
	SELECT c.id, c.listing_id, c.guest_display_name, c.external_thread_id, c.source_transport, c.status, c.last_message_at, c.created_at
	FROM conversations c
	JOIN properties p ON p.id = c.listing_id
	WHERE p.host_id = $1
	ORDER BY c.last_message_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		var conv models.Conversation
		var externalID sql.NullString
		if err := rows.Scan(
			&conv.ID, &conv.ListingID, &conv.GuestDisplayName, &externalID,
			&conv.SourceTransport, &conv.Status, &conv.LastMessageAt, &conv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if externalID.Valid {
			conv.ExternalThreadID = &externalID.String
		}
		conversations = append(conversations, &conv)
	}
	return conversations, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var externalID sql.NullString
	var metadata []byte
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.Content, &msg.Direction, &msg.IsAIGenerated,
		&externalID, &msg.SentAt, &metadata, &msg.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	if externalID.Valid {
		msg.ExternalMessageID = &externalID.String
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message metadata: %w", err)
		}
	}
	return &msg, nil
}
