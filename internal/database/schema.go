package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied idempotently at startup. The partial unique index on
// (external_thread_id, source_transport) is the dedup key for remote threads.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS properties (
		id BIGSERIAL PRIMARY KEY,
		host_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		external_listing_id TEXT,
		pms_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		automation_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_properties_host ON properties (host_id)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id BIGSERIAL PRIMARY KEY,
		listing_id BIGINT NOT NULL REFERENCES properties(id),
		guest_display_name TEXT NOT NULL DEFAULT '',
		external_thread_id TEXT,
		source_transport TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_external
		ON conversations (external_thread_id, source_transport)
		WHERE external_thread_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		conversation_id BIGINT NOT NULL REFERENCES conversations(id),
		content TEXT NOT NULL,
		direction TEXT NOT NULL,
		is_ai_generated BOOLEAN NOT NULL DEFAULT FALSE,
		external_message_id TEXT,
		sent_at TIMESTAMPTZ NOT NULL,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, sent_at)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		listing_id BIGINT NOT NULL REFERENCES properties(id),
		guest_name TEXT NOT NULL DEFAULT '',
		check_in TIMESTAMPTZ,
		check_out TIMESTAMPTZ
	)`,
}

// Migrate applies the schema statements in order.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d failed: %w", i, err)
		}
	}
	return nil
}
