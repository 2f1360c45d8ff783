package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the goose migrations for local sqlite runs and tests.
// Identifiers are generated in Go, so no column relies on gen_random_uuid().
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'new',
		priority INTEGER NOT NULL DEFAULT 0,
		requester_id TEXT NOT NULL,
		requester_type TEXT NOT NULL,
		channel TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		last_activity_at DATETIME NOT NULL,
		sla_first_response_due_at DATETIME,
		sla_resolution_due_at DATETIME,
		archived_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		sender_type TEXT NOT NULL,
		author_id TEXT,
		content TEXT NOT NULL,
		confidence REAL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS queues (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		skills TEXT NOT NULL DEFAULT '[]',
		is_default BOOLEAN NOT NULL DEFAULT 0,
		priority_policy TEXT NOT NULL DEFAULT 'fifo',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_queues_single_default ON queues (is_default) WHERE is_default`,
	`CREATE TABLE IF NOT EXISTS queue_items (
		id TEXT PRIMARY KEY,
		queue_id TEXT NOT NULL REFERENCES queues(id),
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		state TEXT NOT NULL,
		enqueued_at DATETIME NOT NULL,
		dequeued_at DATETIME,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_queue_items_active ON queue_items (queue_id, conversation_id) WHERE state IN ('queued', 'hot')`,
	`CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		queue_id TEXT NOT NULL REFERENCES queues(id),
		queue_item_id TEXT,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		assigned_at DATETIME NOT NULL,
		accepted_at DATETIME,
		released_at DATETIME,
		resolved_at DATETIME,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_assignments_current ON assignments (conversation_id) WHERE released_at IS NULL AND status IN ('assigned', 'human_working')`,
	`CREATE TABLE IF NOT EXISTS handoffs (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		reason_code TEXT NOT NULL,
		confidence REAL,
		policy_hits TEXT NOT NULL DEFAULT '[]',
		required_skills TEXT NOT NULL DEFAULT '[]',
		metadata TEXT NOT NULL DEFAULT '{}',
		occurred_at DATETIME NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT ux_handoffs_conversation_reason UNIQUE (conversation_id, reason_code)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		event_type TEXT NOT NULL,
		actor_id TEXT,
		payload TEXT NOT NULL DEFAULT '{}',
		channel TEXT NOT NULL,
		occurred_at DATETIME NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS handoff_policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		reason_code TEXT NOT NULL,
		required_skills TEXT NOT NULL DEFAULT '[]',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS policy_rules (
		id TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL REFERENCES handoff_policies(id),
		trigger_type TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		criteria TEXT NOT NULL DEFAULT '{}',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// ApplySQLiteSchema creates every table on a sqlite connection.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
