package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists conversation memory and the message log in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new conversation repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Find returns the stored memory, or found=false when no row exists.
func (r *Repository) Find(ctx context.Context, tenantID uuid.UUID, phone string) (Memory, bool, error) {
	var (
		mem        Memory
		userName   *string
		lastIntent *string
		raw        []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT tenant_id, phone_e164, user_name, last_intent, last_inbound_at, last_outbound_at,
			last_activity_at, context, version
		FROM conversation_memory
		WHERE tenant_id = $1 AND phone_e164 = $2
	`, tenantID, phone).Scan(
		&mem.TenantID, &mem.Phone, &userName, &lastIntent, &mem.LastInboundAt, &mem.LastOutboundAt,
		&mem.LastActivityAt, &raw, &mem.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Memory{}, false, nil
	}
	if err != nil {
		return Memory{}, false, err
	}

	if userName != nil {
		mem.UserName = *userName
	}
	if lastIntent != nil {
		mem.LastIntent = *lastIntent
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &mem.Context); err != nil {
			return Memory{}, false, fmt.Errorf("decode conversation context: %w", err)
		}
	}
	return mem, true, nil
}

// Upsert writes the memory row and returns the new row version.
func (r *Repository) Upsert(ctx context.Context, mem Memory) (int, error) {
	mem.Context.Version = ContextVersion
	raw, err := json.Marshal(mem.Context)
	if err != nil {
		return 0, fmt.Errorf("encode conversation context: %w", err)
	}

	activity := mem.LastActivityAt
	if activity.IsZero() {
		activity = time.Now()
	}

	var version int
	err = r.pool.QueryRow(ctx, `
		INSERT INTO conversation_memory (
			tenant_id, phone_e164, user_name, last_intent, last_inbound_at, last_outbound_at,
			last_activity_at, context, version
		)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, 1)
		ON CONFLICT (tenant_id, phone_e164) DO UPDATE SET
			user_name = EXCLUDED.user_name,
			last_intent = EXCLUDED.last_intent,
			last_inbound_at = EXCLUDED.last_inbound_at,
			last_outbound_at = EXCLUDED.last_outbound_at,
			last_activity_at = EXCLUDED.last_activity_at,
			context = EXCLUDED.context,
			version = conversation_memory.version + 1
		RETURNING version
	`, mem.TenantID, mem.Phone, mem.UserName, mem.LastIntent, mem.LastInboundAt, mem.LastOutboundAt,
		activity, raw).Scan(&version)
	return version, err
}

// AppendLog inserts one message log row.
func (r *Repository) AppendLog(ctx context.Context, entry LogEntry) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO message_logs (tenant_id, phone_e164, webhook_event_id, direction, kind, content, intent, status)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		RETURNING id
	`, entry.TenantID, entry.Phone, entry.EventRecordID, entry.Direction, entry.Kind, entry.Content,
		entry.Intent, entry.Status).Scan(&id)
	return id, err
}

// UpdateLogStatus moves a log row to its final status.
func (r *Repository) UpdateLogStatus(ctx context.Context, id uuid.UUID, status LogStatus, intent string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE message_logs
		SET status = $2, intent = COALESCE(NULLIF($3, ''), intent), updated_at = now()
		WHERE id = $1
	`, id, status, intent)
	return err
}

// ListLogs returns the latest log rows for a conversation, newest first.
func (r *Repository) ListLogs(ctx context.Context, tenantID uuid.UUID, phone string, limit int) ([]LogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, phone_e164, webhook_event_id, direction, kind, content, COALESCE(intent, ''), status, created_at
		FROM message_logs
		WHERE tenant_id = $1 AND phone_e164 = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, phone, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Phone, &e.EventRecordID, &e.Direction, &e.Kind,
			&e.Content, &e.Intent, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
