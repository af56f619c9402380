// Package webhook ingests messaging-gateway deliveries: extraction,
// deduplication, tenant attribution and hand-off to the conversation engine.
package webhook

import (
	"context"
	"errors"
	"time"

	"atende_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateEvent is returned when the provider event id was already recorded.
var ErrDuplicateEvent = errors.New("duplicate webhook event")

// Status values of a webhook event record.
const (
	StatusReceived  = "received"
	StatusIgnored   = "ignored"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Record is a persisted webhook delivery.
type Record struct {
	ID           uuid.UUID
	Provider     string
	EventType    string
	EventID      string
	InstanceName string
	PayloadHash  string
	Status       string
	Reason       string
	TenantID     *uuid.UUID
	ReceivedAt   time.Time
	ProcessedAt  *time.Time
}

// Repository provides data access for webhook event records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new webhook repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert creates a record in status received. A unique violation on
// (provider, event_id) is reported as ErrDuplicateEvent.
func (r *Repository) Insert(ctx context.Context, rec Record) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO webhook_events (provider, event_type, event_id, instance_name, payload_hash, status)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, 'received')
		RETURNING id
	`, rec.Provider, rec.EventType, rec.EventID, rec.InstanceName, rec.PayloadHash).Scan(&id)
	if db.IsUniqueViolation(err) {
		return uuid.Nil, ErrDuplicateEvent
	}
	return id, err
}

// MarkTerminal moves a received record to its terminal status. It returns
// false when the record already left the received status.
func (r *Repository) MarkTerminal(ctx context.Context, id uuid.UUID, status, reason string, tenantID *uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE webhook_events
		SET status = $2, reason = NULLIF($3, ''), tenant_id = COALESCE($4, tenant_id), processed_at = now()
		WHERE id = $1 AND status = 'received'
	`, id, status, reason, tenantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ExistsRecent reports whether the same content was recorded since the given time.
func (r *Repository) ExistsRecent(ctx context.Context, provider, eventType, payloadHash string, since time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM webhook_events
			WHERE provider = $1 AND event_type = $2 AND payload_hash = $3 AND received_at >= $4
		)
	`, provider, eventType, payloadHash, since).Scan(&exists)
	return exists, err
}

// PurgeBefore deletes records received before the cutoff.
func (r *Repository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM webhook_events WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
