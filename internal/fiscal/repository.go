package fiscal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides read access to fiscal notes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new fiscal repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const noteColumns = `id, tenant_id, access_key, amount::float8, status, COALESCE(issuer_name, ''), COALESCE(customer_document, ''), created_at`

func scanNote(row pgx.Row) (Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.TenantID, &n.Key, &n.Amount, &n.Status, &n.IssuerName, &n.CustomerDocument, &n.CreatedAt)
	return n, err
}

// ListRecent returns the tenant's most recent notes, newest first. A non-empty
// customerDocument restricts the list to that customer.
func (r *Repository) ListRecent(ctx context.Context, tenantID uuid.UUID, customerDocument string, limit int) ([]Note, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+noteColumns+`
		FROM fiscal_notes
		WHERE tenant_id = $1 AND ($2 = '' OR customer_document = $2)
		ORDER BY created_at DESC
		LIMIT $3`, tenantID, customerDocument, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list fiscal notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0, limit)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fiscal note: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fiscal notes: %w", err)
	}
	return items, nil
}

func (r *Repository) GetByKey(ctx context.Context, tenantID uuid.UUID, key string) (Note, error) {
	n, err := scanNote(r.pool.QueryRow(ctx, `
		SELECT `+noteColumns+`
		FROM fiscal_notes
		WHERE tenant_id = $1 AND access_key = $2`, tenantID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return Note{}, ErrNoteNotFound
	}
	if err != nil {
		return Note{}, fmt.Errorf("failed to get fiscal note: %w", err)
	}
	return n, nil
}
