// Package billing looks up billing customers and summarizes their open
// balance for the conversation.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxMatches bounds a lookup.
const MaxMatches = 5

// Customer is a billing customer with its open balance.
type Customer struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Name         string
	Document     string
	Phone        string
	OpenAmount   float64
	OpenInvoices int
	NextDueDate  *time.Time
}

// Repository provides read access to billing customers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new billing repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const customerColumns = `id, tenant_id, name, COALESCE(document, ''), COALESCE(phone, ''), open_amount::float8, open_invoices, next_due_date`

// Search matches on document digits when given, otherwise on a
// case-insensitive name substring.
func (r *Repository) Search(ctx context.Context, tenantID uuid.UUID, document, name string, limit int) ([]Customer, error) {
	query := `
		SELECT ` + customerColumns + `
		FROM billing_customers
		WHERE tenant_id = $1 AND regexp_replace(COALESCE(document, ''), '\D', '', 'g') = $2
		ORDER BY name
		LIMIT $3`
	arg := document
	if document == "" {
		query = `
		SELECT ` + customerColumns + `
		FROM billing_customers
		WHERE tenant_id = $1 AND name ILIKE '%' || $2 || '%'
		ORDER BY name
		LIMIT $3`
		arg = name
	}

	rows, err := r.pool.Query(ctx, query, tenantID, arg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search billing customers: %w", err)
	}
	defer rows.Close()

	items := make([]Customer, 0, limit)
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Document, &c.Phone, &c.OpenAmount, &c.OpenInvoices, &c.NextDueDate); err != nil {
			return nil, fmt.Errorf("failed to scan billing customer: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate billing customers: %w", err)
	}
	return items, nil
}
