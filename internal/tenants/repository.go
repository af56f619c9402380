// Package tenants resolves which tenant an inbound message belongs to and
// serves per-tenant assistant settings.
package tenants

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrTenantNotFound = errors.New("tenant not found")

// Product modes decide which conversational flows a tenant exposes.
const (
	ModeScheduling = "scheduling"
	ModeFiscal     = "fiscal"
	ModeBilling    = "billing"
	ModeFull       = "full"
)

// Tenant is the subset of the tenant row used by message routing.
type Tenant struct {
	ID                uuid.UUID
	Name              string
	GatewayInstance   string
	OutboundPhone     string
	ProductMode       string
	AllowListRequired bool
	UpdatedAt         time.Time
}

// Supports reports whether the tenant's product mode includes the flow.
func (t Tenant) Supports(mode string) bool {
	return t.ProductMode == ModeFull || t.ProductMode == "" || t.ProductMode == mode
}

// AllowedPhone is an allow-listed number registered for a tenant.
type AllowedPhone struct {
	TenantID  uuid.UUID
	Phone     string
	UpdatedAt time.Time
}

// Settings are the per-tenant assistant knobs.
type Settings struct {
	AssistantName     string
	BusinessHoursText string
	AIEnabled         bool
	MaxToolSteps      int
	Timezone          string
}

// Repository provides data access for tenants.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new tenants repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const tenantColumns = `id, name, COALESCE(gateway_instance, ''), COALESCE(outbound_phone, ''), product_mode, allow_list_required, updated_at`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.GatewayInstance, &t.OutboundPhone, &t.ProductMode, &t.AllowListRequired, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, ErrTenantNotFound
	}
	return t, err
}

// FindByInstance matches the gateway instance name case-insensitively.
func (r *Repository) FindByInstance(ctx context.Context, instance string) (Tenant, error) {
	instance = strings.TrimSpace(instance)
	if instance == "" {
		return Tenant{}, ErrTenantNotFound
	}
	return scanTenant(r.pool.QueryRow(ctx, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE lower(gateway_instance) = lower($1)
	`, instance))
}

// GetByID loads a tenant by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE id = $1
	`, id))
}

// ListAll returns every tenant. The set is small and used for outbound
// number checks.
func (r *Repository) ListAll(ctx context.Context) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListAllowedPhones returns allow-listed numbers. A nil tenantID lists
// every tenant's numbers.
func (r *Repository) ListAllowedPhones(ctx context.Context, tenantID *uuid.UUID) ([]AllowedPhone, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tenant_id, phone, updated_at
		FROM tenant_phones
		WHERE $1::uuid IS NULL OR tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AllowedPhone
	for rows.Next() {
		var p AllowedPhone
		if err := rows.Scan(&p.TenantID, &p.Phone, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetSettings loads the tenant's assistant settings. Missing rows yield
// defaults rather than an error.
func (r *Repository) GetSettings(ctx context.Context, tenantID uuid.UUID) (Settings, error) {
	var (
		s        Settings
		maxSteps *int
		timezone *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT assistant_name, business_hours_text, ai_enabled, max_tool_steps, timezone
		FROM tenant_settings
		WHERE tenant_id = $1
	`, tenantID).Scan(&s.AssistantName, &s.BusinessHoursText, &s.AIEnabled, &maxSteps, &timezone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settings{AIEnabled: true}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	if maxSteps != nil {
		s.MaxToolSteps = *maxSteps
	}
	if timezone != nil {
		s.Timezone = *timezone
	}
	return s, nil
}
