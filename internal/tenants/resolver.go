package tenants

import (
	"context"
	"errors"

	"atende_backend/platform/phone"

	"github.com/google/uuid"
)

// Reader is the data the resolver needs.
type Reader interface {
	FindByInstance(ctx context.Context, instance string) (Tenant, error)
	ListAll(ctx context.Context) ([]Tenant, error)
	ListAllowedPhones(ctx context.Context, tenantID *uuid.UUID) ([]AllowedPhone, error)
}

// Resolution outcomes.
const (
	ViaInstance  = "instance"
	ViaAllowList = "allow_list"
)

// Resolution is the result of attributing a message to a tenant.
type Resolution struct {
	Tenant Tenant
	Via    string
	Score  int
	// SelfMessage is set when the sender is the tenant's own outbound number.
	SelfMessage bool
}

// Resolver maps a gateway instance and a phone candidate set to at most one tenant.
type Resolver struct {
	repo Reader
}

// NewResolver creates a tenant resolver.
func NewResolver(repo Reader) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve attributes a message. It returns ErrTenantNotFound when no tenant
// matches; a SelfMessage resolution must be ignored by the caller.
func (r *Resolver) Resolve(ctx context.Context, instance string, candidates []string) (Resolution, error) {
	if instance != "" {
		tenant, err := r.repo.FindByInstance(ctx, instance)
		switch {
		case err == nil:
			return r.resolveForTenant(ctx, tenant, candidates)
		case !errors.Is(err, ErrTenantNotFound):
			return Resolution{}, err
		}
	}

	if len(candidates) == 0 {
		return Resolution{}, ErrTenantNotFound
	}

	all, err := r.repo.ListAll(ctx)
	if err != nil {
		return Resolution{}, err
	}
	for _, t := range all {
		if isSelf(t, candidates) {
			return Resolution{Tenant: t, SelfMessage: true}, nil
		}
	}

	return r.matchAllowList(ctx, nil, all, candidates)
}

func (r *Resolver) resolveForTenant(ctx context.Context, tenant Tenant, candidates []string) (Resolution, error) {
	if isSelf(tenant, candidates) {
		return Resolution{Tenant: tenant, Via: ViaInstance, SelfMessage: true}, nil
	}
	if !tenant.AllowListRequired {
		return Resolution{Tenant: tenant, Via: ViaInstance}, nil
	}
	return r.matchAllowList(ctx, &tenant.ID, []Tenant{tenant}, candidates)
}

func (r *Resolver) matchAllowList(ctx context.Context, tenantID *uuid.UUID, tenants []Tenant, candidates []string) (Resolution, error) {
	if len(candidates) == 0 {
		return Resolution{}, ErrTenantNotFound
	}

	allowed, err := r.repo.ListAllowedPhones(ctx, tenantID)
	if err != nil {
		return Resolution{}, err
	}

	entries := make([]phone.Entry, 0, len(allowed))
	for _, a := range allowed {
		entries = append(entries, phone.Entry{Key: a.TenantID.String(), Phone: a.Phone, UpdatedAt: a.UpdatedAt})
	}

	best, score, ok := phone.BestMatch(entries, candidates)
	if !ok {
		return Resolution{}, ErrTenantNotFound
	}

	for _, t := range tenants {
		if t.ID.String() == best.Key {
			return Resolution{Tenant: t, Via: ViaAllowList, Score: score}, nil
		}
	}
	return Resolution{}, ErrTenantNotFound
}

func isSelf(t Tenant, candidates []string) bool {
	if t.OutboundPhone == "" {
		return false
	}
	own := phone.Normalize(t.OutboundPhone)
	if own == "" {
		return false
	}
	return phone.Contains(candidates, own)
}
