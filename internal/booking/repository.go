package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides database operations for services, working hours and
// appointments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new booking repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const appointmentColumns = `
	a.id, a.tenant_id, a.service_id, s.name, a.client_name, a.client_phone,
	COALESCE(a.client_document, ''), a.starts_at, a.ends_at, a.status, a.canceled_at, a.created_at`

func scanAppointment(row pgx.Row) (Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.ServiceID,
		&a.ServiceName,
		&a.ClientName,
		&a.ClientPhone,
		&a.ClientDocument,
		&a.StartsAt,
		&a.EndsAt,
		&a.Status,
		&a.CanceledAt,
		&a.CreatedAt,
	)
	return a, err
}

func (r *Repository) ListActiveServices(ctx context.Context, tenantID uuid.UUID) ([]Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, name, duration_minutes, is_active
		FROM services
		WHERE tenant_id = $1 AND is_active
		ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	items := make([]Service, 0)
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Name, &s.DurationMinutes, &s.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate services: %w", err)
	}
	return items, nil
}

func (r *Repository) ListWorkingHours(ctx context.Context, tenantID uuid.UUID) ([]WorkingHour, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute, is_active
		FROM working_hours
		WHERE tenant_id = $1
		ORDER BY weekday, start_minute`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list working hours: %w", err)
	}
	defer rows.Close()

	items := make([]WorkingHour, 0)
	for rows.Next() {
		var w WorkingHour
		if err := rows.Scan(&w.Weekday, &w.StartMinute, &w.EndMinute, &w.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan working hour: %w", err)
		}
		items = append(items, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate working hours: %w", err)
	}
	return items, nil
}

// ListScheduledBetween returns scheduled appointments intersecting [from, to).
func (r *Repository) ListScheduledBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments a
		JOIN services s ON s.id = a.service_id
		WHERE a.tenant_id = $1 AND a.status = 'scheduled' AND a.starts_at < $3 AND a.ends_at > $2
		ORDER BY a.starts_at`, tenantID, from, to)
}

// ListUpcomingByPhone returns the client's scheduled appointments starting after from.
func (r *Repository) ListUpcomingByPhone(ctx context.Context, tenantID uuid.UUID, phone string, from time.Time, limit int) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments a
		JOIN services s ON s.id = a.service_id
		WHERE a.tenant_id = $1 AND a.client_phone = $2 AND a.status = 'scheduled' AND a.starts_at > $3
		ORDER BY a.starts_at
		LIMIT $4`, tenantID, phone, from, limit)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	items := make([]Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}
	return items, nil
}

func (r *Repository) GetAppointment(ctx context.Context, tenantID, id uuid.UUID) (Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments a
		JOIN services s ON s.id = a.service_id
		WHERE a.id = $1 AND a.tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, ErrAppointmentNotFound
	}
	if err != nil {
		return Appointment{}, fmt.Errorf("failed to get appointment: %w", err)
	}
	return a, nil
}

func (r *Repository) CreateAppointment(ctx context.Context, a Appointment) (Appointment, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (tenant_id, service_id, client_name, client_phone, client_document, starts_at, ends_at, status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, 'scheduled')
		RETURNING id, status, created_at`,
		a.TenantID, a.ServiceID, a.ClientName, a.ClientPhone, a.ClientDocument, a.StartsAt, a.EndsAt,
	).Scan(&a.ID, &a.Status, &a.CreatedAt)
	if err != nil {
		return Appointment{}, fmt.Errorf("failed to create appointment: %w", err)
	}
	return a, nil
}

// RescheduleAppointment moves a scheduled appointment. It reports false when
// the appointment is no longer scheduled.
func (r *Repository) RescheduleAppointment(ctx context.Context, tenantID, id, serviceID uuid.UUID, start, end time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET service_id = $3, starts_at = $4, ends_at = $5, updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND status = 'scheduled'`,
		id, tenantID, serviceID, start, end)
	if err != nil {
		return false, fmt.Errorf("failed to reschedule appointment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CancelAppointment transitions scheduled -> canceled.
func (r *Repository) CancelAppointment(ctx context.Context, tenantID, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = 'canceled', canceled_at = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND status = 'scheduled'`,
		id, tenantID, at)
	if err != nil {
		return false, fmt.Errorf("failed to cancel appointment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
