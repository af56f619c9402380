// Package booking implements appointment slot-filling: extracting name,
// service and start time from free text, validating the draft against the
// tenant's catalogue and agenda, and persisting the resulting appointment.
package booking

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

// Appointment statuses.
const (
	StatusScheduled = "scheduled"
	StatusCanceled  = "canceled"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
)

// Field is a slot of the booking draft.
type Field string

const (
	FieldName    Field = "name"
	FieldService Field = "service"
	FieldTime    Field = "time"
)

// State of the booking flow for one conversation.
type State string

const (
	StateEmpty      State = "empty"
	StateCollecting State = "collecting"
	StateReady      State = "ready"
	StateResolved   State = "resolved"
)

// Invalid-time reasons.
const (
	ReasonPast    = "past"
	ReasonClosed  = "closed"
	ReasonTaken   = "taken"
	ReasonService = "service_unavailable"
)

// Service is an entry of the tenant's catalogue.
type Service struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Name            string
	DurationMinutes int
	IsActive        bool
}

// Duration returns the slot length, 30 minutes when unset.
func (s Service) Duration() time.Duration {
	if s.DurationMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(s.DurationMinutes) * time.Minute
}

// WorkingHour is an opening window in minutes since local midnight.
// Weekday follows time.Weekday (0 = Sunday).
type WorkingHour struct {
	Weekday     int
	StartMinute int
	EndMinute   int
	IsActive    bool
}

// Appointment is a persisted booking.
type Appointment struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ServiceID      uuid.UUID
	ServiceName    string
	ClientName     string
	ClientPhone    string
	ClientDocument string
	StartsAt       time.Time
	EndsAt         time.Time
	Status         string
	CanceledAt     *time.Time
	CreatedAt      time.Time
}

// Overlaps reports whether [start, end) intersects the appointment.
func (a Appointment) Overlaps(start, end time.Time) bool {
	return start.Before(a.EndsAt) && end.After(a.StartsAt)
}
