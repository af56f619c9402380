package booking

import (
	"context"
	"fmt"

	"atende_backend/internal/events"

	"github.com/google/uuid"
)

type CancelOutcome string

const (
	CancelNone    CancelOutcome = "none"
	CancelTooLate CancelOutcome = "too_late"
	CancelDone    CancelOutcome = "canceled"
)

// CancelResult reports what happened to the client's next appointment.
type CancelResult struct {
	Outcome     CancelOutcome
	Appointment *Appointment
}

// Cancel cancels the client's next scheduled appointment when it starts at
// least the lead time from now.
func (e *Engine) Cancel(ctx context.Context, tenantID uuid.UUID, phone string) (CancelResult, error) {
	now := e.now()
	upcoming, err := e.store.ListUpcomingByPhone(ctx, tenantID, phone, now, 1)
	if err != nil {
		return CancelResult{}, fmt.Errorf("load upcoming appointment: %w", err)
	}
	if len(upcoming) == 0 {
		return CancelResult{Outcome: CancelNone}, nil
	}

	appt := upcoming[0]
	if appt.StartsAt.Sub(now) < e.leadTime {
		return CancelResult{Outcome: CancelTooLate, Appointment: &appt}, nil
	}

	ok, err := e.store.CancelAppointment(ctx, tenantID, appt.ID, now)
	if err != nil {
		return CancelResult{}, err
	}
	if !ok {
		return CancelResult{Outcome: CancelNone}, nil
	}
	appt.Status = StatusCanceled
	appt.CanceledAt = &now

	if e.eventBus != nil {
		e.eventBus.Publish(ctx, events.AppointmentCanceled{
			BaseEvent:     events.NewBaseEvent(),
			AppointmentID: appt.ID,
			TenantID:      tenantID,
			StartsAt:      appt.StartsAt,
		})
	}
	return CancelResult{Outcome: CancelDone, Appointment: &appt}, nil
}

// Upcoming lists the client's next scheduled appointments.
func (e *Engine) Upcoming(ctx context.Context, tenantID uuid.UUID, phone string) ([]Appointment, error) {
	return e.store.ListUpcomingByPhone(ctx, tenantID, phone, e.now(), maxUpcomingListed)
}
