package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"atende_backend/internal/conversation"
	"atende_backend/internal/events"
	"atende_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultLeadTime   = time.Hour
	ReminderLead      = 24 * time.Hour
	maxUpcomingListed = 5
)

// AppointmentStore is the persistence seam of the Engine.
type AppointmentStore interface {
	ListActiveServices(ctx context.Context, tenantID uuid.UUID) ([]Service, error)
	ListWorkingHours(ctx context.Context, tenantID uuid.UUID) ([]WorkingHour, error)
	ListScheduledBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListUpcomingByPhone(ctx context.Context, tenantID uuid.UUID, phone string, from time.Time, limit int) ([]Appointment, error)
	CreateAppointment(ctx context.Context, a Appointment) (Appointment, error)
	RescheduleAppointment(ctx context.Context, tenantID, id, serviceID uuid.UUID, start, end time.Time) (bool, error)
	CancelAppointment(ctx context.Context, tenantID, id uuid.UUID, at time.Time) (bool, error)
}

// ReminderScheduler enqueues the pre-appointment reminder.
type ReminderScheduler interface {
	ScheduleAppointmentReminder(ctx context.Context, tenantID, appointmentID uuid.UUID, runAt time.Time) error
}

// Request is one slot-filling turn.
type Request struct {
	TenantID   uuid.UUID
	Phone      string
	Text       string
	Draft      *conversation.BookingTriage
	Intent     string
	Reschedule bool
	// StandaloneName allows a bare "Maria Souza" reply to fill the name slot.
	StandaloneName bool
	Location       *time.Location
}

// Result is the state of the draft after a turn.
type Result struct {
	State       State
	Draft       conversation.BookingTriage
	Missing     []Field
	Invalid     string
	Services    []Service
	Appointment *Appointment
	Rescheduled bool
}

// Engine runs the booking state machine.
type Engine struct {
	store     AppointmentStore
	reminders ReminderScheduler
	eventBus  events.Bus
	loc       *time.Location
	leadTime  time.Duration
	now       func() time.Time
	log       *logger.Logger
}

// NewEngine creates a booking engine. reminders and eventBus may be nil.
func NewEngine(store AppointmentStore, reminders ReminderScheduler, eventBus events.Bus, loc *time.Location, log *logger.Logger) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		store:     store,
		reminders: reminders,
		eventBus:  eventBus,
		loc:       loc,
		leadTime:  defaultLeadTime,
		now:       time.Now,
		log:       log,
	}
}

// WithClock replaces the time source. Used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithLeadTime sets the minimum notice for a cancellation.
func (e *Engine) WithLeadTime(d time.Duration) *Engine {
	if d > 0 {
		e.leadTime = d
	}
	return e
}

// Location returns the default tenant location.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Advance merges what the message carries into the draft, validates it and
// persists the appointment once every slot is filled.
func (e *Engine) Advance(ctx context.Context, req Request) (Result, error) {
	loc := req.Location
	if loc == nil {
		loc = e.loc
	}
	now := e.now().In(loc)

	draft := conversation.BookingTriage{}
	if req.Draft != nil {
		draft = *req.Draft
	}
	if req.Intent != "" {
		draft.LastIntent = req.Intent
	}

	services, err := e.store.ListActiveServices(ctx, req.TenantID)
	if err != nil {
		return Result{}, fmt.Errorf("load services: %w", err)
	}

	if req.Reschedule && draft.AppointmentID == nil {
		if err := e.attachUpcoming(ctx, req, &draft, now); err != nil {
			return Result{}, err
		}
	}

	if draft.ClientName == "" {
		draft.ClientName = ExtractName(req.Text, req.StandaloneName && !carriesBookingData(req.Text, services, now))
	}
	if doc := ExtractDocument(req.Text); doc != "" {
		draft.ClientDocument = doc
	}
	if svc, ok := MatchService(req.Text, services); ok {
		id := svc.ID
		draft.ServiceID = &id
	} else if draft.ServiceID == nil {
		if svc, ok := DefaultService(services); ok {
			id := svc.ID
			draft.ServiceID = &id
		}
	}

	invalid := mergeSchedule(&draft, req.Text, now)

	res := Result{Services: services}
	if draft.ServiceID != nil && findService(services, *draft.ServiceID) == nil {
		draft.ServiceID = nil
		invalid = ReasonService
	}

	res.Missing = missingFields(draft)
	if len(res.Missing) > 0 {
		res.State = StateCollecting
		if !draft.HasData() && draft.AppointmentID == nil {
			res.State = StateEmpty
		}
		res.Invalid = invalid
		res.Draft = draft
		return res, nil
	}

	svc := findService(services, *draft.ServiceID)
	reason, err := e.validateSlot(ctx, req.TenantID, draft, *svc, now, loc)
	if err != nil {
		return Result{}, err
	}
	if reason != "" {
		clearSchedule(&draft)
		res.State = StateCollecting
		res.Invalid = reason
		res.Missing = []Field{FieldTime}
		res.Draft = draft
		return res, nil
	}

	appt, rescheduled, err := e.persist(ctx, req, draft, *svc)
	if errors.Is(err, ErrAppointmentNotFound) {
		draft.AppointmentID = nil
		appt, rescheduled, err = e.persist(ctx, req, draft, *svc)
	}
	if err != nil {
		return Result{}, err
	}

	e.afterBooking(ctx, req, appt, now)

	res.State = StateResolved
	res.Appointment = &appt
	res.Rescheduled = rescheduled
	res.Draft = conversation.BookingTriage{}
	return res, nil
}

func (e *Engine) attachUpcoming(ctx context.Context, req Request, draft *conversation.BookingTriage, now time.Time) error {
	upcoming, err := e.store.ListUpcomingByPhone(ctx, req.TenantID, req.Phone, now, 1)
	if err != nil {
		return fmt.Errorf("load upcoming appointment: %w", err)
	}
	if len(upcoming) == 0 {
		return nil
	}
	appt := upcoming[0]
	id, serviceID := appt.ID, appt.ServiceID
	draft.AppointmentID = &id
	if draft.ServiceID == nil {
		draft.ServiceID = &serviceID
	}
	if draft.ClientName == "" {
		draft.ClientName = appt.ClientName
	}
	return nil
}

// mergeSchedule merges date/time fragments field by field. It returns
// ReasonPast when the resulting start already passed, in which case only the
// schedule slots are cleared.
// carriesBookingData reports whether text names a service or a date or
// time, in which case it is never taken as a bare name.
func carriesBookingData(text string, services []Service, now time.Time) bool {
	if _, ok := MatchService(text, services); ok {
		return true
	}
	date, clock := ExtractDateTime(text, now)
	return date != "" || clock != ""
}

func mergeSchedule(draft *conversation.BookingTriage, text string, now time.Time) string {
	newDate, newClock := ExtractDateTime(text, now)
	if newDate == "" && newClock == "" {
		return ""
	}

	date, clock := draft.DateHint, draft.TimeHint
	if draft.StartsAt != nil {
		prev := draft.StartsAt.In(now.Location())
		if date == "" {
			date = prev.Format(dateLayout)
		}
		if clock == "" {
			clock = prev.Format(clockLayout)
		}
	}
	if newDate != "" {
		date = newDate
	}
	if newClock != "" {
		clock = newClock
	}

	switch {
	case clock == "":
		draft.DateHint = date
		draft.TimeHint = ""
		draft.StartsAt = nil
		return ""
	case date == "":
		date = nearestFutureDay(clock, now)
	}

	start, ok := combine(date, clock, now.Location())
	if !ok {
		return ""
	}
	if !start.After(now) {
		clearSchedule(draft)
		return ReasonPast
	}
	draft.StartsAt = &start
	draft.DateHint = ""
	draft.TimeHint = ""
	return ""
}

func clearSchedule(draft *conversation.BookingTriage) {
	draft.StartsAt = nil
	draft.DateHint = ""
	draft.TimeHint = ""
}

func missingFields(draft conversation.BookingTriage) []Field {
	var missing []Field
	if draft.ClientName == "" {
		missing = append(missing, FieldName)
	}
	if draft.ServiceID == nil {
		missing = append(missing, FieldService)
	}
	if draft.StartsAt == nil {
		missing = append(missing, FieldTime)
	}
	return missing
}

func findService(services []Service, id uuid.UUID) *Service {
	for i := range services {
		if services[i].ID == id && services[i].IsActive {
			return &services[i]
		}
	}
	return nil
}

// validateSlot checks the ready draft: future start, inside an active
// working window for that weekday, no overlap with scheduled appointments.
func (e *Engine) validateSlot(ctx context.Context, tenantID uuid.UUID, draft conversation.BookingTriage, svc Service, now time.Time, loc *time.Location) (string, error) {
	start := draft.StartsAt.In(loc)
	end := start.Add(svc.Duration())
	if !start.After(now) {
		return ReasonPast, nil
	}

	hours, err := e.store.ListWorkingHours(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("load working hours: %w", err)
	}
	if !fitsWorkingHours(hours, start, end) {
		return ReasonClosed, nil
	}

	existing, err := e.store.ListScheduledBetween(ctx, tenantID, start, end)
	if err != nil {
		return "", fmt.Errorf("load agenda: %w", err)
	}
	for _, appt := range existing {
		if draft.AppointmentID != nil && appt.ID == *draft.AppointmentID {
			continue
		}
		if appt.Overlaps(start, end) {
			return ReasonTaken, nil
		}
	}
	return "", nil
}

func fitsWorkingHours(hours []WorkingHour, start, end time.Time) bool {
	startMin := start.Hour()*60 + start.Minute()
	endMin := startMin + int(end.Sub(start)/time.Minute)
	if endMin > 24*60 {
		return false
	}
	for _, w := range hours {
		if !w.IsActive || w.Weekday != int(start.Weekday()) {
			continue
		}
		if startMin >= w.StartMinute && endMin <= w.EndMinute {
			return true
		}
	}
	return false
}

func (e *Engine) persist(ctx context.Context, req Request, draft conversation.BookingTriage, svc Service) (Appointment, bool, error) {
	start := *draft.StartsAt
	end := start.Add(svc.Duration())

	if draft.AppointmentID != nil {
		ok, err := e.store.RescheduleAppointment(ctx, req.TenantID, *draft.AppointmentID, svc.ID, start, end)
		if err != nil {
			return Appointment{}, false, err
		}
		if !ok {
			return Appointment{}, false, ErrAppointmentNotFound
		}
		return Appointment{
			ID:             *draft.AppointmentID,
			TenantID:       req.TenantID,
			ServiceID:      svc.ID,
			ServiceName:    svc.Name,
			ClientName:     draft.ClientName,
			ClientPhone:    req.Phone,
			ClientDocument: draft.ClientDocument,
			StartsAt:       start,
			EndsAt:         end,
			Status:         StatusScheduled,
		}, true, nil
	}

	appt, err := e.store.CreateAppointment(ctx, Appointment{
		TenantID:       req.TenantID,
		ServiceID:      svc.ID,
		ServiceName:    svc.Name,
		ClientName:     draft.ClientName,
		ClientPhone:    req.Phone,
		ClientDocument: draft.ClientDocument,
		StartsAt:       start,
		EndsAt:         end,
	})
	return appt, false, err
}

func (e *Engine) afterBooking(ctx context.Context, req Request, appt Appointment, now time.Time) {
	if e.reminders != nil {
		runAt := appt.StartsAt.Add(-ReminderLead)
		if runAt.After(now) {
			if err := e.reminders.ScheduleAppointmentReminder(ctx, req.TenantID, appt.ID, runAt); err != nil {
				e.log.Warn("booking: failed to schedule reminder", "appointmentId", appt.ID, "error", err)
			}
		}
	}
	if e.eventBus != nil {
		e.eventBus.Publish(ctx, events.AppointmentBooked{
			BaseEvent:     events.NewBaseEvent(),
			AppointmentID: appt.ID,
			TenantID:      req.TenantID,
			Phone:         req.Phone,
			ClientName:    appt.ClientName,
			ServiceName:   appt.ServiceName,
			StartsAt:      appt.StartsAt,
		})
	}
}
