package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"atende_backend/internal/booking"
	"atende_backend/internal/tenants"
	"atende_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type appointmentStub struct {
	appt booking.Appointment
	err  error
}

func (s appointmentStub) GetAppointment(context.Context, uuid.UUID, uuid.UUID) (booking.Appointment, error) {
	return s.appt, s.err
}

type tenantStub struct{ tenant tenants.Tenant }

func (s tenantStub) GetByID(context.Context, uuid.UUID) (tenants.Tenant, error) {
	return s.tenant, nil
}

func (s tenantStub) GetSettings(context.Context, uuid.UUID) (tenants.Settings, error) {
	return tenants.Settings{Timezone: "UTC"}, nil
}

type purgerStub struct{ cutoff time.Time }

func (p *purgerStub) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return 3, nil
}

type textRecorder struct {
	instance, phone, text string
	calls                 int
}

func (r *textRecorder) SendText(_ context.Context, instance, phone, text string) error {
	r.calls++
	r.instance, r.phone, r.text = instance, phone, text
	return nil
}

var workerNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func reminderFixture(appt booking.Appointment) (*handlers, *textRecorder, *asynq.Task) {
	sender := &textRecorder{}
	h := newHandlers(
		appointmentStub{appt: appt},
		tenantStub{tenant: tenants.Tenant{Name: "Clínica Sorriso", GatewayInstance: "sorriso"}},
		&purgerStub{},
		sender,
		0,
		logger.Nop(),
	)
	h.now = func() time.Time { return workerNow }

	task, _ := NewAppointmentReminderTask(AppointmentReminderPayload{
		AppointmentID: appt.ID.String(),
		TenantID:      appt.TenantID.String(),
		RunAt:         appt.StartsAt.Add(-booking.ReminderLead),
	})
	return h, sender, task
}

func scheduledAppointment() booking.Appointment {
	return booking.Appointment{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		ServiceName: "Limpeza",
		ClientName:  "Maria",
		ClientPhone: "5511999998888",
		StartsAt:    workerNow.Add(24 * time.Hour),
		Status:      booking.StatusScheduled,
	}
}

func TestReminderSendsForScheduledAppointment(t *testing.T) {
	h, sender, task := reminderFixture(scheduledAppointment())

	if err := h.handleAppointmentReminder(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.calls != 1 || sender.instance != "sorriso" || sender.phone != "5511999998888" {
		t.Fatalf("unexpected send: %+v", sender)
	}
	if !strings.Contains(sender.text, "Olá, Maria! Lembrete do seu horário de Limpeza em Clínica Sorriso, 03/03 às 10:00") {
		t.Fatalf("unexpected text: %q", sender.text)
	}
}

func TestReminderSkipsCanceledAppointment(t *testing.T) {
	appt := scheduledAppointment()
	appt.Status = booking.StatusCanceled
	h, sender, task := reminderFixture(appt)

	if err := h.handleAppointmentReminder(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.calls != 0 {
		t.Fatalf("expected no reminder")
	}
}

func TestReminderSkipsRescheduledAppointment(t *testing.T) {
	appt := scheduledAppointment()
	h, sender, task := reminderFixture(appt)
	moved := appt
	moved.StartsAt = appt.StartsAt.Add(3 * time.Hour)
	h.appointments = appointmentStub{appt: moved}

	if err := h.handleAppointmentReminder(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.calls != 0 {
		t.Fatalf("expected stale reminder to be skipped")
	}
}

func TestReminderMissingAppointmentIsNotRetried(t *testing.T) {
	h, sender, task := reminderFixture(scheduledAppointment())
	h.appointments = appointmentStub{err: booking.ErrAppointmentNotFound}

	if err := h.handleAppointmentReminder(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.calls != 0 {
		t.Fatalf("expected no reminder")
	}
}

func TestReminderInvalidPayloadSkipsRetry(t *testing.T) {
	h, _, _ := reminderFixture(scheduledAppointment())
	task := asynq.NewTask(TaskAppointmentReminder, []byte(`{"appointmentId":"nope"}`))

	err := h.handleAppointmentReminder(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestWebhookPurgeUsesRetention(t *testing.T) {
	purger := &purgerStub{}
	h := newHandlers(nil, nil, purger, nil, 48*time.Hour, logger.Nop())
	h.now = func() time.Time { return workerNow }

	if err := h.handleWebhookEventsPurge(context.Background(), NewWebhookEventsPurgeTask()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !purger.cutoff.Equal(workerNow.Add(-48 * time.Hour)) {
		t.Fatalf("unexpected cutoff %v", purger.cutoff)
	}
}

func TestRedisClientOpt(t *testing.T) {
	opt, err := redisClientOpt("rediss://:secret@cache.internal:6380/2", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opt.Addr != "cache.internal:6380" || opt.Password != "secret" || opt.DB != 2 {
		t.Fatalf("unexpected options: %+v", opt)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Fatalf("expected insecure TLS config")
	}
}
