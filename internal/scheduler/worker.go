package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"atende_backend/internal/booking"
	"atende_backend/internal/tenants"
	"atende_backend/internal/webhook"
	"atende_backend/platform/config"
	"atende_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultWebhookRetention = 30 * 24 * time.Hour
	purgeSchedule           = "@hourly"
	staleReminderTolerance  = time.Minute
)

// AppointmentReader loads the appointment a reminder refers to.
type AppointmentReader interface {
	GetAppointment(ctx context.Context, tenantID, id uuid.UUID) (booking.Appointment, error)
}

// TenantReader loads the tenant that owns the appointment.
type TenantReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (tenants.Tenant, error)
	GetSettings(ctx context.Context, tenantID uuid.UUID) (tenants.Settings, error)
}

// EventPurger deletes old webhook records.
type EventPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TextSender delivers the reminder through the messaging gateway.
type TextSender interface {
	SendText(ctx context.Context, instance, phone, text string) error
}

type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	handlers  *handlers
	log       *logger.Logger
}

type handlers struct {
	appointments AppointmentReader
	tenants      TenantReader
	events       EventPurger
	sender       TextSender
	retention    time.Duration
	now          func() time.Time
	log          *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, sender TextSender, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := queueName(cfg)
	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	periodic := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	if _, err := periodic.Register(purgeSchedule, NewWebhookEventsPurgeTask(), asynq.Queue(queue)); err != nil {
		return nil, fmt.Errorf("register webhook purge: %w", err)
	}

	h := newHandlers(booking.NewRepository(pool), tenants.NewRepository(pool), webhook.NewRepository(pool), sender, cfg.GetWebhookRetention(), log)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskAppointmentReminder, h.handleAppointmentReminder)
	mux.HandleFunc(TaskWebhookEventsPurge, h.handleWebhookEventsPurge)

	return &Worker{
		server:    server,
		scheduler: periodic,
		mux:       mux,
		handlers:  h,
		log:       log,
	}, nil
}

func newHandlers(appts AppointmentReader, tenantReader TenantReader, purger EventPurger, sender TextSender, retention time.Duration, log *logger.Logger) *handlers {
	if retention <= 0 {
		retention = defaultWebhookRetention
	}
	return &handlers{
		appointments: appts,
		tenants:      tenantReader,
		events:       purger,
		sender:       sender,
		retention:    retention,
		now:          time.Now,
		log:          log,
	}
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	if err := w.scheduler.Start(); err != nil {
		w.log.Error("scheduler: periodic tasks not started", "error", err)
	}

	go func() {
		<-ctx.Done()
		w.scheduler.Shutdown()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (h *handlers) handleAppointmentReminder(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseAppointmentReminderPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	apptID, err := uuid.Parse(payload.AppointmentID)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	appt, err := h.appointments.GetAppointment(ctx, tenantID, apptID)
	if errors.Is(err, booking.ErrAppointmentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if appt.Status != booking.StatusScheduled || !appt.StartsAt.After(h.now()) {
		return nil
	}
	if !payload.RunAt.IsZero() {
		drift := appt.StartsAt.Sub(payload.RunAt) - booking.ReminderLead
		if drift < -staleReminderTolerance || drift > staleReminderTolerance {
			h.log.Info("scheduler: skipping stale reminder", "appointmentId", appt.ID)
			return nil
		}
	}

	tenant, err := h.tenants.GetByID(ctx, tenantID)
	if errors.Is(err, tenants.ErrTenantNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if h.sender == nil || tenant.GatewayInstance == "" {
		h.log.Warn("scheduler: reminder not sent, gateway not configured", "tenantId", tenantID, "appointmentId", appt.ID)
		return nil
	}

	loc := time.UTC
	if settings, err := h.tenants.GetSettings(ctx, tenantID); err == nil && settings.Timezone != "" {
		if l, err := time.LoadLocation(settings.Timezone); err == nil {
			loc = l
		}
	}

	if err := h.sender.SendText(ctx, tenant.GatewayInstance, appt.ClientPhone, ReminderText(appt, tenant.Name, loc)); err != nil {
		return fmt.Errorf("send reminder: %w", err)
	}
	h.log.Info("scheduler: reminder sent", "tenantId", tenantID, "appointmentId", appt.ID)
	return nil
}

func (h *handlers) handleWebhookEventsPurge(ctx context.Context, _ *asynq.Task) error {
	cutoff := h.now().Add(-h.retention)
	deleted, err := h.events.PurgeBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge webhook events: %w", err)
	}
	h.log.Info("scheduler: webhook events purged", "deleted", deleted, "cutoff", cutoff)
	return nil
}

// ReminderText renders the reminder sent the day before an appointment.
func ReminderText(appt booking.Appointment, tenantName string, loc *time.Location) string {
	name := appt.ClientName
	if name != "" {
		name = ", " + name
	}
	return fmt.Sprintf("Olá%s! Lembrete do seu horário de %s em %s, %s. Se não puder comparecer, responda \"cancelar\".",
		name, appt.ServiceName, tenantName, booking.FormatWhen(appt.StartsAt, loc))
}
