// Package assistant runs one conversation turn: it routes the message to a
// deterministic flow or to the tool-calling completion loop, dispatches the
// reply through the gateway and records both sides in memory and the log.
package assistant

import (
	"context"
	"fmt"
	"time"

	"atende_backend/internal/conversation"
	"atende_backend/internal/events"
	"atende_backend/internal/tenants"
	"atende_backend/internal/whatsapp"
	"atende_backend/platform/logger"

	"github.com/google/uuid"
)

const defaultTimezone = "America/Sao_Paulo"

// Sender delivers replies through the messaging gateway.
type Sender interface {
	SendText(ctx context.Context, instance, phone, text string) error
	SendDocument(ctx context.Context, instance, phone string, doc whatsapp.Attachment) error
}

// SettingsReader returns per-tenant assistant settings.
type SettingsReader interface {
	Get(ctx context.Context, tenantID uuid.UUID) (tenants.Settings, error)
}

// Deps are the collaborators of the Engine. Flows, the loop and the sender
// are optional.
type Deps struct {
	Store    *conversation.Store
	Logs     conversation.MessageLog
	Settings SettingsReader
	Sender   Sender
	Booking  BookingFlow
	Fiscal   FiscalFlow
	Billing  BillingFlow
	Loop     *Loop
	Args     *ArgDecoder
	Prompts  Prompts
	EventBus events.Bus
	Log      *logger.Logger

	DefaultTimezone string
	DefaultMaxSteps int
}

// Engine processes attributed inbound messages.
type Engine struct {
	store      *conversation.Store
	logs       conversation.MessageLog
	settings   SettingsReader
	sender     Sender
	strategy   Strategy
	prompts    Prompts
	eventBus   events.Bus
	log        *logger.Logger
	defaultLoc *time.Location
}

// NewEngine wires the strategy chain: reset, media, booking, fiscal,
// billing, greeting, completion loop, help.
func NewEngine(d Deps) *Engine {
	loc := loadLocationOr(d.DefaultTimezone, loadLocationOr(defaultTimezone, time.UTC))
	toolkit := NewToolkit(d.Booking, d.Fiscal, d.Billing, d.Args)

	chain := Chain{
		resetStrategy{prompts: d.Prompts},
		mediaStrategy{prompts: d.Prompts},
		bookingStrategy{flow: d.Booking},
		fiscalStrategy{flow: d.Fiscal},
		billingStrategy{flow: d.Billing},
		greetingStrategy{prompts: d.Prompts},
		loopStrategy{loop: d.Loop, toolkit: toolkit, prompts: d.Prompts, maxSteps: ClampSteps(d.DefaultMaxSteps)},
		helpStrategy{prompts: d.Prompts},
	}

	return &Engine{
		store:      d.Store,
		logs:       d.Logs,
		settings:   d.Settings,
		sender:     d.Sender,
		strategy:   chain,
		prompts:    d.Prompts,
		eventBus:   d.EventBus,
		log:        d.Log,
		defaultLoc: loc,
	}
}

// ProcessInbound runs one turn under the (tenant, phone) lock. When the turn
// fails, an apology is sent and the error is returned so the caller can mark
// the delivery failed.
func (e *Engine) ProcessInbound(ctx context.Context, in conversation.Inbound) (out conversation.Outcome, err error) {
	unlock := e.store.Lock(in.TenantID, in.Phone)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("assistant: panic during turn", "tenantId", in.TenantID, "panic", r)
			e.apologize(ctx, in)
			out, err = conversation.Outcome{}, fmt.Errorf("panic during turn: %v", r)
		}
	}()

	now := e.store.Now()
	mem, err := e.store.Load(ctx, in.TenantID, in.Phone)
	if err != nil {
		e.apologize(ctx, in)
		return conversation.Outcome{}, fmt.Errorf("load memory: %w", err)
	}

	settings := e.loadSettings(ctx, in.TenantID)
	loc := loadLocationOr(settings.Timezone, e.defaultLoc)

	kind := conversation.KindText
	if in.HasMedia {
		kind = conversation.KindMedia
	}
	eventID := in.EventRecordID
	inLogID, err := e.logs.AppendLog(ctx, conversation.LogEntry{
		TenantID:      in.TenantID,
		Phone:         in.Phone,
		EventRecordID: &eventID,
		Direction:     conversation.DirectionIn,
		Kind:          kind,
		Content:       in.Text,
		Status:        conversation.LogReceived,
	})
	if err != nil {
		e.apologize(ctx, in)
		return conversation.Outcome{}, fmt.Errorf("log inbound message: %w", err)
	}

	mem.RecordInbound(in.Text, in.PushName, now)
	turn := &Turn{
		Inbound:  in,
		Memory:   &mem,
		Settings: settings,
		Location: loc,
		Now:      now,
		Intent:   Route(in.Text, &mem, now.In(loc)),
	}

	reply, ok, err := e.strategy.Resolve(ctx, turn)
	if err == nil && !ok {
		reply = Reply{Text: e.prompts.Help, Intent: IntentHelp}
	}
	if err != nil {
		e.log.Error("assistant: turn failed", "tenantId", in.TenantID, "intent", turn.Intent, "error", err)
		if logErr := e.logs.UpdateLogStatus(ctx, inLogID, conversation.LogFailed, string(turn.Intent)); logErr != nil {
			e.log.DatabaseError("message_logs.update_status", logErr)
		}
		if saveErr := e.store.Save(ctx, &mem); saveErr != nil {
			e.log.DatabaseError("conversation_memory.save", saveErr)
		}
		e.apologize(ctx, in)
		return conversation.Outcome{}, err
	}

	delivered := e.dispatch(ctx, in, reply)

	outStatus := conversation.LogProcessed
	if !delivered {
		outStatus = conversation.LogFailed
	}
	if _, err := e.logs.AppendLog(ctx, conversation.LogEntry{
		TenantID:      in.TenantID,
		Phone:         in.Phone,
		EventRecordID: &eventID,
		Direction:     conversation.DirectionOut,
		Kind:          conversation.KindText,
		Content:       reply.Text,
		Intent:        string(reply.Intent),
		Status:        outStatus,
	}); err != nil {
		e.log.DatabaseError("message_logs.append_outbound", err)
	}

	mem.RecordOutbound(reply.Text, string(reply.Intent), now)
	if err := e.store.Save(ctx, &mem); err != nil {
		return conversation.Outcome{}, fmt.Errorf("save memory: %w", err)
	}
	if err := e.logs.UpdateLogStatus(ctx, inLogID, conversation.LogProcessed, string(reply.Intent)); err != nil {
		e.log.DatabaseError("message_logs.update_status", err)
	}

	if e.eventBus != nil {
		e.eventBus.Publish(ctx, events.ReplyDispatched{
			BaseEvent: events.NewBaseEvent(),
			TenantID:  in.TenantID,
			Phone:     in.Phone,
			Intent:    string(reply.Intent),
			Delivered: delivered,
		})
	}

	return conversation.Outcome{Intent: string(reply.Intent), Reply: reply.Text, Delivered: delivered}, nil
}

func (e *Engine) loadSettings(ctx context.Context, tenantID uuid.UUID) tenants.Settings {
	if e.settings == nil {
		return tenants.Settings{}
	}
	settings, err := e.settings.Get(ctx, tenantID)
	if err != nil {
		e.log.Warn("assistant: tenant settings unavailable, using defaults", "tenantId", tenantID, "error", err)
		return tenants.Settings{}
	}
	return settings
}

// dispatch sends the reply and reports whether the text reached the gateway.
func (e *Engine) dispatch(ctx context.Context, in conversation.Inbound, reply Reply) bool {
	if e.sender == nil {
		return false
	}
	if err := e.sender.SendText(ctx, in.Instance, in.Phone, reply.Text); err != nil {
		e.log.Error("assistant: reply not delivered", "tenantId", in.TenantID, "error", err)
		return false
	}
	if reply.Document != nil {
		if err := e.sender.SendDocument(ctx, in.Instance, in.Phone, *reply.Document); err != nil {
			e.log.Warn("assistant: document not delivered", "tenantId", in.TenantID, "fileName", reply.Document.FileName, "error", err)
		}
	}
	return true
}

func (e *Engine) apologize(ctx context.Context, in conversation.Inbound) {
	if e.sender == nil || e.prompts.Apology == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := e.sender.SendText(ctx, in.Instance, in.Phone, e.prompts.Apology); err != nil {
		e.log.Warn("assistant: apology not delivered", "tenantId", in.TenantID, "error", err)
	}
}

func loadLocationOr(name string, fallback *time.Location) *time.Location {
	if name == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}
