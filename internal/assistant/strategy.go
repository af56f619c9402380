package assistant

import (
	"context"
	"time"

	"atende_backend/internal/billing"
	"atende_backend/internal/booking"
	"atende_backend/internal/conversation"
	"atende_backend/internal/fiscal"
	"atende_backend/internal/tenants"
	"atende_backend/internal/whatsapp"

	"github.com/google/uuid"
)

// Intent recorded for replies produced by the completion loop.
const IntentAssistant Intent = "assistant"

// BookingFlow is the slot-filling engine as seen by the assistant.
type BookingFlow interface {
	Advance(ctx context.Context, req booking.Request) (booking.Result, error)
	Cancel(ctx context.Context, tenantID uuid.UUID, phone string) (booking.CancelResult, error)
	Upcoming(ctx context.Context, tenantID uuid.UUID, phone string) ([]booking.Appointment, error)
	LeadTime() time.Duration
}

// FiscalFlow serves fiscal note conversations.
type FiscalFlow interface {
	Respond(ctx context.Context, req fiscal.Request) (fiscal.Response, error)
	ListRecent(ctx context.Context, tenantID uuid.UUID, customerDocument string) ([]conversation.NoteRef, error)
}

// BillingFlow serves billing lookups.
type BillingFlow interface {
	Reply(ctx context.Context, tenantID uuid.UUID, text string) (string, error)
	Lookup(ctx context.Context, tenantID uuid.UUID, query string) ([]billing.Customer, error)
}

// Turn is the state shared by the strategies of one inbound message.
// Strategies patch Memory in place; the engine saves it afterwards.
type Turn struct {
	Inbound  conversation.Inbound
	Memory   *conversation.Memory
	Settings tenants.Settings
	Location *time.Location
	Now      time.Time
	Intent   Intent
}

func (t *Turn) supports(mode string) bool {
	return tenants.Tenant{ProductMode: t.Inbound.ProductMode}.Supports(mode)
}

func (t *Turn) customerDocument() string {
	if b := t.Memory.Booking(); b != nil && b.ClientDocument != "" {
		return b.ClientDocument
	}
	return billing.ExtractDocument(t.Inbound.Text)
}

// Reply is what a strategy produced.
type Reply struct {
	Text     string
	Intent   Intent
	Document *whatsapp.Attachment
}

// Strategy handles a turn or passes. Handlers are tried in order; the first
// one that reports true wins.
type Strategy interface {
	Resolve(ctx context.Context, turn *Turn) (Reply, bool, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, turn *Turn) (Reply, bool, error)

func (f StrategyFunc) Resolve(ctx context.Context, turn *Turn) (Reply, bool, error) {
	return f(ctx, turn)
}

// Chain tries each strategy in order.
type Chain []Strategy

func (c Chain) Resolve(ctx context.Context, turn *Turn) (Reply, bool, error) {
	for _, s := range c {
		reply, ok, err := s.Resolve(ctx, turn)
		if err != nil {
			return Reply{}, false, err
		}
		if ok {
			return reply, true, nil
		}
	}
	return Reply{}, false, nil
}

type resetStrategy struct{ prompts Prompts }

func (s resetStrategy) Resolve(_ context.Context, turn *Turn) (Reply, bool, error) {
	if turn.Intent != IntentReset {
		return Reply{}, false, nil
	}
	turn.Memory.Reset()
	return Reply{Text: s.prompts.Reset, Intent: IntentReset}, true, nil
}

type mediaStrategy struct{ prompts Prompts }

func (s mediaStrategy) Resolve(_ context.Context, turn *Turn) (Reply, bool, error) {
	if !turn.Inbound.HasMedia || turn.Inbound.Text != "" || s.prompts.Media == "" {
		return Reply{}, false, nil
	}
	return Reply{Text: s.prompts.Media, Intent: IntentHelp}, true, nil
}

type bookingStrategy struct{ flow BookingFlow }

func (s bookingStrategy) Resolve(ctx context.Context, turn *Turn) (Reply, bool, error) {
	if s.flow == nil || !turn.supports(tenants.ModeScheduling) {
		return Reply{}, false, nil
	}
	in := turn.Inbound

	switch turn.Intent {
	case IntentCancel:
		res, err := s.flow.Cancel(ctx, in.TenantID, in.Phone)
		if err != nil {
			return Reply{}, false, err
		}
		turn.Memory.ClearBooking()
		return Reply{Text: booking.CancelReply(res, s.flow.LeadTime(), turn.Location), Intent: IntentCancel}, true, nil

	case IntentAppointments:
		appts, err := s.flow.Upcoming(ctx, in.TenantID, in.Phone)
		if err != nil {
			return Reply{}, false, err
		}
		return Reply{Text: booking.UpcomingReply(appts, turn.Location), Intent: IntentAppointments}, true, nil

	case IntentBooking, IntentReschedule:
		draft := turn.Memory.Booking()
		res, err := s.flow.Advance(ctx, booking.Request{
			TenantID:       in.TenantID,
			Phone:          in.Phone,
			Text:           in.Text,
			Draft:          draft,
			Intent:         string(turn.Intent),
			Reschedule:     turn.Intent == IntentReschedule,
			StandaloneName: draft != nil,
			Location:       turn.Location,
		})
		if err != nil {
			return Reply{}, false, err
		}
		if res.State == booking.StateResolved {
			turn.Memory.ClearBooking()
		} else {
			turn.Memory.SaveBooking(res.Draft, turn.Now)
		}
		return Reply{Text: booking.Reply(res, turn.Location), Intent: turn.Intent}, true, nil
	}
	return Reply{}, false, nil
}

type fiscalStrategy struct{ flow FiscalFlow }

func (s fiscalStrategy) Resolve(ctx context.Context, turn *Turn) (Reply, bool, error) {
	if s.flow == nil || turn.Intent != IntentFiscal || !turn.supports(tenants.ModeFiscal) {
		return Reply{}, false, nil
	}
	resp, err := s.flow.Respond(ctx, fiscal.Request{
		TenantID:         turn.Inbound.TenantID,
		Text:             turn.Inbound.Text,
		State:            turn.Memory.Fiscal(),
		CustomerDocument: turn.customerDocument(),
	})
	if err != nil {
		return Reply{}, false, err
	}
	resp.Apply(turn.Memory, turn.Now)
	return Reply{Text: resp.Reply, Intent: IntentFiscal, Document: resp.Document}, true, nil
}

type billingStrategy struct{ flow BillingFlow }

func (s billingStrategy) Resolve(ctx context.Context, turn *Turn) (Reply, bool, error) {
	if s.flow == nil || turn.Intent != IntentBilling || !turn.supports(tenants.ModeBilling) {
		return Reply{}, false, nil
	}
	text, err := s.flow.Reply(ctx, turn.Inbound.TenantID, turn.Inbound.Text)
	if err != nil {
		return Reply{}, false, err
	}
	return Reply{Text: text, Intent: IntentBilling}, true, nil
}

type greetingStrategy struct{ prompts Prompts }

func (s greetingStrategy) Resolve(_ context.Context, turn *Turn) (Reply, bool, error) {
	if turn.Intent != IntentGreeting {
		return Reply{}, false, nil
	}
	name := turn.Memory.UserName
	if name == "" {
		name = turn.Inbound.PushName
	}
	if name != "" {
		name = ", " + name
	}
	return Reply{Text: fill(s.prompts.Greeting, map[string]string{
		"name":      name,
		"assistant": turn.assistantName(),
		"tenant":    turn.Inbound.TenantName,
	}), Intent: IntentGreeting}, true, nil
}

func (t *Turn) assistantName() string {
	if t.Settings.AssistantName != "" {
		return t.Settings.AssistantName
	}
	return "Ana"
}

// loopStrategy hands free-form messages to the completion loop.
type loopStrategy struct {
	loop     *Loop
	toolkit  *Toolkit
	prompts  Prompts
	maxSteps int
}

func (s loopStrategy) Resolve(ctx context.Context, turn *Turn) (Reply, bool, error) {
	if s.loop == nil || !turn.Settings.AIEnabled {
		return Reply{}, false, nil
	}
	steps := turn.Settings.MaxToolSteps
	if steps <= 0 {
		steps = s.maxSteps
	}
	hours := turn.Settings.BusinessHoursText
	if hours == "" {
		hours = "não informado"
	}
	result := s.loop.Run(ctx, LoopInput{
		System: fill(s.prompts.System, map[string]string{
			"assistant": turn.assistantName(),
			"tenant":    turn.Inbound.TenantName,
			"hours":     hours,
			"now":       turn.Now.In(turn.Location).Format("02/01/2006 15:04"),
		}),
		History:  turn.Memory.History(),
		Message:  turn.Inbound.Text,
		Tools:    s.toolkit.For(turn),
		MaxSteps: steps,
	})
	return Reply{Text: result.Text, Intent: IntentAssistant}, true, nil
}

type helpStrategy struct{ prompts Prompts }

func (s helpStrategy) Resolve(context.Context, *Turn) (Reply, bool, error) {
	return Reply{Text: s.prompts.Help, Intent: IntentHelp}, true, nil
}
