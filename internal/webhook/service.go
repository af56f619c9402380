package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"atende_backend/internal/conversation"
	"atende_backend/internal/events"
	"atende_backend/internal/tenants"
	"atende_backend/platform/logger"

	"github.com/google/uuid"
)

// Ignore reasons reported in the acknowledgement.
const (
	ReasonDuplicate    = "duplicate_event"
	ReasonFromMe       = "from_me"
	ReasonInvalidPhone = "invalid_phone"
	ReasonEmpty        = "empty_message"
	ReasonUnknown      = "unrecognized_sender"
	ReasonSelf         = "self_message"
	ReasonNotMessage   = "unsupported_event"
	ReasonPersistence  = "persistence_error"
	ReasonProcessing   = "processing_error"
)

// Ack is the success-shaped acknowledgement returned to the gateway.
type Ack struct {
	OK      bool       `json:"ok"`
	Status  string     `json:"status"`
	Reason  string     `json:"reason,omitempty"`
	EventID *uuid.UUID `json:"eventId,omitempty"`
}

// EventStore persists webhook records.
type EventStore interface {
	RecentEventChecker
	Insert(ctx context.Context, rec Record) (uuid.UUID, error)
	MarkTerminal(ctx context.Context, id uuid.UUID, status, reason string, tenantID *uuid.UUID) (bool, error)
}

// TenantResolver attributes a message to a tenant.
type TenantResolver interface {
	Resolve(ctx context.Context, instance string, candidates []string) (tenants.Resolution, error)
}

// TurnProcessor runs one conversation turn for an attributed message.
type TurnProcessor interface {
	ProcessInbound(ctx context.Context, in conversation.Inbound) (conversation.Outcome, error)
}

// Deduper guards the content-hash window.
type Deduper interface {
	Claim(ctx context.Context, provider, eventType, payloadHash string) (bool, error)
	Release(ctx context.Context, provider, eventType, payloadHash string) error
}

// Service handles one webhook delivery end to end.
type Service struct {
	store     EventStore
	dedup     Deduper
	resolver  TenantResolver
	processor TurnProcessor
	eventBus  events.Bus
	log       *logger.Logger
}

// NewService creates a new webhook service.
func NewService(store EventStore, dedup Deduper, resolver TenantResolver, processor TurnProcessor, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		dedup:     dedup,
		resolver:  resolver,
		processor: processor,
		eventBus:  eventBus,
		log:       log,
	}
}

// Handle processes one delivery. It never returns an error: every outcome,
// including internal failures, is reported through the Ack.
func (s *Service) Handle(ctx context.Context, provider string, body []byte) (ack Ack) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = "default"
	}

	var recordID uuid.UUID
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("webhook: panic while processing delivery", "provider", provider, "panic", r)
			if recordID != uuid.Nil {
				s.fail(ctx, recordID, nil, fmt.Sprintf("panic: %v", r))
				ack = Ack{OK: true, Status: StatusFailed, Reason: ReasonProcessing, EventID: &recordID}
				return
			}
			ack = Ack{OK: true, Status: StatusFailed, Reason: ReasonProcessing}
		}
	}()

	payload := DecodePayload(body)
	ev := Extract(payload)
	hash := PayloadHash(payload, body)
	log := &logger.Logger{Logger: s.log.With("provider", provider, "eventType", ev.EventType)}

	claimed := false
	if ev.EventID == "" {
		first, err := s.dedup.Claim(ctx, provider, ev.EventType, hash)
		if err != nil {
			log.Error("webhook: dedup window check failed", "error", err)
		} else if !first {
			s.log.WebhookEvent(provider, ev.EventType, StatusIgnored, ReasonDuplicate)
			return Ack{OK: true, Status: StatusIgnored, Reason: ReasonDuplicate}
		}
		claimed = err == nil
	}

	id, err := s.store.Insert(ctx, Record{
		Provider:     provider,
		EventType:    ev.EventType,
		EventID:      ev.EventID,
		InstanceName: ev.InstanceName,
		PayloadHash:  hash,
	})
	if errors.Is(err, ErrDuplicateEvent) {
		s.log.WebhookEvent(provider, ev.EventType, StatusIgnored, ReasonDuplicate)
		return Ack{OK: true, Status: StatusIgnored, Reason: ReasonDuplicate}
	}
	if err != nil {
		log.DatabaseError("webhook_events.insert", err)
		if claimed {
			if relErr := s.dedup.Release(ctx, provider, ev.EventType, hash); relErr != nil {
				log.Warn("webhook: dedup claim release failed", "error", relErr)
			}
		}
		return Ack{OK: true, Status: StatusFailed, Reason: ReasonPersistence}
	}
	recordID = id

	if reason := ignoreReason(ev); reason != "" {
		return s.ignore(ctx, provider, ev, id, nil, reason)
	}

	res, err := s.resolver.Resolve(ctx, ev.InstanceName, ev.Candidates)
	if errors.Is(err, tenants.ErrTenantNotFound) {
		return s.ignore(ctx, provider, ev, id, nil, ReasonUnknown)
	}
	if err != nil {
		log.Error("webhook: tenant resolution failed", "error", err)
		s.fail(ctx, id, nil, err.Error())
		return Ack{OK: true, Status: StatusFailed, Reason: ReasonPersistence, EventID: &id}
	}
	tenantID := res.Tenant.ID
	if res.SelfMessage {
		return s.ignore(ctx, provider, ev, id, &tenantID, ReasonSelf)
	}

	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.InboundMessageReceived{
			BaseEvent:     events.NewBaseEvent(),
			EventRecordID: id,
			TenantID:      tenantID,
			Phone:         ev.Phone,
			HasMedia:      ev.HasMedia,
		})
	}

	instance := ev.InstanceName
	if instance == "" {
		instance = res.Tenant.GatewayInstance
	}

	outcome, err := s.processor.ProcessInbound(ctx, conversation.Inbound{
		EventRecordID: id,
		TenantID:      tenantID,
		TenantName:    res.Tenant.Name,
		ProductMode:   res.Tenant.ProductMode,
		Instance:      instance,
		Phone:         ev.Phone,
		Candidates:    ev.Candidates,
		Text:          ev.Text,
		PushName:      ev.PushName,
		HasMedia:      ev.HasMedia,
		MediaType:     ev.MediaType,
	})
	if err != nil {
		log.Error("webhook: conversation turn failed", "eventRecordId", id, "tenantId", tenantID, "error", err)
		s.fail(ctx, id, &tenantID, err.Error())
		return Ack{OK: true, Status: StatusFailed, Reason: ReasonProcessing, EventID: &id}
	}

	if _, err := s.store.MarkTerminal(ctx, id, StatusProcessed, "", &tenantID); err != nil {
		log.DatabaseError("webhook_events.mark_processed", err)
	}
	log.Info("webhook: delivery processed", "eventRecordId", id, "intent", outcome.Intent, "delivered", outcome.Delivered)
	s.log.WebhookEvent(provider, ev.EventType, StatusProcessed, "")
	return Ack{OK: true, Status: StatusProcessed, EventID: &id}
}

func ignoreReason(ev InboundEvent) string {
	switch {
	case !isMessageEvent(ev.EventType):
		return ReasonNotMessage
	case ev.FromMe:
		return ReasonFromMe
	case ev.Phone == "":
		return ReasonInvalidPhone
	case ev.Text == "" && !ev.HasMedia:
		return ReasonEmpty
	}
	return ""
}

// isMessageEvent filters out connection, QR code and presence callbacks.
func isMessageEvent(eventType string) bool {
	t := strings.ToLower(eventType)
	for _, marker := range []string{"message", "received", "upsert"} {
		if strings.Contains(t, marker) {
			return true
		}
	}
	return false
}

func (s *Service) ignore(ctx context.Context, provider string, ev InboundEvent, id uuid.UUID, tenantID *uuid.UUID, reason string) Ack {
	if _, err := s.store.MarkTerminal(ctx, id, StatusIgnored, reason, tenantID); err != nil {
		s.log.DatabaseError("webhook_events.mark_ignored", err)
	}
	s.log.WebhookEvent(provider, ev.EventType, StatusIgnored, reason)
	return Ack{OK: true, Status: StatusIgnored, Reason: reason, EventID: &id}
}

func (s *Service) fail(ctx context.Context, id uuid.UUID, tenantID *uuid.UUID, reason string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.store.MarkTerminal(ctx, id, StatusFailed, reason, tenantID); err != nil {
		s.log.DatabaseError("webhook_events.mark_failed", err)
	}
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.WebhookEventFailed{
			BaseEvent:     events.NewBaseEvent(),
			EventRecordID: id,
			TenantID:      tenantID,
			Reason:        reason,
		})
	}
}
