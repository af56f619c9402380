// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"atende_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Webhook Domain Events
// =============================================================================

// InboundMessageReceived is published once an inbound message is attributed to a tenant.
type InboundMessageReceived struct {
	BaseEvent
	EventRecordID uuid.UUID `json:"eventRecordId"`
	TenantID      uuid.UUID `json:"tenantId"`
	Phone         string    `json:"phone"`
	HasMedia      bool      `json:"hasMedia"`
}

func (e InboundMessageReceived) EventName() string { return "webhook.message.received" }

// WebhookEventFailed is published when processing failed after the record was persisted.
type WebhookEventFailed struct {
	BaseEvent
	EventRecordID uuid.UUID  `json:"eventRecordId"`
	TenantID      *uuid.UUID `json:"tenantId,omitempty"`
	Reason        string     `json:"reason"`
}

func (e WebhookEventFailed) EventName() string { return "webhook.event.failed" }

// =============================================================================
// Conversation Domain Events
// =============================================================================

// ReplyDispatched is published after an outbound reply was handed to the gateway.
type ReplyDispatched struct {
	BaseEvent
	TenantID  uuid.UUID `json:"tenantId"`
	Phone     string    `json:"phone"`
	Intent    string    `json:"intent"`
	Delivered bool      `json:"delivered"`
}

func (e ReplyDispatched) EventName() string { return "conversation.reply.dispatched" }

// =============================================================================
// Booking Domain Events
// =============================================================================

// AppointmentBooked is published when a slot-filling flow resolves into a booking.
type AppointmentBooked struct {
	BaseEvent
	AppointmentID uuid.UUID `json:"appointmentId"`
	TenantID      uuid.UUID `json:"tenantId"`
	Phone         string    `json:"phone"`
	ClientName    string    `json:"clientName"`
	ServiceName   string    `json:"serviceName"`
	StartsAt      time.Time `json:"startsAt"`
}

func (e AppointmentBooked) EventName() string { return "booking.appointment.booked" }

// AppointmentCanceled is published when a customer cancels through the conversation.
type AppointmentCanceled struct {
	BaseEvent
	AppointmentID uuid.UUID `json:"appointmentId"`
	TenantID      uuid.UUID `json:"tenantId"`
	StartsAt      time.Time `json:"startsAt"`
}

func (e AppointmentCanceled) EventName() string { return "booking.appointment.canceled" }
