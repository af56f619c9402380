// Package conversation holds the per-phone conversation memory: booking
// triage, fiscal note references and the rolling transcript.
package conversation

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// ContextVersion is the schema version of the JSON context document.
	ContextVersion = 1

	BookingTTL        = 6 * time.Hour
	FiscalTTL         = 24 * time.Hour
	MaxRecentMessages = 20
	MaxListedNotes    = 10
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"atIso"`
}

// Note statuses as stored on NoteRef snapshots.
const (
	NoteDetected = "detected"
	NoteImported = "imported"
	NoteFailed   = "failed"
)

// NoteRef is an immutable snapshot of a listed fiscal note.
type NoteRef struct {
	Key        string    `json:"key"`
	Amount     float64   `json:"amount"`
	Status     string    `json:"status"`
	IssuerName string    `json:"issuerName,omitempty"`
	CreatedAt  time.Time `json:"createdAtIso"`
}

// BookingTriage is the partially collected booking draft. DateHint and
// TimeHint keep a lone date or time fragment until the other half arrives.
type BookingTriage struct {
	ClientName     string     `json:"clientName,omitempty"`
	ClientDocument string     `json:"clientDocument,omitempty"`
	ServiceID      *uuid.UUID `json:"serviceId,omitempty"`
	StartsAt       *time.Time `json:"startsAtIso,omitempty"`
	DateHint       string     `json:"dateHint,omitempty"`
	TimeHint       string     `json:"timeHint,omitempty"`
	AppointmentID  *uuid.UUID `json:"appointmentId,omitempty"`
	LastIntent     string     `json:"lastIntent,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAtIso"`
}

// HasData reports whether any slot has been collected.
func (b *BookingTriage) HasData() bool {
	if b == nil {
		return false
	}
	return b.ClientName != "" || b.ClientDocument != "" || b.ServiceID != nil ||
		b.StartsAt != nil || b.DateHint != "" || b.TimeHint != ""
}

// FiscalState remembers the last listing shown to the user.
type FiscalState struct {
	ListedNotes       []NoteRef `json:"listedNotes"`
	SelectedKey       string    `json:"selectedKey,omitempty"`
	AwaitingSelection bool      `json:"awaitingSelection,omitempty"`
	UpdatedAt         time.Time `json:"updatedAtIso"`
}

// Context is the versioned JSON document stored with the memory row.
type Context struct {
	Version        int            `json:"version"`
	BookingTriage  *BookingTriage `json:"bookingTriage,omitempty"`
	FiscalState    *FiscalState   `json:"fiscalState,omitempty"`
	RecentMessages []Message      `json:"recentMessages"`
}

// Memory is the conversation state for one (tenant, phone) pair.
type Memory struct {
	TenantID       uuid.UUID
	Phone          string
	UserName       string
	LastIntent     string
	LastInboundAt  *time.Time
	LastOutboundAt *time.Time
	LastActivityAt time.Time
	Context        Context
	// Version is the row version, incremented by every write.
	Version int
}

// NewMemory returns the empty state used when no row exists yet.
func NewMemory(tenantID uuid.UUID, phone string) Memory {
	return Memory{
		TenantID: tenantID,
		Phone:    phone,
		Context:  Context{Version: ContextVersion},
	}
}

// Expire drops sub-states whose last update is older than their TTL.
// It reports whether anything was dropped.
func (m *Memory) Expire(now time.Time) bool {
	dropped := false
	if b := m.Context.BookingTriage; b != nil && now.Sub(b.UpdatedAt) > BookingTTL {
		m.Context.BookingTriage = nil
		dropped = true
	}
	if f := m.Context.FiscalState; f != nil && now.Sub(f.UpdatedAt) > FiscalTTL {
		m.Context.FiscalState = nil
		dropped = true
	}
	return dropped
}

// Booking returns the active draft or nil.
func (m *Memory) Booking() *BookingTriage {
	return m.Context.BookingTriage
}

// Fiscal returns the active fiscal state or nil.
func (m *Memory) Fiscal() *FiscalState {
	return m.Context.FiscalState
}

// RecordInbound appends a user message to the transcript.
func (m *Memory) RecordInbound(text, userName string, at time.Time) {
	m.appendMessage(RoleUser, text, at)
	m.LastInboundAt = &at
	m.LastActivityAt = at
	if name := strings.TrimSpace(userName); name != "" {
		m.UserName = name
	}
}

// RecordOutbound appends an assistant message and remembers the intent
// that produced it.
func (m *Memory) RecordOutbound(text, intent string, at time.Time) {
	m.appendMessage(RoleAssistant, text, at)
	m.LastOutboundAt = &at
	m.LastActivityAt = at
	if intent != "" {
		m.LastIntent = intent
	}
}

func (m *Memory) appendMessage(role Role, text string, at time.Time) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	msgs := append(m.Context.RecentMessages, Message{Role: role, Text: text, At: at})
	if over := len(msgs) - MaxRecentMessages; over > 0 {
		msgs = append([]Message(nil), msgs[over:]...)
	}
	m.Context.RecentMessages = msgs
}

// SaveBooking replaces the booking draft.
func (m *Memory) SaveBooking(draft BookingTriage, at time.Time) {
	draft.UpdatedAt = at
	m.Context.BookingTriage = &draft
}

// ClearBooking removes the booking draft.
func (m *Memory) ClearBooking() {
	m.Context.BookingTriage = nil
}

// SaveFiscal stores a fresh listing, superseding the previous one.
func (m *Memory) SaveFiscal(notes []NoteRef, awaitingSelection bool, at time.Time) {
	if len(notes) > MaxListedNotes {
		notes = notes[:MaxListedNotes]
	}
	listed := make([]NoteRef, len(notes))
	copy(listed, notes)

	selected := ""
	if prev := m.Context.FiscalState; prev != nil {
		for _, n := range listed {
			if n.Key == prev.SelectedKey {
				selected = prev.SelectedKey
				break
			}
		}
	}

	m.Context.FiscalState = &FiscalState{
		ListedNotes:       listed,
		SelectedKey:       selected,
		AwaitingSelection: awaitingSelection,
		UpdatedAt:         at,
	}
}

// SelectNote marks a note as the current reference for pronoun follow-ups.
func (m *Memory) SelectNote(key string, at time.Time) {
	state := m.Context.FiscalState
	if state == nil {
		state = &FiscalState{}
		m.Context.FiscalState = state
	}
	state.SelectedKey = key
	state.AwaitingSelection = false
	state.UpdatedAt = at
}

// Reset clears booking and fiscal sub-states. The transcript is kept.
func (m *Memory) Reset() {
	m.Context.BookingTriage = nil
	m.Context.FiscalState = nil
	m.LastIntent = ""
}

// History returns the transcript oldest first.
func (m *Memory) History() []Message {
	out := make([]Message, len(m.Context.RecentMessages))
	copy(out, m.Context.RecentMessages)
	return out
}
