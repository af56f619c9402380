package assistant

import (
	"strings"
	"time"

	"atende_backend/internal/billing"
	"atende_backend/internal/booking"
	"atende_backend/internal/conversation"
	"atende_backend/platform/sanitize"
)

// Intent is the routing decision for one turn.
type Intent string

const (
	IntentGreeting     Intent = "greeting"
	IntentBooking      Intent = "booking"
	IntentReschedule   Intent = "reschedule"
	IntentCancel       Intent = "cancel"
	IntentAppointments Intent = "appointments"
	IntentFiscal       Intent = "fiscal"
	IntentBilling      Intent = "billing"
	IntentReset        Intent = "reset"
	// IntentHelp is the generic fallback.
	IntentHelp Intent = "help"
)

var (
	resetKeywords        = []string{"recomecar", "reiniciar", "comecar de novo", "resetar"}
	cancelKeywords       = []string{"cancelar", "desmarcar"}
	rescheduleKeywords   = []string{"remarcar", "reagendar", "mudar o horario", "trocar o horario"}
	appointmentsKeywords = []string{"meus agendamentos", "meus horarios", "tenho horario", "tenho agendamento"}
	bookingKeywords      = []string{"agendar", "marcar", "horario", "agenda", "agendamento"}
	fiscalKeywords       = []string{"nota fiscal", "notas fiscais", "minhas notas", "nota", "notas", "nfe", "nf-e", "nf", "danfe", "cupom"}

	greetingWords = map[string]bool{
		"oi": true, "ola": true, "ole": true, "bom": true, "boa": true, "dia": true, "tarde": true,
		"noite": true, "hey": true, "eai": true, "e": true, "ai": true, "opa": true, "tudo": true,
		"bem": true, "beleza": true, "salve": true,
	}
)

// Detect classifies a message by keywords alone.
func Detect(text string) Intent {
	folded := sanitize.Fold(text)
	switch {
	case folded == "":
		return IntentHelp
	case containsWord(folded, resetKeywords):
		return IntentReset
	case containsWord(folded, rescheduleKeywords):
		return IntentReschedule
	case containsWord(folded, cancelKeywords) && !containsWord(folded, fiscalKeywords):
		return IntentCancel
	case containsWord(folded, appointmentsKeywords):
		return IntentAppointments
	case containsWord(folded, fiscalKeywords):
		return IntentFiscal
	case billing.IsBillingIntent(text):
		return IntentBilling
	case containsWord(folded, bookingKeywords):
		return IntentBooking
	case IsGreeting(text):
		return IntentGreeting
	}
	return IntentHelp
}

// IsGreeting reports whether the message is only a greeting.
func IsGreeting(text string) bool {
	fields := strings.FieldsFunc(sanitize.Fold(text), func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?'
	})
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if !greetingWords[f] {
			return false
		}
	}
	return true
}

// Route picks the intent for a turn. On top of Detect it keeps the user
// inside an open flow: a pending fiscal selection, or a generic message
// carrying the data an earlier intent was waiting for.
func Route(text string, mem *conversation.Memory, now time.Time) Intent {
	detected := Detect(text)
	if detected != IntentHelp || mem == nil {
		return detected
	}

	if f := mem.Fiscal(); f != nil && f.AwaitingSelection {
		return IntentFiscal
	}

	last := Intent(mem.LastIntent)
	switch last {
	case IntentFiscal, IntentBilling:
		if carriesIdentity(text) {
			return last
		}
	case IntentBooking, IntentReschedule:
		draft := mem.Booking()
		if !draft.HasData() && (draft == nil || draft.AppointmentID == nil) {
			break
		}
		if carriesIdentity(text) || carriesSchedule(text, now) {
			return last
		}
	}
	return IntentHelp
}

func carriesIdentity(text string) bool {
	return booking.LooksLikeName(text) || booking.ExtractDocument(text) != "" || billing.ExtractDocument(text) != ""
}

func carriesSchedule(text string, now time.Time) bool {
	date, clock := booking.ExtractDateTime(text, now)
	return date != "" || clock != ""
}

// containsWord matches keywords on word boundaries so "nf" does not match
// inside "informacao".
func containsWord(folded string, keywords []string) bool {
	padded := " " + strings.Map(func(r rune) rune {
		switch r {
		case ',', '.', '!', '?', ';', ':':
			return ' '
		}
		return r
	}, folded) + " "
	for _, kw := range keywords {
		if strings.Contains(padded, " "+kw+" ") {
			return true
		}
	}
	return false
}
