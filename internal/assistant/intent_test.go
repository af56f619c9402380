package assistant

import (
	"testing"
	"time"

	"atende_backend/internal/conversation"

	"github.com/google/uuid"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		text string
		want Intent
	}{
		{"Oi, bom dia!", IntentGreeting},
		{"quero agendar um corte", IntentBooking},
		{"preciso remarcar meu horário", IntentReschedule},
		{"quero cancelar", IntentCancel},
		{"quais são meus agendamentos?", IntentAppointments},
		{"me manda a nota fiscal", IntentFiscal},
		{"segunda via da NF", IntentFiscal},
		{"segunda via do boleto", IntentBilling},
		{"quero recomeçar", IntentReset},
		{"qual o endereço de vocês?", IntentHelp},
		{"preciso de uma informação", IntentHelp},
	}
	for _, tc := range cases {
		if got := Detect(tc.text); got != tc.want {
			t.Fatalf("Detect(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestIsGreeting(t *testing.T) {
	if !IsGreeting("Boa tarde!") {
		t.Fatalf("expected greeting")
	}
	if IsGreeting("boa tarde, quero agendar") {
		t.Fatalf("did not expect a pure greeting")
	}
}

func memoryWith(lastIntent string, draft *conversation.BookingTriage) *conversation.Memory {
	mem := conversation.NewMemory(uuid.New(), "5511999998888")
	mem.LastIntent = lastIntent
	mem.Context.BookingTriage = draft
	return &mem
}

func TestRouteResumesBookingWithName(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mem := memoryWith(string(IntentBooking), &conversation.BookingTriage{TimeHint: "15:00", UpdatedAt: now})

	if got := Route("Maria Souza", mem, now); got != IntentBooking {
		t.Fatalf("expected booking resumed, got %s", got)
	}
	if got := Route("amanhã às 15h", mem, now); got != IntentBooking {
		t.Fatalf("expected booking resumed by schedule data, got %s", got)
	}
}

func TestRouteDoesNotResumeEmptyBooking(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mem := memoryWith(string(IntentBooking), nil)

	if got := Route("Maria Souza", mem, now); got != IntentHelp {
		t.Fatalf("expected help without collected data, got %s", got)
	}
}

func TestRouteResumesRegistrationIntentWithDocument(t *testing.T) {
	now := time.Now()
	mem := memoryWith(string(IntentBilling), nil)

	if got := Route("123.456.789-09", mem, now); got != IntentBilling {
		t.Fatalf("expected billing resumed, got %s", got)
	}
	if got := Route("qual o endereço?", mem, now); got != IntentHelp {
		t.Fatalf("expected help for unrelated text, got %s", got)
	}
}

func TestRouteGreetingIsNeverResumed(t *testing.T) {
	now := time.Now()
	mem := memoryWith(string(IntentBooking), &conversation.BookingTriage{ClientName: "Maria"})

	if got := Route("oi", mem, now); got != IntentGreeting {
		t.Fatalf("expected greeting, got %s", got)
	}
}

func TestRoutePendingFiscalSelection(t *testing.T) {
	mem := memoryWith(string(IntentFiscal), nil)
	mem.Context.FiscalState = &conversation.FiscalState{AwaitingSelection: true}

	if got := Route("2", mem, time.Now()); got != IntentFiscal {
		t.Fatalf("expected fiscal selection, got %s", got)
	}
}
