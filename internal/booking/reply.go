package booking

import (
	"fmt"
	"strings"
	"time"
)

var invalidMessages = map[string]string{
	ReasonPast:    "Esse horário já passou.",
	ReasonClosed:  "Não atendemos nesse horário.",
	ReasonTaken:   "Esse horário já está ocupado.",
	ReasonService: "Esse serviço não está mais disponível.",
}

// FormatWhen renders a start time for chat, e.g. "12/03 às 14:30".
func FormatWhen(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("02/01") + " às " + t.Format("15:04")
}

// Reply renders the message for a slot-filling result. Only the slots still
// missing are asked for.
func Reply(res Result, loc *time.Location) string {
	if res.State == StateResolved && res.Appointment != nil {
		a := res.Appointment
		verb := "Agendamento confirmado"
		if res.Rescheduled {
			verb = "Agendamento remarcado"
		}
		return fmt.Sprintf("%s: %s para %s em %s.", verb, a.ServiceName, a.ClientName, FormatWhen(a.StartsAt, loc))
	}

	var b strings.Builder
	if msg, ok := invalidMessages[res.Invalid]; ok {
		b.WriteString(msg)
		b.WriteString(" ")
	}

	asks := make([]string, 0, len(res.Missing))
	for _, f := range res.Missing {
		switch f {
		case FieldName:
			asks = append(asks, "seu nome")
		case FieldService:
			asks = append(asks, "o serviço desejado")
		case FieldTime:
			if res.Draft.DateHint != "" {
				asks = append(asks, "o horário")
			} else {
				asks = append(asks, "a data e o horário")
			}
		}
	}
	if len(asks) > 0 {
		b.WriteString("Para concluir o agendamento, me informe ")
		b.WriteString(joinPT(asks))
		b.WriteString(".")
	}

	if hasField(res.Missing, FieldService) {
		names := make([]string, 0, len(res.Services))
		for _, s := range res.Services {
			if s.IsActive {
				names = append(names, s.Name)
			}
		}
		if len(names) > 0 {
			b.WriteString(" Serviços disponíveis: ")
			b.WriteString(strings.Join(names, ", "))
			b.WriteString(".")
		}
	}
	return strings.TrimSpace(b.String())
}

// CancelReply renders the outcome of a cancellation request.
func CancelReply(res CancelResult, leadTime time.Duration, loc *time.Location) string {
	switch res.Outcome {
	case CancelDone:
		return fmt.Sprintf("Pronto, seu agendamento de %s em %s foi cancelado.", res.Appointment.ServiceName, FormatWhen(res.Appointment.StartsAt, loc))
	case CancelTooLate:
		return fmt.Sprintf("Não é possível cancelar com menos de %s de antecedência. Seu horário de %s continua mantido.", formatLead(leadTime), FormatWhen(res.Appointment.StartsAt, loc))
	default:
		return "Não encontrei nenhum agendamento futuro no seu número."
	}
}

// UpcomingReply lists the client's appointments.
func UpcomingReply(appts []Appointment, loc *time.Location) string {
	if len(appts) == 0 {
		return "Você não tem agendamentos futuros."
	}
	lines := []string{"Seus próximos agendamentos:"}
	for i, a := range appts {
		lines = append(lines, fmt.Sprintf("%d. %s em %s", i+1, a.ServiceName, FormatWhen(a.StartsAt, loc)))
	}
	return strings.Join(lines, "\n")
}

// LeadTime returns the configured cancellation notice.
func (e *Engine) LeadTime() time.Duration {
	return e.leadTime
}

func formatLead(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hora"
		}
		return fmt.Sprintf("%d horas", h)
	}
	return fmt.Sprintf("%d minutos", int(d/time.Minute))
}

func joinPT(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " e " + items[len(items)-1]
}

func hasField(fields []Field, f Field) bool {
	for _, x := range fields {
		if x == f {
			return true
		}
	}
	return false
}
