package assistant

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"atende_backend/internal/booking"
	"atende_backend/internal/conversation"
	"atende_backend/internal/fiscal"
	"atende_backend/internal/tenants"
)

// Toolkit builds the tools offered to the completion loop for one turn.
type Toolkit struct {
	booking BookingFlow
	fiscal  FiscalFlow
	billing BillingFlow
	args    *ArgDecoder
}

// NewToolkit creates a toolkit. Nil flows contribute no tools.
func NewToolkit(bookingFlow BookingFlow, fiscalFlow FiscalFlow, billingFlow BillingFlow, args *ArgDecoder) *Toolkit {
	if args == nil {
		args = NewArgDecoder(nil)
	}
	return &Toolkit{booking: bookingFlow, fiscal: fiscalFlow, billing: billingFlow, args: args}
}

type lookupArgs struct {
	Query string `json:"consulta" validate:"required,min=3,max=120"`
}

type selectNoteArgs struct {
	Index     int    `json:"indice" validate:"omitempty,min=1,max=10"`
	Reference string `json:"referencia" validate:"required_without=Index,max=200"`
}

type bookArgs struct {
	Name    string `json:"nome" validate:"max=60"`
	Service string `json:"servico" validate:"max=80"`
	Date    string `json:"data" validate:"omitempty,datetime=2006-01-02"`
	Time    string `json:"horario" validate:"omitempty,datetime=15:04"`
}

type noteView struct {
	Index  int     `json:"indice"`
	Key    string  `json:"chave"`
	Amount float64 `json:"valor"`
	Status string  `json:"situacao"`
}

type customerView struct {
	Name         string  `json:"nome"`
	OpenAmount   float64 `json:"valorEmAberto"`
	OpenInvoices int     `json:"faturasEmAberto"`
	NextDueDate  string  `json:"proximoVencimento,omitempty"`
}

type appointmentView struct {
	Service string `json:"servico"`
	When    string `json:"quando"`
	Status  string `json:"situacao"`
}

// For returns the tools available to the tenant of the turn.
func (k *Toolkit) For(turn *Turn) []Tool {
	var tools []Tool
	if k.billing != nil && turn.supports(tenants.ModeBilling) {
		tools = append(tools, k.lookupCustomer(turn))
	}
	if k.fiscal != nil && turn.supports(tenants.ModeFiscal) {
		tools = append(tools, k.listNotes(turn), k.selectNote(turn))
	}
	if k.booking != nil && turn.supports(tenants.ModeScheduling) {
		tools = append(tools, k.listAppointments(turn), k.book(turn), k.cancel(turn))
	}
	return tools
}

func (k *Toolkit) lookupCustomer(turn *Turn) Tool {
	return Tool{
		Name:        "buscar_cliente",
		Description: "Busca clientes de cobrança por CPF/CNPJ ou nome e retorna o saldo em aberto.",
		Parameters: objectSchema(map[string]any{
			"consulta": stringProp("CPF, CNPJ ou parte do nome do cliente"),
		}, "consulta"),
		Execute: func(ctx context.Context, raw map[string]any) (string, error) {
			var args lookupArgs
			if err := k.args.Decode(raw, &args); err != nil {
				return "", err
			}
			customers, err := k.billing.Lookup(ctx, turn.Inbound.TenantID, args.Query)
			if err != nil {
				return "", err
			}
			views := make([]customerView, 0, len(customers))
			for _, c := range customers {
				v := customerView{Name: c.Name, OpenAmount: c.OpenAmount, OpenInvoices: c.OpenInvoices}
				if c.NextDueDate != nil {
					v.NextDueDate = c.NextDueDate.Format("2006-01-02")
				}
				views = append(views, v)
			}
			return toJSON(views)
		},
	}
}

func (k *Toolkit) listNotes(turn *Turn) Tool {
	return Tool{
		Name:        "listar_notas",
		Description: "Lista as notas fiscais mais recentes do cliente, numeradas a partir de 1.",
		Parameters:  objectSchema(nil),
		Execute: func(ctx context.Context, _ map[string]any) (string, error) {
			notes, err := k.fiscal.ListRecent(ctx, turn.Inbound.TenantID, turn.customerDocument())
			if err != nil {
				return "", err
			}
			turn.Memory.SaveFiscal(notes, len(notes) > 1, turn.Now)
			return toJSON(noteViews(notes))
		},
	}
}

func (k *Toolkit) selectNote(turn *Turn) Tool {
	return Tool{
		Name:        "selecionar_nota",
		Description: "Seleciona uma nota da última listagem pelo número ou por uma referência (valor, final da chave, ordinal).",
		Parameters: objectSchema(map[string]any{
			"indice":     integerProp("número da nota na listagem"),
			"referencia": stringProp("texto do cliente que identifica a nota"),
		}),
		Execute: func(_ context.Context, raw map[string]any) (string, error) {
			var args selectNoteArgs
			if err := k.args.Decode(raw, &args); err != nil {
				return "", err
			}
			q := fiscal.QueryFromState(args.Reference, turn.Memory.Fiscal())
			if args.Index > 0 {
				q.Text = strconv.Itoa(args.Index)
				q.AwaitingSelection = true
			}
			res, err := fiscal.Resolve(q)
			if errors.Is(err, fiscal.ErrAmbiguousReference) {
				return "referência ambígua; peça ao cliente para escolher:\n" + fiscal.SelectionPrompt(q.Listed), nil
			}
			if err != nil {
				return "", err
			}
			turn.Memory.SelectNote(res.Note.Key, turn.Now)
			return fiscal.NoteDetails(res.Note), nil
		},
	}
}

func (k *Toolkit) listAppointments(turn *Turn) Tool {
	return Tool{
		Name:        "consultar_agendamentos",
		Description: "Lista os próximos agendamentos do cliente.",
		Parameters:  objectSchema(nil),
		Execute: func(ctx context.Context, _ map[string]any) (string, error) {
			appts, err := k.booking.Upcoming(ctx, turn.Inbound.TenantID, turn.Inbound.Phone)
			if err != nil {
				return "", err
			}
			views := make([]appointmentView, 0, len(appts))
			for _, a := range appts {
				views = append(views, appointmentView{
					Service: a.ServiceName,
					When:    booking.FormatWhen(a.StartsAt, turn.Location),
					Status:  a.Status,
				})
			}
			return toJSON(views)
		},
	}
}

func (k *Toolkit) book(turn *Turn) Tool {
	return Tool{
		Name:        "agendar_horario",
		Description: "Preenche o agendamento com os dados informados e confirma quando estiver completo. Retorna o que ainda falta.",
		Parameters: objectSchema(map[string]any{
			"nome":    stringProp("nome do cliente"),
			"servico": stringProp("nome do serviço"),
			"data":    stringProp("data no formato AAAA-MM-DD"),
			"horario": stringProp("horário no formato HH:MM"),
		}),
		Execute: func(ctx context.Context, raw map[string]any) (string, error) {
			var args bookArgs
			if err := k.args.Decode(raw, &args); err != nil {
				return "", err
			}
			draft := turn.Memory.Booking()
			if args.Name != "" {
				d := conversation.BookingTriage{}
				if draft != nil {
					d = *draft
				}
				d.ClientName = strings.TrimSpace(args.Name)
				draft = &d
			}
			parts := []string{args.Service}
			if args.Date != "" {
				parts = append(parts, args.Date)
			}
			if args.Time != "" {
				parts = append(parts, args.Time)
			}
			res, err := k.booking.Advance(ctx, booking.Request{
				TenantID: turn.Inbound.TenantID,
				Phone:    turn.Inbound.Phone,
				Text:     strings.TrimSpace(strings.Join(parts, " ")),
				Draft:    draft,
				Intent:   string(IntentBooking),
				Location: turn.Location,
			})
			if err != nil {
				return "", err
			}
			if res.State == booking.StateResolved {
				turn.Memory.ClearBooking()
			} else {
				turn.Memory.SaveBooking(res.Draft, turn.Now)
			}
			return booking.Reply(res, turn.Location), nil
		},
	}
}

func (k *Toolkit) cancel(turn *Turn) Tool {
	return Tool{
		Name:        "cancelar_agendamento",
		Description: "Cancela o próximo agendamento do cliente, respeitando a antecedência mínima.",
		Parameters:  objectSchema(nil),
		Execute: func(ctx context.Context, _ map[string]any) (string, error) {
			res, err := k.booking.Cancel(ctx, turn.Inbound.TenantID, turn.Inbound.Phone)
			if err != nil {
				return "", err
			}
			if res.Outcome == booking.CancelDone {
				turn.Memory.ClearBooking()
			}
			return booking.CancelReply(res, k.booking.LeadTime(), turn.Location), nil
		},
	}
}

func noteViews(notes []conversation.NoteRef) []noteView {
	views := make([]noteView, 0, len(notes))
	for i, n := range notes {
		views = append(views, noteView{Index: i + 1, Key: n.Key, Amount: n.Amount, Status: fiscal.StatusLabel(n.Status)})
	}
	return views
}
