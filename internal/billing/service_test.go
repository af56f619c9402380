package billing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	customers []Customer
	document  string
	name      string
	limit     int
}

func (f *fakeStore) Search(_ context.Context, _ uuid.UUID, document, name string, limit int) ([]Customer, error) {
	f.document, f.name, f.limit = document, name, limit
	return f.customers, nil
}

func TestExtractDocument(t *testing.T) {
	cases := map[string]string{
		"meu cpf é 123.456.789-09":      "12345678909",
		"cnpj 12.345.678/0001-95 ok":    "12345678000195",
		"12345678909":                   "12345678909",
		"nenhum documento aqui, só 123": "",
	}
	for in, want := range cases {
		if got := ExtractDocument(in); got != want {
			t.Fatalf("ExtractDocument(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsBillingIntent(t *testing.T) {
	if !IsBillingIntent("Preciso da segunda via do boleto") {
		t.Fatalf("expected billing intent")
	}
	if !IsBillingIntent("tenho débito em aberto?") {
		t.Fatalf("expected billing intent with accents")
	}
	if IsBillingIntent("quero agendar um horário") {
		t.Fatalf("did not expect billing intent")
	}
}

func TestLookupByDocument(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)
	if _, err := svc.Lookup(context.Background(), uuid.New(), "cpf 123.456.789-09"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.document != "12345678909" || store.name != "" || store.limit != MaxMatches {
		t.Fatalf("unexpected search args: %+v", store)
	}
}

func TestLookupShortNameSkipsSearch(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)
	got, err := svc.Lookup(context.Background(), uuid.New(), "ab")
	if err != nil || got != nil {
		t.Fatalf("expected empty result, got %v, %v", got, err)
	}
	if store.limit != 0 {
		t.Fatalf("expected no search")
	}
}

func TestReplyAsksForDocument(t *testing.T) {
	svc := NewService(&fakeStore{})
	reply, err := svc.Reply(context.Background(), uuid.New(), "segunda via do boleto")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply, "CPF ou CNPJ") {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestReplySummarizesMatches(t *testing.T) {
	due := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{customers: []Customer{
		{Name: "Maria Souza", OpenAmount: 350.9, OpenInvoices: 2, NextDueDate: &due},
		{Name: "Mário Souza"},
	}}
	svc := NewService(store)

	reply, err := svc.Reply(context.Background(), uuid.New(), "boleto da Maria Souza")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.name != "maria souza" {
		t.Fatalf("expected folded name query, got %q", store.name)
	}
	if !strings.Contains(reply, "2 fatura(s) em aberto, total R$ 350,90, próximo vencimento em 10/04/2026") {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if !strings.Contains(reply, "Mário Souza: nenhuma fatura em aberto.") {
		t.Fatalf("unexpected reply: %q", reply)
	}
}
