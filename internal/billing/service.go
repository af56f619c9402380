package billing

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"atende_backend/internal/fiscal"
	"atende_backend/platform/sanitize"

	"github.com/google/uuid"
)

var (
	documentRegex = regexp.MustCompile(`\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}|\d{3}\.?\d{3}\.?\d{3}-?\d{2}`)

	intentKeywords = []string{"segunda via", "boleto", "fatura", "debito", "em aberto", "cobranca"}

	nameFillers = map[string]bool{
		"segunda": true, "via": true, "boleto": true, "fatura": true, "de": true, "do": true, "da": true,
		"meu": true, "minha": true, "o": true, "a": true, "cliente": true, "quero": true, "preciso": true,
		"debito": true, "em": true, "aberto": true, "cobranca": true, "por": true, "favor": true, "nome": true,
	}
)

// CustomerStore searches billing customers.
type CustomerStore interface {
	Search(ctx context.Context, tenantID uuid.UUID, document, name string, limit int) ([]Customer, error)
}

// Service serves billing lookups.
type Service struct {
	store CustomerStore
}

// NewService creates a billing service.
func NewService(store CustomerStore) *Service {
	return &Service{store: store}
}

// IsBillingIntent reports whether the text asks for billing information.
func IsBillingIntent(text string) bool {
	folded := sanitize.Fold(text)
	for _, kw := range intentKeywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

// Lookup finds up to MaxMatches customers by CPF/CNPJ or name.
func (s *Service) Lookup(ctx context.Context, tenantID uuid.UUID, query string) ([]Customer, error) {
	document := ExtractDocument(query)
	name := ""
	if document == "" {
		name = strings.TrimSpace(query)
		if len([]rune(name)) < 3 {
			return nil, nil
		}
	}
	return s.store.Search(ctx, tenantID, document, name, MaxMatches)
}

// Reply answers a billing message. Without a document or a usable name the
// user is asked for one.
func (s *Service) Reply(ctx context.Context, tenantID uuid.UUID, text string) (string, error) {
	query := ExtractDocument(text)
	if query == "" {
		query = nameFromText(text)
	}
	if query == "" {
		return "Para consultar sua cobrança, me informe o CPF ou CNPJ do cadastro.", nil
	}

	customers, err := s.Lookup(ctx, tenantID, query)
	if err != nil {
		return "", err
	}
	return Summary(customers), nil
}

// Summary renders the open balance of each customer.
func Summary(customers []Customer) string {
	if len(customers) == 0 {
		return "Não encontrei nenhum cadastro com esses dados."
	}
	lines := make([]string, 0, len(customers))
	for _, c := range customers {
		if c.OpenInvoices == 0 {
			lines = append(lines, fmt.Sprintf("%s: nenhuma fatura em aberto.", c.Name))
			continue
		}
		line := fmt.Sprintf("%s: %d fatura(s) em aberto, total %s", c.Name, c.OpenInvoices, fiscal.FormatBRL(c.OpenAmount))
		if c.NextDueDate != nil {
			line += ", próximo vencimento em " + c.NextDueDate.Format("02/01/2006")
		}
		lines = append(lines, line+".")
	}
	return strings.Join(lines, "\n")
}

// ExtractDocument returns the digits of the first CPF or CNPJ in text.
func ExtractDocument(text string) string {
	m := documentRegex.FindString(text)
	if m == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range m {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func nameFromText(text string) string {
	var kept []string
	for _, word := range strings.Fields(sanitize.Fold(text)) {
		word = strings.Trim(word, ".,!?;:")
		if word == "" || nameFillers[word] {
			continue
		}
		kept = append(kept, word)
	}
	return strings.Join(kept, " ")
}
