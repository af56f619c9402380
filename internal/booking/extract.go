package booking

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"atende_backend/platform/sanitize"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
	maxNameLen  = 60
)

var (
	explicitNameRegex = regexp.MustCompile(`(?i)(?:^|[\s,.!])(?:meu nome (?:é|e)|me chamo|pode me chamar de|aqui (?:é|e) (?:o|a))\s+([\p{L}][\p{L}'\- ]*)`)

	isoDateRegex     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})(?:[Tt ](\d{2}):(\d{2}))?`)
	brDateRegex      = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?\b`)
	weekdayRegex     = regexp.MustCompile(`\b(?:(segunda|terca|quarta|quinta|sexta)[- ]feira|(sabado|domingo))\b`)
	clockRegex       = regexp.MustCompile(`\b(\d{1,2})[:h](\d{2})\b`)
	hourOnlyRegex    = regexp.MustCompile(`\b(\d{1,2})\s*(?:h|hs|hrs|horas)\b`)
	atHourRegex      = regexp.MustCompile(`\bas\s+(\d{1,2})\b`)
	documentCPFRegex = regexp.MustCompile(`\b\d{3}\.?\d{3}\.?\d{3}-?\d{2}\b`)
	documentCNPJ     = regexp.MustCompile(`\b\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}\b`)

	nameStopWords = map[string]struct{}{
		"e": {}, "quero": {}, "gostaria": {}, "para": {}, "pra": {}, "com": {}, "que": {}, "no": {}, "na": {},
		"sou": {}, "meu": {}, "minha": {}, "cpf": {}, "cnpj": {},
	}

	weekdays = map[string]time.Weekday{
		"domingo": time.Sunday,
		"segunda": time.Monday,
		"terca":   time.Tuesday,
		"quarta":  time.Wednesday,
		"quinta":  time.Thursday,
		"sexta":   time.Friday,
		"sabado":  time.Saturday,
	}

	// nameBlocklist holds operational words that never form a name.
	nameBlocklist = map[string]struct{}{
		"oi": {}, "ola": {}, "bom": {}, "boa": {}, "dia": {}, "tarde": {}, "noite": {},
		"obrigado": {}, "obrigada": {}, "sim": {}, "nao": {}, "ok": {}, "okay": {}, "quero": {},
		"agendar": {}, "agendamento": {}, "marcar": {}, "horario": {}, "agenda": {}, "cancelar": {},
		"desmarcar": {}, "remarcar": {}, "reagendar": {}, "nota": {}, "notas": {}, "fiscal": {},
		"boleto": {}, "fatura": {}, "segunda": {}, "via": {}, "ajuda": {}, "menu": {}, "servico": {},
		"servicos": {}, "valor": {}, "preco": {}, "hoje": {}, "amanha": {}, "tchau": {}, "blz": {},
		"beleza": {}, "certo": {}, "isso": {}, "pode": {}, "qual": {}, "quais": {}, "como": {},
		"terca": {}, "quarta": {}, "quinta": {}, "sexta": {}, "sabado": {}, "domingo": {}, "feira": {},
		"manha": {}, "depois": {}, "semana": {},
		"quando": {}, "onde": {}, "tudo": {}, "bem": {}, "opa": {}, "e": {}, "ai": {}, "voces": {},
	}
)

// ExtractName returns a client name found in text. Explicit introductions
// ("meu nome é X", "me chamo X") are preferred; otherwise a short name-like
// utterance is accepted when allowStandalone is set.
func ExtractName(text string, allowStandalone bool) string {
	if m := explicitNameRegex.FindStringSubmatch(text); m != nil {
		if name := cleanName(trimAtStopWord(m[1])); name != "" {
			return name
		}
	}
	if allowStandalone && LooksLikeName(text) {
		return cleanName(text)
	}
	return ""
}

// LooksLikeName reports whether text is a standalone name: no digits, at
// most four tokens made of letters, none of them an operational keyword.
func LooksLikeName(text string) bool {
	text = strings.TrimSpace(strings.Trim(text, ".!"))
	if text == "" || len([]rune(text)) > maxNameLen {
		return false
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 || len(tokens) > 4 {
		return false
	}
	letters := 0
	for _, r := range text {
		switch {
		case unicode.IsDigit(r):
			return false
		case unicode.IsLetter(r):
			letters++
		case r == ' ' || r == '\'' || r == '-':
		default:
			return false
		}
	}
	if letters < 2 {
		return false
	}
	for _, tok := range tokens {
		if _, blocked := nameBlocklist[sanitize.Fold(tok)]; blocked {
			return false
		}
	}
	return true
}

func trimAtStopWord(name string) string {
	var kept []string
	for _, tok := range strings.Fields(name) {
		if _, stop := nameStopWords[sanitize.Fold(tok)]; stop {
			break
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

func cleanName(name string) string {
	name = strings.Join(strings.Fields(strings.Trim(name, " .,!'-")), " ")
	tokens := strings.Fields(name)
	if len(tokens) > 4 {
		tokens = tokens[:4]
	}
	name = strings.Join(tokens, " ")
	if len([]rune(name)) < 2 || len([]rune(name)) > maxNameLen {
		return ""
	}
	return name
}

// ExtractDocument returns the digits of a CPF or CNPJ found in text.
func ExtractDocument(text string) string {
	for _, re := range []*regexp.Regexp{documentCNPJ, documentCPFRegex} {
		if m := re.FindString(text); m != "" {
			return digitsOnly(m)
		}
	}
	return ""
}

// MatchService picks the active service whose name occurs in text,
// preferring the longest name.
func MatchService(text string, services []Service) (Service, bool) {
	folded := sanitize.Fold(text)
	var (
		best    Service
		bestLen int
		found   bool
	)
	for _, s := range services {
		if !s.IsActive {
			continue
		}
		name := sanitize.Fold(strings.TrimSpace(s.Name))
		if name == "" || !strings.Contains(folded, name) {
			continue
		}
		if !found || len(name) > bestLen {
			best, bestLen, found = s, len(name), true
		}
	}
	return best, found
}

// DefaultService returns the only active service, if there is exactly one.
func DefaultService(services []Service) (Service, bool) {
	var (
		only  Service
		count int
	)
	for _, s := range services {
		if s.IsActive {
			only = s
			count++
		}
	}
	return only, count == 1
}

// ExtractDateTime returns the date ("2006-01-02") and clock ("15:04")
// fragments found in text, each empty when absent. Relative words are
// resolved against now, whose location is the tenant's.
func ExtractDateTime(text string, now time.Time) (date, clock string) {
	folded := sanitize.Fold(text)

	if m := isoDateRegex.FindStringSubmatch(folded); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if t, ok := validDate(y, mo, d, now.Location()); ok {
			date = t.Format(dateLayout)
		}
		if m[4] != "" {
			h, _ := strconv.Atoi(m[4])
			mi, _ := strconv.Atoi(m[5])
			clock = formatClock(h, mi)
		}
		folded = strings.Replace(folded, m[0], " ", 1)
	}

	if date == "" {
		date = extractBRDate(folded, now)
	}
	folded = brDateRegex.ReplaceAllString(folded, " ")

	if date == "" {
		date = extractRelativeDate(folded, now)
	}
	if clock == "" {
		clock = extractClock(folded)
	}
	return date, clock
}

func extractBRDate(folded string, now time.Time) string {
	m := brDateRegex.FindStringSubmatch(folded)
	if m == nil {
		return ""
	}
	d, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	y := now.Year()
	explicitYear := m[3] != ""
	if explicitYear {
		y, _ = strconv.Atoi(m[3])
		if y < 100 {
			y += 2000
		}
	}
	t, ok := validDate(y, mo, d, now.Location())
	if !ok {
		return ""
	}
	today := startOfDay(now)
	if !explicitYear && t.Before(today) {
		t, ok = validDate(y+1, mo, d, now.Location())
		if !ok {
			return ""
		}
	}
	return t.Format(dateLayout)
}

func extractRelativeDate(folded string, now time.Time) string {
	today := startOfDay(now)
	switch {
	case strings.Contains(folded, "depois de amanha"):
		return today.AddDate(0, 0, 2).Format(dateLayout)
	case strings.Contains(folded, "amanha"):
		return today.AddDate(0, 0, 1).Format(dateLayout)
	case strings.Contains(folded, "hoje"):
		return today.Format(dateLayout)
	}
	if m := weekdayRegex.FindStringSubmatch(folded); m != nil {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		target := weekdays[name]
		ahead := (int(target) - int(today.Weekday()) + 7) % 7
		return today.AddDate(0, 0, ahead).Format(dateLayout)
	}
	return ""
}

func extractClock(folded string) string {
	var h, mi int
	switch {
	case strings.Contains(folded, "meio dia") || strings.Contains(folded, "meio-dia"):
		return formatClock(12, 0)
	case clockRegex.MatchString(folded):
		m := clockRegex.FindStringSubmatch(folded)
		h, _ = strconv.Atoi(m[1])
		mi, _ = strconv.Atoi(m[2])
	case hourOnlyRegex.MatchString(folded):
		m := hourOnlyRegex.FindStringSubmatch(folded)
		h, _ = strconv.Atoi(m[1])
	case atHourRegex.MatchString(folded):
		m := atHourRegex.FindStringSubmatch(folded)
		h, _ = strconv.Atoi(m[1])
	default:
		return ""
	}
	if h < 12 && (strings.Contains(folded, "da tarde") || strings.Contains(folded, "da noite")) {
		h += 12
	}
	return formatClock(h, mi)
}

func formatClock(h, mi int) string {
	if h < 0 || h > 23 || mi < 0 || mi > 59 {
		return ""
	}
	return time.Date(2000, 1, 1, h, mi, 0, 0, time.UTC).Format(clockLayout)
}

func validDate(y, mo, d int, loc *time.Location) (time.Time, bool) {
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc)
	if t.Day() != d || int(t.Month()) != mo {
		return time.Time{}, false
	}
	return t, true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// combine joins date and clock fragments in loc.
func combine(date, clock string, loc *time.Location) (time.Time, bool) {
	d, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return time.Time{}, false
	}
	c, err := time.Parse(clockLayout, clock)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), 0, 0, loc), true
}

// nearestFutureDay places clock on today when still ahead, else tomorrow.
func nearestFutureDay(clock string, now time.Time) string {
	today := startOfDay(now)
	if t, ok := combine(today.Format(dateLayout), clock, now.Location()); ok && t.After(now) {
		return today.Format(dateLayout)
	}
	return today.AddDate(0, 0, 1).Format(dateLayout)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
