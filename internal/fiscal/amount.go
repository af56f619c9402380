package fiscal

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	minTolerance      = 50.0
	relativeTolerance = 0.04
	minPlainAmount    = 100.0
)

var (
	currencyRegex   = regexp.MustCompile(`r\$\s*(\d[\d.]*(?:,\d{1,2})?)`)
	reaisRegex      = regexp.MustCompile(`(\d[\d.]*(?:,\d{1,2})?)\s*reais\b`)
	thousandsRegex  = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*mil\b`)
	plainRegex      = regexp.MustCompile(`\b\d[\d.]*(?:,\d{1,2})?\b`)
	fiscalKeywords  = []string{"nota", "nf", "nfe", "nf-e", "danfe", "valor", "cupom"}
	amountExprRegex = regexp.MustCompile(`r\$\s*\d[\d.]*(?:,\d{1,2})?|\d[\d.]*(?:,\d{1,2})?\s*(?:reais|mil)\b`)
)

// Tolerance is the accepted distance between a mentioned and a listed amount.
func Tolerance(target float64) float64 {
	return math.Max(minTolerance, target*relativeTolerance)
}

// ExtractAmounts returns the monetary targets mentioned in folded text:
// currency notation, "N reais", "N mil" and, when the text talks about
// notes, plain numbers of at least 100.
func ExtractAmounts(folded string) []float64 {
	var out []float64
	for _, m := range currencyRegex.FindAllStringSubmatch(folded, -1) {
		if v, ok := parseBRNumber(m[1]); ok {
			out = append(out, v)
		}
	}
	for _, m := range reaisRegex.FindAllStringSubmatch(folded, -1) {
		if v, ok := parseBRNumber(m[1]); ok {
			out = append(out, v)
		}
	}
	for _, m := range thousandsRegex.FindAllStringSubmatch(folded, -1) {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64); err == nil {
			out = append(out, v*1000)
		}
	}
	if len(out) > 0 || !hasFiscalKeyword(folded) {
		return out
	}

	for _, raw := range plainRegex.FindAllString(folded, -1) {
		if len(digitsOnly(raw)) > 9 {
			continue
		}
		if v, ok := parseBRNumber(raw); ok && v >= minPlainAmount {
			out = append(out, v)
		}
	}
	return out
}

func hasFiscalKeyword(folded string) bool {
	for _, field := range strings.FieldsFunc(folded, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '?' || r == '!'
	}) {
		for _, kw := range fiscalKeywords {
			if field == kw || field == kw+"s" {
				return true
			}
		}
	}
	return false
}

// parseBRNumber parses "1.500,00", "1500,5", "1.500" or "1500.50".
func parseBRNumber(s string) (float64, bool) {
	s = strings.Trim(s, ".,")
	if s == "" {
		return 0, false
	}
	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") == 1:
		if idx := strings.Index(s, "."); len(s)-idx-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	default:
		s = strings.ReplaceAll(s, ".", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FormatBRL renders an amount as "R$ 53.000,00".
func FormatBRL(v float64) string {
	neg := v < 0
	cents := int64(math.Round(math.Abs(v) * 100))
	intPart := strconv.FormatInt(cents/100, 10)

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := "R$ " + b.String() + "," + leftPad(strconv.FormatInt(cents%100, 10), 2)
	if neg {
		out = "-" + out
	}
	return out
}

func leftPad(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
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
