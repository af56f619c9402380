// Package sanitize provides text sanitization for inbound chat messages.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`[ \t\f\v]+`)
	blankLinesRegex = regexp.MustCompile(`\n{3,}`)
)

// MaxMessageRunes bounds the text kept from a single inbound message.
const MaxMessageRunes = 4000

// StripHTML removes tags some gateways leave in formatted messages.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&", "&quot;", "\"", "&#39;", "'").Replace(result)
	return htmlTagRegex.ReplaceAllString(result, "")
}

// Message normalizes inbound text: tags and control characters removed,
// runs of spaces collapsed, at most two consecutive newlines, trimmed and
// truncated to MaxMessageRunes.
func Message(s string) string {
	if s == "" {
		return ""
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = StripHTML(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = whitespaceRegex.ReplaceAllString(s, " ")
	s = blankLinesRegex.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	return Truncate(s, MaxMessageRunes)
}

// Truncate cuts s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	if n <= 1 {
		return string(runes[:n])
	}
	return string(runes[:n-1]) + "…"
}

// Fold lowercases s and strips diacritics so "Amanhã" and "amanha" compare
// equal. Keyword matching runs on folded text.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}
