// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"sort"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
)

const (
	defaultRegion  = "BR"
	countryPrefix  = "55"
	minPhoneDigits = 8
	maxPhoneDigits = 15

	// minContainment guards the suffix/prefix rule against matching short fragments.
	minContainment = 8
	exactBonus     = 1000
)

// Normalize canonicalizes a raw phone string (or gateway identifier such as
// "5511999998888:12@s.whatsapp.net") into digits only. Group, broadcast and
// status identifiers are rejected and yield an empty string.
func Normalize(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}

	if at := strings.Index(value, "@"); at >= 0 {
		domain := strings.ToLower(value[at+1:])
		local := value[:at]
		if strings.Contains(domain, "g.us") || strings.Contains(domain, "broadcast") || strings.Contains(domain, "newsletter") {
			return ""
		}
		if strings.EqualFold(local, "status") || strings.Contains(local, "-") {
			return ""
		}
		value = local
	}
	if colon := strings.Index(value, ":"); colon >= 0 {
		value = value[:colon]
	}

	digits := onlyDigits(value)
	digits = strings.TrimPrefix(digits, "00")
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return ""
	}

	if len(digits) == 10 || len(digits) == 11 {
		digits = countryPrefix + digits
	}
	return digits
}

// FormatE164 formats a phone number to E.164 ("+5511999998888"). When the
// number cannot be validated it falls back to "+" and the canonical digits.
func FormatE164(raw string) string {
	canonical := Normalize(raw)
	if canonical == "" {
		return ""
	}

	number, err := phonenumbers.Parse("+"+canonical, defaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(number) {
		return "+" + canonical
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}

// Candidates returns the candidate set for a raw phone: the canonical value
// plus every plausible alternative representation. Empty when unparseable.
func Candidates(raw string) []string {
	canonical := Normalize(raw)
	if canonical == "" {
		return nil
	}
	return Expand([]string{canonical})
}

// Expand maps every value to its national root and returns the fixed set of
// representations of those roots: with and without the ninth digit, each with
// and without the country prefix. No candidate alters the area code, and
// Expand(Expand(s)) equals Expand(s) since each form maps back to its root.
func Expand(values []string) []string {
	seen := make(map[string]struct{}, len(values)*4)
	for _, v := range values {
		d := onlyDigits(v)
		if d == "" {
			continue
		}
		for _, f := range forms(d) {
			seen[f] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}

	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// forms lists the representations of a Brazilian number derived from its
// root (area code plus eight-digit subscriber). Other numbers stand alone.
func forms(d string) []string {
	local := d
	if strings.HasPrefix(d, countryPrefix) && len(d) >= 12 {
		local = d[len(countryPrefix):]
	}

	var root string
	switch {
	case len(local) == 10:
		root = local
	case len(local) == 11 && local[2] == '9':
		root = local[:2] + local[3:]
	case len(local) == 11:
		return []string{local, countryPrefix + local}
	default:
		return []string{d}
	}

	mobile := root[:2] + "9" + root[2:]
	return []string{root, mobile, countryPrefix + root, countryPrefix + mobile}
}

// Score rates how well a stored phone matches a candidate set. An exact
// match scores 1000+len(candidate), a mutual suffix/prefix containment scores
// len(candidate), anything else 0. The returned length is the matched
// candidate length used for tie-breaking.
func Score(stored string, candidates []string) (score int, matchedLen int) {
	s := onlyDigits(stored)
	if s == "" {
		return 0, 0
	}

	for _, c := range candidates {
		var current int
		switch {
		case c == "":
			continue
		case s == c:
			current = exactBonus + len(c)
		case containsEitherWay(s, c):
			current = len(c)
		default:
			continue
		}
		if current > score || (current == score && len(c) > matchedLen) {
			score = current
			matchedLen = len(c)
		}
	}
	return score, matchedLen
}

func containsEitherWay(a, b string) bool {
	shorter := a
	if len(b) < len(shorter) {
		shorter = b
	}
	if len(shorter) < minContainment {
		return false
	}
	return strings.HasSuffix(a, b) || strings.HasSuffix(b, a) ||
		strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// Entry is a stored phone that may be matched against a candidate set.
type Entry struct {
	Key       string
	Phone     string
	UpdatedAt time.Time
}

// BestMatch picks the highest-scoring entry with a strictly positive score.
// Ties are broken by the longest matched candidate, then by the most
// recently updated entry.
func BestMatch(entries []Entry, candidates []string) (Entry, int, bool) {
	var (
		best      Entry
		bestScore int
		bestLen   int
		found     bool
	)
	for _, e := range entries {
		score, length := Score(e.Phone, candidates)
		if score <= 0 {
			continue
		}
		better := !found ||
			score > bestScore ||
			(score == bestScore && length > bestLen) ||
			(score == bestScore && length == bestLen && e.UpdatedAt.After(best.UpdatedAt))
		if better {
			best, bestScore, bestLen, found = e, score, length, true
		}
	}
	return best, bestScore, found
}

// Contains reports whether the candidate set includes the stored phone
// with any positive score.
func Contains(candidates []string, stored string) bool {
	score, _ := Score(stored, candidates)
	return score > 0
}

func onlyDigits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
