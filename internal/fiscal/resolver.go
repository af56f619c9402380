package fiscal

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"atende_backend/internal/conversation"
	"atende_backend/platform/sanitize"
)

// Via names the rule that resolved a reference.
type Via string

const (
	ViaFullKey     Via = "full_key"
	ViaKeyFragment Via = "key_fragment"
	ViaAmount      Via = "amount"
	ViaOrdinal     Via = "ordinal"
	ViaIndex       Via = "index"
	ViaPronoun     Via = "pronoun"
	ViaSingle      Via = "single"
)

// minFragmentDigits keeps short numbers (days, quantities) from being read
// as key fragments.
const minFragmentDigits = 6

var (
	fullKeyRegex  = regexp.MustCompile(`\d{44}`)
	fragmentRegex = regexp.MustCompile(`\d{6,43}`)
	indexRegex    = regexp.MustCompile(`^(?:(?:a|o|nota|opcao|numero|n|no|item)\s*)?(\d{1,2})\s*[.)]?$`)
	ordinalRegex  = regexp.MustCompile(`\b(antepenultim|penultim|ultim|primeir|segund|terceir|quart|quint|sext|setim|oitav|non|decim)[ao]\b`)
	pronounRegex  = regexp.MustCompile(`\b(?:essa|esta|nessa|nesta|dessa|desta)\s+(?:nota|nf|nfe)\b|\b(?:dela|nela|ela|mesma)\b`)

	ordinalIndex = map[string]int{
		"ultim":        0,
		"primeir":      0,
		"penultim":     1,
		"segund":       1,
		"antepenultim": 2,
		"terceir":      2,
		"quart":        3,
		"quint":        4,
		"sext":         5,
		"setim":        6,
		"oitav":        7,
		"non":          8,
		"decim":        9,
	}
)

// Query is a reference to resolve. Listed is ordered most recent first.
type Query struct {
	Text              string
	Listed            []conversation.NoteRef
	SelectedKey       string
	AwaitingSelection bool
}

// QueryFromState builds a Query over the remembered listing.
func QueryFromState(text string, state *conversation.FiscalState) Query {
	q := Query{Text: text}
	if state != nil {
		q.Listed = state.ListedNotes
		q.SelectedKey = state.SelectedKey
		q.AwaitingSelection = state.AwaitingSelection
	}
	return q
}

// Resolution is a single resolved note. Listed is false for a full key that
// is not part of the remembered listing; only Note.Key is known then.
type Resolution struct {
	Note   conversation.NoteRef
	Index  int
	Listed bool
	Via    Via
}

// Resolve singles out one note. The first unambiguous rule wins: full key,
// key fragment, amount, ordinal or selection index, pronoun, single listed
// note. Anything else is ErrAmbiguousReference.
func Resolve(q Query) (Resolution, error) {
	folded := strings.TrimSpace(sanitize.Fold(q.Text))
	digitsText := strings.NewReplacer(" ", "", ".", "", "-", "", "/", "").Replace(folded)

	if key := fullKeyRegex.FindString(digitsText); key != "" {
		if i := indexOfKey(q.Listed, key); i >= 0 {
			return Resolution{Note: q.Listed[i], Index: i, Listed: true, Via: ViaFullKey}, nil
		}
		return Resolution{Note: conversation.NoteRef{Key: key}, Index: -1, Via: ViaFullKey}, nil
	}

	if res, ok, err := resolveFragment(q.Listed, folded); err != nil || ok {
		return res, err
	}

	if res, ok := resolveAmount(q.Listed, folded); ok {
		return res, nil
	}

	if q.AwaitingSelection {
		if m := indexRegex.FindStringSubmatch(folded); m != nil {
			n, _ := strconv.Atoi(m[1])
			if n >= 1 && n <= len(q.Listed) {
				return Resolution{Note: q.Listed[n-1], Index: n - 1, Listed: true, Via: ViaIndex}, nil
			}
		}
	}

	if i, ok := ordinal(folded); ok && i < len(q.Listed) {
		return Resolution{Note: q.Listed[i], Index: i, Listed: true, Via: ViaOrdinal}, nil
	}

	if q.SelectedKey != "" && pronounRegex.MatchString(folded) {
		if i := indexOfKey(q.Listed, q.SelectedKey); i >= 0 {
			return Resolution{Note: q.Listed[i], Index: i, Listed: true, Via: ViaPronoun}, nil
		}
		return Resolution{Note: conversation.NoteRef{Key: q.SelectedKey}, Index: -1, Via: ViaPronoun}, nil
	}

	if len(q.Listed) == 1 {
		return Resolution{Note: q.Listed[0], Index: 0, Listed: true, Via: ViaSingle}, nil
	}

	return Resolution{}, ErrAmbiguousReference
}

// resolveFragment matches digit runs against listed keys. More than one
// matching note is ambiguous and stops resolution.
func resolveFragment(listed []conversation.NoteRef, folded string) (Resolution, bool, error) {
	text := amountExprRegex.ReplaceAllString(folded, " ")
	matched := -1
	for _, frag := range fragmentRegex.FindAllString(text, -1) {
		for i, n := range listed {
			if !strings.Contains(n.Key, frag) {
				continue
			}
			if matched >= 0 && listed[matched].Key != n.Key {
				return Resolution{}, false, ErrAmbiguousReference
			}
			matched = i
		}
	}
	if matched < 0 {
		return Resolution{}, false, nil
	}
	return Resolution{Note: listed[matched], Index: matched, Listed: true, Via: ViaKeyFragment}, true, nil
}

// resolveAmount picks the note closest to any mentioned amount within
// tolerance. Two different notes at the same distance resolve nothing.
func resolveAmount(listed []conversation.NoteRef, folded string) (Resolution, bool) {
	targets := ExtractAmounts(folded)
	if len(targets) == 0 || len(listed) == 0 {
		return Resolution{}, false
	}

	best, bestDiff, tie := -1, math.Inf(1), false
	for _, target := range targets {
		tol := Tolerance(target)
		for i, n := range listed {
			diff := math.Abs(n.Amount - target)
			if diff > tol {
				continue
			}
			switch {
			case diff < bestDiff:
				best, bestDiff, tie = i, diff, false
			case diff == bestDiff && listed[best].Key != n.Key:
				tie = true
			}
		}
	}
	if best < 0 || tie {
		return Resolution{}, false
	}
	return Resolution{Note: listed[best], Index: best, Listed: true, Via: ViaAmount}, true
}

func ordinal(folded string) (int, bool) {
	for _, loc := range ordinalRegex.FindAllStringSubmatchIndex(folded, -1) {
		rest := folded[loc[1]:]
		if strings.HasPrefix(rest, " via") || strings.HasPrefix(rest, "-feira") || strings.HasPrefix(rest, " feira") {
			continue
		}
		stem := folded[loc[2]:loc[3]]
		if i, ok := ordinalIndex[stem]; ok {
			return i, true
		}
	}
	return 0, false
}

func indexOfKey(listed []conversation.NoteRef, key string) int {
	for i, n := range listed {
		if n.Key == key {
			return i
		}
	}
	return -1
}
