package phone

import (
	"reflect"
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"5511999998888:12@s.whatsapp.net", "5511999998888"},
		{"5511999998888@c.us", "5511999998888"},
		{"(11) 99999-8888", "5511999998888"},
		{"+55 11 99999-8888", "5511999998888"},
		{"0055 11 99999-8888", "5511999998888"},
		{"120363025246125486@g.us", ""},
		{"status@broadcast", ""},
		{"5511999998888-1600000000@s.whatsapp.net", ""},
		{"1234", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.raw); got != tt.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCandidatesCoverNinthDigitAndCountryCode(t *testing.T) {
	got := Candidates("11999998888")
	for _, want := range []string{"5511999998888", "11999998888", "1199998888", "551199998888"} {
		if !contains(got, want) {
			t.Fatalf("expected %s in %v", want, got)
		}
	}
	if got[0] != "5511999998888" {
		t.Fatalf("expected longest candidate first, got %v", got)
	}

	if Candidates("abc") != nil {
		t.Fatalf("expected no candidates for unparseable input")
	}
}

func TestCandidatesKeepAreaCode(t *testing.T) {
	for _, raw := range []string{"5511999998888", "11999998888", "1199998888", "551133334444"} {
		got := Candidates(raw)
		if len(got) != 4 {
			t.Fatalf("expected four forms for %s, got %v", raw, got)
		}
		for _, c := range got {
			national := c
			if len(c) >= 12 {
				national = c[len(countryPrefix):]
			}
			if national[:2] != "11" {
				t.Fatalf("candidate %s of %s changes the area code", c, raw)
			}
		}
	}

	got := Candidates("5511999998888")
	for _, foreign := range []string{"5519999998888", "5599999998888", "5551199998888", "1999998888"} {
		if contains(got, foreign) {
			t.Fatalf("unexpected foreign number %s in %v", foreign, got)
		}
	}
}

func TestExpandIsIdempotent(t *testing.T) {
	for _, seed := range []string{"5511999998888", "1133334444", "14155552671"} {
		once := Expand([]string{seed})
		twice := Expand(once)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("expand not idempotent for %s:\n%v\n%v", seed, once, twice)
		}
	}
	if got := Expand([]string{"11999998888", "551199998888"}); len(got) != 4 {
		t.Fatalf("expected forms of one root to collapse, got %v", got)
	}
}

func TestScore(t *testing.T) {
	candidates := []string{"5511999998888"}

	if score, _ := Score("5511999998888", candidates); score != exactBonus+13 {
		t.Fatalf("unexpected exact score %d", score)
	}
	if score, _ := Score("999998888", candidates); score != 13 {
		t.Fatalf("unexpected containment score %d", score)
	}
	if score, _ := Score("8888", candidates); score != 0 {
		t.Fatalf("short fragments must not match, got %d", score)
	}
}

func TestBestMatchPrefersExactThenRecent(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)
	candidates := Candidates("5511999998888")

	entries := []Entry{
		{Key: "suffix", Phone: "999998888", UpdatedAt: newer},
		{Key: "exact-old", Phone: "5511999998888", UpdatedAt: older},
		{Key: "exact-new", Phone: "5511999998888", UpdatedAt: newer},
		{Key: "other", Phone: "5521988887777", UpdatedAt: newer},
	}

	best, _, ok := BestMatch(entries, candidates)
	if !ok || best.Key != "exact-new" {
		t.Fatalf("unexpected match %+v", best)
	}

	if _, _, ok := BestMatch(entries[3:], candidates); ok {
		t.Fatalf("expected no match")
	}
}

func TestFormatE164(t *testing.T) {
	if got := FormatE164("11 99999-8888"); got != "+5511999998888" {
		t.Fatalf("unexpected E.164: %s", got)
	}
	if got := FormatE164("grupo@g.us"); got != "" {
		t.Fatalf("expected empty, got %s", got)
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
