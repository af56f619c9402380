package fiscal

import (
	"errors"
	"strings"
	"testing"

	"atende_backend/internal/conversation"
)

const (
	keyA = "35240512345678000190550010000012341000012345"
	keyB = "35240598765432000110550010000098761000098761"
	keyC = "35240511111111000111550010000055551000055555"
)

func listing() []conversation.NoteRef {
	return []conversation.NoteRef{
		{Key: keyA, Amount: 53000, Status: conversation.NoteImported},
		{Key: keyB, Amount: 40000, Status: conversation.NoteDetected},
		{Key: keyC, Amount: 1250.5, Status: conversation.NoteFailed},
	}
}

func TestResolveThousandsPicksClosestAmount(t *testing.T) {
	res, err := Resolve(Query{Text: "quero a nota de 53 mil", Listed: listing()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Note.Key != keyA || res.Via != ViaAmount {
		t.Fatalf("expected note A by amount, got %s via %s", res.Note.Key, res.Via)
	}
}

func TestResolveCurrencyWithinTolerance(t *testing.T) {
	res, err := Resolve(Query{Text: "a de R$ 1.260,00", Listed: listing()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Note.Key != keyC {
		t.Fatalf("expected note C, got %s", res.Note.Key)
	}
}

func TestResolveEqualAmountsAreAmbiguous(t *testing.T) {
	notes := listing()
	notes[1].Amount = 53000
	_, err := Resolve(Query{Text: "a nota de 53 mil", Listed: notes})
	if !errors.Is(err, ErrAmbiguousReference) {
		t.Fatalf("expected ambiguous reference, got %v", err)
	}
}

func TestResolveAmountOutsideToleranceFallsThrough(t *testing.T) {
	_, err := Resolve(Query{Text: "nota de 90 mil", Listed: listing()})
	if !errors.Is(err, ErrAmbiguousReference) {
		t.Fatalf("expected ambiguous reference, got %v", err)
	}
}

func TestResolveFullKey(t *testing.T) {
	spaced := strings.Join([]string{keyB[:4], keyB[4:8], keyB[8:12], keyB[12:]}, " ")
	res, err := Resolve(Query{Text: "chave " + spaced, Listed: listing()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Note.Key != keyB || res.Via != ViaFullKey || !res.Listed {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolveFullKeyOutsideListing(t *testing.T) {
	unknown := "41240500000000000100550010000000011000000019"
	res, err := Resolve(Query{Text: unknown})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Listed || res.Index != -1 || res.Note.Key != unknown {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolveKeyFragment(t *testing.T) {
	res, err := Resolve(Query{Text: "a que termina em 1000098761", Listed: listing()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Note.Key != keyB || res.Via != ViaKeyFragment {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolveFragmentMatchingSeveralNotesIsAmbiguous(t *testing.T) {
	_, err := Resolve(Query{Text: "a 352405", Listed: listing()})
	if !errors.Is(err, ErrAmbiguousReference) {
		t.Fatalf("expected ambiguous reference, got %v", err)
	}
}

func TestResolveOrdinals(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"a segunda", keyB},
		{"quero a terceira nota", keyC},
		{"a última", keyA},
		{"a penúltima", keyB},
	}
	for _, tc := range cases {
		res, err := Resolve(Query{Text: tc.text, Listed: listing()})
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.text, err)
		}
		if res.Note.Key != tc.want {
			t.Fatalf("%q: expected %s, got %s", tc.text, tc.want, res.Note.Key)
		}
	}
}

func TestResolveSegundaViaIsNotOrdinal(t *testing.T) {
	_, err := Resolve(Query{Text: "preciso da segunda via", Listed: listing()})
	if !errors.Is(err, ErrAmbiguousReference) {
		t.Fatalf("expected ambiguous reference, got %v", err)
	}
}

func TestResolveIndexOnlyWhenAwaiting(t *testing.T) {
	res, err := Resolve(Query{Text: "2", Listed: listing(), AwaitingSelection: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Note.Key != keyB || res.Via != ViaIndex {
		t.Fatalf("unexpected resolution: %+v", res)
	}

	if _, err := Resolve(Query{Text: "2", Listed: listing()}); !errors.Is(err, ErrAmbiguousReference) {
		t.Fatalf("expected bare index to be ignored, got %v", err)
	}
	if _, err := Resolve(Query{Text: "7", Listed: listing(), AwaitingSelection: true}); !errors.Is(err, ErrAmbiguousReference) {
		t.Fatalf("expected out of range index to be ambiguous, got %v", err)
	}
}

func TestResolvePronounUsesSelection(t *testing.T) {
	res, err := Resolve(Query{Text: "manda o pdf dela", Listed: listing(), SelectedKey: keyC})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Note.Key != keyC || res.Via != ViaPronoun {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolveSingleListedNote(t *testing.T) {
	res, err := Resolve(Query{Text: "e a nota?", Listed: listing()[:1]})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Via != ViaSingle || res.Note.Key != keyA {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestQueryFromState(t *testing.T) {
	state := &conversation.FiscalState{ListedNotes: listing(), SelectedKey: keyA, AwaitingSelection: true}
	q := QueryFromState("1", state)
	if len(q.Listed) != 3 || q.SelectedKey != keyA || !q.AwaitingSelection {
		t.Fatalf("unexpected query: %+v", q)
	}
	if q := QueryFromState("1", nil); q.Listed != nil {
		t.Fatalf("expected empty listing, got %+v", q)
	}
}
