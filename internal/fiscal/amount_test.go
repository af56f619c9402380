package fiscal

import "testing"

func TestExtractAmounts(t *testing.T) {
	cases := []struct {
		text string
		want []float64
	}{
		{"r$ 1.500,00", []float64{1500}},
		{"uns 250 reais", []float64{250}},
		{"a de 53 mil", []float64{53000}},
		{"a de 1,5 mil", []float64{1500}},
		{"nota de 4300", []float64{4300}},
		{"nota 12", nil},
		{"quero 4300", nil},
		{"nota 1234567890", nil},
	}
	for _, tc := range cases {
		got := ExtractAmounts(tc.text)
		if len(got) != len(tc.want) {
			t.Fatalf("%q: expected %v, got %v", tc.text, tc.want, got)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%q: expected %v, got %v", tc.text, tc.want, got)
			}
		}
	}
}

func TestTolerance(t *testing.T) {
	if got := Tolerance(100); got != 50 {
		t.Fatalf("expected floor of 50, got %v", got)
	}
	if got := Tolerance(10000); got != 400 {
		t.Fatalf("expected 4%% of target, got %v", got)
	}
}

func TestFormatBRL(t *testing.T) {
	cases := map[float64]string{
		53000:   "R$ 53.000,00",
		1250.5:  "R$ 1.250,50",
		0.07:    "R$ 0,07",
		1234567: "R$ 1.234.567,00",
	}
	for in, want := range cases {
		if got := FormatBRL(in); got != want {
			t.Fatalf("FormatBRL(%v) = %q, want %q", in, got, want)
		}
	}
}
