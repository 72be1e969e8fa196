package domain

import "testing"

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Investor AB", "investor"},
		{"investor", "investor"},
		{"INVESTOR  AB", "investor"},
		{"Ericsson AB (publ)", "ericsson"},
		{"Ericsson AB publ", "ericsson"},
		{"Mölnlycke Health Care AB", "molnlycke health care"},
		{"Åke Håkansson HB", "ake hakansson"},
		{"Novo Nordisk A/S", "novo nordisk"},
		{"Nokia Oyj", "nokia"},
		{"Acme Ltd", "acme"},
		{"  Spaced   Out   AB  ", "spaced out"},
		{"Absolut Vodka", "absolut vodka"}, // "ab" inside a word stays
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeName(c.in); got != c.want {
			t.Fatalf("NormalizeName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeNameStripsOnlyOneSuffix(t *testing.T) {
	// Suffix stripping is a single pass: a name that is nothing but
	// suffixes keeps its inner part.
	if got := NormalizeName("Holding AB AB"); got != "holding ab" {
		t.Fatalf("got %q", got)
	}
}
