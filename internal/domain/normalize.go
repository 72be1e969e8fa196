package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are stripped from the end of a name before matching. Longer
// forms first so "ab (publ)" wins over "ab".
var legalSuffixes = []string{
	"ab (publ)", "ab publ", "ab", "hb", "kb", "asa", "as", "a/s", "oyj", "oy",
	"ltd", "plc", "gmbh", "inc",
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName produces the canonical matching key for an entity name:
// lowercase, diacritics folded, legal suffix stripped, whitespace collapsed.
// "Investor AB" and "investor" normalize to the same key.
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if folded, _, err := transform.String(diacriticStripper, s); err == nil {
		s = folded
	}
	s = strings.Join(strings.Fields(s), " ")
	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(s, " "+suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, " "+suffix))
			break
		}
	}
	return s
}
