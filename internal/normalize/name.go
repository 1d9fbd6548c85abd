package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var honorifics = map[string]bool{
	"hon": true, "honorable": true, "the": true, "sen": true, "senator": true,
	"rep": true, "representative": true, "mr": true, "mrs": true, "ms": true, "dr": true,
}

// PoliticianName tidies a filer name for display: collapses whitespace and
// drops leading honorifics.
func PoliticianName(s string) string {
	tokens := strings.Fields(s)
	for len(tokens) > 1 && honorifics[strings.ToLower(strings.Trim(tokens[0], ".,"))] {
		tokens = tokens[1:]
	}
	return strings.Join(tokens, " ")
}

// NameKey folds a filer name into the identity key used to match politicians
// across filings: accents removed, lowercased, punctuation dropped.
func NameKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, PoliticianName(s))
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// State uppercases a two-letter state code, dropping any district suffix
// such as "CA12".
func State(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) > 2 {
		s = s[:2]
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return s
}
