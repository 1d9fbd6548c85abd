package normalize

import (
	"regexp"
	"strings"

	"github.com/sells-group/disclosure-cli/internal/model"
)

var (
	parenRe  = regexp.MustCompile(`\s*\([^)]*\)`)
	classRe  = regexp.MustCompile(`(?i)\s+(?:class|cl\.?)\s+[a-z]\b`)
	tickerRe = regexp.MustCompile(`^[A-Z0-9]{1,6}(?:[.\-][A-Z0-9]{1,3})?$`)
)

// corporateWords are trailing tokens dropped from ticker text.
var corporateWords = map[string]bool{
	"inc": true, "incorporated": true, "corp": true, "corporation": true,
	"co": true, "company": true, "ltd": true, "plc": true, "llc": true,
	"stock": true, "common": true, "shares": true, "ordinary": true, "adr": true,
}

// noTicker marks explicit "no symbol" placeholders used by filers.
var noTicker = map[string]bool{"": true, "--": true, "-": true, "n/a": true, "na": true, "none": true}

// CleanTicker normalizes a ticker cell. It strips parenthetical suffixes and
// trailing corporate-form words, uppercases, and keeps "." and "-" for class
// shares. An absent ticker ("", "--", "N/A") returns "" with no error.
func CleanTicker(s string) (string, error) {
	raw := strings.TrimSpace(s)
	if noTicker[strings.ToLower(raw)] {
		return "", nil
	}

	text := parenRe.ReplaceAllString(raw, " ")
	text = classRe.ReplaceAllString(text, " ")
	tokens := strings.Fields(text)
	for len(tokens) > 0 {
		last := strings.ToLower(strings.Trim(tokens[len(tokens)-1], ".,;:"))
		if !corporateWords[last] {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) != 1 {
		return "", fail("ticker", model.ReasonBadTicker, s)
	}

	sym := strings.ToUpper(strings.TrimPrefix(strings.Trim(tokens[0], ",;:"), "$"))
	sym = strings.TrimSuffix(sym, ".")
	if !tickerRe.MatchString(sym) {
		return "", fail("ticker", model.ReasonBadTicker, s)
	}
	return sym, nil
}

var embeddedTickerRe = regexp.MustCompile(`\(([A-Za-z0-9]{1,6}(?:[.\-][A-Za-z0-9]{1,3})?)\)`)

// TickerFromAsset finds a parenthesised symbol inside an asset description,
// e.g. "Apple Inc. - Common Stock (AAPL) [ST]" -> "AAPL".
func TickerFromAsset(asset string) string {
	m := embeddedTickerRe.FindStringSubmatch(asset)
	if len(m) < 2 {
		return ""
	}
	return strings.ToUpper(m[1])
}
