package normalize

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// Band is one fixed disclosure amount range in cents.
type Band struct {
	Label string
	Min   int64
	Max   int64
}

// Bands is the ordered table of disclosure ranges used by filers instead of
// exact amounts. The open-ended top band stores its floor in both bounds.
var Bands = []Band{
	{"$1,001 - $15,000", 1_001_00, 15_000_00},
	{"$15,001 - $50,000", 15_001_00, 50_000_00},
	{"$50,001 - $100,000", 50_001_00, 100_000_00},
	{"$100,001 - $250,000", 100_001_00, 250_000_00},
	{"$250,001 - $500,000", 250_001_00, 500_000_00},
	{"$500,001 - $1,000,000", 500_001_00, 1_000_000_00},
	{"$1,000,001 - $5,000,000", 1_000_001_00, 5_000_000_00},
	{"$5,000,001 - $25,000,000", 5_000_001_00, 25_000_000_00},
	{"$25,000,001 - $50,000,000", 25_000_001_00, 50_000_000_00},
	{"Over $50,000,000", 50_000_001_00, 50_000_001_00},
}

var (
	dashRe   = regexp.MustCompile(`\s*[-‐‑‒–—]\s*`)
	figureRe = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?`)
	bandKeys = buildBandKeys()
)

func bandKey(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return dashRe.ReplaceAllString(s, "-")
}

func buildBandKeys() map[string]Band {
	m := make(map[string]Band, len(Bands))
	for _, b := range Bands {
		m[bandKey(b.Label)] = b
	}
	return m
}

// ParseAmount maps amount text to (min, max) cents. An exact band label
// match wins; otherwise the first one or two monetary figures in the text
// are used, a single figure filling both bounds.
func ParseAmount(s string) (int64, int64, error) {
	if b, ok := bandKeys[bandKey(s)]; ok {
		return b.Min, b.Max, nil
	}

	figures := figureRe.FindAllString(s, 2)
	if len(figures) == 0 {
		return 0, 0, fail("amount", model.ReasonBadAmount, s)
	}
	lo, err := toCents(figures[0])
	if err != nil {
		return 0, 0, fail("amount", model.ReasonBadAmount, s)
	}
	if len(figures) == 1 {
		return lo, lo, nil
	}
	hi, err := toCents(figures[1])
	if err != nil {
		return 0, 0, fail("amount", model.ReasonBadAmount, s)
	}
	return lo, hi, nil
}

func toCents(figure string) (int64, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(figure, ",", ""))
	if err != nil {
		return 0, err
	}
	return d.Shift(2).Round(0).IntPart(), nil
}
