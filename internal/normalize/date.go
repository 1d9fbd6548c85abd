package normalize

import (
	"strings"
	"time"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// DateLayouts is the ordered list of accepted date formats. The first layout
// that matches the whole input wins.
var DateLayouts = []string{
	"1/2/2006",        // MM/DD/YYYY
	"1-2-2006",        // MM-DD-YYYY
	"2006-01-02",      // YYYY-MM-DD
	"January 2, 2006", // long month name
	"Jan 2, 2006",     // abbreviated month name
}

// ParseDate parses s against DateLayouts and returns the calendar date at
// midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return parseDateAs("date", model.ReasonBadTransactionDate, s)
}

func parseDateAs(field string, reason model.ReasonCode, s string) (time.Time, error) {
	clean := strings.Join(strings.Fields(s), " ")
	// "Jan. 5, 2024" and "Sept 5, 2024" show up in hand-edited filings.
	clean = strings.Replace(clean, ".", "", 1)
	clean = strings.Replace(clean, "Sept ", "Sep ", 1)
	if clean == "" {
		return time.Time{}, fail(field, reason, s)
	}
	for _, layout := range DateLayouts {
		t, err := time.Parse(layout, clean)
		if err == nil {
			return model.DateOnly(t), nil
		}
	}
	return time.Time{}, fail(field, reason, s)
}
