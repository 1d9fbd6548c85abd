package extract

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// chamberASite reads the chamber A clerk site. Filings are periodic
// transaction reports listed by a GET search; each report page holds one
// table row per transaction with single-letter type codes.
type chamberASite struct{}

const (
	colName       = "name"
	colOffice     = "office"
	colFilingDate = "filing_date"
	colFirstName  = "first_name"
	colLastName   = "last_name"
	colReportType = "report_type"
)

var chamberAIndexColumns = columnAliases{
	"name":        colName,
	"member":      colName,
	"office":      colOffice,
	"state":       colOffice,
	"filing date": colFilingDate,
	"date filed":  colFilingDate,
	"filed":       colFilingDate,
}

var chamberAFilingColumns = columnAliases{
	"owner":            model.ColOwner,
	"sp":               model.ColOwner,
	"asset":            model.ColAsset,
	"asset name":       model.ColAsset,
	"ticker":           model.ColTicker,
	"transaction type": model.ColType,
	"type":             model.ColType,
	"date":             model.ColTransactionDate,
	"transaction date": model.ColTransactionDate,
	"amount":           model.ColAmount,
}

// chamberALine matches report text such as
// "SP Apple Inc. (AAPL) [ST] P 01/15/2024 01/20/2024 $1,001 - $15,000".
var chamberALine = linePattern{
	re: regexp.MustCompile(`^(?:(SP|JT|DC)\s+)?(.+?)\s+(P|S|S \(partial\)|E)\s+(\d{1,2}/\d{1,2}/\d{4})\s+\d{1,2}/\d{1,2}/\d{4}\s+(\$[\d,]+(?:\.\d{2})?(?:\s*-\s*\$[\d,]+(?:\.\d{2})?)?|Over \$[\d,]+)`),
	cols: []string{
		model.ColOwner, model.ColAsset, model.ColType, model.ColTransactionDate, model.ColAmount,
	},
}

var chamberATypeCodes = map[string]string{
	"p":           "Purchase",
	"s":           "Sale",
	"s (partial)": "Sale (Partial)",
	"e":           "Exchange",
}

var chamberAOwnerCodes = map[string]string{
	"sp": "Spouse",
	"jt": "Joint",
	"dc": "Dependent Child",
}

func (chamberASite) chamber() model.Chamber { return model.ChamberA }

func (chamberASite) prepare(context.Context, *pageFetcher, string) error { return nil }

func (chamberASite) indexURL(baseURL string, w Window, page int) string {
	q := url.Values{}
	q.Set("start", w.Start.Format(queryDateLayout))
	q.Set("end", w.End.Format(queryDateLayout))
	q.Set("report", "ptr")
	q.Set("page", strconv.Itoa(page))
	return searchURL(baseURL, "/ptr-search", q)
}

func (chamberASite) parseIndex(doc *goquery.Document, baseURL string) ([]indexEntry, bool) {
	rows, _ := readTable(doc, chamberAIndexColumns, colName, colFilingDate)
	entries := make([]indexEntry, 0, len(rows))
	for _, r := range rows {
		href := rowLink(r)
		if href == "" {
			continue
		}
		link := resolveURL(baseURL, href)
		entries = append(entries, indexEntry{
			FilingID:       filingIDFromURL(link),
			URL:            link,
			PoliticianName: r.cells[colName],
			State:          r.cells[colOffice],
			DisclosureDate: r.cells[colFilingDate],
		})
	}
	return entries, hasNextPage(doc)
}

func (chamberASite) parseFiling(doc *goquery.Document) ([]model.RawTransaction, model.ExtractMode) {
	rows, ok := readTable(doc, chamberAFilingColumns, model.ColTransactionDate, model.ColType, model.ColAmount)
	if ok && len(rows) > 0 {
		return transactionsFromRows(rows, expandChamberACodes), model.ExtractTable
	}
	return transactionsFromText(doc, chamberALine, expandChamberACodes), model.ExtractText
}

// expandChamberACodes rewrites single-letter type and owner codes to the
// labels the normalizer understands.
func expandChamberACodes(cells map[string]string) {
	if label, ok := chamberATypeCodes[strings.ToLower(strings.TrimSpace(cells[model.ColType]))]; ok {
		cells[model.ColType] = label
	}
	if label, ok := chamberAOwnerCodes[strings.ToLower(strings.TrimSpace(cells[model.ColOwner]))]; ok {
		cells[model.ColOwner] = label
	}
}

// hasNextPage reports whether the results page links to a following page.
func hasNextPage(doc *goquery.Document) bool {
	if doc.Find(`a[rel="next"]`).Length() > 0 {
		return true
	}
	next := doc.Find(".paginate_button.next, .pagination .next")
	return next.Length() > 0 && !next.HasClass("disabled")
}
