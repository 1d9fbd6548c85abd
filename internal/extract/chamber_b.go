package extract

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// chamberBSite reads the chamber B electronic filing search. The site gates
// search behind a terms-of-use checkbox; report pages list transactions with
// explicit ticker and asset type columns.
type chamberBSite struct{}

const chamberBAgreeSelector = "#agree_statement"

var chamberBIndexColumns = columnAliases{
	"first name":         colFirstName,
	"last name":          colLastName,
	"office (full name)": colOffice,
	"office":             colOffice,
	"report type":        colReportType,
	"date received":      colFilingDate,
	"date filed":         colFilingDate,
}

var chamberBFilingColumns = columnAliases{
	"transaction date": model.ColTransactionDate,
	"owner":            model.ColOwner,
	"ticker":           model.ColTicker,
	"asset name":       model.ColAsset,
	"asset":            model.ColAsset,
	"asset type":       model.ColAssetType,
	"type":             model.ColType,
	"transaction type": model.ColType,
	"amount":           model.ColAmount,
}

// chamberBLine matches report text such as
// "01/15/2024 Spouse AAPL Apple Inc. Stock Purchase $1,001 - $15,000".
var chamberBLine = linePattern{
	re: regexp.MustCompile(`^(?:\d+\s+)?(\d{1,2}/\d{1,2}/\d{4})\s+(Self|Spouse|Joint|Child|Dependent Child)\s+(\S+)\s+(.+?)\s+(Purchase|Sale \(Full\)|Sale \(Partial\)|Sale|Exchange)\s+(\$[\d,]+(?:\.\d{2})?(?:\s*-\s*\$[\d,]+(?:\.\d{2})?)?|Over \$[\d,]+)`),
	cols: []string{
		model.ColTransactionDate, model.ColOwner, model.ColTicker, model.ColAsset, model.ColType, model.ColAmount,
	},
}

func (chamberBSite) chamber() model.Chamber { return model.ChamberB }

// prepare accepts the terms-of-use statement when the landing page shows it.
func (chamberBSite) prepare(ctx context.Context, f *pageFetcher, baseURL string) error {
	doc, err := f.fetch(ctx, strings.TrimRight(baseURL, "/")+"/search/")
	if err != nil {
		return eris.Wrap(err, "extract: load search landing page")
	}
	if doc.Find(chamberBAgreeSelector).Length() == 0 {
		return nil
	}
	return eris.Wrap(f.click(ctx, chamberBAgreeSelector), "extract: accept terms")
}

func (chamberBSite) indexURL(baseURL string, w Window, page int) string {
	q := url.Values{}
	q.Set("from", w.Start.Format(queryDateLayout))
	q.Set("to", w.End.Format(queryDateLayout))
	q.Set("report_types", "periodic_transaction")
	q.Set("page", strconv.Itoa(page))
	return searchURL(baseURL, "/search/results", q)
}

func (chamberBSite) parseIndex(doc *goquery.Document, baseURL string) ([]indexEntry, bool) {
	rows, _ := readTable(doc, chamberBIndexColumns, colLastName, colFilingDate)
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
			PoliticianName: strings.TrimSpace(r.cells[colFirstName] + " " + r.cells[colLastName]),
			DisclosureDate: r.cells[colFilingDate],
		})
	}
	return entries, hasNextPage(doc)
}

func (chamberBSite) parseFiling(doc *goquery.Document) ([]model.RawTransaction, model.ExtractMode) {
	rows, ok := readTable(doc, chamberBFilingColumns, model.ColTransactionDate, model.ColType, model.ColAmount)
	if ok && len(rows) > 0 {
		return transactionsFromRows(rows, nil), model.ExtractTable
	}
	return transactionsFromText(doc, chamberBLine, nil), model.ExtractText
}
