package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// columnAliases maps normalized header text to a column name.
type columnAliases map[string]string

// tableRow is one body row of a recognized table.
type tableRow struct {
	cells map[string]string
	line  string
	sel   *goquery.Selection
}

// readTable finds the first table on the page whose header row maps every
// required column through aliases and returns its body rows. Columns with
// unknown headers are ignored, so added or reordered columns do not break
// extraction.
func readTable(doc *goquery.Document, aliases columnAliases, required ...string) ([]tableRow, bool) {
	var (
		rows  []tableRow
		found bool
	)
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		header, body := splitHeader(table)
		if header == nil {
			return true
		}

		cols := make(map[int]string)
		mapped := make(map[string]bool)
		header.Find("th, td").Each(func(i int, cell *goquery.Selection) {
			if col, ok := aliases[headerKey(cell.Text())]; ok {
				cols[i] = col
				mapped[col] = true
			}
		})
		for _, col := range required {
			if !mapped[col] {
				return true
			}
		}

		found = true
		body.Each(func(_ int, tr *goquery.Selection) {
			tds := tr.Find("td")
			if tds.Length() == 0 {
				return
			}
			row := tableRow{cells: make(map[string]string, len(cols)), sel: tr}
			parts := make([]string, 0, tds.Length())
			tds.Each(func(i int, td *goquery.Selection) {
				text := cellText(td)
				parts = append(parts, text)
				if col, ok := cols[i]; ok {
					row.cells[col] = text
				}
			})
			row.line = strings.Join(parts, " | ")
			if strings.Trim(row.line, " |") == "" {
				return
			}
			rows = append(rows, row)
		})
		return false
	})
	return rows, found
}

// splitHeader returns the header row and the body rows of a table. Tables
// without a thead use their first row as the header.
func splitHeader(table *goquery.Selection) (*goquery.Selection, *goquery.Selection) {
	if th := table.Find("thead tr").First(); th.Length() > 0 {
		return th, table.Find("tbody tr")
	}
	all := table.Find("tr")
	if all.Length() < 1 {
		return nil, nil
	}
	first := all.First()
	if first.Find("th").Length() == 0 && all.Length() < 2 {
		return nil, nil
	}
	return first, all.Slice(1, all.Length())
}

func headerKey(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.Trim(s, " :*#?")
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// rowLink returns the first link target in a row.
func rowLink(row tableRow) string {
	href, _ := row.sel.Find("a[href]").First().Attr("href")
	return strings.TrimSpace(href)
}

// transactionsFromRows converts table rows into raw transactions.
func transactionsFromRows(rows []tableRow, rewrite func(map[string]string)) []model.RawTransaction {
	out := make([]model.RawTransaction, 0, len(rows))
	for _, r := range rows {
		if rewrite != nil {
			rewrite(r.cells)
		}
		out = append(out, model.RawTransaction{Cells: r.cells, Line: r.line})
	}
	return out
}
