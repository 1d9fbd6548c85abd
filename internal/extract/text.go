package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// linePattern recognizes one transaction per text line. cols names the
// column of each capture group in order; "" drops the group.
type linePattern struct {
	re   *regexp.Regexp
	cols []string
}

func (p linePattern) match(line string) (map[string]string, bool) {
	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	cells := make(map[string]string, len(p.cols))
	for i, col := range p.cols {
		if col == "" || i+1 >= len(m) {
			continue
		}
		cells[col] = strings.TrimSpace(m[i+1])
	}
	return cells, true
}

// pageLines renders the document body as text with one line per block
// element or <br>.
func pageLines(doc *goquery.Document) []string {
	body := goquery.CloneDocument(doc).Selection
	body.Find("script, style, noscript").Remove()
	body.Find("br").ReplaceWithHtml("\n")
	body.Find("p, div, li, tr, pre, h1, h2, h3, h4, h5, section, article").AppendHtml("\n")

	var lines []string
	for _, raw := range strings.Split(body.Find("body").Text(), "\n") {
		line := strings.Join(strings.Fields(raw), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// transactionsFromText scans the page text for lines matching pattern.
func transactionsFromText(doc *goquery.Document, pattern linePattern, rewrite func(map[string]string)) []model.RawTransaction {
	var out []model.RawTransaction
	for _, line := range pageLines(doc) {
		cells, ok := pattern.match(line)
		if !ok {
			continue
		}
		if rewrite != nil {
			rewrite(cells)
		}
		out = append(out, model.RawTransaction{Cells: cells, Line: line})
	}
	return out
}
