package model

// ExtractMode records how a filing's transactions were pulled from the page.
type ExtractMode string

const (
	ExtractTable ExtractMode = "table"
	ExtractText  ExtractMode = "text"
)

// Canonical column names used by extractors when filling RawTransaction.Cells.
const (
	ColTransactionDate = "transaction_date"
	ColTicker          = "ticker"
	ColAsset           = "asset"
	ColAssetType       = "asset_type"
	ColType            = "type"
	ColAmount          = "amount"
	ColOwner           = "owner"
)

// RawTransaction is one transaction's raw cell text keyed by canonical
// column name. Values are page text as extracted.
type RawTransaction struct {
	Cells map[string]string
	// Line is the verbatim source text for the row, retained for audit.
	Line string
}

// Get returns the named cell or "".
func (r RawTransaction) Get(col string) string {
	if r.Cells == nil {
		return ""
	}
	return r.Cells[col]
}

// RawFiling is one disclosure document as extracted from a source page.
// It only lives for the duration of one extraction pass.
type RawFiling struct {
	Chamber        Chamber
	FilingID       string
	URL            string
	PoliticianName string
	State          string
	DisclosureDate string
	Mode           ExtractMode
	Transactions   []RawTransaction
}
