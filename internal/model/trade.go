// Package model defines the canonical types shared by the ingestion pipeline.
package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Chamber identifies the source site a filing originates from.
type Chamber string

const (
	ChamberA Chamber = "chamber_a"
	ChamberB Chamber = "chamber_b"
)

// Chambers returns the known chambers in a stable order.
func Chambers() []Chamber {
	return []Chamber{ChamberA, ChamberB}
}

// Valid reports whether c is one of the known chambers.
func (c Chamber) Valid() bool {
	return c == ChamberA || c == ChamberB
}

// ParseChamberSelector converts a caller-supplied selector ("a", "b", "both",
// or a full chamber name) into the chambers it covers.
func ParseChamberSelector(s string) ([]Chamber, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", string(ChamberA):
		return []Chamber{ChamberA}, nil
	case "b", string(ChamberB):
		return []Chamber{ChamberB}, nil
	case "both", "all":
		return Chambers(), nil
	default:
		return nil, eris.Errorf("unknown chamber: %q (valid: a, b, both)", s)
	}
}

// TransactionType is the normalized direction of a trade.
type TransactionType string

const (
	TransactionBuy  TransactionType = "buy"
	TransactionSell TransactionType = "sell"
)

// Valid reports whether t is buy or sell.
func (t TransactionType) Valid() bool {
	return t == TransactionBuy || t == TransactionSell
}

// AssetType is a coarse asset classification.
type AssetType string

const (
	AssetStock  AssetType = "stock"
	AssetOption AssetType = "option"
	AssetBond   AssetType = "bond"
	AssetFund   AssetType = "fund"
	AssetCrypto AssetType = "crypto"
	AssetOther  AssetType = "other"
)

// CanonicalTrade is the persisted unit of the pipeline. Dates are calendar
// dates at midnight UTC; amounts are integer cents.
type CanonicalTrade struct {
	ID               int64           `json:"id,omitempty"`
	SourceChamber    Chamber         `json:"source_chamber"`
	PoliticianRef    int64           `json:"politician_ref"`
	TransactionDate  time.Time       `json:"transaction_date"`
	DisclosureDate   time.Time       `json:"disclosure_date"`
	Ticker           *string         `json:"ticker,omitempty"`
	AssetDescription string          `json:"asset_description"`
	AssetType        AssetType       `json:"asset_type"`
	TransactionType  TransactionType `json:"transaction_type"`
	AmountMin        int64           `json:"amount_min"`
	AmountMax        int64           `json:"amount_max"`
	Owner            string          `json:"owner,omitempty"`
	FilingID         string          `json:"filing_id,omitempty"`
	RawPayload       string          `json:"raw_payload"`
	DedupKey         string          `json:"dedup_key"`
	RunID            string          `json:"run_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at,omitzero"`
}

// TickerOrEmpty returns the ticker symbol or "" for non-equity assets.
func (t *CanonicalTrade) TickerOrEmpty() string {
	if t.Ticker == nil {
		return ""
	}
	return *t.Ticker
}

// Politician is a resolved filer identity.
type Politician struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	State   string  `json:"state,omitempty"`
	Chamber Chamber `json:"chamber"`
}
