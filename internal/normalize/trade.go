package normalize

import (
	"strings"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// Transaction normalizes one raw transaction of a filing into a canonical
// trade. PoliticianRef and DedupKey are left for the caller. Empty cells are
// left at their zero value for the validator to reject; non-empty cells that
// cannot be parsed fail here.
func Transaction(f model.RawFiling, tx model.RawTransaction) (model.CanonicalTrade, error) {
	trade := model.CanonicalTrade{
		SourceChamber:    f.Chamber,
		FilingID:         f.FilingID,
		AssetDescription: strings.Join(strings.Fields(tx.Get(model.ColAsset)), " "),
		Owner:            strings.TrimSpace(tx.Get(model.ColOwner)),
		RawPayload:       tx.Line,
	}

	if raw := strings.TrimSpace(tx.Get(model.ColTransactionDate)); raw != "" {
		d, err := parseDateAs("transaction_date", model.ReasonBadTransactionDate, raw)
		if err != nil {
			return trade, err
		}
		trade.TransactionDate = d
	}

	if raw := strings.TrimSpace(f.DisclosureDate); raw != "" {
		d, err := parseDateAs("disclosure_date", model.ReasonBadDisclosureDate, raw)
		if err != nil {
			return trade, err
		}
		trade.DisclosureDate = d
	}

	tickerText := tx.Get(model.ColTicker)
	if strings.TrimSpace(tickerText) == "" {
		tickerText = TickerFromAsset(trade.AssetDescription)
	}
	sym, err := CleanTicker(tickerText)
	if err != nil {
		return trade, err
	}
	if sym != "" {
		trade.Ticker = &sym
	}

	trade.AssetType = ClassifyAsset(tx.Get(model.ColAssetType), trade.AssetDescription)

	if raw := strings.TrimSpace(tx.Get(model.ColType)); raw != "" {
		tt, err := ParseTransactionType(raw)
		if err != nil {
			return trade, err
		}
		trade.TransactionType = tt
	}

	if raw := strings.TrimSpace(tx.Get(model.ColAmount)); raw != "" {
		lo, hi, err := ParseAmount(raw)
		if err != nil {
			return trade, err
		}
		trade.AmountMin, trade.AmountMax = lo, hi
	}

	return trade, nil
}
