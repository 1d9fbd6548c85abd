// Package validate applies cross-field and business-rule checks to
// normalized trades. Validation returns a decision; it never errors.
package validate

import (
	"fmt"
	"strings"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// Decision is the outcome of validating one trade.
type Decision struct {
	Accept bool
	Reason model.ReasonCode
	Detail string
}

func accept() Decision { return Decision{Accept: true} }

func reject(reason model.ReasonCode, format string, args ...any) Decision {
	return Decision{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Trade checks a normalized trade. Rules are evaluated in a fixed order and
// the first failing rule decides the reason code.
func Trade(t *model.CanonicalTrade) Decision {
	if t == nil {
		return reject(model.ReasonMissingField, "nil trade")
	}
	if missing := missingFields(t); len(missing) > 0 {
		return reject(model.ReasonMissingField, "missing %s", strings.Join(missing, ", "))
	}
	if !t.SourceChamber.Valid() {
		return reject(model.ReasonInvalidChamber, "unknown chamber %q", t.SourceChamber)
	}
	if !t.TransactionType.Valid() {
		return reject(model.ReasonBadTransactionType, "transaction type %q", t.TransactionType)
	}
	if t.DisclosureDate.Before(t.TransactionDate) {
		return reject(model.ReasonDisclosureBeforeTxn, "disclosed %s before transaction %s",
			t.DisclosureDate.Format("2006-01-02"), t.TransactionDate.Format("2006-01-02"))
	}
	if t.AmountMin < 0 || t.AmountMax < 0 {
		return reject(model.ReasonNegativeAmount, "amount %d..%d", t.AmountMin, t.AmountMax)
	}
	if t.AmountMin > t.AmountMax {
		return reject(model.ReasonAmountOrder, "amount min %d > max %d", t.AmountMin, t.AmountMax)
	}
	return accept()
}

func missingFields(t *model.CanonicalTrade) []string {
	var missing []string
	if t.SourceChamber == "" {
		missing = append(missing, "source_chamber")
	}
	if t.TransactionDate.IsZero() {
		missing = append(missing, "transaction_date")
	}
	if t.DisclosureDate.IsZero() {
		missing = append(missing, "disclosure_date")
	}
	if t.TransactionType == "" {
		missing = append(missing, "transaction_type")
	}
	if t.AmountMin == 0 && t.AmountMax == 0 {
		missing = append(missing, "amount")
	}
	if t.Ticker == nil && strings.TrimSpace(t.AssetDescription) == "" {
		missing = append(missing, "asset")
	}
	return missing
}
