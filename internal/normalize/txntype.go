package normalize

import (
	"strings"

	"github.com/sells-group/disclosure-cli/internal/model"
)

var (
	buyLabels  = []string{"purchase", "buy"}
	sellLabels = []string{"sale", "sold", "sell"}
)

// ParseTransactionType maps a raw label to buy or sell by case-insensitive
// substring match. Labels matching neither set, or both, are failures.
func ParseTransactionType(s string) (model.TransactionType, error) {
	lower := strings.ToLower(s)
	isBuy := containsAny(lower, buyLabels)
	isSell := containsAny(lower, sellLabels)
	switch {
	case isBuy && !isSell:
		return model.TransactionBuy, nil
	case isSell && !isBuy:
		return model.TransactionSell, nil
	default:
		return "", fail("transaction_type", model.ReasonBadTransactionType, s)
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
