package normalize

import (
	"strings"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// assetCodes lists bracketed asset codes used by chamber A filings. The first
// match wins, in the same precedence as the keyword fallback below.
var assetCodes = []struct {
	code  string
	asset model.AssetType
}{
	{"[op]", model.AssetOption},
	{"[ct]", model.AssetCrypto},
	{"[cs]", model.AssetBond},
	{"[gs]", model.AssetBond},
	{"[mf]", model.AssetFund},
	{"[ef]", model.AssetFund},
	{"[st]", model.AssetStock},
	{"[ps]", model.AssetStock},
}

// ClassifyAsset assigns a coarse asset type from the asset-type cell and the
// free-text description. It never fails; unknown assets are AssetOther.
func ClassifyAsset(assetType, description string) model.AssetType {
	lower := strings.ToLower(assetType + " " + description)
	for _, c := range assetCodes {
		if strings.Contains(lower, c.code) {
			return c.asset
		}
	}
	switch {
	case strings.Contains(lower, "option"):
		return model.AssetOption
	case strings.Contains(lower, "crypto"):
		return model.AssetCrypto
	case strings.Contains(lower, "bond"), strings.Contains(lower, "municipal"), strings.Contains(lower, "treasury"):
		return model.AssetBond
	case strings.Contains(lower, "fund"), strings.Contains(lower, "etf"):
		return model.AssetFund
	case strings.Contains(lower, "stock"), strings.Contains(lower, "equity"), strings.Contains(lower, "shares"):
		return model.AssetStock
	default:
		return model.AssetOther
	}
}
