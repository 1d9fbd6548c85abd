package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// DedupKey hashes the fields that identify a logically unique trade:
// politician, transaction date, ticker, direction, amount bounds, and
// chamber. Owner, description, and disclosure date are not part of the key,
// so a re-published filing maps to the same row.
func DedupKey(t *model.CanonicalTrade) string {
	parts := []string{
		strconv.FormatInt(t.PoliticianRef, 10),
		t.TransactionDate.UTC().Format(time.DateOnly),
		t.TickerOrEmpty(),
		string(t.TransactionType),
		strconv.FormatInt(t.AmountMin, 10),
		strconv.FormatInt(t.AmountMax, 10),
		string(t.SourceChamber),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
