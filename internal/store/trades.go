package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/disclosure-cli/internal/db"
	"github.com/sells-group/disclosure-cli/internal/model"
)

var tradeInsert = db.InsertConfig{
	Table: "disclosure.trades",
	Columns: []string{
		"dedup_key", "source_chamber", "politician_id",
		"transaction_date", "disclosure_date", "ticker",
		"asset_description", "asset_type", "transaction_type",
		"amount_min", "amount_max", "owner", "filing_id",
		"raw_payload", "run_id",
	},
	ConflictKeys: []string{"dedup_key"},
}

// InsertTrade persists t unless a trade with the same dedup key already
// exists. The existence check and the write are a single statement, so
// concurrent runs cannot both insert the same key. It returns false when
// the key was already present; the stored row is never updated.
func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.CanonicalTrade) (bool, error) {
	if t.DedupKey == "" {
		return false, eris.New("store: insert trade: empty dedup key")
	}
	var runID *string
	if t.RunID != "" {
		runID = &t.RunID
	}
	row := []any{
		t.DedupKey, string(t.SourceChamber), t.PoliticianRef,
		t.TransactionDate, t.DisclosureDate, t.Ticker,
		t.AssetDescription, string(t.AssetType), string(t.TransactionType),
		t.AmountMin, t.AmountMax, t.Owner, t.FilingID,
		t.RawPayload, runID,
	}
	inserted, err := db.InsertIfAbsent(ctx, s.pool, tradeInsert, row)
	if err != nil {
		return false, eris.Wrapf(err, "store: insert trade %s", t.DedupKey)
	}
	return inserted, nil
}

// CountTrades returns the number of persisted trades, optionally limited to
// one chamber (empty chamber counts all).
func (s *PostgresStore) CountTrades(ctx context.Context, chamber model.Chamber) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM disclosure.trades WHERE $1 = '' OR source_chamber = $1`,
		string(chamber),
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "store: count trades")
	}
	return n, nil
}

// TradesSince counts trades created at or after since, grouped by chamber.
func (s *PostgresStore) TradesSince(ctx context.Context, since time.Time) (map[model.Chamber]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source_chamber, count(*) FROM disclosure.trades
		 WHERE created_at >= $1 GROUP BY source_chamber`,
		since,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: trades since")
	}
	defer rows.Close()

	out := make(map[model.Chamber]int64)
	for rows.Next() {
		var chamber string
		var n int64
		if err := rows.Scan(&chamber, &n); err != nil {
			return nil, eris.Wrap(err, "store: scan trade count")
		}
		out[model.Chamber(chamber)] = n
	}
	return out, rows.Err()
}
