package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// InsertConfig defines an insert that is skipped when the row already
// exists under the given conflict keys.
type InsertConfig struct {
	Table        string   // target table (e.g., "disclosure.trades")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
}

// InsertIfAbsent inserts one row with INSERT ... ON CONFLICT (keys) DO
// NOTHING. It returns true when a new row was written and false when an
// existing row under the same keys was left untouched.
func InsertIfAbsent(ctx context.Context, pool Pool, cfg InsertConfig, row []any) (bool, error) {
	sql, err := insertIfAbsentSQL(cfg)
	if err != nil {
		return false, err
	}
	if len(row) != len(cfg.Columns) {
		return false, eris.Errorf("db: insert: %d values for %d columns", len(row), len(cfg.Columns))
	}

	tag, err := pool.Exec(ctx, sql, row...)
	if err != nil {
		return false, eris.Wrapf(err, "db: insert into %s", cfg.Table)
	}
	return tag.RowsAffected() == 1, nil
}

func insertIfAbsentSQL(cfg InsertConfig) (string, error) {
	if len(cfg.Columns) == 0 {
		return "", eris.New("db: insert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return "", eris.New("db: insert: no conflict keys specified")
	}

	placeholders := make([]string, len(cfg.Columns))
	for i := range cfg.Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		sanitizeTable(cfg.Table),
		quoteAndJoin(cfg.Columns),
		strings.Join(placeholders, ", "),
		quoteAndJoin(cfg.ConflictKeys),
	), nil
}

// sanitizeTable handles schema-qualified table names like "disclosure.trades".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
