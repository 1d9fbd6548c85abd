package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/disclosure-cli/internal/db"
	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/normalize"
)

// ResolvePolitician returns the id of the politician identified by
// (folded name, state, chamber), creating the row if it does not exist.
// The display name is refreshed to the latest spelling seen.
func (s *PostgresStore) ResolvePolitician(ctx context.Context, name, state string, chamber model.Chamber) (int64, error) {
	key := normalize.NameKey(name)
	if key == "" {
		return 0, eris.Errorf("store: resolve politician: empty name %q", name)
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO disclosure.politicians (name, name_key, state, chamber)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name_key, state, chamber)
		 DO UPDATE SET name = EXCLUDED.name, updated_at = now()
		 RETURNING id`,
		name, key, state, string(chamber),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "store: resolve politician %q", name)
	}
	return id, nil
}

// GetPolitician loads a politician by id.
func (s *PostgresStore) GetPolitician(ctx context.Context, id int64) (*model.Politician, error) {
	var p model.Politician
	var chamber string
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, state, chamber FROM disclosure.politicians WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.State, &chamber)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "store: get politician %d", id)
	}
	p.Chamber = model.Chamber(chamber)
	return &p, nil
}
