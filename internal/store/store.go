// Package store persists canonical trades, politician identities, and
// ingestion runs in Postgres.
package store

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrRunClosed is returned when a run is already in a terminal state and
// cannot be started again.
var ErrRunClosed = eris.New("store: run already finalized")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.IngestStatus `json:"status,omitempty"`
	Since  time.Time          `json:"since,omitzero"`
	Limit  int                `json:"limit,omitempty"`
	Offset int                `json:"offset,omitempty"`
}

// activeStatuses are the states a run can still leave.
var activeStatuses = []string{string(model.IngestQueued), string(model.IngestRunning)}
