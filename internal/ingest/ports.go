package ingest

import (
	"context"
	"time"

	"github.com/sells-group/disclosure-cli/internal/model"
)

// TradeStore persists trades and resolves politician identities.
type TradeStore interface {
	ResolvePolitician(ctx context.Context, name, state string, chamber model.Chamber) (int64, error)
	InsertTrade(ctx context.Context, t *model.CanonicalTrade) (bool, error)
}

// RunStore tracks the lifecycle of ingestion runs.
type RunStore interface {
	StartRun(ctx context.Context, runID string) (bool, error)
	UpdateRunProgress(ctx context.Context, runID string, stats model.RunStats) error
	FinalizeRun(ctx context.Context, runID string, status model.IngestStatus, stats model.RunStats, errMsg string) (bool, error)
	CancelRequested(ctx context.Context, runID string) (bool, error)
}

// Store is everything the service needs from persistence.
type Store interface {
	TradeStore
	RunStore
}

// Publisher announces newly saved trades to downstream consumers.
type Publisher interface {
	PublishTrade(ctx context.Context, t model.CanonicalTrade) error
}

// Locker grants exclusive access to a chamber across worker processes.
// The returned release func must be called once the run is done.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}
