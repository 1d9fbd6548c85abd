// Package ingest runs one extraction pass end to end: it consumes an
// extractor's filings one at a time, normalizes and validates each
// transaction, and persists the accepted trades idempotently.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/extract"
	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/normalize"
	"github.com/sells-group/disclosure-cli/internal/resilience"
	"github.com/sells-group/disclosure-cli/internal/store"
	"github.com/sells-group/disclosure-cli/internal/validate"
)

// ErrChamberBusy is returned when another worker holds the chamber lock.
var ErrChamberBusy = eris.New("ingest: chamber is locked by another run")

// Config tunes the service.
type Config struct {
	// MaxErrorReasons bounds the error list kept on a run.
	MaxErrorReasons int
	// ProgressEvery writes counters to the run store every N filings.
	ProgressEvery int
	// LockTTL is how long a chamber lock survives a crashed worker.
	LockTTL time.Duration
}

// Request describes one run.
type Request struct {
	RunID    string
	Chambers []model.Chamber
	Window   extract.Window

	// OnProgress, when set, is called after every filing with the current
	// counters (used for task heartbeats).
	OnProgress func(ctx context.Context, stats model.RunStats)
}

// Result is the terminal outcome of a run that was not aborted by an
// infrastructure failure.
type Result struct {
	RunID  string
	Status model.IngestStatus
	Stats  model.RunStats
}

// Service executes ingestion runs. It is safe to share between concurrent
// runs; filings within one run are processed sequentially.
type Service struct {
	store      Store
	extractors map[model.Chamber]extract.Extractor
	publisher  Publisher
	locker     Locker
	politician *cache.Cache
	cfg        Config
}

// Option customizes a Service.
type Option func(*Service)

// WithPublisher publishes an event for every saved trade.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithLocker serializes runs per chamber across processes.
func WithLocker(l Locker) Option { return func(s *Service) { s.locker = l } }

// NewService creates a Service over the given extractors.
func NewService(store Store, extractors []extract.Extractor, cfg Config, opts ...Option) *Service {
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 10
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Hour
	}
	s := &Service{
		store:      store,
		extractors: make(map[model.Chamber]extract.Extractor, len(extractors)),
		politician: cache.New(time.Hour, 2*time.Hour),
		cfg:        cfg,
	}
	for _, x := range extractors {
		s.extractors[x.Chamber()] = x
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run moves the run from queued to running and processes every chamber in
// the request. It finalizes the run as succeeded, or cancelled when a cancel
// request is seen between filings.
//
// A non-nil error means an infrastructure failure or an interrupted ctx
// (timeout, worker shutdown) stopped the run before it could finish. The
// run is then left in running for the caller to retry or finalize, and no
// Result is returned.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	log := zap.L().With(
		zap.String("component", "ingest"),
		zap.String("run_id", req.RunID),
		zap.Stringer("window", req.Window),
	)

	// Work inside a filing is never interrupted; cancellation is only
	// observed between filings through ctx.
	work := context.WithoutCancel(ctx)

	for _, c := range req.Chambers {
		if _, ok := s.extractors[c]; !ok {
			return nil, eris.Errorf("ingest: no extractor for chamber %q", c)
		}
	}

	cancelRequested, err := s.store.StartRun(work, req.RunID)
	if errors.Is(err, store.ErrRunClosed) {
		return nil, eris.Wrapf(err, "ingest: start run %s", req.RunID)
	}
	if err != nil {
		return nil, resilience.Transient(eris.Wrapf(err, "ingest: start run %s", req.RunID))
	}

	st := newStats(s.cfg.MaxErrorReasons)
	status := model.IngestSucceeded
	started := time.Now()

	if cancelRequested {
		status = model.IngestCancelled
	} else if err := ctx.Err(); err != nil {
		return nil, resilience.Transient(eris.Wrapf(err, "ingest: run %s interrupted before start", req.RunID))
	} else {
		log.Info("run started", zap.Int("chambers", len(req.Chambers)))
		for _, c := range req.Chambers {
			cancelled, err := s.runChamber(ctx, work, req, c, st, log)
			if err != nil {
				log.Error("run aborted", zap.Error(err), zap.String("error_class", resilience.ClassifyError(err)))
				return nil, err
			}
			if cancelled {
				status = model.IngestCancelled
				break
			}
		}
	}

	final := st.snapshot()
	if _, err := s.store.FinalizeRun(work, req.RunID, status, final, ""); err != nil {
		return nil, resilience.Transient(eris.Wrapf(err, "ingest: finalize run %s", req.RunID))
	}

	log.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("total_seen", final.TotalSeen),
		zap.Int("saved", final.Saved),
		zap.Int("skipped_duplicate", final.SkippedDuplicate),
		zap.Int("errors", final.Errors),
		zap.Duration("elapsed", time.Since(started)),
	)
	return &Result{RunID: req.RunID, Status: status, Stats: final}, nil
}

// runChamber consumes one chamber's filings. It reports whether the run was
// cancelled.
func (s *Service) runChamber(ctx, work context.Context, req Request, chamber model.Chamber, st *stats, log *zap.Logger) (bool, error) {
	log = log.With(zap.String("chamber", string(chamber)))

	if s.locker != nil {
		release, err := s.locker.Acquire(work, "chamber:"+string(chamber), s.cfg.LockTTL)
		if err != nil {
			return false, resilience.Transient(eris.Wrapf(err, "ingest: lock %s", chamber))
		}
		defer func() {
			if err := release(work); err != nil {
				log.Warn("ingest: release chamber lock", zap.Error(err))
			}
		}()
	}

	filings := 0
	for filing, err := range s.extractors[chamber].Extract(work, req.Window) {
		cancelled, cerr := s.cancelled(ctx, work, req.RunID)
		if cerr != nil {
			return false, cerr
		}
		if cancelled {
			log.Info("run cancelled between filings", zap.Int("filings_processed", filings))
			return true, nil
		}

		if err != nil && !extract.IsFilingError(err) {
			return false, eris.Wrapf(err, "ingest: extract %s", chamber)
		}

		filings++
		if err != nil {
			var filingID string
			if filing != nil {
				filingID = filing.FilingID
			}
			reason := model.ReasonFetchFailed
			if errors.Is(err, extract.ErrNoTransactions) {
				reason = model.ReasonNoTransactions
			}
			st.TotalSeen++
			st.recordError(reason, filingID, err.Error())
			log.Warn("filing skipped", zap.String("filing_id", filingID), zap.Error(err))
		} else if err := s.processFiling(work, req.RunID, filing, st, log); err != nil {
			return false, err
		}

		snapshot := st.snapshot()
		if req.OnProgress != nil {
			req.OnProgress(work, snapshot)
		}
		if filings%s.cfg.ProgressEvery == 0 {
			if err := s.store.UpdateRunProgress(work, req.RunID, snapshot); err != nil {
				log.Warn("ingest: update progress", zap.Error(err))
			}
		}
	}

	log.Info("chamber complete", zap.Int("filings", filings))
	return false, nil
}

// cancelled checks for cancellation at a filing boundary. Only a recorded
// cancel request cancels the run; a done ctx without one is an interruption
// the caller retries or finalizes.
func (s *Service) cancelled(ctx, work context.Context, runID string) (bool, error) {
	requested, err := s.store.CancelRequested(work, runID)
	if err != nil {
		return false, resilience.Transient(eris.Wrapf(err, "ingest: check cancel %s", runID))
	}
	if requested {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, resilience.Transient(eris.Wrapf(err, "ingest: run %s interrupted", runID))
	}
	return false, nil
}

// processFiling runs every transaction of a filing through normalize,
// validate, and persist, in extraction order. Per-record problems are
// counted; only infrastructure failures are returned.
func (s *Service) processFiling(ctx context.Context, runID string, f *model.RawFiling, st *stats, log *zap.Logger) error {
	for i, tx := range f.Transactions {
		st.TotalSeen++

		trade, err := normalize.Transaction(*f, tx)
		if err != nil {
			reason := normalize.ReasonOf(err)
			if reason == "" {
				reason = model.ReasonMissingField
			}
			st.recordError(reason, f.FilingID, err.Error())
			log.Debug("record rejected", zap.String("filing_id", f.FilingID), zap.Int("row", i), zap.String("reason", string(reason)))
			continue
		}

		if d := validate.Trade(&trade); !d.Accept {
			st.recordError(d.Reason, f.FilingID, d.Detail)
			log.Debug("record rejected", zap.String("filing_id", f.FilingID), zap.Int("row", i), zap.String("reason", string(d.Reason)))
			continue
		}

		ref, err := s.resolvePolitician(ctx, f)
		if err != nil {
			if resilience.IsTransient(err) {
				return err
			}
			st.recordError(model.ReasonPoliticianUnresolved, f.FilingID, err.Error())
			continue
		}

		trade.PoliticianRef = ref
		trade.RunID = runID
		trade.DedupKey = DedupKey(&trade)

		inserted, err := s.store.InsertTrade(ctx, &trade)
		if err != nil {
			if resilience.IsTransient(err) {
				return resilience.Transient(err)
			}
			st.recordError(model.ReasonPersistFailed, f.FilingID, err.Error())
			log.Warn("record not persisted", zap.String("filing_id", f.FilingID), zap.Error(err))
			continue
		}
		if !inserted {
			st.SkippedDuplicate++
			continue
		}
		st.Saved++
		s.publish(ctx, trade, log)
	}
	return nil
}

func (s *Service) resolvePolitician(ctx context.Context, f *model.RawFiling) (int64, error) {
	name := normalize.PoliticianName(f.PoliticianName)
	state := normalize.State(f.State)
	key := normalize.NameKey(name)
	if key == "" {
		return 0, eris.New("ingest: filing has no filer name")
	}

	cacheKey := fmt.Sprintf("%s|%s|%s", f.Chamber, state, key)
	if id, ok := s.politician.Get(cacheKey); ok {
		return id.(int64), nil
	}
	id, err := s.store.ResolvePolitician(ctx, name, state, f.Chamber)
	if err != nil {
		if resilience.IsTransient(err) {
			return 0, resilience.Transient(err)
		}
		return 0, err
	}
	s.politician.SetDefault(cacheKey, id)
	return id, nil
}

func (s *Service) publish(ctx context.Context, t model.CanonicalTrade, log *zap.Logger) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTrade(ctx, t); err != nil {
		log.Warn("ingest: publish trade event", zap.String("dedup_key", t.DedupKey), zap.Error(err))
	}
}
