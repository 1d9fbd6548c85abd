package ingest

import (
	"context"
	"iter"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/extract"
	"github.com/sells-group/disclosure-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type finalizeCall struct {
	status model.IngestStatus
	stats  model.RunStats
}

// memStore is an in-memory Store with the same first-wins finalize and
// insert-if-absent semantics as the Postgres store.
type memStore struct {
	mu           sync.Mutex
	trades       map[string]model.CanonicalTrade
	order        []string
	politicians  map[string]int64
	resolveCalls int
	starts       int
	cancel       bool
	finalized    []finalizeCall
	progress     []model.RunStats
	insertErr    error
	startErr     error
}

func newMemStore() *memStore {
	return &memStore{trades: map[string]model.CanonicalTrade{}, politicians: map[string]int64{}}
}

func (m *memStore) ResolvePolitician(_ context.Context, name, state string, chamber model.Chamber) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolveCalls++
	key := string(chamber) + "|" + state + "|" + name
	if id, ok := m.politicians[key]; ok {
		return id, nil
	}
	id := int64(len(m.politicians) + 1)
	m.politicians[key] = id
	return id, nil
}

func (m *memStore) InsertTrade(_ context.Context, t *model.CanonicalTrade) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return false, m.insertErr
	}
	if _, ok := m.trades[t.DedupKey]; ok {
		return false, nil
	}
	m.trades[t.DedupKey] = *t
	m.order = append(m.order, t.DedupKey)
	return true, nil
}

func (m *memStore) StartRun(context.Context, string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	return m.cancel, m.startErr
}

func (m *memStore) UpdateRunProgress(_ context.Context, _ string, stats model.RunStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = append(m.progress, stats)
	return nil
}

func (m *memStore) FinalizeRun(_ context.Context, _ string, status model.IngestStatus, stats model.RunStats, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = append(m.finalized, finalizeCall{status, stats})
	return len(m.finalized) == 1, nil
}

func (m *memStore) CancelRequested(context.Context, string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel, nil
}

func (m *memStore) requestCancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel = true
}

type step struct {
	filing *model.RawFiling
	err    error
}

// sliceExtractor yields a fixed sequence and records how far it got.
type sliceExtractor struct {
	chamber model.Chamber
	steps   []step
	yielded int
}

func (x *sliceExtractor) Chamber() model.Chamber { return x.chamber }

func (x *sliceExtractor) Extract(context.Context, extract.Window) iter.Seq2[*model.RawFiling, error] {
	return func(yield func(*model.RawFiling, error) bool) {
		for _, s := range x.steps {
			x.yielded++
			if !yield(s.filing, s.err) {
				return
			}
		}
	}
}

type recordingPublisher struct {
	published []string
	err       error
}

func (p *recordingPublisher) PublishTrade(_ context.Context, t model.CanonicalTrade) error {
	p.published = append(p.published, t.DedupKey)
	return p.err
}

type fakeLocker struct {
	held     bool
	acquired []string
	released int
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	if l.held {
		return nil, ErrChamberBusy
	}
	l.acquired = append(l.acquired, key)
	return func(context.Context) error { l.released++; return nil }, nil
}

func rawFiling(id, date, ticker, typ, amount string) *model.RawFiling {
	return &model.RawFiling{
		Chamber:        model.ChamberB,
		FilingID:       id,
		PoliticianName: "Jane Smith",
		DisclosureDate: "03/18/2024",
		Mode:           model.ExtractTable,
		Transactions: []model.RawTransaction{{
			Cells: map[string]string{
				model.ColTransactionDate: date,
				model.ColTicker:          ticker,
				model.ColAsset:           ticker + " Holdings Corp",
				model.ColType:            typ,
				model.ColAmount:          amount,
			},
			Line: id + " " + date + " " + ticker + " " + typ + " " + amount,
		}},
	}
}

func testRequest() Request {
	day := time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC)
	return Request{
		RunID:    "run-1",
		Chambers: []model.Chamber{model.ChamberB},
		Window:   extract.Window{Start: day, End: day},
	}
}
