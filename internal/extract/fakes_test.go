package extract

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeDriver serves canned HTML by URL. failures holds the number of times a
// URL fails before it loads; a negative count fails forever.
type fakeDriver struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string]int
	openErr  error

	opened int
	closed int
	visits map[string]int
	clicks []string
}

func newFakeDriver(pages map[string]string) *fakeDriver {
	return &fakeDriver{pages: pages, failures: map[string]int{}, visits: map[string]int{}}
}

func (d *fakeDriver) Open(context.Context) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.opened++
	return &fakeSession{d: d}, nil
}

func (d *fakeDriver) visitCount(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visits[url]
}

type fakeSession struct {
	d       *fakeDriver
	current string
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.visits[url]++
	if n := s.d.failures[url]; n != 0 {
		if n > 0 {
			s.d.failures[url] = n - 1
		}
		return errors.New("net::ERR_CONNECTION_RESET")
	}
	if _, ok := s.d.pages[url]; !ok {
		return errors.New("net::ERR_NAME_NOT_RESOLVED " + url)
	}
	s.current = url
	return nil
}

func (s *fakeSession) HTML(context.Context) (string, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.d.pages[s.current], nil
}

func (s *fakeSession) Click(_ context.Context, selector string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.clicks = append(s.d.clicks, selector)
	return nil
}

func (s *fakeSession) Close() error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.closed++
	return nil
}

func testConfig(base string) Config {
	return Config{
		BaseURL:     base,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		PageTimeout: time.Second,
	}
}

func testWindow() Window {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: day, End: day}
}

type yielded struct {
	filing *model.RawFiling
	err    error
}

func collect(t *testing.T, x Extractor, w Window) []yielded {
	t.Helper()
	var out []yielded
	for f, err := range x.Extract(context.Background(), w) {
		out = append(out, yielded{f, err})
	}
	return out
}

func mustNew(t *testing.T, chamber model.Chamber, d Driver, cfg Config) Extractor {
	t.Helper()
	x, err := New(chamber, d, cfg, resilience.NewCircuitBreaker(string(chamber), BreakerConfig()))
	require.NoError(t, err)
	return x
}
