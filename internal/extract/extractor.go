// Package extract pulls raw disclosure filings from the chamber sites through
// a headless page-automation driver.
//
// Each chamber is a site strategy behind the common Extractor contract: given
// a date window it lazily yields one RawFiling per filing. A filing whose pages
// cannot be fetched after the bounded retries is yielded as a *FilingError and
// extraction continues; failures that make the whole pass impossible (no
// session, index unreachable, circuit open) are yielded as a bare error and
// end the sequence.
package extract

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/disclosure-cli/internal/model"
	"github.com/sells-group/disclosure-cli/internal/resilience"
)

// ErrNoTransactions is reported for a filing page that loaded but held no
// transactions in either the table or the text layout.
var ErrNoTransactions = eris.New("extract: no transactions found")

// Window is an inclusive range of calendar dates.
type Window struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days covered.
func (w Window) Days() int {
	return int(model.DateOnly(w.End).Sub(model.DateOnly(w.Start)).Hours()/24) + 1
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly))
}

// Extractor yields the raw filings of one chamber for a date window.
type Extractor interface {
	Chamber() model.Chamber
	Extract(ctx context.Context, w Window) iter.Seq2[*model.RawFiling, error]
}

// FilingError reports a single filing that could not be extracted. The
// filing is still identified so the failure can be attributed.
type FilingError struct {
	FilingID string
	URL      string
	Err      error
}

func (e *FilingError) Error() string {
	return fmt.Sprintf("extract: filing %s: %v", e.FilingID, e.Err)
}

func (e *FilingError) Unwrap() error { return e.Err }

// IsFilingError reports whether err only affects one filing.
func IsFilingError(err error) bool {
	var fe *FilingError
	return errors.As(err, &fe)
}

// Config holds the per-chamber extraction settings. Nothing here has a
// deployment default; BaseURL in particular must be supplied.
type Config struct {
	BaseURL           string
	MaxAttempts       int
	RetryDelay        time.Duration
	PageTimeout       time.Duration
	RequestsPerSecond float64
	// MaxPages bounds index pagination; 0 means unbounded.
	MaxPages int
	// OnRetry is called before each page-fetch retry.
	OnRetry func(chamber model.Chamber, attempt int, err error)
}

// Validate reports missing required settings.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return eris.New("extract: base_url is required")
	}
	return nil
}

// indexEntry is one row of a chamber's filing search results.
type indexEntry struct {
	FilingID       string
	URL            string
	PoliticianName string
	State          string
	DisclosureDate string
}

// site is the chamber-specific part of extraction: URLs, markup, and layout.
type site interface {
	chamber() model.Chamber
	// prepare runs once per session before the first index page.
	prepare(ctx context.Context, f *pageFetcher, baseURL string) error
	indexURL(baseURL string, w Window, page int) string
	parseIndex(doc *goquery.Document, baseURL string) (entries []indexEntry, hasNext bool)
	parseFiling(doc *goquery.Document) ([]model.RawTransaction, model.ExtractMode)
}

// chamberExtractor drives a site through a Driver.
type chamberExtractor struct {
	site    site
	driver  Driver
	cfg     Config
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	log     *zap.Logger
}

// New builds the extractor for chamber. breaker is shared by every pass for
// that chamber so that a site outage trips it across runs.
func New(chamber model.Chamber, driver Driver, cfg Config, breaker *resilience.CircuitBreaker) (Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrapf(err, "extract: %s", chamber)
	}
	var s site
	switch chamber {
	case model.ChamberA:
		s = chamberASite{}
	case model.ChamberB:
		s = chamberBSite{}
	default:
		return nil, eris.Errorf("extract: unknown chamber %q", chamber)
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(string(chamber), BreakerConfig())
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &chamberExtractor{
		site:    s,
		driver:  driver,
		cfg:     cfg,
		limiter: limiter,
		breaker: breaker,
		log:     zap.L().With(zap.String("component", "extract"), zap.String("chamber", string(chamber))),
	}, nil
}

func (x *chamberExtractor) Chamber() model.Chamber { return x.site.chamber() }

// Extract walks the index pages of w and yields filings one at a time. The
// session is closed when the sequence ends or the consumer stops early.
func (x *chamberExtractor) Extract(ctx context.Context, w Window) iter.Seq2[*model.RawFiling, error] {
	return func(yield func(*model.RawFiling, error) bool) {
		chamber := x.site.chamber()

		sess, err := x.driver.Open(ctx)
		if err != nil {
			yield(nil, resilience.Transient(eris.Wrapf(err, "extract: %s: open session", chamber)))
			return
		}
		defer func() {
			if err := sess.Close(); err != nil {
				x.log.Warn("extract: close session", zap.Error(err))
			}
		}()

		f := x.fetcher(sess)
		if err := x.site.prepare(ctx, f, x.cfg.BaseURL); err != nil {
			yield(nil, resilience.Transient(eris.Wrapf(err, "extract: %s: prepare session", chamber)))
			return
		}

		for page := 1; x.cfg.MaxPages <= 0 || page <= x.cfg.MaxPages; page++ {
			url := x.site.indexURL(x.cfg.BaseURL, w, page)
			doc, err := f.fetch(ctx, url)
			if err != nil {
				yield(nil, resilience.Transient(eris.Wrapf(err, "extract: %s: index page %d", chamber, page)))
				return
			}
			entries, hasNext := x.site.parseIndex(doc, x.cfg.BaseURL)
			x.log.Debug("index page parsed",
				zap.Int("page", page),
				zap.Int("filings", len(entries)),
				zap.Bool("has_next", hasNext),
			)

			for _, e := range entries {
				filing, err := x.filing(ctx, f, e)
				if err != nil && resilience.IsCircuitOpen(err) {
					yield(nil, eris.Wrapf(err, "extract: %s: filing %s", chamber, e.FilingID))
					return
				}
				if !yield(filing, err) {
					return
				}
			}
			if !hasNext || len(entries) == 0 {
				return
			}
		}
		x.log.Warn("extract: stopped at max pages", zap.Int("max_pages", x.cfg.MaxPages), zap.Stringer("window", w))
	}
}

// filing loads one filing page. The returned filing is populated with the
// index metadata even on error.
func (x *chamberExtractor) filing(ctx context.Context, f *pageFetcher, e indexEntry) (*model.RawFiling, error) {
	filing := &model.RawFiling{
		Chamber:        x.site.chamber(),
		FilingID:       e.FilingID,
		URL:            e.URL,
		PoliticianName: e.PoliticianName,
		State:          e.State,
		DisclosureDate: e.DisclosureDate,
	}

	doc, err := f.fetch(ctx, e.URL)
	if err != nil {
		if resilience.IsCircuitOpen(err) {
			return filing, err
		}
		x.log.Warn("extract: filing fetch failed",
			zap.String("filing_id", e.FilingID),
			zap.String("url", e.URL),
			zap.Error(err),
		)
		return filing, &FilingError{FilingID: e.FilingID, URL: e.URL, Err: err}
	}

	filing.Transactions, filing.Mode = x.site.parseFiling(doc)
	if len(filing.Transactions) == 0 {
		return filing, &FilingError{FilingID: e.FilingID, URL: e.URL, Err: ErrNoTransactions}
	}
	if filing.Mode == model.ExtractText {
		x.log.Info("extract: table layout missing, used text fallback",
			zap.String("filing_id", e.FilingID),
			zap.Int("transactions", len(filing.Transactions)),
		)
	}
	return filing, nil
}

func (x *chamberExtractor) fetcher(sess Session) *pageFetcher {
	chamber := x.site.chamber()
	retry := resilience.FromAttemptsDelay(x.cfg.MaxAttempts, x.cfg.RetryDelay)
	logRetry := resilience.RetryLogger("extract", string(chamber)+".fetch")
	retry.OnRetry = func(attempt int, err error) {
		logRetry(attempt, err)
		if x.cfg.OnRetry != nil {
			x.cfg.OnRetry(chamber, attempt, err)
		}
	}
	return &pageFetcher{
		sess:    sess,
		limiter: x.limiter,
		breaker: x.breaker,
		retry:   retry,
		timeout: x.cfg.PageTimeout,
	}
}
