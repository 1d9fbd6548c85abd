package extract

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/disclosure-cli/internal/resilience"
)

// ErrBlocked is returned when the site served a challenge page instead of
// the requested document.
var ErrBlocked = eris.New("extract: blocked by anti-bot page")

// BreakerThreshold is the number of consecutive pages that must exhaust
// their retries before a chamber's circuit opens.
const BreakerThreshold = 10

// BreakerConfig is the per-chamber circuit breaker for page fetches. A
// caller's own cancellation never counts as a site failure.
func BreakerConfig() resilience.CircuitBreakerConfig {
	cfg := resilience.FromCircuitConfig(BreakerThreshold, int((2 * time.Minute).Seconds()))
	cfg.ShouldTrip = func(err error) bool {
		return err != nil && !errors.Is(err, context.Canceled)
	}
	return cfg
}

// pageFetcher loads pages through one session with pacing, per-page timeout,
// block detection, fixed-delay retries, and the chamber's circuit breaker.
type pageFetcher struct {
	sess    Session
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	timeout time.Duration
}

// fetch navigates to url and parses the rendered document. The breaker sees
// one outcome per page, after the retry budget is spent.
func (f *pageFetcher) fetch(ctx context.Context, url string) (*goquery.Document, error) {
	return resilience.ExecuteVal(ctx, f.breaker, func(ctx context.Context) (*goquery.Document, error) {
		return resilience.DoVal(ctx, f.retry, func(ctx context.Context) (*goquery.Document, error) {
			return f.load(ctx, url)
		})
	})
}

// click clicks selector on the current page, with the same retry policy.
func (f *pageFetcher) click(ctx context.Context, selector string) error {
	return f.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, f.retry, func(ctx context.Context) error {
			pctx, cancel := f.pageContext(ctx)
			defer cancel()
			return f.sess.Click(pctx, selector)
		})
	})
}

func (f *pageFetcher) load(ctx context.Context, url string) (*goquery.Document, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "extract: rate limit wait")
		}
	}

	pctx, cancel := f.pageContext(ctx)
	defer cancel()

	if err := f.sess.Navigate(pctx, url); err != nil {
		return nil, err
	}
	html, err := f.sess.HTML(pctx)
	if err != nil {
		return nil, err
	}
	if bt := DetectBlock(html); bt != BlockNone {
		return nil, eris.Wrapf(ErrBlocked, "extract: %s (%s)", url, bt)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrapf(err, "extract: parse %s", url)
	}
	return doc, nil
}

func (f *pageFetcher) pageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}
