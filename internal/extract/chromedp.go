package extract

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrDriverClosed is returned by Open after the driver has been shut down.
var ErrDriverClosed = eris.New("extract: driver closed")

// ChromeOptions configures the headless browser process.
type ChromeOptions struct {
	ExecPath  string
	Headless  bool
	UserAgent string
}

// ChromeDriver owns one browser process for the lifetime of a worker.
// Every Open creates a tab in that browser; tabs are cheap, browser
// start-up is not.
type ChromeDriver struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewChromeDriver starts the browser process and returns a driver bound to it.
func NewChromeDriver(opts ChromeOptions) (*ChromeDriver, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.DisableGPU,
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run on a fresh context launches the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, eris.Wrap(err, "extract: start browser")
	}

	zap.L().Info("browser started",
		zap.String("component", "extract.chromedp"),
		zap.Bool("headless", opts.Headless),
	)
	return &ChromeDriver{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// Open creates a new tab.
func (d *ChromeDriver) Open(ctx context.Context) (Session, error) {
	if d.closed.Load() {
		return nil, ErrDriverClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "extract: open tab")
	}
	tabCtx, cancel := chromedp.NewContext(d.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, eris.Wrap(err, "extract: open tab")
	}
	return &chromeSession{ctx: tabCtx, cancel: cancel}, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (d *ChromeDriver) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		d.browserCancel()
		d.allocCancel()
	})
	return nil
}

type chromeSession struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// run executes actions in the tab while honouring the caller's deadline and
// cancellation. Cancelling the derived context aborts the actions only; the
// tab itself stays open until Close.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		runCtx, dcancel = context.WithDeadline(runCtx, deadline)
		defer dcancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	return eris.Wrapf(err, "extract: navigate %s", url)
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", eris.Wrap(err, "extract: read html")
	}
	return html, nil
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	err := s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	return eris.Wrapf(err, "extract: click %s", selector)
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}
