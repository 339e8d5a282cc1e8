package fetch

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// BrowserFetcher implements PageFetcher over a single long-lived headless
// Chrome process. Each Render opens an isolated tab (no cookie/session
// bleed between companies) and closes it on every exit path. HEAD probes
// bypass the browser and go through the shared HTTP prober.
type BrowserFetcher struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	prober      *HTTPFetcher
	log         *logrus.Entry
}

// NewBrowserFetcher launches the shared browser allocator. Launch failure
// is a fatal setup condition for callers; the returned fetcher must be
// closed to shut the browser down.
func NewBrowserFetcher(ctx context.Context, prober *HTTPFetcher, log *logrus.Entry) (*BrowserFetcher, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)

	// Spin up (and immediately verify) the browser process so a missing
	// Chrome binary surfaces here rather than mid-run.
	probeCtx, probeCancel := chromedp.NewContext(allocCtx)
	defer probeCancel()
	if err := chromedp.Run(probeCtx); err != nil {
		allocCancel()
		return nil, err
	}

	log.Info("Headless browser launched")
	return &BrowserFetcher{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		prober:      prober,
		log:         log,
	}, nil
}

// Render implements PageFetcher. The page is navigated in a fresh tab,
// waited for body readiness plus a short settle for script-rendered link
// lists, then snapshotted from the rendered outer HTML.
func (bf *BrowserFetcher) Render(ctx context.Context, pageURL string, timeout time.Duration) (*PageSnapshot, error) {
	bf.prober.applyHostDelay(pageURL)

	tabCtx, tabCancel := chromedp.NewContext(bf.allocCtx)
	defer tabCancel() // Closes the tab on success, failure, and cancellation

	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, timeout)
	defer timeoutCancel()

	// Propagate run-level cancellation into the tab.
	go func() {
		select {
		case <-ctx.Done():
			tabCancel()
		case <-tabCtx.Done():
		}
	}()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Cause: err}
	}

	snapshot, err := SnapshotFromHTML(pageURL, html)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Cause: err}
	}
	bf.log.WithFields(logrus.Fields{"url": pageURL, "anchors": len(snapshot.Anchors)}).Debug("Rendered page")
	return snapshot, nil
}

// ProbeSize implements PageFetcher by delegating to the HTTP prober.
func (bf *BrowserFetcher) ProbeSize(ctx context.Context, fileURL string) (int64, bool) {
	return bf.prober.ProbeSize(ctx, fileURL)
}

// Close shuts down the shared browser process.
func (bf *BrowserFetcher) Close() {
	bf.log.Info("Shutting down headless browser")
	bf.allocCancel()
}
