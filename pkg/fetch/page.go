package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"ir-scraper/pkg/utils"
)

// maxRowTextLen caps the container text captured per anchor; date and title
// heuristics only need the immediate neighborhood, not a whole section.
const maxRowTextLen = 300

// Anchor is one link from a rendered page with its proximity context.
type Anchor struct {
	Href    string // Resolved absolute URL
	Text    string // Visible anchor text, whitespace collapsed
	RowText string // Text of the nearest row-like container (tr, li, or parent block)
}

// PageSnapshot is the rendered state of a page: everything downstream
// heuristics need, as plain data. The classifier, date normalizer, and
// metadata extractor operate on snapshots only and never touch a browser.
type PageSnapshot struct {
	URL     string
	Title   string
	Anchors []Anchor
}

// FetchError is the single failure type surfaced by page fetchers:
// navigation timeouts, DNS/connection failures, and wait failures all
// collapse into it. Retry is the caller's responsibility.
type FetchError struct {
	URL   string
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, utils.ErrFetch) match any FetchError.
func (e *FetchError) Is(target error) bool { return target == utils.ErrFetch }

// PageFetcher renders pages into snapshots and probes file sizes.
// Implementations: BrowserFetcher (headless Chrome) and HTTPFetcher
// (plain GET, for static sites and tests).
type PageFetcher interface {
	// Render navigates to pageURL and returns a snapshot of the rendered
	// document. All failures are surfaced as *FetchError; no retry happens
	// inside the fetcher.
	Render(ctx context.Context, pageURL string, timeout time.Duration) (*PageSnapshot, error)

	// ProbeSize performs a HEAD request and reads Content-Length without
	// downloading the body. Returns (0, false) when the size is unknown.
	ProbeSize(ctx context.Context, fileURL string) (int64, bool)
}

// SnapshotFromHTML parses rendered HTML into a PageSnapshot, resolving
// every anchor href against pageURL and capturing nearest-row context.
func SnapshotFromHTML(pageURL, html string) (*PageSnapshot, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing page URL '%s': %w", utils.ErrParsing, pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML of '%s': %w", utils.ErrParsing, pageURL, err)
	}

	snapshot := &PageSnapshot{
		URL:   pageURL,
		Title: utils.CollapseWhitespace(doc.Find("title").First().Text()),
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}

		// Pseudo-links are kept as-is so the classifier can reject them;
		// everything else is resolved to an absolute URL.
		resolved := href
		lower := strings.ToLower(href)
		if !strings.HasPrefix(lower, "mailto:") && !strings.HasPrefix(lower, "javascript:") {
			ref, err := url.Parse(href)
			if err != nil {
				return // Malformed href, nothing downstream can use it
			}
			resolved = base.ResolveReference(ref).String()
		}

		snapshot.Anchors = append(snapshot.Anchors, Anchor{
			Href:    resolved,
			Text:    utils.CollapseWhitespace(sel.Text()),
			RowText: rowText(sel),
		})
	})

	return snapshot, nil
}

// rowText walks up from the anchor to the nearest "row-like" ancestor
// (table row or list item, else the immediate parent block) and returns its
// collapsed text, truncated to keep proximity context local.
func rowText(sel *goquery.Selection) string {
	container := sel.Closest("tr, li")
	if container.Length() == 0 {
		container = sel.Parent()
	}
	text := utils.CollapseWhitespace(container.Text())
	if len(text) > maxRowTextLen {
		text = text[:maxRowTextLen]
	}
	return text
}

// HTTPFetcher implements PageFetcher with plain HTTP GETs. It handles
// server-rendered IR sites and is the fetcher of choice in tests; sites
// that only paint content with JavaScript need the BrowserFetcher.
type HTTPFetcher struct {
	fetcher      *Fetcher
	rateLimiter  *RateLimiter
	userAgent    string
	probeTimeout time.Duration
	log          *logrus.Entry
}

// NewHTTPFetcher creates an HTTPFetcher sharing the retrying Fetcher.
func NewHTTPFetcher(fetcher *Fetcher, rateLimiter *RateLimiter, userAgent string, probeTimeout time.Duration, log *logrus.Entry) *HTTPFetcher {
	return &HTTPFetcher{
		fetcher:      fetcher,
		rateLimiter:  rateLimiter,
		userAgent:    userAgent,
		probeTimeout: probeTimeout,
		log:          log,
	}
}

// Render implements PageFetcher.
func (hf *HTTPFetcher) Render(ctx context.Context, pageURL string, timeout time.Duration) (*PageSnapshot, error) {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(navCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Cause: err}
	}
	req.Header.Set("User-Agent", hf.userAgent)

	hf.applyHostDelay(pageURL)

	resp, err := hf.fetcher.FetchWithRetry(navCtx, req)
	if err != nil {
		if resp != nil {
			drainClose(resp)
		}
		return nil, &FetchError{URL: pageURL, Cause: err}
	}
	defer resp.Body.Close()

	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, &FetchError{URL: pageURL, Cause: err}
	}

	snapshot, err := SnapshotFromHTML(pageURL, buf.String())
	if err != nil {
		return nil, &FetchError{URL: pageURL, Cause: err}
	}
	return snapshot, nil
}

// ProbeSize implements PageFetcher.
func (hf *HTTPFetcher) ProbeSize(ctx context.Context, fileURL string) (int64, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, hf.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, fileURL, nil)
	if err != nil {
		return 0, false
	}
	req.Header.Set("User-Agent", hf.userAgent)

	hf.applyHostDelay(fileURL)

	resp, err := hf.fetcher.client.Do(req) // Single attempt; a probe is best-effort
	if err != nil {
		hf.log.WithField("url", fileURL).Debugf("HEAD probe failed: %v", err)
		return 0, false
	}
	drainClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, false
	}
	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil || size < 0 {
		return 0, false
	}
	return size, true
}

func (hf *HTTPFetcher) applyHostDelay(rawURL string) {
	if hf.rateLimiter == nil {
		return
	}
	if u, err := url.Parse(rawURL); err == nil {
		host := u.Hostname()
		hf.rateLimiter.ApplyDelay(host)
		hf.rateLimiter.UpdateLastRequestTime(host)
	}
}
