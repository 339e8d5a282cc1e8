package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ir-scraper/pkg/catalog"
	"ir-scraper/pkg/config"
	"ir-scraper/pkg/dedupe"
	"ir-scraper/pkg/extract"
	"ir-scraper/pkg/fetch"
	"ir-scraper/pkg/models"
	"ir-scraper/pkg/parse"
	"ir-scraper/pkg/utils"
)

// SkipReasonRobots marks a crawl skipped because robots.txt disallows the
// configured user agent at the IR page's origin.
const SkipReasonRobots = "robots_disallowed"

// Crawler performs the per-company crawl: render the IR page, follow a
// bounded set of navigation links, extract presentation records, and persist
// the new ones.
type Crawler struct {
	cfg       *config.AppConfig
	guard     *fetch.PolitenessGuard
	pages     fetch.PageFetcher
	classify  *extract.Classifier
	extractor *extract.MetadataExtractor
	seen      dedupe.Store
	store     catalog.Store
	metrics   *Metrics
	log       *logrus.Entry
}

// NewCrawler wires a crawler from shared pipeline components.
func NewCrawler(
	cfg *config.AppConfig,
	guard *fetch.PolitenessGuard,
	pages fetch.PageFetcher,
	classifier *extract.Classifier,
	extractor *extract.MetadataExtractor,
	seen dedupe.Store,
	store catalog.Store,
	metrics *Metrics,
	logger *logrus.Entry,
) *Crawler {
	return &Crawler{
		cfg:       cfg,
		guard:     guard,
		pages:     pages,
		classify:  classifier,
		extractor: extractor,
		seen:      seen,
		store:     store,
		metrics:   metrics,
		log:       logger,
	}
}

// CrawlCompany runs one attempt of a company crawl. A robots disallow is not
// an error: the crawl resolves successfully with a skip reason and zero
// results. Errors returned here are candidates for the task-level retry loop.
func (c *Crawler) CrawlCompany(ctx context.Context, company models.Company) (*CrawlResult, error) {
	crawlLog := c.log.WithField("company", company.Symbol)

	_, irURL, err := parse.ParseAndNormalize(company.IRURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid IR URL '%s': %w", utils.ErrParsing, company.IRURL, err)
	}

	if !c.guard.Allowed(ctx, irURL) {
		crawlLog.Infof("Robots policy disallows '%s', skipping", irURL.Host)
		return &CrawlResult{SkippedReason: SkipReasonRobots}, nil
	}

	landing, err := c.renderPage(ctx, irURL.String())
	if err != nil {
		return nil, err
	}

	links := c.classify.Classify(landing.Anchors)
	navLinks := extract.NavigationCandidates(links, c.cfg.Strategy.MaxNavigationPages)

	// Navigation pages hold the real presentation lists; the landing page's
	// own file links are the fallback when navigation yields nothing.
	var fileLinks []models.CandidateLink
	for _, nav := range navLinks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		navURL, parsed, err := parse.ParseAndNormalize(nav.Href)
		if err != nil {
			crawlLog.Debugf("Skipping navigation link with unparseable href '%s': %v", nav.Href, err)
			continue
		}
		if !c.guard.Allowed(ctx, parsed) {
			crawlLog.Debugf("Robots policy disallows navigation page '%s'", navURL)
			continue
		}

		page, err := c.renderPage(ctx, navURL)
		if err != nil {
			// A dead navigation page loses its links but not the crawl.
			crawlLog.Warnf("Failed to render navigation page '%s': %v", navURL, err)
			c.metrics.IncError(utils.CategorizeError(err))
			continue
		}
		fileLinks = append(fileLinks, extract.FileCandidates(c.classify.Classify(page.Anchors))...)
	}

	if len(fileLinks) == 0 {
		fileLinks = extract.FileCandidates(links)
	}

	result := &CrawlResult{}
	for _, link := range fileLinks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		saved, extracted, err := c.processFileLink(ctx, link, company)
		if err != nil {
			if errors.Is(err, utils.ErrExtractionNoise) {
				crawlLog.Debugf("Skipping noisy link '%s': %v", link.Href, err)
				continue
			}
			return nil, err
		}
		if extracted {
			result.Found++
		}
		if saved {
			result.Saved++
		}
	}

	crawlLog.Infof("Crawl complete: %d presentations found, %d new", result.Found, result.Saved)
	return result, nil
}

// processFileLink takes one classified file link through dedupe, extraction,
// and persistence. Returns whether a record was extracted and whether it was
// newly saved.
func (c *Crawler) processFileLink(ctx context.Context, link models.CandidateLink, company models.Company) (saved, extracted bool, err error) {
	normalized, _, err := parse.ParseAndNormalize(link.Href)
	if err != nil {
		return false, false, fmt.Errorf("%w: unparseable file link '%s': %w", utils.ErrExtractionNoise, link.Href, err)
	}

	seen, err := c.seen.Seen(normalized)
	if err != nil {
		return false, false, err
	}
	if seen {
		return false, false, nil
	}

	// The catalog may know the URL from a run on another state dir; skip
	// the extraction and HEAD probe in that case.
	exists, err := c.store.HasPresentation(ctx, normalized)
	if err != nil {
		return false, false, fmt.Errorf("%w: %w", utils.ErrPersistence, err)
	}
	if exists {
		return false, false, c.markDone(normalized)
	}

	rec, err := c.extractor.Extract(ctx, link, company, c.pages)
	if err != nil {
		return false, false, err
	}
	if rec == nil { // Filtered: noise title, outside cutoff, or undated under skip policy
		return false, false, c.markDone(normalized)
	}
	rec.URL = normalized

	inserted, err := c.store.SavePresentation(ctx, rec)
	if err != nil {
		// Deliberately not marked: a company-level retry must be able to
		// re-attempt the save.
		return false, true, fmt.Errorf("%w: %w", utils.ErrPersistence, err)
	}
	return inserted, true, c.markDone(normalized)
}

// markDone records the URL in the dedupe store once its outcome is final.
// The Seen check and this mark are not one atomic step, but the catalog save
// is first-write-wins, so a racing duplicate costs only a redundant probe.
func (c *Crawler) markDone(normalized string) error {
	_, err := c.seen.MarkEmitted(normalized)
	return err
}

func (c *Crawler) renderPage(ctx context.Context, pageURL string) (*fetch.PageSnapshot, error) {
	start := time.Now()
	snap, err := c.pages.Render(ctx, pageURL, c.cfg.NavigationTimeout)
	if err != nil {
		return nil, err
	}
	c.metrics.ObserveRender(time.Since(start))
	return snap, nil
}
