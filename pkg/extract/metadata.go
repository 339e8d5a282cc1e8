package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ir-scraper/pkg/config"
	"ir-scraper/pkg/fetch"
	"ir-scraper/pkg/models"
	"ir-scraper/pkg/parse"
	"ir-scraper/pkg/utils"
)

// estimatedBytesPerSlide backs the slide-count estimate from the HEAD
// probe; IR decks average a few hundred KB per slide once charts and
// photography are in.
const estimatedBytesPerSlide = 350 * 1024

// MetadataExtractor turns file-candidate links into PresentationRecords,
// applying title cleaning, noise filters, date normalization, and the
// recency cutoff.
type MetadataExtractor struct {
	strategy config.Strategy
	dates    *DateNormalizer
	now      func() time.Time
	log      *logrus.Entry
}

// NewMetadataExtractor creates an extractor. now is injectable for tests;
// nil means time.Now.
func NewMetadataExtractor(strategy config.Strategy, now func() time.Time, log *logrus.Entry) *MetadataExtractor {
	if now == nil {
		now = time.Now
	}
	return &MetadataExtractor{
		strategy: strategy,
		dates:    NewDateNormalizer(now),
		now:      now,
		log:      log,
	}
}

// Extract builds a PresentationRecord from a file-candidate link, probing
// the file size through the fetcher. A nil record with a nil error means
// the link was filtered as noise or out of the recency window: skipped at
// link granularity, never failing the company.
func (me *MetadataExtractor) Extract(ctx context.Context, link models.CandidateLink, company models.Company, prober fetch.PageFetcher) (*models.PresentationRecord, error) {
	format, ok := parse.FileFormat(link.Href)
	if !ok {
		return nil, fmt.Errorf("%w: '%s' is not a presentation file", utils.ErrExtractionNoise, link.Href)
	}

	title, ok := me.title(link)
	if !ok {
		me.log.WithField("url", link.Href).Debug("Link rejected by title rules")
		return nil, nil
	}

	date, guessed := me.dates.Normalize(link.ContainerText, link.Href)
	if guessed && me.strategy.UndatedPolicy == config.UndatedSkip {
		me.log.WithField("url", link.Href).Debug("Undated document skipped by policy")
		return nil, nil
	}
	if !me.withinCutoff(date) {
		me.log.WithFields(logrus.Fields{"url": link.Href, "date": date.Format("2006-01-02")}).
			Debug("Document older than cutoff, skipped")
		return nil, nil
	}

	var sizeBytes int64
	if size, ok := prober.ProbeSize(ctx, link.Href); ok {
		sizeBytes = size
	}

	record := &models.PresentationRecord{
		URL:             link.Href,
		Title:           title,
		PublicationDate: date,
		DateGuessed:     guessed,
		Format:          format,
		FileSizeBytes:   sizeBytes,
		FileSize:        HumanFileSize(sizeBytes),
		CompanyID:       company.ID,
		CompanySymbol:   company.Symbol,
		DiscoveredAt:    me.now().UTC(),
	}
	if sizeBytes > 0 {
		record.SlideCountEstimate = slideEstimate(sizeBytes)
	}
	return record, nil
}

// title derives a cleaned document title: anchor text when long enough,
// else the nearest container text, else the URL's filename stem. Noise
// titles (press releases, SEC forms) are rejected.
func (me *MetadataExtractor) title(link models.CandidateLink) (string, bool) {
	candidate := utils.CollapseWhitespace(link.AnchorText)
	if len(candidate) < me.strategy.MinTitleLength {
		candidate = utils.CollapseWhitespace(link.ContainerText)
	}
	if candidate == "" {
		candidate = parse.FilenameStem(link.Href)
	}

	candidate = stripFileExtension(candidate)
	candidate = utils.CollapseWhitespace(candidate)

	if candidate == "" {
		return "", false
	}
	lower := strings.ToLower(candidate)
	if lower == "download" || lower == "view" {
		return "", false
	}
	for _, noise := range me.strategy.NoiseTitles {
		if strings.Contains(lower, strings.ToLower(noise)) {
			return "", false
		}
	}
	return candidate, true
}

// withinCutoff reports whether date is strictly after now - N quarters.
func (me *MetadataExtractor) withinCutoff(date time.Time) bool {
	cutoff := me.now().UTC().AddDate(0, -3*me.strategy.CutoffQuarters, 0)
	return date.After(cutoff)
}

// stripFileExtension removes a trailing presentation extension from a
// title candidate ("Q3 Deck.pdf" -> "Q3 Deck").
func stripFileExtension(s string) string {
	lower := strings.ToLower(s)
	for _, ext := range []string{".pdf", ".pptx", ".ppt"} {
		if strings.HasSuffix(lower, ext) {
			return s[:len(s)-len(ext)]
		}
	}
	return s
}

// HumanFileSize renders a byte count the way the catalog displays it:
// KB below 1MB, MB above, "Unknown" when the probe failed.
func HumanFileSize(bytes int64) string {
	switch {
	case bytes <= 0:
		return "Unknown"
	case bytes < 1<<20:
		return fmt.Sprintf("%.1f KB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1<<20))
	}
}

// slideEstimate approximates a deck's slide count from its file size.
func slideEstimate(bytes int64) int {
	est := int(bytes / estimatedBytesPerSlide)
	if est < 1 {
		est = 1
	}
	return est
}
