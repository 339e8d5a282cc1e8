package extract

import (
	"strings"

	"ir-scraper/pkg/config"
	"ir-scraper/pkg/fetch"
	"ir-scraper/pkg/models"
	"ir-scraper/pkg/parse"
)

// Classifier tags page anchors as navigation candidates (likely lead to a
// presentations page) or file candidates (point directly at a presentation
// document). Everything else is ignored.
type Classifier struct {
	navKeywords []string
}

// NewClassifier builds a classifier from the strategy's keyword set.
// Keywords are matched lowercased against anchor text.
func NewClassifier(strategy config.Strategy) *Classifier {
	keywords := make([]string, 0, len(strategy.NavigationKeywords))
	for _, kw := range strategy.NavigationKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return &Classifier{navKeywords: keywords}
}

// Classify maps every anchor of a snapshot to a CandidateLink, preserving
// anchor order (the crawl visits navigation candidates in page order).
func (c *Classifier) Classify(anchors []fetch.Anchor) []models.CandidateLink {
	links := make([]models.CandidateLink, 0, len(anchors))
	for _, a := range anchors {
		links = append(links, models.CandidateLink{
			Href:          a.Href,
			AnchorText:    a.Text,
			ContainerText: a.RowText,
			Class:         c.classify(a),
		})
	}
	return links
}

func (c *Classifier) classify(a fetch.Anchor) models.LinkClass {
	if _, ok := parse.FileFormat(a.Href); ok {
		return models.LinkFile
	}

	lowerHref := strings.ToLower(a.Href)
	if strings.HasPrefix(lowerHref, "mailto:") || strings.HasPrefix(lowerHref, "javascript:") {
		return models.LinkIgnored
	}

	lowerText := strings.ToLower(a.Text)
	for _, kw := range c.navKeywords {
		if strings.Contains(lowerText, kw) {
			return models.LinkNavigation
		}
	}
	return models.LinkIgnored
}

// FileCandidates filters classified links down to file candidates.
func FileCandidates(links []models.CandidateLink) []models.CandidateLink {
	var out []models.CandidateLink
	for _, l := range links {
		if l.Class == models.LinkFile {
			out = append(out, l)
		}
	}
	return out
}

// NavigationCandidates filters classified links down to navigation
// candidates, capped at limit (the bounded fan-out per company).
func NavigationCandidates(links []models.CandidateLink, limit int) []models.CandidateLink {
	var out []models.CandidateLink
	for _, l := range links {
		if l.Class != models.LinkNavigation {
			continue
		}
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out
}
