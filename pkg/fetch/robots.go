package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// PolitenessGuard fetches, parses, and caches robots.txt per domain and
// answers whether this agent may crawl a site at all. The check is
// origin-level: one allow/disallow decision gates the whole site, not
// individual paths.
//
// The guard fails open: any fetch, parse, or non-2xx failure is cached as
// "no policy" and Allowed returns true. A transient robots.txt outage must
// not look like a disallow.
type PolitenessGuard struct {
	fetcher     *Fetcher
	rateLimiter *RateLimiter
	timeout     time.Duration
	userAgent   string

	cache   map[string]*robotstxt.RobotsData // hostname -> parsed data (nil on failure)
	cacheMu sync.Mutex

	log *logrus.Entry
}

// NewPolitenessGuard creates a guard with an empty per-run cache.
func NewPolitenessGuard(fetcher *Fetcher, rateLimiter *RateLimiter, timeout time.Duration, userAgent string, log *logrus.Entry) *PolitenessGuard {
	return &PolitenessGuard{
		fetcher:     fetcher,
		rateLimiter: rateLimiter,
		timeout:     timeout,
		userAgent:   userAgent,
		cache:       make(map[string]*robotstxt.RobotsData),
		log:         log,
	}
}

// Allowed reports whether userAgent may crawl the origin of targetURL.
// Cached policies are never re-fetched within a run.
func (g *PolitenessGuard) Allowed(ctx context.Context, targetURL *url.URL) bool {
	data := g.policyFor(ctx, targetURL)
	if data == nil {
		return true // Fail-open: no policy could be obtained
	}
	// Origin-level evaluation: gate the site root, not the specific path.
	return data.TestAgent("/", g.userAgent)
}

// policyFor retrieves robots.txt data for the targetURL's host, using the
// cache or fetching. Returns nil on any error/non-2xx/parse failure; the
// nil result is cached so a failing host is only tried once per run.
func (g *PolitenessGuard) policyFor(ctx context.Context, targetURL *url.URL) *robotstxt.RobotsData {
	host := targetURL.Hostname()
	hostLog := g.log.WithField("host", host)

	g.cacheMu.Lock()
	data, found := g.cache[host]
	g.cacheMu.Unlock()
	if found {
		return data // Cached policy (could be nil)
	}

	robotsURL := &url.URL{Scheme: targetURL.Scheme, Host: targetURL.Host, Path: "/robots.txt"}
	if robotsURL.Scheme != "http" && robotsURL.Scheme != "https" {
		hostLog.Warnf("Invalid scheme '%s', defaulting to https for robots.txt", robotsURL.Scheme)
		robotsURL.Scheme = "https"
	}
	hostLog.WithField("robots_url", robotsURL.String()).Info("Fetching robots.txt...")

	fetchCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if g.rateLimiter != nil {
		g.rateLimiter.ApplyDelay(host)
		defer g.rateLimiter.UpdateLastRequestTime(host)
	}

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		hostLog.Errorf("Error creating robots.txt request: %v", err)
		return g.cachePolicy(host, nil)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, fetchErr := g.fetcher.FetchWithRetry(fetchCtx, req)
	if fetchErr != nil {
		if resp != nil {
			drainClose(resp)
		}
		hostLog.Warnf("Fetching robots.txt failed, assuming allowed: %v", fetchErr)
		return g.cachePolicy(host, nil)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		hostLog.Errorf("Error reading robots.txt body: %v", err)
		return g.cachePolicy(host, nil)
	}

	data, err = robotstxt.FromBytes(bodyBytes)
	if err != nil {
		hostLog.Errorf("Error parsing robots.txt: %v", err)
		return g.cachePolicy(host, nil)
	}

	hostLog.Info("Successfully fetched and parsed robots.txt")
	return g.cachePolicy(host, data)
}

func (g *PolitenessGuard) cachePolicy(host string, data *robotstxt.RobotsData) *robotstxt.RobotsData {
	g.cacheMu.Lock()
	g.cache[host] = data
	g.cacheMu.Unlock()
	return data
}
