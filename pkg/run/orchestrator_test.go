package run

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ir-scraper/pkg/catalog"
	"ir-scraper/pkg/config"
	"ir-scraper/pkg/dedupe"
	"ir-scraper/pkg/extract"
	"ir-scraper/pkg/fetch"
	"ir-scraper/pkg/models"
)

func testNow() time.Time {
	return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
}

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func testRunConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		UserAgent:       "ir-scraper-test",
		MaxConcurrency:  2,
		BatchSize:       5,
		InterBatchDelay: 10 * time.Millisecond,
		MaxRetries:      2,
		RetryDelay:      10 * time.Millisecond,
		StateDir:        t.TempDir(),
		StatsDir:        t.TempDir(),
	}
	_, err := cfg.Validate()
	require.NoError(t, err)
	return cfg
}

// testPipeline bundles the wired components around an in-memory catalog.
type testPipeline struct {
	orchestrator *BatchOrchestrator
	catalog      *catalog.MemoryCatalog
	seen         *dedupe.BadgerStore
	cfg          *config.AppConfig
}

func newTestPipeline(t *testing.T, cfg *config.AppConfig, companies []models.Company) *testPipeline {
	return newTestPipelineStore(t, cfg, companies, nil)
}

// newTestPipelineStore wires the pipeline like newTestPipeline but lets the
// test interpose on the catalog store the crawler persists through.
func newTestPipelineStore(t *testing.T, cfg *config.AppConfig, companies []models.Company, wrap func(catalog.Store) catalog.Store) *testPipeline {
	t.Helper()
	logger := testLogger()

	cat := catalog.NewMemoryCatalog(companies, cfg.RescheduleAfter, testNow)
	var store catalog.Store = cat
	if wrap != nil {
		store = wrap(cat)
	}

	seen, err := dedupe.NewBadgerStore(cfg.StateDir, logger)
	require.NoError(t, err)
	t.Cleanup(func() { seen.Close() })

	client := &http.Client{Timeout: 10 * time.Second}
	fetcher := fetch.NewFetcher(client, 0, 10*time.Millisecond, logger.Logger)
	guard := fetch.NewPolitenessGuard(fetcher, nil, 2*time.Second, cfg.UserAgent, logger)
	pages := fetch.NewHTTPFetcher(fetcher, nil, cfg.UserAgent, 2*time.Second, logger)

	metrics := NewMetrics()
	classifier := extract.NewClassifier(cfg.Strategy)
	extractor := extract.NewMetadataExtractor(cfg.Strategy, testNow, logger)
	crawler := NewCrawler(cfg, guard, pages, classifier, extractor, seen, store, metrics, logger)
	orchestrator := NewBatchOrchestrator(cfg, cat, cat, crawler, metrics, logger)

	return &testPipeline{orchestrator: orchestrator, catalog: cat, seen: seen, cfg: cfg}
}

// irSite serves a minimal IR site: a landing page whose "Presentations"
// link leads to a page listing one recent and one stale deck.
func irSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow:\n")
	})
	mux.HandleFunc("/investors", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/presentations">Presentations</a>
			<a href="/contact">Contact</a>
		</body></html>`)
	})
	mux.HandleFunc("/presentations", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><table>
			<tr><td>Jan 10, 2024</td> <td><a href="/docs/q1-2024.pdf">Q1 2024 Investor Presentation</a></td></tr>
			<tr><td>Jun 1, 2022</td> <td><a href="/docs/q2-2022.pdf">Q2 2022 Investor Presentation</a></td></tr>
		</table></body></html>`)
	})
	mux.HandleFunc("/docs/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestRun_CatalogsRecentPresentations(t *testing.T) {
	server := irSite(t)
	cfg := testRunConfig(t)
	companies := []models.Company{
		{ID: 1, Name: "Acme Corp", Symbol: "ACME", IRURL: server.URL + "/investors"},
	}
	p := newTestPipeline(t, cfg, companies)

	stats, err := p.orchestrator.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 1, stats.PresentationsFound, "stale deck should be filtered")
	assert.Equal(t, 1, stats.PresentationsSaved)

	recs := p.catalog.Presentations()
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "Q1 2024 Investor Presentation", rec.Title)
	assert.True(t, rec.PublicationDate.Equal(time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)),
		"PublicationDate = %s", rec.PublicationDate.Format("2006-01-02"))
	assert.Equal(t, int64(1048576), rec.FileSizeBytes, "size should come from the HEAD probe")
	assert.Equal(t, int64(1), rec.CompanyID)
	assert.Equal(t, "ACME", rec.CompanySymbol)

	job, ok := p.catalog.Job(1)
	require.True(t, ok, "no job recorded")
	assert.Equal(t, models.JobStatusSuccess, job.Status)
	assert.Equal(t, 1, job.PresentationsFound)

	// The run report is persisted with the run's ID.
	reportPath := filepath.Join(cfg.StatsDir, fmt.Sprintf("run_%s.json", stats.RunID))
	_, err = os.Stat(reportPath)
	assert.NoError(t, err, "run report not written")
}

func TestRun_SecondRunEmitsNothingNew(t *testing.T) {
	server := irSite(t)
	cfg := testRunConfig(t)
	companies := []models.Company{
		{ID: 1, Name: "Acme Corp", Symbol: "ACME", IRURL: server.URL + "/investors"},
	}

	first := newTestPipeline(t, cfg, companies)
	_, err := first.orchestrator.Run(context.Background())
	require.NoError(t, err)
	// Release the badger directory lock so the second pipeline can open
	// the same state dir.
	require.NoError(t, first.seen.Close())

	// Fresh catalog, same state dir: the persistent dedupe store suppresses
	// re-emission of every URL seen in the first run.
	second := newTestPipeline(t, cfg, companies)
	stats, err := second.orchestrator.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 0, stats.PresentationsFound)
	assert.Equal(t, 0, stats.PresentationsSaved)
	assert.Empty(t, second.catalog.Presentations())
}

// flakyStore fails SavePresentation a set number of times, then delegates.
type flakyStore struct {
	catalog.Store
	failures atomic.Int32
}

func (s *flakyStore) SavePresentation(ctx context.Context, rec *models.PresentationRecord) (bool, error) {
	if s.failures.Add(-1) >= 0 {
		return false, fmt.Errorf("catalog unavailable")
	}
	return s.Store.SavePresentation(ctx, rec)
}

func TestRun_TransientSaveFailureDoesNotLoseRecord(t *testing.T) {
	server := irSite(t)
	cfg := testRunConfig(t)
	companies := []models.Company{
		{ID: 1, Name: "Acme Corp", Symbol: "ACME", IRURL: server.URL + "/investors"},
	}

	// The first save attempt fails; the company-level retry must re-reach
	// the save instead of finding the URL already marked as emitted.
	flaky := &flakyStore{}
	flaky.failures.Store(1)
	p := newTestPipelineStore(t, cfg, companies, func(s catalog.Store) catalog.Store {
		flaky.Store = s
		return flaky
	})

	stats, err := p.orchestrator.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.PresentationsSaved, "retry should re-attempt the failed save")

	recs := p.catalog.Presentations()
	require.Len(t, recs, 1)
	assert.Equal(t, "Q1 2024 Investor Presentation", recs[0].Title)
}

func TestRun_RescheduledCompanyNotDue(t *testing.T) {
	server := irSite(t)
	cfg := testRunConfig(t)
	companies := []models.Company{
		{ID: 1, Name: "Acme Corp", Symbol: "ACME", IRURL: server.URL + "/investors"},
	}
	p := newTestPipeline(t, cfg, companies)

	_, err := p.orchestrator.Run(context.Background())
	require.NoError(t, err)

	// Same catalog: next_scheduled is a month out, so nothing is due.
	stats, err := p.orchestrator.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total, "rescheduled company should not be due")
}

func TestRun_RobotsDisallowIsSuccessWithSkip(t *testing.T) {
	pageHits := &atomic.Int32{}
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		pageHits.Add(1)
		fmt.Fprint(w, "<html><body></body></html>")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := testRunConfig(t)
	companies := []models.Company{
		{ID: 1, Name: "Walled Corp", Symbol: "WALL", IRURL: server.URL + "/investors"},
	}
	p := newTestPipeline(t, cfg, companies)

	stats, err := p.orchestrator.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Succeeded, "a policy skip is not a failure")
	assert.Equal(t, 0, stats.Failed)

	job, ok := p.catalog.Job(1)
	require.True(t, ok)
	assert.Equal(t, models.JobStatusSuccess, job.Status)
	assert.Equal(t, SkipReasonRobots, job.SkippedReason)
	assert.Equal(t, 0, job.PresentationsFound)
	assert.Equal(t, int32(0), pageHits.Load(), "IR page fetched despite disallow")
}

func TestRun_FailureAfterRetriesIsCollected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow:\n")
	})
	mux.HandleFunc("/investors", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := testRunConfig(t)
	companies := []models.Company{
		{ID: 1, Name: "Flaky Corp", Symbol: "FLKY", IRURL: server.URL + "/investors"},
	}
	p := newTestPipeline(t, cfg, companies)

	stats, err := p.orchestrator.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.Succeeded)
	require.Len(t, stats.Errors, 1)
	assert.NotEmpty(t, stats.Errors[0].Company)
	assert.NotEmpty(t, stats.Errors[0].Error)

	job, ok := p.catalog.Job(1)
	require.True(t, ok)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.NotEmpty(t, job.Error)
}

func TestRun_TransientFailureRecoversOnRetry(t *testing.T) {
	attempts := &atomic.Int32{}
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow:\n")
	})
	mux.HandleFunc("/investors", func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `<html><body><table>
			<tr><td>Jan 10, 2024</td> <td><a href="/docs/q1.pdf">Q1 2024 Investor Presentation</a></td></tr>
		</table></body></html>`)
	})
	mux.HandleFunc("/docs/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "700000")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := testRunConfig(t)
	companies := []models.Company{
		{ID: 1, Name: "Acme Corp", Symbol: "ACME", IRURL: server.URL + "/investors"},
	}
	p := newTestPipeline(t, cfg, companies)

	stats, err := p.orchestrator.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, stats.Succeeded, "transient error should be retried")
	assert.Equal(t, 1, stats.PresentationsSaved)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestRun_ConcurrencyBound(t *testing.T) {
	inFlight := &atomic.Int32{}
	peak := &atomic.Int32{}
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow:\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			observed := peak.Load()
			if current <= observed || peak.CompareAndSwap(observed, current) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		fmt.Fprint(w, "<html><body></body></html>")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := testRunConfig(t)
	cfg.MaxConcurrency = 2
	cfg.BatchSize = 6
	var companies []models.Company
	for i := int64(1); i <= 6; i++ {
		companies = append(companies, models.Company{
			ID: i, Name: fmt.Sprintf("Co %d", i), Symbol: fmt.Sprintf("CO%d", i),
			IRURL: fmt.Sprintf("%s/ir/%d", server.URL, i),
		})
	}
	p := newTestPipeline(t, cfg, companies)

	stats, err := p.orchestrator.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Processed)
	assert.LessOrEqual(t, peak.Load(), int32(2), "concurrent page requests exceeded the bound")
}

func TestRun_CancelStopsNewBatches(t *testing.T) {
	server := irSite(t)
	cfg := testRunConfig(t)
	cfg.BatchSize = 1
	cfg.InterBatchDelay = 50 * time.Millisecond

	var companies []models.Company
	for i := int64(1); i <= 4; i++ {
		companies = append(companies, models.Company{
			ID: i, Name: fmt.Sprintf("Co %d", i), Symbol: fmt.Sprintf("CO%d", i),
			IRURL: server.URL + "/investors",
		})
	}
	p := newTestPipeline(t, cfg, companies)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(60 * time.Millisecond)
		cancel()
	}()

	stats, err := p.orchestrator.Run(ctx)
	require.NoError(t, err)
	assert.Less(t, stats.Processed, 4, "cancel should stop new batches")
	assert.GreaterOrEqual(t, stats.Processed, 1, "the first batch should have run")
}
