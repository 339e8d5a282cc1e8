package catalog

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"ir-scraper/pkg/models"
	"ir-scraper/pkg/utils"
)

// MemoryCatalog is an in-process Directory and Store. It backs tests and
// dry runs where no database is configured.
type MemoryCatalog struct {
	mu              sync.Mutex
	companies       []models.Company
	presentations   map[string]*models.PresentationRecord
	jobs            map[int64]*models.CrawlJob
	rescheduleAfter time.Duration
	now             func() time.Time
}

// NewMemoryCatalog seeds the catalog with a fixed company list. now may be
// nil, in which case time.Now is used.
func NewMemoryCatalog(companies []models.Company, rescheduleAfter time.Duration, now func() time.Time) *MemoryCatalog {
	if now == nil {
		now = time.Now
	}
	return &MemoryCatalog{
		companies:       companies,
		presentations:   make(map[string]*models.PresentationRecord),
		jobs:            make(map[int64]*models.CrawlJob),
		rescheduleAfter: rescheduleAfter,
		now:             now,
	}
}

// ListCompanies implements Directory.
func (m *MemoryCatalog) ListCompanies(ctx context.Context) ([]models.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []models.Company
	for _, co := range m.companies {
		if !memValidIRURL(co.IRURL) {
			continue
		}
		if job, ok := m.jobs[co.ID]; ok && job.NextScheduled.After(m.now()) {
			continue
		}
		due = append(due, co)
	}
	return due, nil
}

func memValidIRURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// HasPresentation implements Store.
func (m *MemoryCatalog) HasPresentation(ctx context.Context, presURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.presentations[presURL]
	return ok, nil
}

// SavePresentation implements Store.
func (m *MemoryCatalog) SavePresentation(ctx context.Context, rec *models.PresentationRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.presentations[rec.URL]; ok {
		return false, nil
	}
	clone := *rec
	m.presentations[rec.URL] = &clone
	return true, nil
}

// ClaimJob implements Store.
func (m *MemoryCatalog) ClaimJob(ctx context.Context, companyID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[companyID]; ok && !job.Status.IsTerminal() {
		return false, nil
	}
	m.jobs[companyID] = &models.CrawlJob{
		CompanyID:     companyID,
		Status:        models.JobStatusInProgress,
		StartedAt:     m.now(),
		NextScheduled: m.now(),
	}
	return true, nil
}

// CompleteJob implements Store.
func (m *MemoryCatalog) CompleteJob(ctx context.Context, companyID int64, outcome JobOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[companyID]
	if !ok || job.Status != models.JobStatusInProgress {
		return fmt.Errorf("%w: no in-progress job for company %d", utils.ErrDatabase, companyID)
	}
	completed := m.now()
	job.Status = outcome.Status
	job.CompletedAt = &completed
	job.PresentationsFound += outcome.PresentationsFound
	job.NextScheduled = completed.Add(m.rescheduleAfter)
	job.SkippedReason = outcome.SkippedReason
	job.Error = outcome.Error
	return nil
}

// Close implements Store.
func (m *MemoryCatalog) Close() {}

// Job returns a copy of the company's latest job, for inspection in tests.
func (m *MemoryCatalog) Job(companyID int64) (models.CrawlJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[companyID]
	if !ok {
		return models.CrawlJob{}, false
	}
	return *job, true
}

// Presentations returns a copy of all stored records, for inspection in tests.
func (m *MemoryCatalog) Presentations() []models.PresentationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PresentationRecord, 0, len(m.presentations))
	for _, rec := range m.presentations {
		out = append(out, *rec)
	}
	return out
}
