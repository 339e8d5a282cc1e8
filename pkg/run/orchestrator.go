package run

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"ir-scraper/pkg/catalog"
	"ir-scraper/pkg/config"
	"ir-scraper/pkg/models"
)

// BatchOrchestrator processes the due companies in fixed-size batches under
// a global concurrency bound. Each batch is drained fully and its stats
// snapshot persisted before the next batch starts.
type BatchOrchestrator struct {
	cfg       *config.AppConfig
	directory catalog.Directory
	store     catalog.Store
	crawler   *Crawler
	metrics   *Metrics
	sem       *semaphore.Weighted
	log       *logrus.Entry
}

// NewBatchOrchestrator wires an orchestrator over shared pipeline components.
func NewBatchOrchestrator(
	cfg *config.AppConfig,
	directory catalog.Directory,
	store catalog.Store,
	crawler *Crawler,
	metrics *Metrics,
	logger *logrus.Entry,
) *BatchOrchestrator {
	return &BatchOrchestrator{
		cfg:       cfg,
		directory: directory,
		store:     store,
		crawler:   crawler,
		metrics:   metrics,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		log:       logger,
	}
}

// Run lists the due companies and processes them to completion. Cancelling
// ctx stops new work; companies already in flight finish their current
// attempt. The returned stats cover everything processed before the stop.
func (o *BatchOrchestrator) Run(ctx context.Context) (models.RunStats, error) {
	companies, err := o.directory.ListCompanies(ctx)
	if err != nil {
		return models.RunStats{}, err
	}

	stats := NewStatsAggregator(len(companies), o.cfg.StatsDir, o.log)
	runLog := o.log.WithField("run_id", stats.RunID())
	runLog.Infof("Starting run: %d companies due, batch size %d, concurrency %d",
		len(companies), o.cfg.BatchSize, o.cfg.MaxConcurrency)

	for start := 0; start < len(companies); start += o.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			runLog.Warn("Run cancelled, stopping before next batch")
			break
		}

		end := min(start+o.cfg.BatchSize, len(companies))
		batch := companies[start:end]
		runLog.Infof("Processing batch %d-%d of %d", start+1, end, len(companies))

		o.runBatch(ctx, batch, stats, runLog)
		stats.Persist()

		if end < len(companies) {
			select {
			case <-time.After(o.cfg.InterBatchDelay):
			case <-ctx.Done():
			}
		}
	}

	final := stats.Finish()
	o.logSummary(final, runLog)
	return final, nil
}

// runBatch drains one batch of companies through the crawl tasks.
func (o *BatchOrchestrator) runBatch(ctx context.Context, batch []models.Company, stats *StatsAggregator, runLog *logrus.Entry) {
	var wg sync.WaitGroup
	for _, company := range batch {
		wg.Add(1)
		go func(co models.Company) {
			defer wg.Done()
			if err := o.sem.Acquire(ctx, 1); err != nil {
				return // Cancelled while waiting for a slot
			}
			defer o.sem.Release(1)
			o.processCompany(ctx, co, stats, runLog)
		}(company)
	}
	wg.Wait()
}

// processCompany claims the company's job, runs the retrying crawl task, and
// records the terminal outcome in both the job store and the run stats.
func (o *BatchOrchestrator) processCompany(ctx context.Context, company models.Company, stats *StatsAggregator, runLog *logrus.Entry) {
	coLog := runLog.WithField("company", company.Symbol)

	claimed, err := o.store.ClaimJob(ctx, company.ID)
	if err != nil {
		coLog.Errorf("Failed to claim crawl job: %v", err)
		stats.RecordFailure(models.CompanyFailure{
			Company:   company.Name,
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		})
		o.metrics.IncCompany("claim_failed")
		return
	}
	if !claimed {
		coLog.Warn("Another crawl job is already in flight for this company, skipping this run")
		return
	}

	task := NewRetryingTask(company, func(taskCtx context.Context) (*CrawlResult, error) {
		return o.crawler.CrawlCompany(taskCtx, company)
	}, o.cfg.MaxRetries, o.cfg.RetryDelay, o.metrics, runLog)

	result, failure := task.Run(ctx)
	if failure != nil {
		o.completeJob(ctx, company, catalog.JobOutcome{
			Status: models.JobStatusFailed,
			Error:  failure.Error,
		}, coLog)
		stats.RecordFailure(*failure)
		o.metrics.IncCompany("failed")
		return
	}

	o.completeJob(ctx, company, catalog.JobOutcome{
		Status:             models.JobStatusSuccess,
		PresentationsFound: result.Found,
		SkippedReason:      result.SkippedReason,
	}, coLog)
	stats.RecordSuccess(result.Found, result.Saved)
	o.metrics.AddFound(result.Found)
	o.metrics.AddSaved(result.Saved)
	if result.SkippedReason != "" {
		o.metrics.IncCompany("skipped")
	} else {
		o.metrics.IncCompany("success")
	}
}

// completeJob finalizes the claimed job even when the run context is already
// cancelled; leaking an in_progress job would block the company's next run.
func (o *BatchOrchestrator) completeJob(ctx context.Context, company models.Company, outcome catalog.JobOutcome, coLog *logrus.Entry) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	if err := o.store.CompleteJob(ctx, company.ID, outcome); err != nil {
		coLog.Errorf("Failed to complete crawl job: %v", err)
	}
}

func (o *BatchOrchestrator) logSummary(stats models.RunStats, runLog *logrus.Entry) {
	runLog.Info("============================================")
	runLog.Infof("Run complete: %d/%d companies processed (%d succeeded, %d failed)",
		stats.Processed, stats.Total, stats.Succeeded, stats.Failed)
	runLog.Infof("Presentations: %d found, %d newly saved", stats.PresentationsFound, stats.PresentationsSaved)
	for _, failure := range stats.Errors {
		runLog.Infof("  FAILED %s: %s", failure.Company, failure.Error)
	}
	runLog.Info("============================================")
}
