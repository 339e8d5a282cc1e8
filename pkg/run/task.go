// Package run drives the batch pipeline: claiming companies from the
// directory, crawling each one under a concurrency bound, retrying failed
// crawls, and aggregating run-level stats.
package run

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ir-scraper/pkg/models"
	"ir-scraper/pkg/utils"
)

// CrawlResult is the outcome of a single company crawl.
type CrawlResult struct {
	Found         int    // Presentation records produced by extraction
	Saved         int    // Records newly written to the catalog
	SkippedReason string // Set when the crawl was skipped rather than performed
}

// TaskFunc performs one attempt of a company crawl.
type TaskFunc func(ctx context.Context) (*CrawlResult, error)

// RetryingTask wraps a company crawl with a fixed-delay retry loop.
// Terminal errors short-circuit: a policy disallow or setup failure will not
// resolve by waiting, so no further attempts are made.
type RetryingTask struct {
	company    models.Company
	fn         TaskFunc
	maxRetries int
	retryDelay time.Duration
	metrics    *Metrics
	log        *logrus.Entry
}

// NewRetryingTask builds a retrying wrapper around fn for one company.
func NewRetryingTask(company models.Company, fn TaskFunc, maxRetries int, retryDelay time.Duration, metrics *Metrics, logger *logrus.Entry) *RetryingTask {
	return &RetryingTask{
		company:    company,
		fn:         fn,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		metrics:    metrics,
		log:        logger.WithField("company", company.Symbol),
	}
}

// Run executes the task until it succeeds or attempts are exhausted. The
// returned CompanyFailure is non-nil exactly when the result is nil; the
// failure is a value to collect, never an error to propagate.
func (t *RetryingTask) Run(ctx context.Context) (*CrawlResult, *models.CompanyFailure) {
	var lastErr error

	for attempt := 1; attempt <= t.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		if attempt > 1 {
			t.log.WithField("attempt", attempt).Warnf("Retrying crawl after error: %v", lastErr)
			t.metrics.IncRetries()
			select {
			case <-time.After(t.retryDelay):
			case <-ctx.Done():
				return nil, t.failure(ctx.Err())
			}
		}

		result, err := t.fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		t.metrics.IncError(utils.CategorizeError(err))

		if utils.IsTerminal(err) {
			t.log.Errorf("Crawl failed terminally, not retrying: %v", err)
			break
		}
	}

	return nil, t.failure(lastErr)
}

func (t *RetryingTask) failure(err error) *models.CompanyFailure {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &models.CompanyFailure{
		Company:   fmt.Sprintf("%s (%s)", t.company.Name, t.company.Symbol),
		Error:     msg,
		Timestamp: time.Now().UTC(),
	}
}
