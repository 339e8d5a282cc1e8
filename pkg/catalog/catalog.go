// Package catalog persists discovered presentations and crawl job state,
// and exposes the externally managed company directory.
package catalog

import (
	"context"

	"ir-scraper/pkg/models"
)

// Directory lists the companies eligible for crawling. The directory is
// maintained outside this pipeline; we only read it.
type Directory interface {
	// ListCompanies returns companies whose crawl is due: those with no
	// crawl job yet, or whose next_scheduled time has passed. Rows with a
	// syntactically invalid IR URL are excluded.
	ListCompanies(ctx context.Context) ([]models.Company, error)
}

// JobOutcome is the terminal result of a company crawl, applied to the
// claimed job by CompleteJob.
type JobOutcome struct {
	Status             models.JobStatus
	PresentationsFound int
	SkippedReason      string // Set when the crawl was skipped (e.g. robots policy)
	Error              string // Set when Status is failed
}

// Store persists presentation records and crawl job lifecycle state.
type Store interface {
	// HasPresentation reports whether a record with this URL already exists.
	HasPresentation(ctx context.Context, url string) (bool, error)

	// SavePresentation inserts the record. Returns false without error when
	// a record with the same URL already exists; the stored row is never
	// overwritten.
	SavePresentation(ctx context.Context, rec *models.PresentationRecord) (bool, error)

	// ClaimJob creates an in_progress job for the company. Returns false if
	// another non-terminal job already exists for it, in which case the
	// company must be skipped this run.
	ClaimJob(ctx context.Context, companyID int64) (bool, error)

	// CompleteJob transitions the company's claimed job to a terminal status.
	// The job's presentations_found counter is incremented by the outcome's
	// count, not overwritten, and next_scheduled is pushed out by the
	// configured reschedule interval.
	CompleteJob(ctx context.Context, companyID int64, outcome JobOutcome) error

	Close()
}
