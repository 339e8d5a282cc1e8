package models

import "time"

// Company is one row of the externally managed company directory.
// IRURL must be a syntactically valid absolute URL; rows failing that
// check are filtered out before crawling.
type Company struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	IRURL  string `json:"ir_url"`
}

// FileFormat identifies the presentation file type, derived from the URL extension.
type FileFormat string

const (
	FormatPDF  FileFormat = "pdf"
	FormatPPT  FileFormat = "ppt"
	FormatPPTX FileFormat = "pptx"
)

// LinkClass is the heuristic classification of an anchor on an IR page.
type LinkClass string

const (
	// LinkNavigation likely leads toward a page listing presentations.
	LinkNavigation LinkClass = "navigation"
	// LinkFile points directly at a presentation file.
	LinkFile LinkClass = "file"
	// LinkIgnored matched neither heuristic.
	LinkIgnored LinkClass = "ignored"
)

// CandidateLink is a classified anchor from a rendered page snapshot.
// Derived transiently per page; never persisted.
type CandidateLink struct {
	Href          string // Resolved absolute URL
	AnchorText    string // Visible anchor text
	ContainerText string // Text of the nearest row-like container (tr, li, block)
	Class         LinkClass
}

// PresentationRecord is a discovered presentation document ready for the
// catalog store. URL is unique across the store; a record is never written
// twice for the same URL.
type PresentationRecord struct {
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	PublicationDate time.Time `json:"date"`
	// DateGuessed is true when no date could be parsed and the publication
	// date was defaulted rather than observed.
	DateGuessed        bool       `json:"date_guessed,omitempty"`
	Format             FileFormat `json:"file_type"`
	FileSizeBytes      int64      `json:"file_size_bytes,omitempty"` // 0 when the HEAD probe failed
	FileSize           string     `json:"file_size"`                 // Human readable ("2.4 MB", "Unknown")
	SlideCountEstimate int        `json:"slide_count_estimate,omitempty"`
	CompanyID          int64      `json:"company_id"`
	CompanySymbol      string     `json:"company_symbol"`
	DiscoveredAt       time.Time  `json:"created_at"`
}

// CrawlJob tracks one company's crawl for a run. Only one non-terminal job
// per company may exist at a time; the orchestrator claims a job before
// admitting the company's task.
type CrawlJob struct {
	CompanyID          int64      `json:"company_id"`
	Status             JobStatus  `json:"status"`
	StartedAt          time.Time  `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	PresentationsFound int        `json:"presentations_found"`
	NextScheduled      time.Time  `json:"next_scheduled"`
	SkippedReason      string     `json:"skipped_reason,omitempty"`
	Error              string     `json:"error,omitempty"`
}

// CompanyFailure is the structured outcome of a company crawl that
// exhausted its retries. It is collected into RunStats, never thrown.
type CompanyFailure struct {
	Company   string    `json:"company"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// RunStats accumulates per-company outcomes into a run-level report.
// Mutated additively under the aggregator's lock; persisted as a JSON
// snapshot after every batch and at run end.
type RunStats struct {
	RunID              string           `json:"run_id"`
	StartedAt          time.Time        `json:"started_at"`
	FinishedAt         *time.Time       `json:"finished_at,omitempty"`
	Total              int              `json:"total"`
	Processed          int              `json:"processed"`
	Succeeded          int              `json:"succeeded"`
	Failed             int              `json:"failed"`
	PresentationsFound int              `json:"presentations_found"`
	PresentationsSaved int              `json:"presentations_saved"`
	Errors             []CompanyFailure `json:"errors"`
}
