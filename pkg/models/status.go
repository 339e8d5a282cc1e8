package models

// JobStatus represents the lifecycle state of a company crawl job.
// Transitions: pending -> in_progress -> {success|failed}.
type JobStatus string

const (
	JobStatusUnset      JobStatus = ""            // Zero value = unset/unknown
	JobStatusPending    JobStatus = "pending"     // Job created but not started
	JobStatusInProgress JobStatus = "in_progress" // Crawl running
	JobStatusSuccess    JobStatus = "success"     // Crawl completed (includes policy skips with zero results)
	JobStatusFailed     JobStatus = "failed"      // Crawl exhausted retries
)

// String implements fmt.Stringer for logging
func (s JobStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsTerminal returns true once the job can no longer change state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// IsValid returns true if the status is a known operational value
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusInProgress, JobStatusSuccess, JobStatusFailed:
		return true
	}
	return false
}
