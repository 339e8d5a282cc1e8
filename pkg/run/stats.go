package run

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ir-scraper/pkg/models"
)

// StatsAggregator accumulates per-company outcomes into run-level stats.
// All mutation goes through its methods; counters are only ever incremented.
type StatsAggregator struct {
	mu       sync.Mutex
	stats    models.RunStats
	statsDir string
	log      *logrus.Entry
}

// NewStatsAggregator starts a fresh run report with a generated run ID.
func NewStatsAggregator(total int, statsDir string, logger *logrus.Entry) *StatsAggregator {
	return &StatsAggregator{
		stats: models.RunStats{
			RunID:     uuid.NewString(),
			StartedAt: time.Now().UTC(),
			Total:     total,
			Errors:    []models.CompanyFailure{},
		},
		statsDir: statsDir,
		log:      logger,
	}
}

// RunID returns the generated identifier for this run.
func (a *StatsAggregator) RunID() string {
	return a.stats.RunID
}

// RecordSuccess counts a company that reached a successful terminal state.
func (a *StatsAggregator) RecordSuccess(found, saved int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Processed++
	a.stats.Succeeded++
	a.stats.PresentationsFound += found
	a.stats.PresentationsSaved += saved
}

// RecordFailure counts a company whose crawl exhausted its retries.
func (a *StatsAggregator) RecordFailure(failure models.CompanyFailure) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Processed++
	a.stats.Failed++
	a.stats.Errors = append(a.stats.Errors, failure)
}

// Snapshot returns a copy of the current stats.
func (a *StatsAggregator) Snapshot() models.RunStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.copyLocked()
}

func (a *StatsAggregator) copyLocked() models.RunStats {
	snap := a.stats
	snap.Errors = make([]models.CompanyFailure, len(a.stats.Errors))
	copy(snap.Errors, a.stats.Errors)
	return snap
}

// Finish stamps the finish time and writes the final report.
func (a *StatsAggregator) Finish() models.RunStats {
	a.mu.Lock()
	now := time.Now().UTC()
	a.stats.FinishedAt = &now
	snap := a.copyLocked()
	a.mu.Unlock()

	if err := a.write(snap); err != nil {
		a.log.Warnf("Failed to write final run report: %v", err)
	}
	return snap
}

// Persist writes an intermediate snapshot. Called after each batch so a
// crashed run still leaves a recent report behind.
func (a *StatsAggregator) Persist() {
	if err := a.write(a.Snapshot()); err != nil {
		a.log.Warnf("Failed to write run report snapshot: %v", err)
	}
}

func (a *StatsAggregator) write(snap models.RunStats) error {
	if a.statsDir == "" {
		return nil
	}
	if err := os.MkdirAll(a.statsDir, 0o755); err != nil {
		return fmt.Errorf("cannot create stats directory %s: %w", a.statsDir, err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal run stats: %w", err)
	}

	path := filepath.Join(a.statsDir, fmt.Sprintf("run_%s.json", snap.RunID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cannot write run stats to %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
