package config

import (
	"fmt"
	"time"

	"ir-scraper/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if c.UserAgent == "" {
		warnings = append(warnings, "user_agent is empty, defaulting to 'ir-scraper/1.0'")
		c.UserAgent = "ir-scraper/1.0"
	}

	if c.MaxConcurrency <= 0 {
		warnings = append(warnings, "max_concurrency should be > 0, defaulting to 2")
		c.MaxConcurrency = 2
	}

	if c.BatchSize <= 0 {
		warnings = append(warnings, "batch_size should be > 0, defaulting to 5")
		c.BatchSize = 5
	}

	if c.InterBatchDelay < 0 {
		warnings = append(warnings, "inter_batch_delay cannot be negative, setting to 0")
		c.InterBatchDelay = 0
	}
	if c.InterBatchDelay == 0 {
		c.InterBatchDelay = 3 * time.Second
	}

	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}

	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.RobotsTimeout <= 0 {
		c.RobotsTimeout = 5 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}

	if c.RescheduleAfter <= 0 {
		c.RescheduleAfter = 30 * 24 * time.Hour
	}

	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './scraper_state'")
		c.StateDir = "./scraper_state"
	}
	if c.StatsDir == "" {
		warnings = append(warnings, "stats_dir is empty, defaulting to './scraper_stats'")
		c.StatsDir = "./scraper_stats"
	}

	// HTTP client defaults
	if c.HTTPClientSettings.Timeout <= 0 {
		c.HTTPClientSettings.Timeout = 60 * time.Second
	}
	if c.HTTPClientSettings.MaxIdleConns <= 0 {
		c.HTTPClientSettings.MaxIdleConns = 100
	}
	if c.HTTPClientSettings.MaxIdleConnsPerHost <= 0 {
		c.HTTPClientSettings.MaxIdleConnsPerHost = 4
	}
	if c.HTTPClientSettings.IdleConnTimeout <= 0 {
		c.HTTPClientSettings.IdleConnTimeout = 90 * time.Second
	}
	if c.HTTPClientSettings.TLSHandshakeTimeout <= 0 {
		c.HTTPClientSettings.TLSHandshakeTimeout = 10 * time.Second
	}
	if c.HTTPClientSettings.DialerTimeout <= 0 {
		c.HTTPClientSettings.DialerTimeout = 15 * time.Second
	}
	if c.HTTPClientSettings.DialerKeepAlive <= 0 {
		c.HTTPClientSettings.DialerKeepAlive = 30 * time.Second
	}

	if warned, verr := c.Strategy.validate(); verr != nil {
		return warnings, verr
	} else {
		warnings = append(warnings, warned...)
	}

	return warnings, nil
}

// validate applies strategy defaults and rejects unknown policy values.
func (s *Strategy) validate() (warnings []string, err error) {
	if len(s.NavigationKeywords) == 0 {
		s.NavigationKeywords = append([]string(nil), DefaultNavigationKeywords...)
	}
	if len(s.NoiseTitles) == 0 {
		s.NoiseTitles = append([]string(nil), DefaultNoiseTitles...)
	}
	if s.CutoffQuarters <= 0 {
		s.CutoffQuarters = 4
	}
	if s.MaxNavigationPages <= 0 {
		s.MaxNavigationPages = 3
	}
	if s.MinTitleLength <= 0 {
		s.MinTitleLength = 5
	}

	switch s.UndatedPolicy {
	case "":
		warnings = append(warnings, "strategy.undated_policy not set, defaulting to 'today' (undated documents always pass the cutoff)")
		s.UndatedPolicy = UndatedToday
	case UndatedToday, UndatedSkip:
		// valid
	default:
		return warnings, fmt.Errorf("%w: strategy.undated_policy must be 'today' or 'skip', got '%s'",
			utils.ErrConfigValidation, s.UndatedPolicy)
	}

	return warnings, nil
}

// Undated policy values
const (
	UndatedToday = "today"
	UndatedSkip  = "skip"
)
