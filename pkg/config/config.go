package config

import "time"

// Strategy parameterizes the crawl heuristics. The source encoded these in
// near-duplicate scraper variants; here one pipeline is tuned by values.
type Strategy struct {
	// NavigationKeywords tag an anchor as a navigation candidate when its
	// lowercased text contains any of them.
	NavigationKeywords []string `yaml:"navigation_keywords,omitempty"`
	// NoiseTitles reject a candidate title on case-insensitive substring match.
	NoiseTitles []string `yaml:"noise_titles,omitempty"`
	// CutoffQuarters is the recency horizon: records dated at or before
	// now - CutoffQuarters*3 months are discarded.
	CutoffQuarters int `yaml:"cutoff_quarters,omitempty"`
	// MaxNavigationPages bounds the fan-out from the IR landing page.
	MaxNavigationPages int `yaml:"max_navigation_pages,omitempty"`
	// UndatedPolicy controls documents whose date cannot be parsed:
	// "today" stamps them with the current date (they always pass the
	// cutoff), "skip" drops them.
	UndatedPolicy string `yaml:"undated_policy,omitempty"`
	// MinTitleLength is the minimum anchor text length used as a title
	// before falling back to container text.
	MinTitleLength int `yaml:"min_title_length,omitempty"`
}

// AppConfig holds the global application configuration, decoded from YAML.
type AppConfig struct {
	UserAgent         string        `yaml:"user_agent"`
	MaxConcurrency    int           `yaml:"max_concurrency"`
	BatchSize         int           `yaml:"batch_size"`
	InterBatchDelay   time.Duration `yaml:"inter_batch_delay,omitempty"`
	MaxRetries        int           `yaml:"max_retries,omitempty"`
	RetryDelay        time.Duration `yaml:"retry_delay,omitempty"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout,omitempty"`
	RobotsTimeout     time.Duration `yaml:"robots_timeout,omitempty"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout,omitempty"`
	DelayPerHost      time.Duration `yaml:"delay_per_host,omitempty"`
	RescheduleAfter   time.Duration `yaml:"reschedule_after,omitempty"` // next_scheduled offset, default 30 days

	StateDir   string `yaml:"state_dir"`
	StatsDir   string `yaml:"stats_dir"`
	UseBrowser bool   `yaml:"use_browser"` // Headless Chrome rendering; plain HTTP fetch when false

	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
	Strategy           Strategy         `yaml:"strategy,omitempty"`

	// DatabaseURL is normally supplied via the IR_SCRAPER_DATABASE_URL
	// environment variable; the YAML field exists for local overrides.
	DatabaseURL string `yaml:"database_url,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout             time.Duration `yaml:"timeout,omitempty"`
	MaxIdleConns        int           `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host,omitempty"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	DialerTimeout       time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive     time.Duration `yaml:"dialer_keep_alive,omitempty"`
}

// DefaultNavigationKeywords is the baseline navigation-candidate keyword set.
var DefaultNavigationKeywords = []string{
	"presentation", "investor", "webcast", "event", "conference", "slide",
}

// DefaultNoiseTitles lists known non-presentation IR document types.
var DefaultNoiseTitles = []string{
	"press release", "earnings release", "annual report",
	"10-k", "10-q", "8-k", "proxy statement",
}
