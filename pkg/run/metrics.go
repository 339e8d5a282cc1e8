package run

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for a pipeline run.
type Metrics struct {
	Registry           *prometheus.Registry
	CompaniesTotal     *prometheus.CounterVec
	PagesRendered      prometheus.Counter
	PageRenderDuration prometheus.Histogram
	PresentationsFound prometheus.Counter
	PresentationsSaved prometheus.Counter
	RetriesTotal       prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	companies := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irscraper_companies_total",
			Help: "Companies processed, by terminal outcome.",
		},
		[]string{"outcome"},
	)
	pagesRendered := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "irscraper_pages_rendered_total",
			Help: "IR and navigation pages rendered.",
		},
	)
	renderDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "irscraper_page_render_duration_seconds",
			Help:    "Page render latency including navigation wait.",
			Buckets: prometheus.DefBuckets,
		},
	)
	found := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "irscraper_presentations_found_total",
			Help: "Presentation records produced by extraction.",
		},
	)
	saved := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "irscraper_presentations_saved_total",
			Help: "Presentation records newly written to the catalog.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "irscraper_retries_total",
			Help: "Company crawl retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irscraper_errors_total",
			Help: "Errors encountered, by category.",
		},
		[]string{"category"},
	)

	registry.MustRegister(companies, pagesRendered, renderDuration, found, saved, retries, errorsTotal)

	return &Metrics{
		Registry:           registry,
		CompaniesTotal:     companies,
		PagesRendered:      pagesRendered,
		PageRenderDuration: renderDuration,
		PresentationsFound: found,
		PresentationsSaved: saved,
		RetriesTotal:       retries,
		ErrorsTotal:        errorsTotal,
	}
}

// IncCompany increments the companies counter for a terminal outcome label.
func (m *Metrics) IncCompany(outcome string) {
	if m == nil {
		return
	}
	m.CompaniesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRender records one rendered page and its latency.
func (m *Metrics) ObserveRender(d time.Duration) {
	if m == nil {
		return
	}
	m.PagesRendered.Inc()
	m.PageRenderDuration.Observe(d.Seconds())
}

// AddFound increments the presentations found counter.
func (m *Metrics) AddFound(n int) {
	if m == nil {
		return
	}
	m.PresentationsFound.Add(float64(n))
}

// AddSaved increments the presentations saved counter.
func (m *Metrics) AddSaved(n int) {
	if m == nil {
		return
	}
	m.PresentationsSaved.Add(float64(n))
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a category label.
func (m *Metrics) IncError(category string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(category).Inc()
}
