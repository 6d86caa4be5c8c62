package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors of the catalog engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry            *prometheus.Registry
	FetchesTotal        *prometheus.CounterVec
	FetchDuration       prometheus.Histogram
	FetchErrorsTotal    *prometheus.CounterVec
	PagesCrawledTotal   prometheus.Counter
	ItemsKeptTotal      prometheus.Counter
	ImageDownloadsTotal prometheus.Counter
	ImageCacheHitsTotal prometheus.Counter
	SyncRunsTotal       *prometheus.CounterVec
	SyncDuration        prometheus.Histogram
	OutboxEventsTotal   *prometheus.CounterVec
}

// New constructs and registers all collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	fetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_fetches_total",
			Help: "Total HTTP fetches issued, by kind.",
		},
		[]string{"kind"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_fetch_duration_seconds",
			Help:    "HTTP fetch latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	fetchErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_fetch_errors_total",
			Help: "Failed fetches by error type.",
		},
		[]string{"error_type"},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_listing_pages_total",
			Help: "Listing pages crawled.",
		},
	)
	items := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_listing_items_kept_total",
			Help: "Listing items kept after the name check.",
		},
	)
	downloads := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_image_downloads_total",
			Help: "Images downloaded into the cache.",
		},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_image_cache_hits_total",
			Help: "Image resolutions served from the cache.",
		},
	)
	syncRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_sync_runs_total",
			Help: "Sync passes by final status.",
		},
		[]string{"status"},
	)
	syncDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_sync_duration_seconds",
			Help:    "Duration of full sync passes.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)

	outboxEvents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_outbox_events_total",
			Help: "Fabric change events relayed to the stream, by event type and result.",
		},
		[]string{"event_type", "result"},
	)

	registry.MustRegister(fetches, fetchDuration, fetchErrors, pages, items, downloads, cacheHits, syncRuns, syncDuration, outboxEvents)

	return &Metrics{
		Registry:            registry,
		FetchesTotal:        fetches,
		FetchDuration:       fetchDuration,
		FetchErrorsTotal:    fetchErrors,
		PagesCrawledTotal:   pages,
		ItemsKeptTotal:      items,
		ImageDownloadsTotal: downloads,
		ImageCacheHitsTotal: cacheHits,
		SyncRunsTotal:       syncRuns,
		SyncDuration:        syncDuration,
		OutboxEventsTotal:   outboxEvents,
	}
}

func (m *Metrics) IncFetch(kind string) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) IncFetchError(errorType string) {
	if m == nil {
		return
	}
	m.FetchErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) IncPage() {
	if m == nil {
		return
	}
	m.PagesCrawledTotal.Inc()
}

func (m *Metrics) IncItemKept() {
	if m == nil {
		return
	}
	m.ItemsKeptTotal.Inc()
}

func (m *Metrics) IncImageDownload() {
	if m == nil {
		return
	}
	m.ImageDownloadsTotal.Inc()
}

func (m *Metrics) IncImageCacheHit() {
	if m == nil {
		return
	}
	m.ImageCacheHitsTotal.Inc()
}

// ObserveSync records a finished sync pass.
func (m *Metrics) ObserveSync(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.SyncRunsTotal.WithLabelValues(status).Inc()
	m.SyncDuration.Observe(d.Seconds())
}

// IncOutboxEvent counts one relay attempt; result is "published" or "failed".
func (m *Metrics) IncOutboxEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.OutboxEventsTotal.WithLabelValues(eventType, result).Inc()
}
