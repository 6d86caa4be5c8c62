package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.IncFetch("page")
		m.ObserveFetch(time.Second)
		m.IncFetchError("timeout")
		m.IncPage()
		m.IncItemKept()
		m.IncImageDownload()
		m.IncImageCacheHit()
		m.ObserveSync("completed", time.Second)
		m.IncOutboxEvent("FABRIC_CREATED", "published")
	})
}

func TestCounters(t *testing.T) {
	m := New()

	m.IncFetch("page")
	m.IncFetch("page")
	m.IncFetch("image")
	m.IncFetchError("not_found")
	m.IncPage()
	m.IncItemKept()
	m.IncItemKept()
	m.IncImageCacheHit()
	m.ObserveSync("completed", 3*time.Second)
	m.IncOutboxEvent("FABRIC_UPDATED", "failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchesTotal.WithLabelValues("page")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchesTotal.WithLabelValues("image")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchErrorsTotal.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PagesCrawledTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ItemsKeptTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImageCacheHitsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ImageDownloadsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncRunsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxEventsTotal.WithLabelValues("FABRIC_UPDATED", "failed")))
}
