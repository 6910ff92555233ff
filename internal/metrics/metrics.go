package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snapetech/nunetv/internal/catalog"
	"github.com/snapetech/nunetv/internal/indexer"
)

// Set holds the process collectors on a private registry. A nil *Set is valid
// and records nothing, so components can take one optionally.
type Set struct {
	Registry *prometheus.Registry

	loadCycles       *prometheus.CounterVec
	loadDuration     prometheus.Histogram
	sourceRequests   *prometheus.CounterVec
	sourceDuration   *prometheus.HistogramVec
	snapshotChannels *prometheus.GaugeVec
	favorites        prometheus.Gauge
}

// New registers all collectors plus the Go runtime and process collectors.
func New() *Set {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Set{
		Registry: reg,
		loadCycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nunetv_load_cycles_total",
			Help: "Completed load cycles by result (ok or the failing error kind)",
		}, []string{"result"}),
		loadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nunetv_load_cycle_duration_seconds",
			Help:    "Wall time of a full load cycle",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		sourceRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nunetv_source_requests_total",
			Help: "Upstream requests by source (auth, live, vod, series, playlist, epg) and result",
		}, []string{"source", "result"}),
		sourceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nunetv_source_request_duration_seconds",
			Help:    "Upstream request duration by source",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		snapshotChannels: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nunetv_snapshot_channels",
			Help: "Channels in the published snapshot by list",
		}, []string{"list"}),
		favorites: f.NewGauge(prometheus.GaugeOpts{
			Name: "nunetv_favorites",
			Help: "Favorite channels in the published snapshot",
		}),
	}
}

// Result is the label value for err: "ok", or the error kind.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return indexer.KindOf(err).String()
}

// ObserveSource records one upstream call.
func (s *Set) ObserveSource(source string, d time.Duration, err error) {
	if s == nil {
		return
	}
	s.sourceRequests.WithLabelValues(source, Result(err)).Inc()
	s.sourceDuration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveCycle records one load cycle.
func (s *Set) ObserveCycle(d time.Duration, err error) {
	if s == nil {
		return
	}
	s.loadCycles.WithLabelValues(Result(err)).Inc()
	s.loadDuration.Observe(d.Seconds())
}

// ObserveSnapshot sets the snapshot gauges.
func (s *Set) ObserveSnapshot(snap *catalog.Snapshot) {
	if s == nil || snap == nil {
		return
	}
	s.snapshotChannels.WithLabelValues("live").Set(float64(len(snap.LiveChannels())))
	s.snapshotChannels.WithLabelValues("movies").Set(float64(len(snap.Movies)))
	s.snapshotChannels.WithLabelValues("series").Set(float64(len(snap.Series)))
	s.snapshotChannels.WithLabelValues("epg_channels").Set(float64(len(snap.EPG)))
	s.favorites.Set(float64(len(snap.Favorites)))
}

// Handler serves the registry in the Prometheus text format.
func (s *Set) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{Registry: s.Registry})
}
