// Package metrics exports Prometheus collectors for the globe controller
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dpup/trailglobe/server/internal/lib/events"
)

const namespace = "trailglobe"

// Metrics holds every collector, registered on one registry
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	FlightsStarted     *prometheus.CounterVec
	FlightsCompleted   *prometheus.CounterVec
	FlightsInterrupted *prometheus.CounterVec
	CameraState        *prometheus.GaugeVec

	RegroupPasses prometheus.Counter
	ClusterGroups prometheus.Gauge

	PlaybackActive   prometheus.Gauge
	WaypointsReached prometheus.Counter
	RouteEdits       *prometheus.CounterVec

	ProviderRefreshes       *prometheus.CounterVec
	ProviderRefreshDuration prometheus.Histogram
}

// New registers the collectors on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "path"}),

		FlightsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "camera",
			Name:      "flights_started_total",
			Help:      "Camera flights issued by the director",
		}, []string{"kind"}),

		FlightsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "camera",
			Name:      "flights_completed_total",
			Help:      "Camera flights that reached their target",
		}, []string{"kind"}),

		FlightsInterrupted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "camera",
			Name:      "flights_interrupted_total",
			Help:      "Camera flights cut short by user gestures",
		}, []string{"kind"}),

		CameraState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "camera",
			Name:      "state",
			Help:      "1 for the director's current state, 0 otherwise",
		}, []string{"state"}),

		RegroupPasses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "regroup_passes_total",
			Help:      "Marker regrouping passes",
		}),

		ClusterGroups: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "groups",
			Help:      "Marker groups after the last regroup",
		}),

		PlaybackActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "active",
			Help:      "1 while a playback is running",
		}),

		WaypointsReached: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "waypoints_reached_total",
			Help:      "Waypoints reached during playback",
		}),

		RouteEdits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "route",
			Name:      "changes_total",
			Help:      "Route changes published, by whether they were committed",
		}, []string{"committed"}),

		ProviderRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "refreshes_total",
			Help:      "Journey provider refreshes by result",
		}, []string{"result"}),

		ProviderRefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of journey provider refreshes",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}),
	}
}

// Observe feeds bus events into the collectors until the returned function is called
func (m *Metrics) Observe(bus *events.Bus) (stop func()) {
	unsubs := []func(){
		bus.FlightStarted.Subscribe(func(f events.Flight) { m.FlightsStarted.WithLabelValues(f.Kind).Inc() }),
		bus.FlightCompleted.Subscribe(func(f events.Flight) { m.FlightsCompleted.WithLabelValues(f.Kind).Inc() }),
		bus.FlightInterrupted.Subscribe(func(f events.Flight) { m.FlightsInterrupted.WithLabelValues(f.Kind).Inc() }),
		bus.CameraState.Subscribe(func(s events.CameraState) {
			if s.From != "" {
				m.CameraState.WithLabelValues(s.From).Set(0)
			}
			m.CameraState.WithLabelValues(s.To).Set(1)
		}),
		bus.ClustersChanged.Subscribe(func(c events.ClustersChanged) {
			m.RegroupPasses.Inc()
			m.ClusterGroups.Set(float64(c.Groups))
		}),
		bus.PlaybackProgress.Subscribe(func(p events.PlaybackProgress) {
			if p.Playing {
				m.PlaybackActive.Set(1)
			} else {
				m.PlaybackActive.Set(0)
			}
		}),
		bus.WaypointReached.Subscribe(func(events.WaypointReached) { m.WaypointsReached.Inc() }),
		bus.RouteChanged.Subscribe(func(e events.RouteChanged) {
			m.RouteEdits.WithLabelValues(strconv.FormatBool(e.Committed)).Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// WatchSurfaceClients exports the number of connected surface clients, read at scrape time
func (m *Metrics) WatchSurfaceClients(count func() int) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of connected surface clients",
	}, func() float64 { return float64(count()) })
}

// RecordRefresh records one provider refresh
func (m *Metrics) RecordRefresh(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ProviderRefreshes.WithLabelValues(result).Inc()
	m.ProviderRefreshDuration.Observe(d.Seconds())
}

// Middleware records request metrics. pattern labels the requests so IDs in the path
// don't blow up cardinality.
func (m *Metrics) Middleware(pattern string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		m.httpRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(rec.status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
