package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the streaming dashboard.
// It satisfies streaming.Recorder and offline.Observer.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	segmentsLoadedTotal prometheus.Counter
	segmentBytesTotal   prometheus.Counter
	fatalErrorsTotal    *prometheus.CounterVec
	levelSwitchesTotal  *prometheus.CounterVec
	cacheRequestsTotal  *prometheus.CounterVec
	activeSessions      prometheus.Gauge
	activePlayers       prometheus.Gauge
	currentBitrate      prometheus.Gauge
	bufferLevel         prometheus.Gauge
	networkSpeed        prometheus.Gauge
	droppedFrames       prometheus.Gauge
}

// New creates and registers Prometheus metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamplex_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamplex_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		segmentsLoadedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamplex_segments_loaded_total",
			Help: "Total number of media segments loaded by streaming sessions",
		}),
		segmentBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamplex_segment_bytes_total",
			Help: "Total payload bytes of loaded media segments",
		}),
		fatalErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamplex_fatal_errors_total",
			Help: "Fatal streaming errors by kind",
		}, []string{"kind"}),
		levelSwitchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamplex_level_switches_total",
			Help: "Quality level switches by resulting quality label",
		}, []string{"quality"}),
		cacheRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamplex_cache_requests_total",
			Help: "Offline cache lookups by cache name and result",
		}, []string{"cache", "result"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamplex_active_sessions",
			Help: "Number of live streaming sessions",
		}),
		activePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamplex_active_players",
			Help: "Number of registered players",
		}),
		currentBitrate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamplex_current_bitrate_bps",
			Help: "Bitrate of the most recently observed session level",
		}),
		bufferLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamplex_buffer_level_seconds",
			Help: "Most recently observed forward buffer",
		}),
		networkSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamplex_network_speed_bps",
			Help: "Most recently observed segment throughput",
		}),
		droppedFrames: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamplex_dropped_frames",
			Help: "Most recently observed dropped frame count",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.segmentsLoadedTotal,
		m.segmentBytesTotal,
		m.fatalErrorsTotal,
		m.levelSwitchesTotal,
		m.cacheRequestsTotal,
		m.activeSessions,
		m.activePlayers,
		m.currentBitrate,
		m.bufferLevel,
		m.networkSpeed,
		m.droppedFrames,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// SetActivePlayers sets the registered players gauge.
func (m *Metrics) SetActivePlayers(n int) {
	m.activePlayers.Set(float64(n))
}

// SessionStarted increments the active sessions gauge.
func (m *Metrics) SessionStarted() {
	m.activeSessions.Inc()
}

// SessionEnded decrements the active sessions gauge.
func (m *Metrics) SessionEnded() {
	m.activeSessions.Dec()
}

// SegmentLoaded counts one loaded segment and its payload bytes.
func (m *Metrics) SegmentLoaded(byteLength int) {
	m.segmentsLoadedTotal.Inc()
	m.segmentBytesTotal.Add(float64(byteLength))
}

// LevelSwitched counts a switch to quality.
func (m *Metrics) LevelSwitched(quality string) {
	m.levelSwitchesTotal.WithLabelValues(quality).Inc()
}

// FatalError counts a fatal streaming error of the given kind.
func (m *Metrics) FatalError(kind string) {
	m.fatalErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveStats records the latest session statistics.
func (m *Metrics) ObserveStats(bitrate int, bufferLevel, networkSpeed float64, droppedFrames int) {
	m.currentBitrate.Set(float64(bitrate))
	m.bufferLevel.Set(bufferLevel)
	m.networkSpeed.Set(networkSpeed)
	m.droppedFrames.Set(float64(droppedFrames))
}

// CacheResult counts one offline cache lookup. result is "hit" or "miss".
func (m *Metrics) CacheResult(cache, result string) {
	m.cacheRequestsTotal.WithLabelValues(cache, result).Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active players).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
