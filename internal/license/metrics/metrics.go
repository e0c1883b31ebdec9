package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"licensewatch/internal/license/models"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
)

// Metrics holds the Prometheus metrics of the reconciliation engine.
type Metrics struct {
	CacheLookups     *prometheus.CounterVec
	AuthorityLatency *prometheus.HistogramVec
	Sweeps           *prometheus.CounterVec
	SweepDuration    prometheus.Histogram
	MemberOutcomes   *prometheus.CounterVec
	Notifications    *prometheus.CounterVec
	OpenAlerts       prometheus.Gauge
}

// New creates and registers the engine metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "licensewatch_cache_lookups_total",
			Help: "Status cache lookups by result (hit, miss, stale)",
		}, []string{"result"}),
		AuthorityLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "licensewatch_authority_request_duration_seconds",
			Help:    "Licensing authority lookup latency by classified status",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"status"}),
		Sweeps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "licensewatch_sweeps_total",
			Help: "Sweeps recorded by run status",
		}, []string{"status"}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "licensewatch_sweep_duration_seconds",
			Help:    "Wall time of one sweep",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		MemberOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "licensewatch_member_outcomes_total",
			Help: "Per-member sweep outcomes",
		}, []string{"outcome"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "licensewatch_notifications_total",
			Help: "Notification attempts by result (sent, failed)",
		}, []string{"result"}),
		OpenAlerts: f.NewGauge(prometheus.GaugeOpts{
			Name: "licensewatch_open_alerts",
			Help: "Open alerts after the most recent sweep",
		}),
	}
}

func (m *Metrics) ObserveCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveAuthority(status models.Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AuthorityLatency.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveSweep(run models.RunRecord, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Sweeps.WithLabelValues(string(run.Status)).Inc()
	m.SweepDuration.Observe(elapsed.Seconds())
	for _, p := range run.ProcessedMembers {
		m.MemberOutcomes.WithLabelValues(string(p.Outcome)).Inc()
	}
	if run.Status == models.RunCompleted {
		m.OpenAlerts.Set(float64(run.Summary.OpenAlerts))
	}
}

func (m *Metrics) ObserveNotification(sent bool) {
	if m == nil {
		return
	}
	result := "failed"
	if sent {
		result = "sent"
	}
	m.Notifications.WithLabelValues(result).Inc()
}
