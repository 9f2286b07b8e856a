package locker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeFound    = "found"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
	outcomeSuccess  = "success"
)

// Metrics collects locker activity. A nil *Metrics records nothing.
type Metrics struct {
	lookups   *prometheus.CounterVec
	downloads *prometheus.CounterVec
	decrypt   *prometheus.HistogramVec
}

// NewMetrics creates the locker collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secrets_locker_lookups_total",
			Help: "Secret lookups by backend and outcome.",
		}, []string{"backend", "outcome"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secrets_locker_remote_downloads_total",
			Help: "Remote artifacts materialized into the local cache.",
		}, []string{"outcome"}),
		decrypt: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "secrets_locker_decrypt_duration_seconds",
			Help:    "Time spent in the decryption backend.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),
	}
	for _, c := range []prometheus.Collector{m.lookups, m.downloads, m.decrypt} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeLookup(backend, outcome string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(backend, outcome).Inc()
}

func (m *Metrics) observeDownload(outcome string) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeDecrypt(backend string, d time.Duration) {
	if m == nil {
		return
	}
	m.decrypt.WithLabelValues(backend).Observe(d.Seconds())
}
