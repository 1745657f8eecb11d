// Package metrics defines the Prometheus metrics exported on /metrics.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every application metric and the registry they live in.
type Metrics struct {
	ConfessionsSubmitted prometheus.Counter
	SubmissionsRejected  *prometheus.CounterVec
	LikeToggles          *prometheus.CounterVec
	CommentsAdded        prometheus.Counter
	ConfessionsDeleted   prometheus.Counter
	WebsocketClients     prometheus.Gauge
	ActiveSessions       prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the metrics and registers them, together with the Go runtime
// and process collectors, on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ConfessionsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "confessly_confessions_submitted_total",
			Help: "Total number of confessions accepted",
		}),
		SubmissionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confessly_submissions_rejected_total",
			Help: "Total number of confessions or comments rejected by validation",
		}, []string{"reason"}),
		LikeToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confessly_like_toggles_total",
			Help: "Total number of like toggles by resulting action",
		}, []string{"action"}),
		CommentsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "confessly_comments_added_total",
			Help: "Total number of comments accepted",
		}),
		ConfessionsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "confessly_confessions_deleted_total",
			Help: "Total number of confessions deleted by moderators",
		}),
		WebsocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "confessly_ws_clients",
			Help: "Number of connected websocket clients",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "confessly_active_sessions",
			Help: "Number of signed-in sessions",
		}),
	}

	toRegister := []prometheus.Collector{
		m.ConfessionsSubmitted,
		m.SubmissionsRejected,
		m.LikeToggles,
		m.CommentsAdded,
		m.ConfessionsDeleted,
		m.WebsocketClients,
		m.ActiveSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
