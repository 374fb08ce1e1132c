package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the invite collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	joins           *prometheus.CounterVec
	leaves          prometheus.Counter
	joinsLastMinute *prometheus.GaugeVec
	altsLastHour    *prometheus.GaugeVec
	scores          prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invite_joins_total",
			Help: "Member joins handled, by outcome.",
		}, []string{"outcome"}),
		leaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "invite_leaves_total",
			Help: "Member leaves counted against an inviter or vanity join.",
		}),
		joinsLastMinute: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "invite_joins_last_minute",
			Help: "Joins observed in the trailing join window.",
		}, []string{"guild_id"}),
		altsLastHour: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "invite_alts_last_hour",
			Help: "Alt joins observed in the trailing alt window.",
		}, []string{"guild_id"}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "invite_member_score",
			Help:    "Legitimacy scores of newly joined members.",
			Buckets: []float64{-10, -5, 0, 5, 10, 15, 20, 30},
		}),
	}
	m.registry.MustRegister(
		m.joins,
		m.leaves,
		m.joinsLastMinute,
		m.altsLastHour,
		m.scores,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
