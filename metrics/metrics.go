// Package metrics exposes Prometheus collectors for a running swarm of
// gnomes, following the isolated-registry pattern the rest of this
// codebase's corpus uses: every Metrics instance owns its own
// prometheus.Registry rather than touching the global default one, so
// multiple swarms (or parallel tests) never collide.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gnomeswarm/swarm/gnome"
)

// Metrics holds every collector this module exposes and implements
// gnome.Metrics, letting a *Gnome report into it without the gnome
// package importing this one back.
type Metrics struct {
	Registry *prometheus.Registry

	RoundsCommittedTotal   prometheus.Counter
	NeighborsDroppedTotal  *prometheus.CounterVec
	ConfusionEventsTotal   prometheus.Counter
	OngoingRequestsFailed  prometheus.Counter
	BandwidthAverageTokens prometheus.Gauge
}

// New creates a Metrics instance with all collectors registered on a
// fresh, isolated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		RoundsCommittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gnomeswarm_rounds_committed_total",
			Help: "Total number of rounds that ended with an accepted block.",
		}),
		NeighborsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gnomeswarm_neighbors_dropped_total",
			Help: "Total number of neighbors dropped, labeled by reason.",
		}, []string{"reason"}),
		ConfusionEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gnomeswarm_confusion_events_total",
			Help: "Total number of times this gnome entered a Confused state.",
		}),
		OngoingRequestsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gnomeswarm_ongoing_requests_failed_total",
			Help: "Total number of forwarded connect requests that exhausted every candidate neighbor.",
		}),
		BandwidthAverageTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gnomeswarm_bandwidth_average_tokens",
			Help: "Rolling 16-period average of tokens used per bandwidth period.",
		}),
	}

	reg.MustRegister(
		m.RoundsCommittedTotal,
		m.NeighborsDroppedTotal,
		m.ConfusionEventsTotal,
		m.OngoingRequestsFailed,
		m.BandwidthAverageTokens,
	)

	return m
}

var _ gnome.Metrics = (*Metrics)(nil)

func (m *Metrics) RoundCommitted(gnome.BlockID) {
	m.RoundsCommittedTotal.Inc()
}

func (m *Metrics) NeighborDropped(reason string) {
	m.NeighborsDroppedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) Confused() {
	m.ConfusionEventsTotal.Inc()
}

func (m *Metrics) OngoingRequestFailed() {
	m.OngoingRequestsFailed.Inc()
}

func (m *Metrics) BandwidthAverage(tokensPerPeriod uint64) {
	m.BandwidthAverageTokens.Set(float64(tokensPerPeriod))
}
