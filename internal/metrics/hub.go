package metrics

import "github.com/prometheus/client_golang/prometheus"

// HubMetrics holds Prometheus metrics for snapshot fan-out.
type HubMetrics struct {
	Subscribers        prometheus.Gauge
	SnapshotsPublished prometheus.Counter
	SnapshotsCoalesced prometheus.Counter
	Deliveries         prometheus.Counter
	SlowEvictions      prometheus.Counter
	FanoutDuration     prometheus.Histogram
}

// NewHubMetrics creates and registers hub metrics on the given registry.
func NewHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "subscribers",
			Help:      "Number of live hub subscriptions.",
		}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "snapshots_published_total",
			Help:      "Total number of snapshots handed to the hub.",
		}),
		SnapshotsCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "snapshots_coalesced_total",
			Help:      "Snapshots superseded by a newer revision before fan-out.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "deliveries_total",
			Help:      "Snapshots enqueued to individual subscribers.",
		}),
		SlowEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "slow_subscribers_evicted_total",
			Help:      "Subscribers dropped because their queue was full.",
		}),
		FanoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "fanout_duration_seconds",
			Help:      "Time spent delivering one snapshot to all matching subscribers.",
			Buckets:   []float64{0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
	}

	reg.MustRegister(m.Subscribers, m.SnapshotsPublished, m.SnapshotsCoalesced, m.Deliveries, m.SlowEvictions, m.FanoutDuration)
	return m
}
