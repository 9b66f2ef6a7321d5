package stats

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes Collector and PacketTracker state as Prometheus
// collectors on an isolated registry, the same pattern shurli's
// pkg/p2pnet/metrics.go uses: never register on the global default
// registry, so multiple nodes in one process (as in a test harness) stay
// independent. This supplements, and never replaces, Evaluate().
//
// The engine updates DecodeInvalid (per decode failure) and
// PacketsDropped (per blackholed transit packet) only. PacketsCreated,
// PacketsReceived and TrafficSymmetry are registered but nothing in the
// engine updates them, and no field here is fed from Collector or
// PacketTracker.
type Metrics struct {
	Registry *prometheus.Registry

	PacketsCreated  prometheus.Counter
	PacketsDropped  prometheus.Counter
	PacketsReceived prometheus.Counter
	DecodeInvalid   *prometheus.CounterVec
	TrafficSymmetry prometheus.Gauge
}

// NewMetrics builds a fresh, unregistered-with-the-world Metrics
// instance for one node.
func NewMetrics(nodeID string) *Metrics {
	labels := prometheus.Labels{"node": nodeID}
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		PacketsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "anthocnet_packets_created_total",
			Help:        "Data packets accepted by the engine.",
			ConstLabels: labels,
		}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "anthocnet_packets_dropped_total",
			Help:        "Data packets that never reached their destination.",
			ConstLabels: labels,
		}),
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "anthocnet_packets_received_total",
			Help:        "Data packets delivered to their destination.",
			ConstLabels: labels,
		}),
		DecodeInvalid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "anthocnet_decode_invalid_total",
			Help:        "Malformed ant packets dropped at decode, by message kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		TrafficSymmetry: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "anthocnet_traffic_symmetry",
			Help:        "Most recent Collector.TrafficSymmetry() sample.",
			ConstLabels: labels,
		}),
	}
	m.Registry.MustRegister(m.PacketsCreated, m.PacketsDropped, m.PacketsReceived, m.DecodeInvalid, m.TrafficSymmetry)
	return m
}
