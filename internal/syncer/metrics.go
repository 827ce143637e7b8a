package syncer

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes sync engine counters. A nil *Metrics records nothing.
type Metrics struct {
	Deliveries   *prometheus.CounterVec
	FlushedItems *prometheus.CounterVec
	QueueDepth   prometheus.Gauge
}

// NewMetrics builds unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "deliveries_total",
			Help:      "Submission delivery attempts by outcome.",
		}, []string{"outcome"}),
		FlushedItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "flushed_items_total",
			Help:      "Queued submissions sent during a flush, by result.",
		}, []string{"result"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rollcall",
			Name:      "offline_queue_depth",
			Help:      "Submissions waiting in the offline queue.",
		}),
	}
}

// Register adds the collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Deliveries, m.FlushedItems, m.QueueDepth} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) delivery(o Outcome) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(o.String()).Inc()
}

func (m *Metrics) flushed(result string) {
	if m == nil {
		return
	}
	m.FlushedItems.WithLabelValues(result).Inc()
}

func (m *Metrics) depth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
