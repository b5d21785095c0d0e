// Package stats provides prometheus collectors for stream accounting.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Streams accounts stream and operation activity. A nil *Streams is valid
// and records nothing, so callers never have to branch on whether stats
// collection is enabled.
type Streams struct {
	opsIssued    *prometheus.CounterVec
	opsCompleted *prometheus.CounterVec
	inflight     prometheus.Gauge
	opened       prometheus.Counter
	failed       prometheus.Counter
}

func NewStreams(namespace string) *Streams {
	return &Streams{
		opsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "operations_issued_total",
			Help:      "Asynchronous call operations issued, by kind.",
		}, []string{"kind"}),
		opsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "operations_completed_total",
			Help:      "Asynchronous call operations completed, by kind and result.",
		}, []string{"kind", "result"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "operations_inflight",
			Help:      "Asynchronous call operations currently in flight.",
		}),
		opened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "opened_total",
			Help:      "Streams that reached the open state.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "failed_total",
			Help:      "Streams terminated by an operation failure.",
		}),
	}
}

// Register registers all collectors with the given registerer.
func (s *Streams) Register(r prometheus.Registerer) error {
	if s == nil {
		return nil
	}

	for _, c := range []prometheus.Collector{s.opsIssued, s.opsCompleted, s.inflight, s.opened, s.failed} {
		if err := r.Register(c); err != nil {
			return err
		}
	}

	return nil
}

func (s *Streams) OperationIssued(kind string) {
	if s == nil {
		return
	}

	s.opsIssued.WithLabelValues(kind).Inc()
	s.inflight.Inc()
}

func (s *Streams) OperationCompleted(kind string, ok bool) {
	if s == nil {
		return
	}

	result := "ok"
	if !ok {
		result = "failed"
	}

	s.opsCompleted.WithLabelValues(kind, result).Inc()
	s.inflight.Dec()
}

func (s *Streams) StreamOpened() {
	if s == nil {
		return
	}

	s.opened.Inc()
}

func (s *Streams) StreamFailed() {
	if s == nil {
		return
	}

	s.failed.Inc()
}
