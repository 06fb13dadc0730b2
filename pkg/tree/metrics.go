package tree

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	leaves         prometheus.Counter
	hashes         prometheus.Counter
	leafCount      prometheus.Gauge
	appendDuration prometheus.Histogram
	retries        prometheus.Counter
	proofs         *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		leaves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timber",
			Name:      "leaves_appended_total",
			Help:      "Leaves appended to the tree.",
		}),
		hashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timber",
			Name:      "hashes_total",
			Help:      "Node hashes computed by appends.",
		}),
		leafCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "timber",
			Name:      "leaf_count",
			Help:      "Number of leaves in the tree.",
		}),
		appendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "timber",
			Name:      "append_duration_seconds",
			Help:      "Time to hash and persist one batch.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "timber",
			Name:      "persistence_retries_total",
			Help:      "Storage writes retried after a failure.",
		}),
		proofs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timber",
			Name:      "sibling_paths_total",
			Help:      "Sibling path requests by result.",
		}, []string{"result"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.leaves, m.hashes, m.leafCount, m.appendDuration, m.retries, m.proofs} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
