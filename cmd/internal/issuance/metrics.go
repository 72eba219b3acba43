package issuance

import (
	"identd/cmd/identity"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	created    prometheus.Counter
	collisions prometheus.Counter
	failures   prometheus.Counter
	lookups    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "identd",
			Name:      "identities_issued_total",
			Help:      "Identities successfully created.",
		}),
		collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "identd",
			Name:      "access_key_collisions_total",
			Help:      "Inserts rejected by the access_key unique constraint.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "identd",
			Name:      "issue_failures_total",
			Help:      "Issue calls that returned an error.",
		}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identd",
			Name:      "lookups_total",
			Help:      "Identity lookups by key kind and result.",
		}, []string{"by", "result"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.created, m.collisions, m.failures, m.lookups} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) issued() {
	if m != nil {
		m.created.Inc()
	}
}

func (m *Metrics) collision() {
	if m != nil {
		m.collisions.Inc()
	}
}

func (m *Metrics) issueFailed() {
	if m != nil {
		m.failures.Inc()
	}
}

func (m *Metrics) lookup(by string, err error) {
	if m == nil {
		return
	}
	result := "found"
	switch {
	case err == nil:
	case identity.IsNotFound(err):
		result = "not_found"
	default:
		result = "error"
	}
	m.lookups.WithLabelValues(by, result).Inc()
}
