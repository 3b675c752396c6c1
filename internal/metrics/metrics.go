// Package metrics exposes Prometheus instruments for the transaction lifecycle
// and the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MrJamesThe3rd/almsbox/internal/transaction"
)

const namespace = "almsbox"

// Lifecycle counts committed transitions, refusals and credited amounts.
type Lifecycle struct {
	transitions *prometheus.CounterVec
	refusals    *prometheus.CounterVec
	credits     prometheus.Counter
	credited    prometheus.Counter
}

var _ transaction.Observer = (*Lifecycle)(nil)

func NewLifecycle(reg prometheus.Registerer) *Lifecycle {
	f := promauto.With(reg)

	return &Lifecycle{
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transaction",
				Name:      "transitions_total",
				Help:      "Committed transaction state transitions.",
			},
			[]string{"from", "to"},
		),
		refusals: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transaction",
				Name:      "refused_transitions_total",
				Help:      "Lifecycle operations refused as forbidden or invalid.",
			},
			[]string{"op"},
		),
		credits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "credits_total",
			Help:      "Campaign credits applied.",
		}),
		credited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "credited_minor_units_total",
			Help:      "Sum of credited amounts in minor currency units.",
		}),
	}
}

func (l *Lifecycle) TransitionApplied(from, to transaction.Status) {
	l.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (l *Lifecycle) TransitionRefused(op string) {
	l.refusals.WithLabelValues(op).Inc()
}

func (l *Lifecycle) Credited(amount int64) {
	l.credits.Inc()
	l.credited.Add(float64(amount))
}
