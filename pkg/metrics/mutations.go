package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MutationMetrics records outcomes of optimistic cart mutations.
type MutationMetrics struct {
	confirmLatency *prometheus.HistogramVec
	confirmed      *prometheus.CounterVec
	rolledBack     *prometheus.CounterVec
	refused        *prometheus.CounterVec
	refetches      prometheus.Counter
}

// NewMutationMetrics registers the mutation metrics on the provided registerer.
func NewMutationMetrics(reg prometheus.Registerer) *MutationMetrics {
	if reg == nil {
		return &MutationMetrics{}
	}
	confirmLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_mutation_confirm_seconds",
		Help:    "Time from optimistic apply to remote confirmation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	confirmed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutation_confirmed",
		Help: "Mutations confirmed by the remote store.",
	}, []string{"kind"})
	rolledBack := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutation_rolled_back",
		Help: "Mutations rolled back after a remote failure.",
	}, []string{"kind"})
	refused := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutation_refused",
		Help: "Mutation intents refused before any optimistic write.",
	}, []string{"kind"})
	refetches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_refetches",
		Help: "Full cart refetches triggered to resync the replica.",
	})
	reg.MustRegister(confirmLatency, confirmed, rolledBack, refused, refetches)
	return &MutationMetrics{
		confirmLatency: confirmLatency,
		confirmed:      confirmed,
		rolledBack:     rolledBack,
		refused:        refused,
		refetches:      refetches,
	}
}

// ObserveConfirmLatency records the optimistic-to-confirmed latency for a kind.
func (m *MutationMetrics) ObserveConfirmLatency(kind string, duration time.Duration) {
	if m == nil || m.confirmLatency == nil {
		return
	}
	m.confirmLatency.WithLabelValues(normalizeLabel(kind)).Observe(duration.Seconds())
}

// IncConfirmed increments the confirmed counter for a kind.
func (m *MutationMetrics) IncConfirmed(kind string) {
	if m == nil || m.confirmed == nil {
		return
	}
	m.confirmed.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncRolledBack increments the rollback counter for a kind.
func (m *MutationMetrics) IncRolledBack(kind string) {
	if m == nil || m.rolledBack == nil {
		return
	}
	m.rolledBack.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncRefused increments the refused counter for a kind.
func (m *MutationMetrics) IncRefused(kind string) {
	if m == nil || m.refused == nil {
		return
	}
	m.refused.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncRefetch increments the refetch counter.
func (m *MutationMetrics) IncRefetch() {
	if m == nil || m.refetches == nil {
		return
	}
	m.refetches.Inc()
}

func normalizeLabel(kind string) string {
	if kind == "" {
		return "unknown"
	}
	return kind
}
