package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "service_booking"

// Recorder is a prometheus.Collector for the booking engine. A nil Recorder
// records nothing.
type Recorder struct {
	transitions   *prometheus.CounterVec
	quotaDenials  *prometheus.CounterVec
	displacements prometheus.Counter
	sweepOutcomes *prometheus.CounterVec
	counterDrift  prometheus.Counter
	retries       prometheus.Counter
}

// NewRecorder creates a Recorder and registers it with reg when reg is not nil.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "transitions_total",
				Help:      "Committed booking status transitions.",
			}, []string{"trigger", "from", "to"},
		),
		quotaDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "quota_denials_total",
				Help:      "Commands refused by the quota ledger, by limit.",
			}, []string{"limit"},
		),
		displacements: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "displacements_total",
				Help:      "Pending bookings moved to need_rescheduling.",
			},
		),
		sweepOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sweep_candidates_total",
				Help:      "Timeout sweep candidates by kind and outcome.",
			}, []string{"kind", "outcome"},
		),
		counterDrift: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "counter_drift_total",
				Help:      "Quota counters found out of step with booking rows.",
			},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "version_conflict_retries_total",
				Help:      "Commands retried after an optimistic-lock collision.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(r)
	}
	return r
}

// Describe is part of the prometheus.Collector interface.
func (r *Recorder) Describe(ch chan<- *prometheus.Desc) {
	r.transitions.Describe(ch)
	r.quotaDenials.Describe(ch)
	r.displacements.Describe(ch)
	r.sweepOutcomes.Describe(ch)
	r.counterDrift.Describe(ch)
	r.retries.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (r *Recorder) Collect(ch chan<- prometheus.Metric) {
	r.transitions.Collect(ch)
	r.quotaDenials.Collect(ch)
	r.displacements.Collect(ch)
	r.sweepOutcomes.Collect(ch)
	r.counterDrift.Collect(ch)
	r.retries.Collect(ch)
}

func (r *Recorder) Transition(trigger, from, to string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(trigger, from, to).Inc()
}

func (r *Recorder) QuotaDenied(limit string) {
	if r == nil {
		return
	}
	r.quotaDenials.WithLabelValues(limit).Inc()
}

func (r *Recorder) Displaced(n int) {
	if r == nil {
		return
	}
	r.displacements.Add(float64(n))
}

func (r *Recorder) SweepOutcome(kind, outcome string) {
	if r == nil {
		return
	}
	r.sweepOutcomes.WithLabelValues(kind, outcome).Inc()
}

func (r *Recorder) CounterDrift(n int) {
	if r == nil {
		return
	}
	r.counterDrift.Add(float64(n))
}

func (r *Recorder) Retry() {
	if r == nil {
		return
	}
	r.retries.Inc()
}
