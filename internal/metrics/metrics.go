// Package metrics exposes prometheus collectors for the contact workflow.
package metrics

import (
	"errors"

	"github.com/Zachkp/portfolio/internal/contact"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Dispatches       *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
	Transitions      *prometheus.CounterVec
	Rejections       *prometheus.CounterVec
	ActiveSessions   prometheus.GaugeFunc
}

// New registers the collectors on reg. sessions reports the number of live
// visitor sessions.
func New(reg prometheus.Registerer, sessions func() int) *Metrics {
	m := &Metrics{
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: "contact",
			Name:      "dispatches_total",
			Help:      "Contact dispatch attempts by outcome (sent, failed, throttled).",
		}, []string{"outcome"}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "portfolio",
			Subsystem: "contact",
			Name:      "dispatch_duration_seconds",
			Help:      "Round trip time of contact dispatches.",
			Buckets:   prometheus.DefBuckets,
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: "contact",
			Name:      "transitions_total",
			Help:      "Workflow state transitions.",
		}, []string{"from", "to"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio",
			Subsystem: "contact",
			Name:      "rejections_total",
			Help:      "Submissions refused before dispatch.",
		}, []string{"reason"}),
		ActiveSessions: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "portfolio",
			Name:      "active_sessions",
			Help:      "Visitor sessions holding a contact workflow.",
		}, func() float64 { return float64(sessions()) }),
	}
	reg.MustRegister(m.Dispatches, m.DispatchDuration, m.Transitions, m.Rejections, m.ActiveSessions)
	return m
}

// ObserveAttempt records one finished dispatch. Calls the delivery
// service refused for rate limiting count as throttled, not failed.
func (m *Metrics) ObserveAttempt(a contact.Attempt) {
	outcome := "sent"
	var serr *contact.ServiceError
	switch {
	case errors.As(a.Err, &serr) && serr.RateLimited():
		outcome = "throttled"
	case a.Err != nil:
		outcome = "failed"
	}
	m.Dispatches.WithLabelValues(outcome).Inc()
	m.DispatchDuration.Observe(a.Duration.Seconds())
}

func (m *Metrics) ObserveTransition(from, to contact.State) {
	m.Transitions.WithLabelValues(from.String(), to.String()).Inc()
}

func (m *Metrics) ObserveRejection(reason string) {
	m.Rejections.WithLabelValues(reason).Inc()
}
