package metrics

import "github.com/prometheus/client_golang/prometheus"

// Notification delivery outcomes.
const (
	ResultSent        = "sent"
	ResultAlreadySent = "already_sent"
	ResultInFlight    = "in_flight"
	ResultNoSubscribe = "no_subscription"
	ResultSkipped     = "skipped"
	ResultFailed      = "failed"
)

// Entitlement gate decisions.
const (
	DecisionAllowed    = "allowed"
	DecisionDenied     = "denied"
	DecisionFailedOpen = "failed_open"
)

// NotificationMetrics counts completion email attempts by trigger and outcome.
type NotificationMetrics struct {
	emails *prometheus.CounterVec
}

func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	if reg == nil {
		return &NotificationMetrics{}
	}
	emails := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "emails_total",
		Help:      "Completion email attempts by kind, trigger source and result.",
	}, []string{"kind", "source", "result"})
	reg.MustRegister(emails)
	return &NotificationMetrics{emails: emails}
}

func (m *NotificationMetrics) Observe(kind, source, result string) {
	if m == nil || m.emails == nil {
		return
	}
	m.emails.WithLabelValues(normalizeLabel(kind), normalizeLabel(source), normalizeLabel(result)).Inc()
}

// GateMetrics counts entitlement decisions per tier.
type GateMetrics struct {
	decisions *prometheus.CounterVec
}

func NewGateMetrics(reg prometheus.Registerer) *GateMetrics {
	if reg == nil {
		return &GateMetrics{}
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "entitlement",
		Name:      "decisions_total",
		Help:      "Entitlement gate decisions by tier and outcome.",
	}, []string{"tier", "decision"})
	reg.MustRegister(decisions)
	return &GateMetrics{decisions: decisions}
}

func (m *GateMetrics) Observe(tier, decision string) {
	if m == nil || m.decisions == nil {
		return
	}
	m.decisions.WithLabelValues(normalizeLabel(tier), normalizeLabel(decision)).Inc()
}
