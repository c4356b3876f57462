// Package metrics carries ambient operational counters, grounded on the
// donor repo's prometheus-backed observability/events.go singleton
// pattern, adapted from blockchain transfer counters to order-lifecycle
// counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	DraftTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordercore_draft_transitions_total",
		Help: "Draft state machine transitions by resulting status.",
	}, []string{"status"})

	TicketsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordercore_tickets_created_total",
		Help: "Kitchen tickets created by station.",
	}, []string{"station_id"})

	PaymentOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordercore_payment_outcomes_total",
		Help: "Payment processing outcomes by method and result.",
	}, []string{"method", "outcome"})

	WebhooksProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordercore_webhooks_processed_total",
		Help: "Inbound payment webhooks processed by outcome.",
	}, []string{"provider", "outcome"})
)

// Register wires every collector into reg. Call once at startup.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(DraftTransitions, TicketsCreated, PaymentOutcomes, WebhooksProcessed)
}
