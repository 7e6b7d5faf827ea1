package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	PaymentCalls    *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	FulfillmentRuns *prometheus.CounterVec
	OrdersSettled   *prometheus.CounterVec
	RecoveryEnqueue *prometheus.CounterVec
	WebhookEvents   *prometheus.CounterVec
	LateSettlements *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	paymentCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_payment_calls_total",
		Help: "Provider calls by action, provider and resulting transaction status.",
	}, []string{"action", "provider", "status"})
	providerLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fulfillment_provider_latency_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"action", "provider"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_orchestrator_runs_total",
		Help: "Orchestrator invocations by outcome (terminal, rescheduled, error).",
	}, []string{"outcome"})
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_orders_settled_total",
	}, []string{"status"})
	enqueue := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_recovery_enqueued_total",
	}, []string{"kind"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_webhook_events_total",
	}, []string{"provider", "result"})

	late := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_late_settlements_total",
		Help: "Payments that completed after their order failed, by the action sent to unwind them.",
	}, []string{"action"})

	r.MustRegister(paymentCalls, providerLatency, runs, settled, enqueue, webhooks, late)
	return &Registry{
		reg:             r,
		PaymentCalls:    paymentCalls,
		ProviderLatency: providerLatency,
		FulfillmentRuns: runs,
		OrdersSettled:   settled,
		RecoveryEnqueue: enqueue,
		WebhookEvents:   webhooks,
		LateSettlements: late,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
