// Package metrics holds the Prometheus collectors for the coaching backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckoutSessionsTotal counts checkout session creation attempts by product and outcome.
	CheckoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coachd",
		Name:      "checkout_sessions_total",
		Help:      "Total checkout session creation attempts by product and outcome.",
	}, []string{"product_type", "outcome"})

	// WebhookRequestsTotal counts Stripe webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coachd",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "coachd",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// OrdersRecordedTotal counts orders persisted from checkout events by product.
	OrdersRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coachd",
		Name:      "orders_recorded_total",
		Help:      "Total orders recorded from completed checkout sessions.",
	}, []string{"product_type"})

	// NotificationEmailsTotal counts owner notification email attempts by outcome.
	NotificationEmailsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coachd",
		Name:      "notification_emails_total",
		Help:      "Total owner notification email attempts by outcome.",
	}, []string{"outcome"})

	// IntakesTotal counts intake form submissions by kind.
	IntakesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coachd",
		Name:      "intakes_total",
		Help:      "Total intake form submissions by kind.",
	}, []string{"kind"})

	// ContactMessagesTotal counts contact form submissions.
	ContactMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "coachd",
		Name:      "contact_messages_total",
		Help:      "Total contact form submissions.",
	})
)
