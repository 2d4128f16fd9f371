package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsInitiatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "klarna_checkouts_initiated_total",
		Help: "Total number of remote checkout transactions created",
	})

	CheckoutFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "klarna_checkout_failures_total",
		Help: "Total number of failed checkout initiations",
	}, []string{"reason"})

	PaymentsAuthorizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "klarna_payments_authorized_total",
		Help: "Total number of payments created by return events",
	})

	PaymentsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "klarna_payments_completed_total",
		Help: "Total number of payments completed by notify events",
	})

	ReturnEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "klarna_return_events_total",
		Help: "Total number of return events by outcome",
	}, []string{"outcome"})

	NotifyEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "klarna_notify_events_total",
		Help: "Total number of notify events by outcome",
	}, []string{"outcome"})

	ReconciliationAnomaliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "klarna_reconciliation_anomalies_total",
		Help: "Total number of reconciliation anomalies",
	}, []string{"kind"})

	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "klarna_provider_request_duration_seconds",
		Help:    "Latency of Klarna API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "status"})

	ProviderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "klarna_provider_errors_total",
		Help: "Total number of failed Klarna API requests",
	}, []string{"op"})

	AuditEventsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "klarna_audit_events_recorded_total",
		Help: "Total number of reconciliation events written to the audit log",
	}, []string{"event_type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
