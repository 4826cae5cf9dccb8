package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Business metrics
	BookingTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evrental_booking_transitions_total",
		Help: "Booking state transitions by target status",
	}, []string{"status"})

	CapacityRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evrental_capacity_rejections_total",
		Help: "Requests rejected because every port was occupied",
	}, []string{"operation"})

	PreemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evrental_preemptions_total",
		Help: "Normal bookings cancelled to admit an emergency booking",
	})

	ActiveChargingSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evrental_active_charging_sessions",
		Help: "Charging sessions currently open",
	})

	EnergyDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evrental_energy_delivered_kwh_total",
		Help: "Energy billed on completed sessions in kWh",
	})

	BilledAmountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evrental_billed_amount_total",
		Help: "Sum of session charges",
	})

	LedgerPostingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evrental_ledger_postings_total",
		Help: "Wallet ledger rows written",
	}, []string{"kind", "reason"})

	SweepTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evrental_sweep_transitions_total",
		Help: "Bookings moved by background sweeps",
	}, []string{"job"})

	// Infrastructure metrics
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evrental_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evrental_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	RateLimitRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evrental_rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter",
	}, []string{"rule"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evrental_notifications_total",
		Help: "Lifecycle notifications by outcome",
	}, []string{"type", "status"})

	DatabaseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "evrental_database_tx_latency_seconds",
		Help:    "Latency of database units of work",
		Buckets: prometheus.DefBuckets,
	})
)
