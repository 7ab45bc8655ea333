package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal tracks administrative and billing actions by outcome
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accessgate_transitions_total",
		Help: "Total number of access record actions processed",
	}, []string{"action", "result"})

	// StoreOperationDuration tracks entitlement store round trips
	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "accessgate_store_operation_duration_seconds",
		Help:    "Histogram of entitlement store operation duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// ActiveSubscribers tracks open live subscriptions
	ActiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "accessgate_active_subscribers",
		Help: "Number of open live record subscriptions",
	})

	// Records tracks the last observed record count per display status
	Records = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "accessgate_records",
		Help: "Number of access records by display status at the last expiry check",
	}, []string{"display_status"})

	// EstimatedMonthlyRevenue is active paid seats times the configured unit price
	EstimatedMonthlyRevenue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "accessgate_estimated_monthly_revenue",
		Help: "Estimated monthly revenue in minor currency units",
	})
)

// Transition result labels.
const (
	ResultOK       = "ok"
	ResultInvalid  = "invalid"
	ResultNotFound = "not_found"
	ResultConflict = "conflict"
	ResultError    = "error"
)
