package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tillbook_operations_total",
		Help: "Logical operations by name and outcome.",
	}, []string{"op", "outcome"})

	integrityAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tillbook_integrity_alerts_total",
		Help: "Partial applications and balance/journal discrepancies.",
	}, []string{"kind"})
)
