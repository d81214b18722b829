package visual

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var hiveAPIDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "warden_hive_api_duration_sec",
	Help: "Duration of Hive image classification API calls",
})

var hiveAPICount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_hive_api_count",
	Help: "Number of Hive image classification API calls, by HTTP status code or local rejection reason",
}, []string{"status"})

var hiveBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_hive_breaker_transitions",
	Help: "Classifier circuit breaker state changes, by new state (breakers are per API token)",
}, []string{"state"})
