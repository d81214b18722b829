package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var workItemsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_scheduler_work_items_added_total",
	Help: "Total number of work items added to the keyed scheduler",
}, []string{"pool"})

var workItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_scheduler_work_items_processed_total",
	Help: "Total number of work items processed by the keyed scheduler",
}, []string{"pool"})

var workItemsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_scheduler_work_items_dropped_total",
	Help: "Total number of work items rejected because a key's queue was full",
}, []string{"pool"})

var workersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "warden_scheduler_workers_active",
	Help: "Number of workers currently active",
}, []string{"pool"})
