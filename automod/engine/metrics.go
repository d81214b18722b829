package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "warden_event_duration_sec",
	Help: "Total duration of automod event processing",
}, []string{"type"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_event_processed",
	Help: "Number of events processed",
}, []string{"type"})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_event_errors",
	Help: "Number of events which failed processing",
}, []string{"type"})

var ruleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_rule_failures",
	Help: "Number of rule executions which returned an error or panicked",
}, []string{"rule"})

var detectorHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_detector_verdicts",
	Help: "Number of verdicts produced, by detector",
}, []string{"detector"})

var classifierFailOpen = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_classifier_fail_open",
	Help: "Number of image classifications skipped because the classifier did not answer",
})
