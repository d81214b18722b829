package quarantine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var quarantineAdmitted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_quarantine_admitted",
	Help: "Number of members placed in quarantine",
})

var quarantineSweepFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_quarantine_sweep_failures",
	Help: "Number of failed quarantine role removals during sweeps",
})
