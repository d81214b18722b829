package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var auditDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_audit_dropped",
	Help: "Number of audit records dropped by rate limiting",
}, []string{"detector"})
