package strikes

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var strikesAdded = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_strikes_added",
	Help: "Number of strikes recorded",
})

var strikesExpired = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_strikes_expired",
	Help: "Number of strikes deactivated by expiry",
})
