package enforce

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var actionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_enforcement_actions",
	Help: "Number of enforcement actions attempted, by action and result",
}, []string{"action", "result"})

var messagesDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_messages_deleted",
	Help: "Number of message deletions attempted",
}, []string{"result"})
