package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var adminActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_admin_actions",
	Help: "Operator actions taken through the admin API",
}, []string{"action"})
