package discord

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_discord_api_requests",
	Help: "Discord REST requests made by the moderation engine, by operation and result",
}, []string{"op", "result"})

var gatewayEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_discord_gateway_events",
	Help: "Gateway events received, by type",
}, []string{"type"})

var gatewayEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_discord_gateway_events_dropped",
	Help: "Gateway events dropped before processing (queue full or shutting down)",
}, []string{"type"})
