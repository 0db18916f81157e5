package signaling

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectedEndpoints = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beamgate_connected_endpoints",
		Help: "Endpoints with a live signaling connection.",
	})
	sessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beamgate_sessions_created_total",
		Help: "Sessions created via upload-init.",
	})
	receiverJoinsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beamgate_receiver_joins_total",
		Help: "Successful access-code redemptions.",
	})
	sessionsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beamgate_sessions_completed_total",
		Help: "Sessions removed after a reported transfer completion.",
	})
	sessionsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beamgate_sessions_cancelled_total",
		Help: "Sessions terminated by an explicit cancel.",
	})
	signalsRelayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beamgate_signals_relayed_total",
		Help: "Negotiation payloads forwarded between room peers.",
	})
	relayDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beamgate_relay_drops_total",
		Help: "Relay attempts silently dropped, by failed check.",
	}, []string{"reason"})
)
