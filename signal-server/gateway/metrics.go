package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	socketRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beamgate_socket_rejections_total",
			Help: "Count of websocket connection attempts turned away before acceptance.",
		},
		[]string{"reason"},
	)
	framesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beamgate_socket_frames_dropped_total",
			Help: "Count of websocket frames discarded without processing.",
		},
		[]string{"cause"},
	)
)
