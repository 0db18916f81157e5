package sweeper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beamgate_sweeps_total",
		Help: "Completed full cleanup passes.",
	})
	sweptSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beamgate_swept_sessions_total",
		Help: "Session rows removed by the sweeper.",
	})
)
