package capture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_sessions_started_total",
		Help: "Number of capture sessions answered.",
	})
	framesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_frames_sent_total",
		Help: "Number of detection frames sent over data channels.",
	})
	candidatesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_ice_candidates_received_total",
		Help: "Number of remote ICE candidates accepted on the relay endpoint.",
	})
)
