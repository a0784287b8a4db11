package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	dropBackpressure = "backpressure"
	dropOverflow     = "pending_overflow"
	dropStale        = "stale_connection"
)

type Metrics struct {
	Rooms       prometheus.Gauge
	Connections prometheus.Gauge
	Forwarded   prometheus.Counter
	Queued      prometheus.Counter
	Dropped     *prometheus.CounterVec
}

// NewMetrics registers the relay collectors with reg. A nil reg yields
// working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "televisit",
			Subsystem: "relay",
			Name:      "rooms",
			Help:      "Appointments with at least one connected participant.",
		}),
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "televisit",
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Open participant connections.",
		}),
		Forwarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: "televisit",
			Subsystem: "relay",
			Name:      "frames_forwarded_total",
			Help:      "Frames delivered to the peer connection.",
		}),
		Queued: f.NewCounter(prometheus.CounterOpts{
			Namespace: "televisit",
			Subsystem: "relay",
			Name:      "frames_queued_total",
			Help:      "Frames held for a peer that had not joined yet.",
		}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "televisit",
			Subsystem: "relay",
			Name:      "frames_dropped_total",
			Help:      "Frames that could not be delivered.",
		}, []string{"reason"}),
	}
}
