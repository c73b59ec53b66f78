package framecast

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framecast",
		Subsystem: "server",
		Name:      "frames_published_total",
		Help:      "Frames written to the channel slot",
	}, []string{"channel"})

	publishesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framecast",
		Subsystem: "server",
		Name:      "publishes_dropped_total",
		Help:      "Publishes abandoned because the channel lock was not acquired in time",
	}, []string{"channel"})

	bytesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framecast",
		Subsystem: "server",
		Name:      "bytes_published_total",
		Help:      "Payload bytes written to the channel slot",
	}, []string{"channel"})

	framesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framecast",
		Subsystem: "client",
		Name:      "frames_read_total",
		Help:      "Frames copied out of the channel by clients in this process",
	}, []string{"channel"})

	readLockTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framecast",
		Subsystem: "client",
		Name:      "lock_timeouts_total",
		Help:      "Reads abandoned because the channel lock was not acquired in time",
	}, []string{"channel"})

	clientsAttached = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "framecast",
		Name:      "clients_attached",
		Help:      "Client count last observed in the channel header",
	}, []string{"channel"})
)
