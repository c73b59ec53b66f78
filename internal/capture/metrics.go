package capture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sourceActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "framecast",
		Subsystem: "capture",
		Name:      "source_active",
		Help:      "1 while the frame source is running",
	}, []string{"channel", "source"})

	sourceStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framecast",
		Subsystem: "capture",
		Name:      "source_starts_total",
		Help:      "Times the frame source was started",
	}, []string{"channel", "source"})

	sourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framecast",
		Subsystem: "capture",
		Name:      "source_errors_total",
		Help:      "Frame source start or read failures",
	}, []string{"channel", "source"})

	publishFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "framecast",
		Subsystem: "capture",
		Name:      "publish_fps",
		Help:      "Publish rate over the last stats interval",
	}, []string{"channel"})
)
