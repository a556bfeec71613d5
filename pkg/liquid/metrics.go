// pkg/liquid/metrics.go
package liquid

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	connectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collector", Subsystem: "liquid_ws", Name: "connects_total",
		Help: "WebSocket connection attempts by status",
	}, []string{"status"})

	reconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector", Subsystem: "liquid_ws", Name: "reconnects_total",
		Help: "Number of session restarts after a failure",
	})

	framesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector", Subsystem: "liquid_ws", Name: "frames_total",
		Help: "Raw frames received from the socket",
	})

	updatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector", Subsystem: "liquid_ws", Name: "updates_total",
		Help: "Frames classified as account updates and enqueued",
	})

	ignoredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector", Subsystem: "liquid_ws", Name: "ignored_events_total",
		Help: "Frames with an unmodeled event type, skipped",
	})

	protocolErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector", Subsystem: "liquid_ws", Name: "protocol_errors_total",
		Help: "Frames violating the wire contract",
	})

	droppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector", Subsystem: "liquid_ws", Name: "events_dropped_total",
		Help: "Events dropped because the output buffer was full",
	})

	pingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector", Subsystem: "liquid_ws", Name: "pings_total",
		Help: "Liveness pings sent after read-idle timeout",
	})

	pongTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector", Subsystem: "liquid_ws", Name: "pong_timeouts_total",
		Help: "Pings that did not receive a pong in time",
	})
)

// registerMetrics безопасно регистрирует все метрики пакета.
func registerMetrics(r prometheus.Registerer) {
	metricsOnce.Do(func() {
		for _, c := range []prometheus.Collector{
			connectsTotal, reconnectsTotal, framesTotal, updatesTotal,
			ignoredTotal, protocolErrorsTotal, droppedTotal,
			pingsTotal, pongTimeoutsTotal,
		} {
			_ = r.Register(c)
		}
	})
}
