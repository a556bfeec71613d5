// pkg/transport/liquid/metrics.go
package liquid

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	connectTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector", Subsystem: "transport_liquid",
		Name: "connect_total", Help: "Успешные запуски потока аккаунта.",
	})
	errorTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector", Subsystem: "transport_liquid",
		Name: "error_total", Help: "Ошибки запуска потока аккаунта.",
	})
	eventTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collector", Subsystem: "transport_liquid",
		Name: "event_total", Help: "События аккаунта, прошедшие через транспорт.",
	}, []string{"pair"})
	dropTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collector", Subsystem: "transport_liquid",
		Name: "drop_total", Help: "События, отброшенные из-за переполнения буфера.",
	}, []string{"pair"})
)

// RegisterMetrics регистрирует метрики транспорта. nil → DefaultRegisterer.
func RegisterMetrics(r prometheus.Registerer) {
	metricsOnce.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}
		for _, c := range []prometheus.Collector{connectTotal, errorTotal, eventTotal, dropTotal} {
			_ = r.Register(c)
		}
	})
}

func IncConnect()          { connectTotal.Inc() }
func IncError()            { errorTotal.Inc() }
func IncEvent(pair string) { eventTotal.WithLabelValues(pair).Inc() }
func IncDrop(pair string)  { dropTotal.WithLabelValues(pair).Inc() }
