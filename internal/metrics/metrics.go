// internal/metrics/metrics.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// EventsTotal считает события аккаунта по парам.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collector",
		Name:      "account_events_total",
		Help:      "События аккаунта, переданные в публикацию.",
	}, []string{"pair"})

	// PublishErrors считает неудачные публикации в Kafka.
	PublishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "collector",
		Name:      "publish_errors_total",
		Help:      "Ошибки публикации событий в Kafka.",
	})

	// PublishLatency — время публикации одного события.
	PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "collector",
		Name:      "publish_latency_seconds",
		Help:      "Задержка публикации события в Kafka.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Register регистрирует метрики сервиса. Без аргументов — DefaultRegisterer.
func Register(registerers ...prometheus.Registerer) {
	once.Do(func() {
		r := prometheus.DefaultRegisterer
		if len(registerers) > 0 && registerers[0] != nil {
			r = registerers[0]
		}
		for _, c := range []prometheus.Collector{EventsTotal, PublishErrors, PublishLatency} {
			_ = r.Register(c)
		}
	})
}
