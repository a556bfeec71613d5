// internal/publisher/publisher.go
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/account-stream-collector/internal/metrics"
	"github.com/YaganovValera/account-stream-collector/pkg/kafka"
	"github.com/YaganovValera/account-stream-collector/pkg/liquid"
	"github.com/YaganovValera/account-stream-collector/pkg/logger"
)

// Publisher сериализует события аккаунта и публикует их в Kafka.
// Ключ сообщения — торговая пара, чтобы события одной пары
// попадали в одну партицию.
type Publisher struct {
	producer kafka.Producer
	topic    string
	log      *logger.Logger
	tracer   trace.Tracer
}

// wire-формат события: метка времени в секундах с дробной частью,
// исходный кадр как payload.
type wireEvent struct {
	TradingPair string          `json:"trading_pair"`
	Timestamp   float64         `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}

func New(producer kafka.Producer, topic string, log *logger.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		log:      log.Named("publisher"),
		tracer:   otel.Tracer("collector/publisher"),
	}
}

// Run читает события из канала и публикует их до закрытия канала
// или завершения контекста.
func (p *Publisher) Run(ctx context.Context, in <-chan liquid.AccountEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-in:
			if !ok {
				p.log.WithContext(ctx).Info("publisher: input channel closed")
				return nil
			}
			if err := p.publish(ctx, evt); err != nil {
				return err
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, evt liquid.AccountEvent) error {
	ctx, span := p.tracer.Start(ctx, "publisher.publish")
	span.SetAttributes(attribute.String("pair", evt.TradingPair))
	defer span.End()

	msg := wireEvent{
		TradingPair: evt.TradingPair,
		Timestamp:   float64(evt.Timestamp.UnixNano()) / 1e9,
		Payload:     evt.Payload,
	}
	value, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("publisher: marshal event: %w", err)
	}

	start := time.Now()
	if err := p.producer.Publish(ctx, p.topic, []byte(evt.TradingPair), value); err != nil {
		metrics.PublishErrors.Inc()
		span.RecordError(err)
		p.log.WithContext(ctx).Error("publisher: publish failed",
			zap.String("pair", evt.TradingPair), zap.Error(err))
		return fmt.Errorf("publisher: publish %s: %w", evt.TradingPair, err)
	}
	metrics.PublishLatency.Observe(time.Since(start).Seconds())
	metrics.EventsTotal.WithLabelValues(evt.TradingPair).Inc()
	return nil
}
