// internal/app/collector.go
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YaganovValera/account-stream-collector/internal/catalog"
	"github.com/YaganovValera/account-stream-collector/internal/config"
	"github.com/YaganovValera/account-stream-collector/internal/httpserver"
	"github.com/YaganovValera/account-stream-collector/internal/metrics"
	"github.com/YaganovValera/account-stream-collector/internal/publisher"
	"github.com/YaganovValera/account-stream-collector/pkg/kafka"
	"github.com/YaganovValera/account-stream-collector/pkg/liquid"
	"github.com/YaganovValera/account-stream-collector/pkg/logger"
	"github.com/YaganovValera/account-stream-collector/pkg/telemetry"

	// транспортная обёртка над коннектором: метрики и трейсинг
	transport "github.com/YaganovValera/account-stream-collector/pkg/transport/liquid"
)

// Run собирает сервис и блокирует до завершения контекста.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	metrics.Register(nil)
	transport.RegisterMetrics(nil)

	// Трассировка
	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Config{
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Insecure:       cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownSafe(ctx, "telemetry", func() error { return shutdownTracer(ctx) }, log)

	// Каталог продуктов (REST + кеш)
	cat, err := catalog.New(ctx, cfg.Catalog, log)
	if err != nil {
		return fmt.Errorf("catalog init: %w", err)
	}
	defer shutdownSafe(ctx, "catalog", cat.Close, log)

	// Аутентификация приватного потока
	auth, err := liquid.NewTokenAuth(cfg.Auth.TokenID, cfg.Auth.TokenSecret)
	if err != nil {
		return fmt.Errorf("token auth init: %w", err)
	}

	// WS-коннектор
	wsConn, err := liquid.NewConnector(cfg.Liquid, liquid.Deps{
		Auth:    auth,
		Catalog: cat,
	}, log)
	if err != nil {
		return fmt.Errorf("liquid connector init: %w", err)
	}
	defer shutdownSafe(ctx, "ws-connector", wsConn.Close, log)

	// Kafka Producer
	kafkaProd, err := kafka.NewProducer(ctx, kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		RequiredAcks:   cfg.Kafka.Acks,
		Timeout:        cfg.Kafka.Timeout,
		Compression:    cfg.Kafka.Compression,
		FlushFrequency: cfg.Kafka.FlushFrequency,
		FlushMessages:  cfg.Kafka.FlushMessages,
		Backoff:        cfg.Kafka.Backoff,
	}, log)
	if err != nil {
		return fmt.Errorf("kafka producer init: %w", err)
	}
	defer shutdownSafe(ctx, "kafka-producer", kafkaProd.Close, log)

	pub := publisher.New(kafkaProd, cfg.Kafka.AccountTopic, log)

	// HTTP-сервер
	readiness := func() error { return kafkaProd.Ping(ctx) }
	httpSrv := httpserver.New(cfg.HTTP, readiness, log)

	g, ctx := errgroup.WithContext(ctx)

	// HTTP
	g.Go(func() error { return httpSrv.Run(ctx) })

	// Основной цикл WS → Kafka. Переподключения живут внутри коннектора,
	// поэтому канал закрывается только по завершению контекста.
	g.Go(func() error {
		events, err := transport.StreamWithMetrics(ctx, wsConn)
		if err != nil {
			return fmt.Errorf("liquid stream: %w", err)
		}
		return pub.Run(ctx, events)
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			log.WithContext(ctx).Info("collector stopped by context")
			return nil
		}
		return err
	}
	return nil
}

// shutdownSafe оборачивает вызов Close()/Shutdown() с логированием
func shutdownSafe(ctx context.Context, name string, fn func() error, log *logger.Logger) {
	log.WithContext(ctx).Info(fmt.Sprintf("%s: shutting down", name))
	if err := fn(); err != nil {
		log.WithContext(ctx).Error(fmt.Sprintf("%s shutdown error", name), zap.Error(err))
	} else {
		log.WithContext(ctx).Info(fmt.Sprintf("%s: shutdown complete", name))
	}
}
