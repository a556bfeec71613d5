// pkg/transport/liquid/client.go
package liquid

import (
	"context"

	"go.opentelemetry.io/otel"

	"github.com/YaganovValera/account-stream-collector/pkg/liquid"
)

// StreamWithMetrics запускает поток аккаунта и оборачивает его
// метриками и трейсингом. Канал закрывается вместе с исходным.
func StreamWithMetrics(ctx context.Context, conn liquid.Connector) (<-chan liquid.AccountEvent, error) {
	tracer := otel.Tracer("collector/transport/liquid")
	ctx, span := tracer.Start(ctx, "liquid.stream")
	defer span.End()

	raw, err := conn.Stream(ctx)
	if err != nil {
		IncError()
		span.RecordError(err)
		return nil, err
	}
	IncConnect()

	out := make(chan liquid.AccountEvent, cap(raw))
	go func() {
		defer close(out)
		for evt := range raw {
			IncEvent(evt.TradingPair)
			select {
			case out <- evt:
			default:
				IncDrop(evt.TradingPair)
			}
		}
	}()
	return out, nil
}
