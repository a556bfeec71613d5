// pkg/liquid/interface.go
package liquid

import (
	"context"
	"encoding/json"
	"time"
)

// Connector описывает коннектор к пользовательскому стриму Liquid.
type Connector interface {
	Stream(ctx context.Context) (<-chan AccountEvent, error)
	Close() error
}

// AccountEvent — одно событие аккаунта.
type AccountEvent struct {
	TradingPair string          // напр. "ETHUSD"
	Timestamp   time.Time       // момент приёма кадра (биржа время не присылает)
	Payload     json.RawMessage // декодированное тело события
}

// CredentialProvider строит payload для кадра аутентификации.
type CredentialProvider interface {
	AuthPayload() (json.RawMessage, error)
}

// ChannelCatalog отдаёт quoted currency для торговой пары.
// Неизвестная пара — ошибка уровня сессии (подписка невозможна).
type ChannelCatalog interface {
	QuotedCurrency(ctx context.Context, pair string) (string, error)
}

// EventDecoder превращает тело кадра "updated" в каноническое событие.
type EventDecoder interface {
	Decode(raw []byte, ts time.Time, pair string) (AccountEvent, error)
}

// defaultDecoder переносит кадр как есть: нормализацию содержимого
// выполняет потребитель.
type defaultDecoder struct{}

func (defaultDecoder) Decode(raw []byte, ts time.Time, pair string) (AccountEvent, error) {
	payload := make(json.RawMessage, len(raw))
	copy(payload, raw)
	return AccountEvent{TradingPair: pair, Timestamp: ts, Payload: payload}, nil
}
