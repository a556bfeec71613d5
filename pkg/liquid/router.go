// pkg/liquid/router.go
package liquid

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/account-stream-collector/pkg/logger"
)

// EventUpdated — тип события Liquid Tap с данными аккаунта.
const EventUpdated = "updated"

// ProtocolError означает кадр без типа события. После такой ошибки
// сессия считается недоверенной и соединение переустанавливается.
type ProtocolError struct {
	Raw []byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("liquid: message does not contain an event type: %s", e.Raw)
}

type router struct {
	decoder EventDecoder
	out     chan<- AccountEvent
	log     *logger.Logger
	now     func() time.Time
}

func newRouter(decoder EventDecoder, out chan<- AccountEvent, log *logger.Logger) *router {
	return &router{decoder: decoder, out: out, log: log, now: time.Now}
}

func (r *router) route(raw []byte) error {
	var env struct {
		Event   string `json:"event"`
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		protocolErrorsTotal.Inc()
		return &ProtocolError{Raw: raw}
	}

	if env.Event != EventUpdated {
		ignoredTotal.Inc()
		r.log.Debug("ws: ignored event", zap.String("event", env.Event))
		return nil
	}
	if env.Channel == "" {
		protocolErrorsTotal.Inc()
		return &ProtocolError{Raw: raw}
	}

	// Пара кодируется последним сегментом имени канала,
	// например user_executions_cash_ethusd -> ETHUSD.
	segments := strings.Split(env.Channel, "_")
	pair := strings.ToUpper(segments[len(segments)-1])

	evt, err := r.decoder.Decode(raw, r.now(), pair)
	if err != nil {
		return fmt.Errorf("liquid: decode %q event: %w", env.Channel, err)
	}

	select {
	case r.out <- evt:
		updatesTotal.Inc()
	default:
		droppedTotal.Inc()
		r.log.Warn("ws: buffer full, dropping event", zap.String("pair", pair))
	}
	return nil
}
