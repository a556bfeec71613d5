// pkg/liquid/ws.go
package liquid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/YaganovValera/account-stream-collector/pkg/logger"
)

// Deps — внешние зависимости коннектора.
type Deps struct {
	Auth    CredentialProvider
	Catalog ChannelCatalog
	Decoder EventDecoder // если nil, используется прозрачный декодер
}

type connector struct {
	cfg  Config
	deps Deps
	log  *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

// NewConnector создаёт коннектор к приватному потоку Liquid Tap.
func NewConnector(cfg Config, deps Deps, log *logger.Logger) (Connector, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("liquid: invalid config: %w", err)
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("liquid: credential provider is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("liquid: channel catalog is required")
	}
	if deps.Decoder == nil {
		deps.Decoder = defaultDecoder{}
	}
	registerMetrics(prometheus.DefaultRegisterer)
	return &connector{cfg: cfg, deps: deps, log: log.Named("liquid-ws")}, nil
}

// Stream запускает фоновый цикл подключения. Канал закрывается
// только при завершении контекста.
func (c *connector) Stream(ctx context.Context) (<-chan AccountEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil, fmt.Errorf("liquid: stream already started")
	}
	c.started = true

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	out := make(chan AccountEvent, c.cfg.BufferSize)
	go c.run(ctx, out)
	return out, nil
}

func (c *connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *connector) run(ctx context.Context, out chan<- AccountEvent) {
	defer close(out)
	for {
		err := c.session(ctx, out)
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			c.log.WithContext(ctx).Info("ws: stream stopped")
			return
		}
		reconnectsTotal.Inc()
		c.log.WithContext(ctx).Warn("ws: session ended, reconnecting",
			zap.Error(err),
			zap.Duration("delay", c.cfg.ReconnectDelay))
		select {
		case <-ctx.Done():
			c.log.WithContext(ctx).Info("ws: stream stopped")
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

// session держит одно соединение: аутентификация, подписки, чтение кадров.
func (c *connector) session(ctx context.Context, out chan<- AccountEvent) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		connectsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("liquid: dial %s: %w", c.cfg.URL, err)
	}
	connectsTotal.WithLabelValues("ok").Inc()
	c.log.WithContext(ctx).Info("ws: connected", zap.String("url", c.cfg.URL))

	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { _ = conn.Close() }) }
	defer closeConn()

	// Отмена контекста должна разблокировать чтение немедленно.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-watchDone:
		}
	}()

	if err := c.authenticate(conn); err != nil {
		return err
	}
	if err := c.subscribe(ctx, conn); err != nil {
		return err
	}

	reader := newFrameReader(conn, c.cfg, c.log)
	defer reader.stop()
	rt := newRouter(c.deps.Decoder, out, c.log)

	for {
		raw, ok := reader.Next(ctx)
		if !ok {
			return ctx.Err()
		}
		framesTotal.Inc()
		if err := rt.route(raw); err != nil {
			return err
		}
	}
}

// authenticate отправляет кадр аутентификации. Протокол не присылает
// подтверждения, поэтому ответа не ждём.
func (c *connector) authenticate(conn *websocket.Conn) error {
	payload, err := c.deps.Auth.AuthPayload()
	if err != nil {
		return fmt.Errorf("liquid: build auth payload: %w", err)
	}
	if err := c.writeEvent(conn, c.cfg.AuthEvent, payload); err != nil {
		return fmt.Errorf("liquid: send auth: %w", err)
	}
	return nil
}

func (c *connector) subscribe(ctx context.Context, conn *websocket.Conn) error {
	for _, pair := range c.cfg.TradingPairs {
		quote, err := c.deps.Catalog.QuotedCurrency(ctx, pair)
		if err != nil {
			return fmt.Errorf("liquid: resolve channel for %s: %w", pair, err)
		}
		channel := fmt.Sprintf(c.cfg.ChannelTemplate, strings.ToLower(quote))
		data, err := json.Marshal(struct {
			Channel string `json:"channel"`
		}{Channel: channel})
		if err != nil {
			return fmt.Errorf("liquid: marshal subscribe: %w", err)
		}
		if err := c.writeEvent(conn, c.cfg.SubscribeEvent, data); err != nil {
			return fmt.Errorf("liquid: subscribe %s: %w", channel, err)
		}
		c.log.WithContext(ctx).Debug("ws: subscribed",
			zap.String("pair", pair),
			zap.String("channel", channel))
	}
	return nil
}

func (c *connector) writeEvent(conn *websocket.Conn, event string, data json.RawMessage) error {
	frame := struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}{Event: event, Data: data}
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}
