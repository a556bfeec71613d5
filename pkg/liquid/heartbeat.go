// pkg/liquid/heartbeat.go
package liquid

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/YaganovValera/account-stream-collector/pkg/logger"
)

// frameReader читает кадры из соединения в отдельной горутине и реализует
// контроль живости: при простое дольше msgTimeout отправляется ping, и если
// pong не приходит за pingTimeout, сессия считается мёртвой.
//
// Чтение вынесено в горутину, потому что ошибка дедлайна в gorilla/websocket
// необратимо портит соединение и не позволяет продолжить чтение после ping.
type frameReader struct {
	conn         *websocket.Conn
	msgTimeout   time.Duration
	pingTimeout  time.Duration
	writeTimeout time.Duration
	log          *logger.Logger

	frames  chan []byte
	readErr chan error
	pong    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newFrameReader(conn *websocket.Conn, cfg Config, log *logger.Logger) *frameReader {
	r := &frameReader{
		conn:         conn,
		msgTimeout:   cfg.MessageTimeout,
		pingTimeout:  cfg.PingTimeout,
		writeTimeout: cfg.WriteTimeout,
		log:          log,
		frames:       make(chan []byte),
		readErr:      make(chan error, 1),
		pong:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		select {
		case r.pong <- struct{}{}:
		default:
		}
		return nil
	})
	go r.readLoop()
	return r
}

func (r *frameReader) readLoop() {
	for {
		_, msg, err := r.conn.ReadMessage()
		if err != nil {
			select {
			case r.readErr <- err:
			case <-r.done:
			}
			return
		}
		select {
		case r.frames <- msg:
		case <-r.done:
			return
		}
	}
}

// stop останавливает горутину чтения. Само соединение закрывает вызывающий.
func (r *frameReader) stop() {
	r.once.Do(func() { close(r.done) })
}

// Next возвращает следующий кадр. ok=false означает, что соединение мертво
// или контекст завершён, и сессию нужно закрывать.
func (r *frameReader) Next(ctx context.Context) ([]byte, bool) {
	for {
		msgTimer := time.NewTimer(r.msgTimeout)
		select {
		case msg := <-r.frames:
			msgTimer.Stop()
			return msg, true
		case err := <-r.readErr:
			msgTimer.Stop()
			r.log.WithContext(ctx).Warn("ws: read failed", zap.Error(err))
			return nil, false
		case <-ctx.Done():
			msgTimer.Stop()
			return nil, false
		case <-msgTimer.C:
		}

		// Простой: проверяем живость соединения через ping/pong.
		select {
		case <-r.pong:
		default:
		}
		deadline := time.Now().Add(r.writeTimeout)
		if err := r.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			r.log.WithContext(ctx).Warn("ws: ping write failed", zap.Error(err))
			return nil, false
		}
		pingsTotal.Inc()

		pingTimer := time.NewTimer(r.pingTimeout)
		alive := false
		select {
		case msg := <-r.frames:
			pingTimer.Stop()
			return msg, true
		case <-r.pong:
			alive = true
		case err := <-r.readErr:
			pingTimer.Stop()
			r.log.WithContext(ctx).Warn("ws: read failed", zap.Error(err))
			return nil, false
		case <-ctx.Done():
			pingTimer.Stop()
			return nil, false
		case <-pingTimer.C:
			pongTimeoutsTotal.Inc()
			r.log.WithContext(ctx).Warn("ws: ping timed out, reconnecting")
		}
		pingTimer.Stop()
		if !alive {
			return nil, false
		}
	}
}
