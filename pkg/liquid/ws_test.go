// pkg/liquid/ws_test.go
package liquid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Config
// -----------------------------------------------------------------------------

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{TradingPairs: []string{"BTCUSD"}}
	cfg.applyDefaults()

	if cfg.URL != DefaultURL {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.AuthEvent != DefaultAuthEvent || cfg.SubscribeEvent != DefaultSubscribeEvent {
		t.Errorf("events = %q / %q", cfg.AuthEvent, cfg.SubscribeEvent)
	}
	if cfg.ChannelTemplate != DefaultChannelTemplate {
		t.Errorf("template = %q", cfg.ChannelTemplate)
	}
	if cfg.MessageTimeout != 30*time.Second || cfg.PingTimeout != 10*time.Second {
		t.Errorf("timeouts = %v / %v", cfg.MessageTimeout, cfg.PingTimeout)
	}
	if cfg.ReconnectDelay != 30*time.Second {
		t.Errorf("reconnect delay = %v", cfg.ReconnectDelay)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"no pairs", func(c *Config) { c.TradingPairs = nil }, true},
		{"no url", func(c *Config) { c.URL = "" }, true},
		{"template without placeholder", func(c *Config) { c.ChannelTemplate = "user_account_orders" }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{TradingPairs: []string{"BTCUSD"}}
			cfg.applyDefaults()
			tc.mutate(&cfg)
			err := cfg.validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Test doubles
// -----------------------------------------------------------------------------

type staticAuth struct{}

func (staticAuth) AuthPayload() (json.RawMessage, error) {
	return json.RawMessage(`{"path":"/realtime","headers":{"X-Quoine-Auth":"t.t.t"}}`), nil
}

type staticCatalog map[string]string

func (c staticCatalog) QuotedCurrency(_ context.Context, pair string) (string, error) {
	q, ok := c[pair]
	if !ok {
		return "", fmt.Errorf("unknown pair %q", pair)
	}
	return q, nil
}

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

var upgrader = websocket.Upgrader{}

func startServer(t *testing.T, handler func(conn *websocket.Conn, n int64)) (*httptest.Server, string, *int64) {
	t.Helper()
	var conns int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(conn, atomic.AddInt64(&conns, 1))
	}))
	t.Cleanup(srv.Close)
	return srv, strings.Replace(srv.URL, "http", "ws", 1), &conns
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f wsFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Errorf("server read frame: %v", err)
	}
	return f
}

func testConnector(t *testing.T, cfg Config, catalog ChannelCatalog) Connector {
	t.Helper()
	conn, err := NewConnector(cfg, Deps{Auth: staticAuth{}, Catalog: catalog}, testLogger(t))
	if err != nil {
		t.Fatalf("NewConnector: %v", err)
	}
	return conn
}

// -----------------------------------------------------------------------------
// Connector
// -----------------------------------------------------------------------------

func TestNewConnector_RequiresDeps(t *testing.T) {
	cfg := Config{URL: "ws://x", TradingPairs: []string{"BTCUSD"}}
	log := testLogger(t)

	if _, err := NewConnector(cfg, Deps{Catalog: staticCatalog{}}, log); err == nil {
		t.Error("expected error without credential provider")
	}
	if _, err := NewConnector(cfg, Deps{Auth: staticAuth{}}, log); err == nil {
		t.Error("expected error without catalog")
	}
	if _, err := NewConnector(Config{}, Deps{Auth: staticAuth{}, Catalog: staticCatalog{}}, log); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestConnector_StreamTwiceFails(t *testing.T) {
	_, url, _ := startServer(t, func(conn *websocket.Conn, _ int64) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	c := testConnector(t, Config{URL: url, TradingPairs: []string{"BTCUSD"}}, staticCatalog{"BTCUSD": "USD"})
	defer c.Close()

	ctx := context.Background()
	if _, err := c.Stream(ctx); err != nil {
		t.Fatalf("first Stream: %v", err)
	}
	if _, err := c.Stream(ctx); err == nil {
		t.Fatal("expected second Stream to fail")
	}
}

func TestConnector_AuthAndSubscribeOrder(t *testing.T) {
	got := make(chan wsFrame, 3)
	_, url, _ := startServer(t, func(conn *websocket.Conn, _ int64) {
		for i := 0; i < 3; i++ {
			got <- readFrame(t, conn)
		}
		msg := `{"event":"updated","channel":"user_executions_cash_ethjpy","data":"{}"}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	cfg := Config{URL: url, TradingPairs: []string{"BTCUSD", "ETHJPY"}}
	c := testConnector(t, cfg, staticCatalog{"BTCUSD": "USD", "ETHJPY": "JPY"})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := c.Stream(ctx)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	// Первым всегда идёт аутентификация, затем подписки в порядке пар.
	auth := <-got
	if auth.Event != DefaultAuthEvent {
		t.Errorf("first frame event = %q, want %q", auth.Event, DefaultAuthEvent)
	}
	var authData struct {
		Path    string            `json:"path"`
		Headers map[string]string `json:"headers"`
	}
	if err := json.Unmarshal(auth.Data, &authData); err != nil {
		t.Fatalf("unmarshal auth data: %v", err)
	}
	if authData.Path != "/realtime" || authData.Headers["X-Quoine-Auth"] == "" {
		t.Errorf("unexpected auth data: %+v", authData)
	}

	for i, want := range []string{"user_account_usd_orders", "user_account_jpy_orders"} {
		sub := <-got
		if sub.Event != DefaultSubscribeEvent {
			t.Errorf("subscribe %d event = %q", i, sub.Event)
		}
		var subData struct {
			Channel string `json:"channel"`
		}
		if err := json.Unmarshal(sub.Data, &subData); err != nil {
			t.Fatalf("unmarshal subscribe data: %v", err)
		}
		if subData.Channel != want {
			t.Errorf("subscribe %d channel = %q, want %q", i, subData.Channel, want)
		}
	}

	select {
	case evt := <-out:
		if evt.TradingPair != "ETHJPY" {
			t.Errorf("pair = %q, want ETHJPY", evt.TradingPair)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp is zero")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestConnector_ReconnectsOnProtocolError(t *testing.T) {
	secondConn := make(chan struct{})
	_, url, conns := startServer(t, func(conn *websocket.Conn, n int64) {
		readFrame(t, conn) // auth
		readFrame(t, conn) // subscribe
		if n == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"user_account_usd_orders"}`))
		} else {
			if n == 2 {
				close(secondConn)
			}
			msg := `{"event":"updated","channel":"user_executions_cash_btcusd"}`
			_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	cfg := Config{URL: url, TradingPairs: []string{"BTCUSD"}, ReconnectDelay: 20 * time.Millisecond}
	c := testConnector(t, cfg, staticCatalog{"BTCUSD": "USD"})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := c.Stream(ctx)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	select {
	case <-secondConn:
	case <-ctx.Done():
		t.Fatal("timed out waiting for reconnect")
	}

	select {
	case evt := <-out:
		if evt.TradingPair != "BTCUSD" {
			t.Errorf("pair = %q, want BTCUSD", evt.TradingPair)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event after reconnect")
	}
	if got := atomic.LoadInt64(conns); got < 2 {
		t.Errorf("connections = %d, want >= 2", got)
	}
}

func TestConnector_SurvivesIdleViaPing(t *testing.T) {
	_, url, conns := startServer(t, func(conn *websocket.Conn, _ int64) {
		readFrame(t, conn) // auth
		readFrame(t, conn) // subscribe
		go func() {
			time.Sleep(300 * time.Millisecond)
			msg := `{"event":"updated","channel":"user_executions_cash_btcusd"}`
			_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}()
		// Читающая сторона отвечает pong-ами на ping-и автоматически.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	cfg := Config{
		URL:            url,
		TradingPairs:   []string{"BTCUSD"},
		MessageTimeout: 50 * time.Millisecond,
		PingTimeout:    1 * time.Second,
	}
	c := testConnector(t, cfg, staticCatalog{"BTCUSD": "USD"})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := c.Stream(ctx)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	select {
	case evt := <-out:
		if evt.TradingPair != "BTCUSD" {
			t.Errorf("pair = %q", evt.TradingPair)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
	if got := atomic.LoadInt64(conns); got != 1 {
		t.Errorf("connections = %d, want 1", got)
	}
}

func TestConnector_PongTimeoutReconnects(t *testing.T) {
	secondConn := make(chan struct{})
	_, url, _ := startServer(t, func(conn *websocket.Conn, n int64) {
		readFrame(t, conn) // auth
		readFrame(t, conn) // subscribe
		if n >= 2 {
			if n == 2 {
				close(secondConn)
			}
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
		// Первое соединение молчит и не читает: ping останется без pong-а.
		time.Sleep(2 * time.Second)
	})

	cfg := Config{
		URL:            url,
		TradingPairs:   []string{"BTCUSD"},
		MessageTimeout: 40 * time.Millisecond,
		PingTimeout:    40 * time.Millisecond,
		ReconnectDelay: 20 * time.Millisecond,
	}
	c := testConnector(t, cfg, staticCatalog{"BTCUSD": "USD"})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.Stream(ctx); err != nil {
		t.Fatalf("Stream: %v", err)
	}

	select {
	case <-secondConn:
	case <-ctx.Done():
		t.Fatal("timed out waiting for reconnect after pong timeout")
	}
}

func TestConnector_CloseStopsStream(t *testing.T) {
	_, url, _ := startServer(t, func(conn *websocket.Conn, _ int64) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := testConnector(t, Config{URL: url, TradingPairs: []string{"BTCUSD"}}, staticCatalog{"BTCUSD": "USD"})
	out, err := c.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after Close")
	}
}
