// internal/publisher/publisher_test.go
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/YaganovValera/account-stream-collector/pkg/liquid"
	"github.com/YaganovValera/account-stream-collector/pkg/logger"
)

type recordedMsg struct {
	topic string
	key   string
	value []byte
}

type fakeProducer struct {
	msgs []recordedMsg
	err  error
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key, value []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, recordedMsg{topic: topic, key: string(key), value: value})
	return nil
}
func (f *fakeProducer) Ping(context.Context) error { return nil }
func (f *fakeProducer) Close() error               { return nil }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", DevMode: true})
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestPublisher_PublishesEvents(t *testing.T) {
	prod := &fakeProducer{}
	pub := New(prod, "account.events", testLogger(t))

	in := make(chan liquid.AccountEvent, 2)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 500_000_000, time.UTC)
	in <- liquid.AccountEvent{
		TradingPair: "BTCUSD",
		Timestamp:   ts,
		Payload:     json.RawMessage(`{"event":"updated"}`),
	}
	close(in)

	if err := pub.Run(context.Background(), in); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(prod.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(prod.msgs))
	}

	msg := prod.msgs[0]
	if msg.topic != "account.events" || msg.key != "BTCUSD" {
		t.Errorf("topic/key = %q/%q", msg.topic, msg.key)
	}

	var wire struct {
		TradingPair string          `json:"trading_pair"`
		Timestamp   float64         `json:"timestamp"`
		Payload     json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(msg.value, &wire); err != nil {
		t.Fatalf("unmarshal wire event: %v", err)
	}
	if wire.TradingPair != "BTCUSD" {
		t.Errorf("pair = %q", wire.TradingPair)
	}
	want := float64(ts.UnixNano()) / 1e9
	if wire.Timestamp != want {
		t.Errorf("timestamp = %v, want %v", wire.Timestamp, want)
	}
	if string(wire.Payload) != `{"event":"updated"}` {
		t.Errorf("payload = %s", wire.Payload)
	}
}

func TestPublisher_StopsOnPublishError(t *testing.T) {
	prod := &fakeProducer{err: errors.New("kafka down")}
	pub := New(prod, "account.events", testLogger(t))

	in := make(chan liquid.AccountEvent, 1)
	in <- liquid.AccountEvent{TradingPair: "BTCUSD", Timestamp: time.Now()}

	if err := pub.Run(context.Background(), in); err == nil {
		t.Fatal("expected error from Run")
	}
}

func TestPublisher_StopsOnContextCancel(t *testing.T) {
	pub := New(&fakeProducer{}, "account.events", testLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.Run(ctx, make(chan liquid.AccountEvent))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
