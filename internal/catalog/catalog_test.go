// internal/catalog/catalog_test.go
package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/YaganovValera/account-stream-collector/pkg/backoff"
	"github.com/YaganovValera/account-stream-collector/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", DevMode: true})
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func testBackoff() backoff.Config {
	return backoff.Config{
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		MaxElapsedTime:  500 * time.Millisecond,
	}
}

const productsJSON = `[
	{"currency_pair_code":"BTCUSD","quoted_currency":"USD"},
	{"currency_pair_code":"ethjpy","quoted_currency":"jpy"},
	{"currency_pair_code":"","quoted_currency":"EUR"}
]`

func TestCatalog_QuotedCurrency(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt64(&hits, 1)
		_, _ = w.Write([]byte(productsJSON))
	}))
	defer srv.Close()

	ctx := context.Background()
	c, err := New(ctx, Config{RESTURL: srv.URL, Backoff: testBackoff()}, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	quote, err := c.QuotedCurrency(ctx, "BTCUSD")
	if err != nil {
		t.Fatalf("QuotedCurrency: %v", err)
	}
	if quote != "USD" {
		t.Errorf("quote = %q, want USD", quote)
	}

	// Регистр пары и ответа нормализуется к верхнему.
	quote, err = c.QuotedCurrency(ctx, "ethjpy")
	if err != nil {
		t.Fatalf("QuotedCurrency: %v", err)
	}
	if quote != "JPY" {
		t.Errorf("quote = %q, want JPY", quote)
	}

	// Второй запрос той же пары идёт из памяти, а не по REST.
	if _, err := c.QuotedCurrency(ctx, "BTCUSD"); err != nil {
		t.Fatalf("QuotedCurrency: %v", err)
	}
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Errorf("REST hits = %d, want 1", got)
	}
}

func TestCatalog_UnknownPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(productsJSON))
	}))
	defer srv.Close()

	ctx := context.Background()
	c, err := New(ctx, Config{RESTURL: srv.URL, Backoff: testBackoff()}, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if _, err := c.QuotedCurrency(ctx, "NOPE"); err == nil {
		t.Fatal("expected error for unknown pair")
	}
}

func TestCatalog_RetriesOnServerError(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt64(&hits, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(productsJSON))
	}))
	defer srv.Close()

	ctx := context.Background()
	c, err := New(ctx, Config{RESTURL: srv.URL, Backoff: testBackoff()}, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	quote, err := c.QuotedCurrency(ctx, "BTCUSD")
	if err != nil {
		t.Fatalf("QuotedCurrency: %v", err)
	}
	if quote != "USD" {
		t.Errorf("quote = %q, want USD", quote)
	}
	if got := atomic.LoadInt64(&hits); got < 2 {
		t.Errorf("REST hits = %d, want >= 2", got)
	}
}

func TestCatalog_RedisUnavailable(t *testing.T) {
	cfg := Config{
		RESTURL: "http://localhost:0",
		Backoff: testBackoff(),
		Redis:   RedisConfig{Addr: "127.0.0.1:1"},
	}
	if _, err := New(context.Background(), cfg, testLogger(t)); err == nil {
		t.Fatal("expected error for unreachable redis")
	}
}
