// internal/catalog/catalog.go
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/account-stream-collector/pkg/backoff"
	"github.com/YaganovValera/account-stream-collector/pkg/logger"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Config struct {
	RESTURL  string         `mapstructure:"rest_url"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	CacheTTL time.Duration  `mapstructure:"cache_ttl"`
	Backoff  backoff.Config `mapstructure:"backoff"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

func (c *Config) applyDefaults() {
	if c.RESTURL == "" {
		c.RESTURL = "https://api.liquid.com"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 10 * time.Minute
	}
}

// -----------------------------------------------------------------------------
// Catalog
// -----------------------------------------------------------------------------

// Catalog отвечает на вопрос "какая котируемая валюта у пары",
// подтягивая справочник продуктов по REST. Ответы кешируются
// в памяти и, опционально, в Redis.
type Catalog struct {
	cfg    Config
	http   *http.Client
	rdb    *redis.Client
	log    *logger.Logger
	tracer trace.Tracer

	mu     sync.RWMutex
	quotes map[string]string
}

type product struct {
	CurrencyPairCode string `json:"currency_pair_code"`
	QuotedCurrency   string `json:"quoted_currency"`
}

// New создаёт каталог. Redis подключается, только если задан адрес;
// недоступный Redis — ошибка конфигурации, а не повод работать без кеша.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*Catalog, error) {
	cfg.applyDefaults()

	c := &Catalog{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		log:    log.Named("catalog"),
		tracer: otel.Tracer("collector/catalog"),
		quotes: make(map[string]string),
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("catalog: redis ping: %w", err)
		}
		c.rdb = rdb
		c.log.Info("catalog: redis cache enabled", zap.String("addr", cfg.Redis.Addr))
	}
	return c, nil
}

// QuotedCurrency возвращает котируемую валюту пары (например BTCUSD -> USD).
func (c *Catalog) QuotedCurrency(ctx context.Context, pair string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "catalog.quoted_currency")
	defer span.End()

	pair = strings.ToUpper(pair)

	c.mu.RLock()
	quote, ok := c.quotes[pair]
	c.mu.RUnlock()
	if ok {
		return quote, nil
	}

	if c.rdb != nil {
		val, err := c.rdb.Get(ctx, cacheKey(pair)).Result()
		switch {
		case err == nil:
			c.mu.Lock()
			c.quotes[pair] = val
			c.mu.Unlock()
			return val, nil
		case !errors.Is(err, redis.Nil):
			c.log.WithContext(ctx).Warn("catalog: redis get failed", zap.Error(err))
		}
	}

	if err := c.refresh(ctx); err != nil {
		span.RecordError(err)
		return "", err
	}

	c.mu.RLock()
	quote, ok = c.quotes[pair]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("catalog: unknown trading pair %q", pair)
	}
	return quote, nil
}

// refresh перечитывает справочник продуктов с биржи.
func (c *Catalog) refresh(ctx context.Context) error {
	var products []product
	err := backoff.Execute(ctx, c.cfg.Backoff, c.log, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.RESTURL+"/products", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("catalog: GET /products: status %d", resp.StatusCode)
		}
		products = products[:0]
		if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
			return fmt.Errorf("catalog: decode products: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("catalog: fetch products: %w", err)
	}

	quotes := make(map[string]string, len(products))
	for _, p := range products {
		if p.CurrencyPairCode == "" || p.QuotedCurrency == "" {
			continue
		}
		quotes[strings.ToUpper(p.CurrencyPairCode)] = strings.ToUpper(p.QuotedCurrency)
	}

	c.mu.Lock()
	for k, v := range quotes {
		c.quotes[k] = v
	}
	c.mu.Unlock()

	if c.rdb != nil {
		for k, v := range quotes {
			if err := c.rdb.Set(ctx, cacheKey(k), v, c.cfg.CacheTTL).Err(); err != nil {
				c.log.WithContext(ctx).Warn("catalog: redis set failed", zap.Error(err))
				break
			}
		}
	}

	c.log.WithContext(ctx).Info("catalog: products refreshed", zap.Int("count", len(quotes)))
	return nil
}

// Close закрывает подключение к Redis, если оно было открыто.
func (c *Catalog) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

func cacheKey(pair string) string {
	return "catalog:quote:" + pair
}
