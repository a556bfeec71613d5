// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/YaganovValera/account-stream-collector/internal/catalog"
	"github.com/YaganovValera/account-stream-collector/internal/httpserver"
	"github.com/YaganovValera/account-stream-collector/pkg/backoff"
	"github.com/YaganovValera/account-stream-collector/pkg/liquid"
	"github.com/YaganovValera/account-stream-collector/pkg/logger"
)

/*
   --------------------------------------------------------------------------
   СТРУКТУРЫ
   --------------------------------------------------------------------------
*/

// Config — все настройки сервиса.
type Config struct {
	ServiceName    string            `mapstructure:"service_name"`
	ServiceVersion string            `mapstructure:"service_version"`
	Liquid         liquid.Config     `mapstructure:"liquid"`
	Auth           AuthConfig        `mapstructure:"auth"`
	Catalog        catalog.Config    `mapstructure:"catalog"`
	Kafka          KafkaConfig       `mapstructure:"kafka"`
	Telemetry      Telemetry         `mapstructure:"telemetry"`
	Logging        logger.Config     `mapstructure:"logging"`
	HTTP           httpserver.Config `mapstructure:"http"`
}

// AuthConfig хранит API-ключ Liquid. Секрет задаётся через ENV
// (COLLECTOR_AUTH_TOKEN_SECRET), а не в файле.
type AuthConfig struct {
	TokenID     string `mapstructure:"token_id"`
	TokenSecret string `mapstructure:"token_secret"`
}

// KafkaConfig хранит настройки Kafka.
type KafkaConfig struct {
	Brokers        []string       `mapstructure:"brokers"`
	AccountTopic   string         `mapstructure:"account_topic"`
	Timeout        time.Duration  `mapstructure:"timeout"`
	Acks           string         `mapstructure:"acks"`
	Compression    string         `mapstructure:"compression"`
	FlushFrequency time.Duration  `mapstructure:"flush_frequency"`
	FlushMessages  int            `mapstructure:"flush_messages"`
	Backoff        backoff.Config `mapstructure:"backoff"`
}

// Telemetry хранит настройки OpenTelemetry.
type Telemetry struct {
	OTLPEndpoint string `mapstructure:"otel_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
}

/*
   --------------------------------------------------------------------------
   LOADER
   --------------------------------------------------------------------------
*/

// Load загружает и валидирует конфиг. Если path пустой — читаются только ENV и defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	// ---------- 1) Defaults ----------
	v.SetDefault("service_name", "account-stream-collector")
	v.SetDefault("service_version", "v1.0.0")

	// Liquid
	v.SetDefault("liquid.ws_url", liquid.DefaultURL)
	v.SetDefault("liquid.auth_event", liquid.DefaultAuthEvent)
	v.SetDefault("liquid.subscribe_event", liquid.DefaultSubscribeEvent)
	v.SetDefault("liquid.channel_template", liquid.DefaultChannelTemplate)
	v.SetDefault("liquid.buffer_size", 1000)
	v.SetDefault("liquid.message_timeout", "30s")
	v.SetDefault("liquid.ping_timeout", "10s")
	v.SetDefault("liquid.reconnect_delay", "30s")
	v.SetDefault("liquid.write_timeout", "5s")
	v.SetDefault("liquid.trading_pairs", []string{})

	// Auth (значения приходят из файла или ENV, default нужен для AllSettings)
	v.SetDefault("auth.token_id", "")
	v.SetDefault("auth.token_secret", "")

	// Catalog
	v.SetDefault("catalog.rest_url", "https://api.liquid.com")
	v.SetDefault("catalog.timeout", "10s")
	v.SetDefault("catalog.cache_ttl", "10m")

	// Kafka
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.account_topic", "account.events.raw")
	v.SetDefault("kafka.acks", "all")
	v.SetDefault("kafka.timeout", "15s")
	v.SetDefault("kafka.compression", "none")
	v.SetDefault("kafka.flush_frequency", "0s")
	v.SetDefault("kafka.flush_messages", 0)

	// Telemetry
	v.SetDefault("telemetry.otel_endpoint", "otel-collector:4317")
	v.SetDefault("telemetry.insecure", false)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dev_mode", false)

	// HTTP server
	v.SetDefault("http.port", 8086)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "5s")
	v.SetDefault("http.metrics_path", "/metrics")
	v.SetDefault("http.healthz_path", "/healthz")
	v.SetDefault("http.readyz_path", "/readyz")

	// ---------- 2) ENV ----------
	v.SetEnvPrefix("COLLECTOR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ---------- 3) Optional file ----------
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", v.ConfigFileUsed(), err)
		}
	}

	// ---------- 4) Decode ----------
	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		stringToBoolHook,
	)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "mapstructure",
		Result:     &cfg,
		DecodeHook: decodeHook,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// ---------- 5) Validation ----------
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// stringToBoolHook разбирает true/false, иначе отдает исходные данные.
func stringToBoolHook(f, t reflect.Kind, data interface{}) (interface{}, error) {
	if f == reflect.String && t == reflect.Bool {
		return strconv.ParseBool(data.(string))
	}
	return data, nil
}

/*
   --------------------------------------------------------------------------
   VALIDATION
   --------------------------------------------------------------------------
*/

func (c *Config) Validate() error {
	// Service
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version is required")
	}

	// Liquid
	if c.Liquid.URL == "" {
		return fmt.Errorf("liquid.ws_url is required")
	}
	if len(c.Liquid.TradingPairs) == 0 {
		return fmt.Errorf("liquid.trading_pairs must contain at least one entry")
	}
	if !strings.Contains(c.Liquid.ChannelTemplate, "%s") {
		return fmt.Errorf("liquid.channel_template must contain %%s")
	}
	if c.Liquid.MessageTimeout <= 0 || c.Liquid.PingTimeout <= 0 {
		return fmt.Errorf("liquid.message_timeout and liquid.ping_timeout must be > 0")
	}
	if c.Liquid.ReconnectDelay <= 0 {
		return fmt.Errorf("liquid.reconnect_delay must be > 0")
	}

	// Auth
	if c.Auth.TokenID == "" || c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth.token_id and auth.token_secret are required")
	}

	// Catalog
	if c.Catalog.RESTURL == "" {
		return fmt.Errorf("catalog.rest_url is required")
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	if c.Kafka.AccountTopic == "" {
		return fmt.Errorf("kafka.account_topic is required")
	}
	switch strings.ToLower(c.Kafka.Acks) {
	case "all", "leader", "none":
	default:
		return fmt.Errorf("kafka.acks must be one of [all, leader, none]")
	}
	switch strings.ToLower(c.Kafka.Compression) {
	case "none", "gzip", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("kafka.compression must be one of [none, gzip, snappy, lz4, zstd]")
	}

	// Telemetry
	if c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry.otel_endpoint is required")
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error]")
	}

	// HTTP
	if err := validateHTTP(&c.HTTP); err != nil {
		return err
	}

	return nil
}

func validateHTTP(h *httpserver.Config) error {
	if h.Port <= 0 || h.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535")
	}
	durations := map[string]time.Duration{
		"http.read_timeout":     h.ReadTimeout,
		"http.write_timeout":    h.WriteTimeout,
		"http.idle_timeout":     h.IdleTimeout,
		"http.shutdown_timeout": h.ShutdownTimeout,
	}
	for k, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", k)
		}
	}
	paths := map[string]string{
		"http.metrics_path": h.MetricsPath,
		"http.healthz_path": h.HealthzPath,
		"http.readyz_path":  h.ReadyzPath,
	}
	for k, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with '/'", k)
		}
	}
	return nil
}

/*
   --------------------------------------------------------------------------
   DEBUG PRINT
   --------------------------------------------------------------------------
*/

// Print выводит текущий конфиг в JSON без секретов (удобно в DevMode).
func (c *Config) Print() {
	clone := *c
	if clone.Auth.TokenSecret != "" {
		clone.Auth.TokenSecret = "***"
	}
	b, _ := json.MarshalIndent(clone, "", "  ")
	fmt.Println("Loaded configuration:\n", string(b))
}
