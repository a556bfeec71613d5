// pkg/liquid/config.go
package liquid

import (
	"fmt"
	"strings"
	"time"
)

// Дефолты протокола Liquid Tap.
const (
	DefaultURL             = "wss://tap.liquid.com/app/LiquidTapClient"
	DefaultAuthEvent       = "quoine_auth_request"
	DefaultSubscribeEvent  = "pusher:subscribe"
	DefaultChannelTemplate = "user_account_%s_orders"
)

// Config задаёт параметры подключения к пользовательскому стриму Liquid.
type Config struct {
	URL          string   `mapstructure:"ws_url"`        // адрес WebSocket, например DefaultURL
	TradingPairs []string `mapstructure:"trading_pairs"` // пары, напр. ["BTCUSD","ETHUSD"]

	AuthEvent       string `mapstructure:"auth_event"`       // событие аутентификации
	SubscribeEvent  string `mapstructure:"subscribe_event"`  // событие подписки
	ChannelTemplate string `mapstructure:"channel_template"` // шаблон имени канала, %s = quoted currency (lowercase)

	BufferSize     int           `mapstructure:"buffer_size"`     // размер буфера выходного канала
	MessageTimeout time.Duration `mapstructure:"message_timeout"` // тишина до ping-а
	PingTimeout    time.Duration `mapstructure:"ping_timeout"`    // ожидание pong-а
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"` // фиксированная пауза перед повторным подключением
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`   // WriteDeadline на исходящие кадры
}

// applyDefaults заполняет незаданные поля дефолтами.
func (c *Config) applyDefaults() {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.AuthEvent == "" {
		c.AuthEvent = DefaultAuthEvent
	}
	if c.SubscribeEvent == "" {
		c.SubscribeEvent = DefaultSubscribeEvent
	}
	if c.ChannelTemplate == "" {
		c.ChannelTemplate = DefaultChannelTemplate
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 100
	}
	if c.MessageTimeout <= 0 {
		c.MessageTimeout = 30 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 10 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

// validate проверяет обязательные поля.
func (c Config) validate() error {
	var errs []string
	if c.URL == "" {
		errs = append(errs, "URL is required")
	}
	if len(c.TradingPairs) == 0 {
		errs = append(errs, "at least one trading pair is required")
	}
	if c.ChannelTemplate != "" && !strings.Contains(c.ChannelTemplate, "%s") {
		errs = append(errs, "ChannelTemplate must contain %s")
	}
	if len(errs) > 0 {
		return fmt.Errorf("liquid: invalid Config: %s", strings.Join(errs, "; "))
	}
	return nil
}
