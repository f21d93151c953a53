// Package config provides configuration management for the signal bridge.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/mageshtv/dhanbridge/internal/models"
)

const (
	defaultCatalogURL = "https://images.dhan.co/api-data/api-scrip-master-detailed.csv"
	defaultStatePath  = "tv_bridge_state.json"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Notify      NotifyConfig      `yaml:"notify"`
	Storage     StorageConfig     `yaml:"storage"`
}

// EnvironmentConfig defines the runtime environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines Dhan API settings.
type BrokerConfig struct {
	ClientID        string `yaml:"client_id"`
	AccessToken     string `yaml:"access_token"`
	APIEndpoint     string `yaml:"api_endpoint"` // empty = production
	ExchangeSegment string `yaml:"exchange_segment"`
	OrderType       string `yaml:"order_type"`
	ProductType     string `yaml:"product_type"`
}

// WebhookConfig defines the inbound alert endpoint settings.
type WebhookConfig struct {
	Port   int    `yaml:"port"`
	Secret string `yaml:"secret"`
}

// CatalogConfig defines the instrument scrip master source.
type CatalogConfig struct {
	URL          string `yaml:"url"`
	LocalPath    string `yaml:"local_path"`
	HTTPTimeout  string `yaml:"http_timeout"`
	MaxRetries   int    `yaml:"max_retries"`
	RetryBackoff string `yaml:"retry_backoff"`
}

// StrategyConfig defines the strike-selection and order sizing policy.
type StrategyConfig struct {
	ExpiryIndex  int     `yaml:"expiry_index"`
	CEStrikeType string  `yaml:"ce_strike_type"`
	PEStrikeType string  `yaml:"pe_strike_type"`
	StrikeStep   float64 `yaml:"strike_step"`
	Lots         int     `yaml:"lots"`
	// BusyTimeout bounds the wait for the signal lock ("0" waits forever).
	BusyTimeout string `yaml:"busy_timeout"`
}

// NotifyConfig defines the Telegram notification settings. Both fields empty
// disables notifications.
type NotifyConfig struct {
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
}

// StorageConfig defines where the position state file lives.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables so secrets can stay out of the file
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Broker.ExchangeSegment == "" {
		c.Broker.ExchangeSegment = "NSE_FNO"
	}
	if c.Broker.OrderType == "" {
		c.Broker.OrderType = "MARKET"
	}
	if c.Broker.ProductType == "" {
		c.Broker.ProductType = "INTRADAY"
	}
	if c.Webhook.Port == 0 {
		c.Webhook.Port = 8000
	}
	if c.Catalog.URL == "" {
		c.Catalog.URL = defaultCatalogURL
	}
	if c.Catalog.LocalPath == "" {
		c.Catalog.LocalPath = "dhan_instruments_detailed.csv"
	}
	if c.Catalog.HTTPTimeout == "" {
		c.Catalog.HTTPTimeout = "20s"
	}
	if c.Catalog.MaxRetries == 0 {
		c.Catalog.MaxRetries = 3
	}
	if c.Catalog.RetryBackoff == "" {
		c.Catalog.RetryBackoff = "800ms"
	}
	if c.Strategy.CEStrikeType == "" {
		c.Strategy.CEStrikeType = "ITM1"
	}
	if c.Strategy.PEStrikeType == "" {
		c.Strategy.PEStrikeType = "ITM1"
	}
	if c.Strategy.StrikeStep == 0 {
		c.Strategy.StrikeStep = 50
	}
	if c.Strategy.Lots == 0 {
		c.Strategy.Lots = 1
	}
	if c.Strategy.BusyTimeout == "" {
		c.Strategy.BusyTimeout = "0s"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = defaultStatePath
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	if !c.IsPaperTrading() {
		if c.Broker.ClientID == "" {
			return fmt.Errorf("broker.client_id is required in live mode")
		}
		if c.Broker.AccessToken == "" {
			return fmt.Errorf("broker.access_token is required in live mode")
		}
	}

	if c.Webhook.Secret == "" {
		return fmt.Errorf("webhook.secret is required")
	}
	if c.Webhook.Port <= 0 || c.Webhook.Port > 65535 {
		return fmt.Errorf("webhook.port must be in (0,65535]")
	}

	if c.Strategy.ExpiryIndex < 0 {
		return fmt.Errorf("strategy.expiry_index must be >= 0")
	}
	if c.Strategy.StrikeStep <= 0 {
		return fmt.Errorf("strategy.strike_step must be > 0")
	}
	if c.Strategy.Lots <= 0 {
		return fmt.Errorf("strategy.lots must be > 0")
	}
	if _, ok := models.ParseStrikeType(c.Strategy.CEStrikeType); !ok {
		return fmt.Errorf("strategy.ce_strike_type %q invalid (ATM/ITM1/ITM2/OTM1/OTM2)", c.Strategy.CEStrikeType)
	}
	if _, ok := models.ParseStrikeType(c.Strategy.PEStrikeType); !ok {
		return fmt.Errorf("strategy.pe_strike_type %q invalid (ATM/ITM1/ITM2/OTM1/OTM2)", c.Strategy.PEStrikeType)
	}
	if _, err := time.ParseDuration(c.Strategy.BusyTimeout); err != nil {
		return fmt.Errorf("strategy.busy_timeout invalid: %w", err)
	}

	if _, err := time.ParseDuration(c.Catalog.HTTPTimeout); err != nil {
		return fmt.Errorf("catalog.http_timeout invalid: %w", err)
	}
	if _, err := time.ParseDuration(c.Catalog.RetryBackoff); err != nil {
		return fmt.Errorf("catalog.retry_backoff invalid: %w", err)
	}
	if c.Catalog.MaxRetries < 0 {
		return fmt.Errorf("catalog.max_retries must be >= 0")
	}

	if (c.Notify.TelegramBotToken == "") != (c.Notify.TelegramChatID == "") {
		return fmt.Errorf("notify.telegram_bot_token and notify.telegram_chat_id must be set together")
	}

	return nil
}

// IsPaperTrading returns true if the bridge is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// GetBusyTimeout returns the parsed signal-lock wait bound.
func (c *Config) GetBusyTimeout() time.Duration {
	d, err := time.ParseDuration(c.Strategy.BusyTimeout)
	if err != nil {
		return 0
	}
	return d
}

// GetCatalogHTTPTimeout returns the parsed scrip master fetch timeout.
func (c *Config) GetCatalogHTTPTimeout() time.Duration {
	d, err := time.ParseDuration(c.Catalog.HTTPTimeout)
	if err != nil {
		return 20 * time.Second
	}
	return d
}

// GetCatalogRetryBackoff returns the parsed initial retry backoff.
func (c *Config) GetCatalogRetryBackoff() time.Duration {
	d, err := time.ParseDuration(c.Catalog.RetryBackoff)
	if err != nil {
		return 800 * time.Millisecond
	}
	return d
}
