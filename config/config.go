// Package config loads the bot configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/jerbotron/binance-bot/internal/model"
)

// Config stores all configuration for the bot.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Trade   TradeConfig   `mapstructure:"trade"`
	Binance BinanceConfig `mapstructure:"binance"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Journal JournalConfig `mapstructure:"journal"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Alerts  AlertsConfig  `mapstructure:"alerts"`
	Log     LogConfig     `mapstructure:"log"`
}

// TradeConfig defines the strategy settings.
type TradeConfig struct {
	Symbol          string  `mapstructure:"symbol"`
	BBFactor        float64 `mapstructure:"bb_factor"`
	Smoothing       float64 `mapstructure:"smoothing"`
	WindowSize      int     `mapstructure:"window_size"`
	VelWindowSize   int     `mapstructure:"vel_window_size"`
	StopLoss        float64 `mapstructure:"stop_loss"`
	InitialPosition string  `mapstructure:"initial_position"`
	Simulation      bool    `mapstructure:"simulation"`
}

// BinanceConfig defines the exchange API credentials.
type BinanceConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// RedisConfig defines the optional oversight stream settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JournalConfig defines the SQLite fill journal settings.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsConfig defines the metrics/health server settings.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// AlertsConfig defines the Telegram notification settings.
type AlertsConfig struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID string `mapstructure:"telegram_chat_id"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level    string `mapstructure:"level"`
	EventDir string `mapstructure:"event_dir"`
}

// Load reads configuration from path (a directory containing config.yaml)
// with environment variable overrides, then validates it.
func Load(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("TRADEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("trade.bb_factor", 2.0)
	v.SetDefault("trade.smoothing", 2.0)
	v.SetDefault("trade.window_size", 60)
	v.SetDefault("trade.vel_window_size", 5)
	v.SetDefault("trade.stop_loss", 0.01)
	v.SetDefault("trade.initial_position", "BUY")
	v.SetDefault("trade.simulation", true)
	v.SetDefault("journal.path", "tradebot.db")
	v.SetDefault("metrics.addr", ":9101")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.event_dir", "logs")

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("config: read: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that the strategy parameters are usable.
func (c *Config) Validate() error {
	t := c.Trade
	if t.Symbol == "" {
		return fmt.Errorf("config: trade.symbol is required")
	}
	if t.WindowSize < 2 {
		return fmt.Errorf("config: trade.window_size must be >= 2, got %d", t.WindowSize)
	}
	if t.VelWindowSize < 1 || t.VelWindowSize > t.WindowSize {
		return fmt.Errorf("config: trade.vel_window_size must be in [1, window_size], got %d", t.VelWindowSize)
	}
	if t.BBFactor <= 0 {
		return fmt.Errorf("config: trade.bb_factor must be positive, got %v", t.BBFactor)
	}
	if t.StopLoss <= 0 || t.StopLoss >= 1 {
		return fmt.Errorf("config: trade.stop_loss must be in (0, 1), got %v", t.StopLoss)
	}
	if _, err := model.ParsePosition(t.InitialPosition); err != nil {
		return fmt.Errorf("config: trade.initial_position: %w", err)
	}
	if !t.Simulation && (c.Binance.APIKey == "" || c.Binance.APISecret == "") {
		return fmt.Errorf("config: binance credentials are required outside simulation")
	}
	return nil
}

// TradeModel converts the strategy section into the model type used by the
// pipeline.
func (c *Config) TradeModel() (model.TradeConfig, error) {
	pos, err := model.ParsePosition(c.Trade.InitialPosition)
	if err != nil {
		return model.TradeConfig{}, err
	}
	return model.TradeConfig{
		Symbol:        c.Trade.Symbol,
		BBFactor:      c.Trade.BBFactor,
		Smoothing:     c.Trade.Smoothing,
		WindowSize:    c.Trade.WindowSize,
		VelWindowSize: c.Trade.VelWindowSize,
		StopLoss:      c.Trade.StopLoss,
		InitialPos:    pos,
		Simulation:    c.Trade.Simulation,
	}, nil
}
