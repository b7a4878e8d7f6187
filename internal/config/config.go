package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"gas-topup-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig              `mapstructure:"app"`
	Logging   logging.Config         `mapstructure:"logging"`
	Database  DatabaseConfig         `mapstructure:"database"`
	Scheduler SchedulerConfig        `mapstructure:"scheduler"`
	Chains    map[string]ChainConfig `mapstructure:"chains"`
	Watchlist WatchlistConfig        `mapstructure:"watchlist"`
	DeepLink  DeepLinkConfig         `mapstructure:"deeplink"`
	QR        QRConfig               `mapstructure:"qr"`
	Alerting  AlertingConfig         `mapstructure:"alerting"`
	Export    ExportConfig           `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs watchlist pass cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	PassTimeout     time.Duration `mapstructure:"pass_timeout"`
	Workers         int           `mapstructure:"workers"`
}

// ChainConfig describes one supported chain: where to read balances and what
// the threshold policy for it looks like.
type ChainConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	Decimals       int32         `mapstructure:"decimals"`
	MinBalance     float64       `mapstructure:"min_balance"`
	SuggestedTopUp float64       `mapstructure:"suggested_topup"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// WatchlistConfig selects where watch entries come from.
type WatchlistConfig struct {
	Source  string             `mapstructure:"source"`
	Entries []WatchEntryConfig `mapstructure:"entries"`
}

// WatchEntryConfig is a statically configured watch entry.
type WatchEntryConfig struct {
	Address           string  `mapstructure:"address"`
	Chain             string  `mapstructure:"chain"`
	ThresholdOverride float64 `mapstructure:"threshold_override"`
	Label             string  `mapstructure:"label"`
}

// DeepLinkConfig sets the externally served top-up frontend origin.
type DeepLinkConfig struct {
	BaseOrigin string `mapstructure:"base_origin"`
}

// QRConfig tunes QR rendering of deep links.
type QRConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Size    int    `mapstructure:"size"`
	Level   string `mapstructure:"level"`
}

// AlertingConfig defines alert gating and routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram delivery channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TOPUPWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "topupwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x746f7075))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.pass_timeout", "2m")
	v.SetDefault("scheduler.workers", 4)

	v.SetDefault("watchlist.source", "config")

	v.SetDefault("deeplink.base_origin", "https://app.gastopup.example")

	v.SetDefault("qr.enabled", false)
	v.SetDefault("qr.size", 256)
	v.SetDefault("qr.level", "medium")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "1h")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be greater than zero")
	}
	if c.QR.Size <= 0 {
		return fmt.Errorf("qr.size must be greater than zero")
	}
	if c.DeepLink.BaseOrigin == "" {
		return fmt.Errorf("deeplink.base_origin is required")
	}

	switch c.Watchlist.Source {
	case "config", "database":
	default:
		return fmt.Errorf("watchlist.source must be \"config\" or \"database\"")
	}
	if c.Watchlist.Source == "database" && c.Database.DSN == "" {
		return fmt.Errorf("watchlist.source=database requires database.dsn")
	}

	for name, chain := range c.Chains {
		if chain.MinBalance < 0 {
			return fmt.Errorf("chains.%s.min_balance cannot be negative", name)
		}
		if chain.SuggestedTopUp < 0 {
			return fmt.Errorf("chains.%s.suggested_topup cannot be negative", name)
		}
	}

	if c.Alerting.Enabled {
		if c.Alerting.Cooldown <= 0 {
			return fmt.Errorf("alerting.cooldown must be greater than zero")
		}
		// A cooldown at or below the poll interval re-alerts on every pass,
		// which defeats the dedup guarantee.
		if c.Alerting.Cooldown <= c.Scheduler.Interval {
			return fmt.Errorf("alerting.cooldown must exceed scheduler.interval")
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// ChainDecimals returns the configured decimals for a chain, defaulting to
// 18 (native units on every supported EVM chain).
func (cc ChainConfig) ChainDecimals() int32 {
	if cc.Decimals > 0 {
		return cc.Decimals
	}
	return 18
}
