// Package config provides configuration management using viper.
// It supports loading from YAML files, an optional .env file and
// environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fundraising-escrow/internal/model"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Bot      BotConfig      `mapstructure:"bot"`
	Platform PlatformConfig `mapstructure:"platform"`
	Keeper   KeeperConfig   `mapstructure:"keeper"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds Redis connection configuration. An empty Addr disables
// the event stream sink and rate limiting.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// HTTPConfig holds the API server configuration.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	JoinRateLimit   int           `mapstructure:"join_rate_limit"`
	JoinRateWindow  time.Duration `mapstructure:"join_rate_window"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BotConfig holds Telegram notifier configuration. An empty Token disables it.
type BotConfig struct {
	Token string  `mapstructure:"token"`
	Chats []int64 `mapstructure:"chats"`
}

// PlatformConfig seeds the platform record on first start.
type PlatformConfig struct {
	Admin            string   `mapstructure:"admin"`
	UpgradeAuthority string   `mapstructure:"upgrade_authority"`
	PlatformWallet   string   `mapstructure:"platform_wallet"`
	CharityWallet    string   `mapstructure:"charity_wallet"`
	PlatformFeeBps   uint16   `mapstructure:"platform_fee_bps"`
	MaxHostFeeBps    uint16   `mapstructure:"max_host_fee_bps"`
	MaxPrizePoolBps  uint16   `mapstructure:"max_prize_pool_bps"`
	MinCharityBps    uint16   `mapstructure:"min_charity_bps"`
	ApprovedAssets   []string `mapstructure:"approved_assets"`
}

// KeeperConfig holds the expired-room keeper configuration.
type KeeperConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Address  string        `mapstructure:"address"`
	Batch    int           `mapstructure:"batch"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g., DATABASE_HOST, PLATFORM_ADMIN, HTTP_JWT_SECRET
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "escrow")
	v.SetDefault("database.name", "escrow")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("redis.stream", "escrow:events")
	v.SetDefault("redis.max_len", 100000)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.join_rate_limit", 30)
	v.SetDefault("http.join_rate_window", "1m")
	v.SetDefault("http.shutdown_timeout", "10s")

	// Keys without a real default are still registered so env overrides apply.
	for _, key := range []string{
		"database.password", "redis.addr", "redis.password", "http.jwt_secret", "bot.token",
		"platform.admin", "platform.upgrade_authority", "platform.platform_wallet", "platform.charity_wallet",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("platform.approved_assets", []string{})

	// Platform economics defaults
	v.SetDefault("platform.platform_fee_bps", 2000)
	v.SetDefault("platform.max_host_fee_bps", 500)
	v.SetDefault("platform.max_prize_pool_bps", 3500)
	v.SetDefault("platform.min_charity_bps", 4000)

	v.SetDefault("keeper.enabled", false)
	v.SetDefault("keeper.interval", "1m")
	v.SetDefault("keeper.address", "keeper")
	v.SetDefault("keeper.batch", 50)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	if c.Platform.Admin == "" {
		return fmt.Errorf("platform.admin is required")
	}
	if c.Platform.PlatformWallet == "" || c.Platform.CharityWallet == "" {
		return fmt.Errorf("platform.platform_wallet and platform.charity_wallet are required")
	}
	if c.HTTP.JWTSecret == "" {
		return fmt.Errorf("http.jwt_secret is required")
	}
	return nil
}

// FeePolicy returns the configured fee policy.
func (p *PlatformConfig) FeePolicy() model.FeePolicy {
	return model.FeePolicy{
		PlatformFeeBps:  p.PlatformFeeBps,
		MaxHostFeeBps:   p.MaxHostFeeBps,
		MaxPrizePoolBps: p.MaxPrizePoolBps,
		MinCharityBps:   p.MinCharityBps,
	}
}

// Seed builds the initial platform record from configuration.
func (p *PlatformConfig) Seed() *model.PlatformConfig {
	assets := make([]model.AssetType, 0, len(p.ApprovedAssets))
	for _, a := range p.ApprovedAssets {
		if a = strings.TrimSpace(a); a != "" {
			assets = append(assets, model.AssetType(a))
		}
	}
	return &model.PlatformConfig{
		Admin:            model.Address(p.Admin),
		UpgradeAuthority: model.Address(p.UpgradeAuthority),
		PlatformWallet:   model.Address(p.PlatformWallet),
		CharityWallet:    model.Address(p.CharityWallet),
		Policy:           p.FeePolicy(),
		ApprovedAssets:   assets,
	}
}

// IsChatAllowed checks if a chat ID is in the bot whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Bot.Chats) == 0 {
		return true
	}
	for _, id := range c.Bot.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
