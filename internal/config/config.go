package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"invoice-reconciler/internal/core"
)

// EnvPrefix namespaces environment overrides, e.g. RECONCILER_SERVER_PORT.
const EnvPrefix = "RECONCILER"

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Matching MatchingConfig `mapstructure:"matching"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	AllowedOrigins string        `mapstructure:"allowed_origins"` // comma-separated; empty disables CORS
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RedisConfig enables the per-invoice distributed lock. An empty address disables it.
type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json or console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

type MatchingConfig struct {
	CandidateWindowDays int             `mapstructure:"candidate_window_days"`
	DefaultTolerance    ToleranceConfig `mapstructure:"default_tolerance"`
}

// ToleranceConfig is the tolerance applied to vendors without their own row.
// Percentages are decimal strings so they round-trip exactly.
type ToleranceConfig struct {
	MatchingMode             string `mapstructure:"matching_mode"`
	PriceTolerancePct        string `mapstructure:"price_tolerance_pct"`
	QuantityTolerancePct     string `mapstructure:"quantity_tolerance_pct"`
	RequirePONumber          bool   `mapstructure:"require_po_number"`
	AutoApprovalThresholdPct string `mapstructure:"auto_approval_threshold_pct"`
}

// Load reads configuration from an optional YAML file and the environment. A .env file in
// the working directory is loaded first when present. configPath may be empty.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Plain DATABASE_URL is honoured when the prefixed key is unset.
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", "")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 30*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output_path", "stdout")

	v.SetDefault("matching.candidate_window_days", core.DefaultCandidateWindowDays)
	v.SetDefault("matching.default_tolerance.matching_mode", string(core.MatchingModeFlexible))
	v.SetDefault("matching.default_tolerance.price_tolerance_pct", "3")
	v.SetDefault("matching.default_tolerance.quantity_tolerance_pct", "5")
	v.SetDefault("matching.default_tolerance.require_po_number", false)
	v.SetDefault("matching.default_tolerance.auto_approval_threshold_pct", "90")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Redis.Address != "" && c.Redis.LockTTL <= 0 {
		return errors.New("redis.lock_ttl must be positive when redis is enabled")
	}
	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}
	if c.Matching.CandidateWindowDays < 0 {
		return errors.New("matching.candidate_window_days must not be negative")
	}
	if _, err := c.Matching.DefaultTolerance.VendorTolerance(); err != nil {
		return err
	}
	return nil
}

// DefaultTolerance converts the configured default into the engine's type.
func (c *Config) DefaultTolerance() core.VendorTolerance {
	t, err := c.Matching.DefaultTolerance.VendorTolerance()
	if err != nil {
		return core.DefaultVendorTolerance()
	}
	return t
}

// VendorTolerance parses the configured percentages.
func (t ToleranceConfig) VendorTolerance() (core.VendorTolerance, error) {
	mode := core.MatchingMode(t.MatchingMode)
	if mode != core.MatchingModeStrict && mode != core.MatchingModeFlexible {
		return core.VendorTolerance{}, fmt.Errorf("matching.default_tolerance.matching_mode must be strict or flexible, got %q", t.MatchingMode)
	}

	parse := func(key, s string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return decimal.Zero, fmt.Errorf("matching.default_tolerance.%s: %w", key, err)
		}
		if d.IsNegative() {
			return decimal.Zero, fmt.Errorf("matching.default_tolerance.%s must not be negative", key)
		}
		return d, nil
	}

	price, err := parse("price_tolerance_pct", t.PriceTolerancePct)
	if err != nil {
		return core.VendorTolerance{}, err
	}
	qty, err := parse("quantity_tolerance_pct", t.QuantityTolerancePct)
	if err != nil {
		return core.VendorTolerance{}, err
	}
	threshold, err := parse("auto_approval_threshold_pct", t.AutoApprovalThresholdPct)
	if err != nil {
		return core.VendorTolerance{}, err
	}

	return core.VendorTolerance{
		MatchingMode:             mode,
		PriceTolerancePct:        price,
		QuantityTolerancePct:     qty,
		RequirePONumber:          t.RequirePONumber,
		AutoApprovalThresholdPct: threshold,
	}, nil
}
