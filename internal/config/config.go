// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PublicBaseURL  string        `yaml:"public_base_url"` // prefix for checkout links
	AdminJWTSecret string        `yaml:"admin_jwt_secret"` // enables /admin routes when set
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type SolanaConfig struct {
	RPCURL         string        `yaml:"rpc_url"`
	ProgramID      string        `yaml:"program_id"`
	Commitment     string        `yaml:"commitment"` // processed|confirmed|finalized
	ConfirmPoll    time.Duration `yaml:"confirm_poll"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	KeypairPath    string        `yaml:"keypair_path"` // solpayctl only
}

type PaylinkConfig struct {
	SignerSecret string        `yaml:"signer_secret"`
	DefaultTTL   time.Duration `yaml:"default_ttl"`
	RateLimit    int           `yaml:"rate_limit"` // generate requests per window per client, 0 disables
	RateWindow   time.Duration `yaml:"rate_window"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type OutboxConfig struct {
	Interval    time.Duration `yaml:"interval"`
	BatchSize   int           `yaml:"batch_size"`
	MinAge      time.Duration `yaml:"min_age"`
	MaxAttempts int           `yaml:"max_attempts"` // 0 retries forever
}

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Solana   SolanaConfig   `yaml:"solana"`
	Paylink  PaylinkConfig  `yaml:"paylink"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Outbox   OutboxConfig   `yaml:"outbox"`

	Runtime RuntimeConfig `yaml:"-"`
}

// ParseFlags reads -config and -dev from the process command line.
func ParseFlags() (string, bool) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()
	return configPath, dev
}

// LoadConfig reads the yaml file at path (a missing file is allowed),
// applies env overrides and defaults, then validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&cfg.Paylink.SignerSecret, "PAY_SIGNER_SECRET")
	override(&cfg.Solana.RPCURL, "SOLANA_RPC_URL")
	override(&cfg.Solana.ProgramID, "SOLPAY_PROGRAM_ID")
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.HTTP.AdminJWTSecret, "ADMIN_JWT_SECRET")
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Solana.RPCURL == "" {
		cfg.Solana.RPCURL = "https://api.devnet.solana.com"
	}
	if cfg.Solana.ProgramID == "" {
		cfg.Solana.ProgramID = "EVBgMcsQdMqHrm2KMscsPUKUsFAcbpJUkAjBSWHGwL8A"
	}
	if cfg.Solana.Commitment == "" {
		cfg.Solana.Commitment = "confirmed"
	}
	if cfg.Solana.ConfirmPoll <= 0 {
		cfg.Solana.ConfirmPoll = 500 * time.Millisecond
	}
	if cfg.Solana.ConfirmTimeout <= 0 {
		cfg.Solana.ConfirmTimeout = 90 * time.Second
	}
	if cfg.Paylink.DefaultTTL <= 0 {
		cfg.Paylink.DefaultTTL = 24 * time.Hour
	}
	if cfg.Paylink.RateWindow <= 0 {
		cfg.Paylink.RateWindow = time.Minute
	}
	if cfg.Outbox.Interval <= 0 {
		cfg.Outbox.Interval = time.Minute
	}
	if cfg.Outbox.BatchSize <= 0 {
		cfg.Outbox.BatchSize = 20
	}
	if cfg.Outbox.MinAge <= 0 {
		cfg.Outbox.MinAge = 30 * time.Second
	}
}

// Validate checks settings that make the process unusable. A missing signer
// secret is not one of them: token endpoints report it per request.
func (c *Config) Validate() error {
	switch c.Solana.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("solana.commitment %q must be processed, confirmed or finalized", c.Solana.Commitment)
	}
	if c.Solana.ProgramID == "" {
		return errors.New("solana.program_id is required")
	}
	if c.Outbox.MaxAttempts < 0 {
		return errors.New("outbox.max_attempts must be >= 0")
	}
	if c.Paylink.RateLimit < 0 {
		return errors.New("paylink.rate_limit must be >= 0")
	}
	return nil
}
