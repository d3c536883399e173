package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress  string `toml:"ListenAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	OutboxPath     string `toml:"OutboxPath"`
	GatewayDBPath  string `toml:"GatewayDBPath"`
	JWTSecret      string `toml:"JWTSecret"`
	Environment    string `toml:"Environment"`

	FarmerBps uint32 `toml:"FarmerBps"`

	PickupTTL   string `toml:"PickupTTL"`
	DeliveryTTL string `toml:"DeliveryTTL"`

	RateLimitPerMinute int `toml:"RateLimitPerMinute"`
	RateLimitBurst     int `toml:"RateLimitBurst"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8080"
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./agroledger-data"
	}
	if strings.TrimSpace(c.OutboxPath) == "" {
		c.OutboxPath = filepath.Join(c.DataDir, "outbox.db")
	}
	if strings.TrimSpace(c.GatewayDBPath) == "" {
		c.GatewayDBPath = filepath.Join(c.DataDir, "gateway.db")
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "development"
	}
	if c.FarmerBps == 0 {
		c.FarmerBps = 8500
	}
	if strings.TrimSpace(c.PickupTTL) == "" {
		c.PickupTTL = "72h"
	}
	if strings.TrimSpace(c.DeliveryTTL) == "" {
		c.DeliveryTTL = "168h"
	}
	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = 120
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 30
	}
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	if c.FarmerBps == 0 || c.FarmerBps > 10000 {
		return fmt.Errorf("config: FarmerBps must be in (0, 10000], got %d", c.FarmerBps)
	}
	if _, err := c.PickupExpiry(); err != nil {
		return fmt.Errorf("config: invalid PickupTTL: %w", err)
	}
	if _, err := c.DeliveryExpiry(); err != nil {
		return fmt.Errorf("config: invalid DeliveryTTL: %w", err)
	}
	if c.Environment == "production" && strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("config: JWTSecret is required in production")
	}
	return nil
}

// PickupExpiry returns the pickup fulfillment deadline as a duration.
func (c *Config) PickupExpiry() (time.Duration, error) {
	d, err := time.ParseDuration(c.PickupTTL)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", c.PickupTTL)
	}
	return d, nil
}

// DeliveryExpiry returns the delivery fulfillment deadline as a duration.
func (c *Config) DeliveryExpiry() (time.Duration, error) {
	d, err := time.ParseDuration(c.DeliveryTTL)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", c.DeliveryTTL)
	}
	return d, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
