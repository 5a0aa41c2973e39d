package config

import (
	"errors"
	"fmt"
	"os"

	"terrana/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Backend    BackendConfig    `yaml:"backend"`
	Stripe     StripeConfig     `yaml:"stripe"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// BackendConfig points at the reservation API that owns all persistence.
type BackendConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RPS            float64 `yaml:"rps"`
	Burst          int     `yaml:"burst"`
}

type StripeConfig struct {
	SecretKey string `yaml:"secret_key"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	AuthKey   string             `yaml:"auth_key"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BookingConfig struct {
	TerrainIDs          []int64 `yaml:"terrain_ids"`
	MaxDaily            int     `yaml:"max_daily"`
	Currency            string  `yaml:"currency"`
	CacheTTLSeconds     int     `yaml:"cache_ttl_seconds"`
	ForceRefreshMinutes int     `yaml:"force_refresh_minutes"`
	QuotaRefreshMinutes int     `yaml:"quota_refresh_minutes"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; config values reference it via ${VAR} expansion.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend base_url is required")
	}

	if c.Stripe.SecretKey == "" || c.Stripe.SecretKey == "YOUR_STRIPE_KEY_HERE" {
		return errors.New("stripe secret key is required")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = 10
	}

	// Booking defaults
	if c.Booking.MaxDaily == 0 {
		c.Booking.MaxDaily = models.MaxDailyReservations
	}
	if c.Booking.Currency == "" {
		c.Booking.Currency = "MAD"
	}
	if c.Booking.CacheTTLSeconds == 0 {
		c.Booking.CacheTTLSeconds = models.AvailabilityTTLSeconds
	}
	if c.Booking.ForceRefreshMinutes == 0 {
		c.Booking.ForceRefreshMinutes = models.ForceRefreshMinutes
	}
	if c.Booking.QuotaRefreshMinutes == 0 {
		c.Booking.QuotaRefreshMinutes = models.QuotaRefreshMinutes
	}
}
