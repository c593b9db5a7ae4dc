package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Application Application `yaml:"application"`
	Server      Server      `yaml:"server"`
	Storage     Storage     `yaml:"storage"`
	Cache       Cache       `yaml:"cache"`
	RateLimit   RateLimit   `yaml:"rate_limit"`
	CORS        CORS        `yaml:"cors"`
	Monitoring  Monitoring  `yaml:"monitoring"`
}

type Application struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

type Server struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"` // 0 keeps long streams open
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Storage struct {
	MarketDataDir string `yaml:"market_data_dir"`
	FileExtension string `yaml:"file_extension"`
	BatchSize     int    `yaml:"batch_size"`
}

type Cache struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

type RateLimit struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Monitoring struct {
	Prometheus PrometheusConfig `yaml:"prometheus"`
}

type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Application: Application{
			Name:     "market-data-server",
			LogLevel: "info",
		},
		Server: Server{
			Address:         "0.0.0.0:3000",
			ReadTimeout:     10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: Storage{
			MarketDataDir: "data/market_data",
			FileExtension: "parquet",
			BatchSize:     1024,
		},
		Cache: Cache{
			TTL: 30 * time.Second,
		},
		RateLimit: RateLimit{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		CORS: CORS{
			AllowedOrigins: []string{"*"},
		},
		Monitoring: Monitoring{
			Prometheus: PrometheusConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Validate checks rules the schema cannot express.
func (c *Config) Validate() error {
	if c.Storage.MarketDataDir == "" {
		return fmt.Errorf("storage.market_data_dir is required")
	}
	if c.Storage.FileExtension == "" {
		return fmt.Errorf("storage.file_extension is required")
	}
	if c.Storage.BatchSize <= 0 {
		return fmt.Errorf("storage.batch_size must be positive, got %d", c.Storage.BatchSize)
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when the cache is enabled")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate_limit.requests_per_second and rate_limit.burst must be positive")
	}
	return nil
}

// Load reads a YAML file over the defaults without schema validation or
// environment overrides. Use LoadConfig for the server.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
