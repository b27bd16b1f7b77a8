package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every setting the bot needs. Secrets are read from the yaml
// file first and may be overridden by environment variables, so the file can
// be committed without the token.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Platform struct {
		BaseURL   string `yaml:"base_url"`
		Token     string `yaml:"token"`
		HouseUser string `yaml:"house_user"`
	} `yaml:"platform"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Exchange struct {
		DefaultOrderTTL int `yaml:"default_order_ttl"`
	} `yaml:"exchange"`

	Serve struct {
		TickIntervalMin int    `yaml:"tick_interval_min"`
		ListenAddr      string `yaml:"listen_addr"`
	} `yaml:"serve"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Platform.BaseURL == "" || (!strings.HasPrefix(c.Platform.BaseURL, "http://") && !strings.HasPrefix(c.Platform.BaseURL, "https://")) {
		return fmt.Errorf("invalid platform base URL: %s", c.Platform.BaseURL)
	}
	if c.Platform.HouseUser == "" {
		return fmt.Errorf("house user is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Exchange.DefaultOrderTTL <= 0 {
		return fmt.Errorf("default order TTL must be positive")
	}
	if c.Serve.TickIntervalMin <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	return nil
}

// overrideWithEnv applies environment variable overrides for secrets.
func overrideWithEnv(cfg *Config) {
	if token := os.Getenv("HMSE_PLATFORM_TOKEN"); token != "" {
		cfg.Platform.Token = token
	}
	if url := os.Getenv("HMSE_PLATFORM_URL"); url != "" {
		cfg.Platform.BaseURL = url
	}
	if path := os.Getenv("HMSE_DATABASE_PATH"); path != "" {
		cfg.Database.Path = path
	}
}
