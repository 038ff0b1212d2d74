package application

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"pvsim-cloud/internal/pvmodel"
)

// Config defines service configuration. Environment variables provide the
// baseline; an optional YAML file named by PVSIM_CONFIG overrides it.
type Config struct {
	HTTPAddr         string        `yaml:"http_addr"`
	DatabaseURL      string        `yaml:"database_url"`
	CacheRoot        string        `yaml:"cache_root"`
	PVGISBaseURL     string        `yaml:"pvgis_base_url"`
	NASAPowerBaseURL string        `yaml:"nasa_power_base_url"`
	JWTSecret        string        `yaml:"jwt_secret"`
	RunTimeout       time.Duration `yaml:"run_timeout"`
	ListLimit        int           `yaml:"list_limit"`

	DefaultSystem pvmodel.SystemConfig `yaml:"default_system"`
}

// LoadConfig loads config from env plus optional yaml overlay.
func LoadConfig() (Config, error) {
	cfg := Config{
		HTTPAddr:         getenvDefault("PVSIM_HTTP_ADDR", ":8080"),
		DatabaseURL:      os.Getenv("PVSIM_DATABASE_URL"),
		CacheRoot:        getenvDefault("PVSIM_CACHE_ROOT", filepath.FromSlash("var/cache/weather")),
		PVGISBaseURL:     os.Getenv("PVSIM_PVGIS_BASE_URL"),
		NASAPowerBaseURL: os.Getenv("PVSIM_NASA_POWER_BASE_URL"),
		JWTSecret:        os.Getenv("PVSIM_JWT_SECRET"),
		RunTimeout:       getenvDuration("PVSIM_RUN_TIMEOUT", 5*time.Minute),
		ListLimit:        getenvIntDefault("PVSIM_LIST_LIMIT", 100),
		DefaultSystem:    pvmodel.DefaultSystemConfig(),
	}

	if path := os.Getenv("PVSIM_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.CacheRoot == "" {
		return cfg, errors.New("simulation: cache root required")
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 100
	}
	if err := cfg.DefaultSystem.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
