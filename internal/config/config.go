package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port     int    `yaml:"port"`
	DBPath   string `yaml:"dbPath"`
	LogLevel string `yaml:"logLevel"`
	APIKey   string `yaml:"apiKey"`
	// Retention bounds
	MemoryCapPerTopic int `yaml:"memoryCapPerTopic"`
	AssociationCap    int `yaml:"associationCap"`
	// PhraseSeed fixes the transition-phrase RNG; 0 seeds from the clock.
	PhraseSeed int64 `yaml:"phraseSeed"`
}

// Load builds the config from defaults, an optional YAML file named by
// CONVOMEM_CONFIG, and environment variables, in that precedence order.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              8732,
		DBPath:            "/data/convomem.db",
		LogLevel:          "info",
		MemoryCapPerTopic: 10,
		AssociationCap:    20,
	}

	if path := os.Getenv("CONVOMEM_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Port = envInt("PORT", cfg.Port)
	cfg.DBPath = envStr("CONVOMEM_DB_PATH", cfg.DBPath)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)
	cfg.APIKey = envStr("API_KEY", cfg.APIKey)
	cfg.MemoryCapPerTopic = envInt("MEMORY_CAP_PER_TOPIC", cfg.MemoryCapPerTopic)
	cfg.AssociationCap = envInt("ASSOCIATION_CAP", cfg.AssociationCap)
	cfg.PhraseSeed = envInt64("PHRASE_SEED", cfg.PhraseSeed)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("CONVOMEM_DB_PATH must not be empty")
	}
	if c.MemoryCapPerTopic < 1 {
		return fmt.Errorf("MEMORY_CAP_PER_TOPIC must be positive, got %d", c.MemoryCapPerTopic)
	}
	if c.AssociationCap < 1 {
		return fmt.Errorf("ASSOCIATION_CAP must be positive, got %d", c.AssociationCap)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}
