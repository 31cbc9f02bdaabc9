package config

import (
	"errors"
	"os"
	"time"
)

// ErrMissingDatabaseURL is returned when no database connection string
// could be found in the environment or a config file.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// Config holds application configuration. DatabaseURL is the only
// required field; Redis and Voyage settings enable caching and semantic
// search when present.
type Config struct {
	DatabaseURL  string        `yaml:"database_url" env:"DATABASE_URL"`
	ServerPort   string        `yaml:"server_port" env:"SERVER_PORT"`
	RedisURL     string        `yaml:"redis_url" env:"REDIS_URL"`
	UserAgent    string        `yaml:"user_agent" env:"FETCHER_USER_AGENT"`
	Timeout      time.Duration `yaml:"timeout" env:"FETCHER_TIMEOUT"`
	VoyageAPIKey string        `yaml:"voyage_api_key" env:"VOYAGE_API_KEY"`
	VoyageModel  string        `yaml:"voyage_model" env:"VOYAGE_MODEL"`
}

// Load builds config from environment variables.
// If DATABASE_URL is not set, Load tries to load .env.local and .env from
// the current directory and the executable's directory before giving up.
func Load() (*Config, error) {
	if os.Getenv("DATABASE_URL") == "" {
		loadEnvFiles()
	}
	c := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		ServerPort:   os.Getenv("SERVER_PORT"),
		RedisURL:     os.Getenv("REDIS_URL"),
		UserAgent:    os.Getenv("FETCHER_USER_AGENT"),
		Timeout:      30 * time.Second,
		VoyageAPIKey: os.Getenv("VOYAGE_API_KEY"),
		VoyageModel:  os.Getenv("VOYAGE_MODEL"),
	}
	applyDefaults(c)
	if s := os.Getenv("FETCHER_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			c.Timeout = d
		}
	}
	if c.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	return c, nil
}

func applyDefaults(c *Config) {
	if c.ServerPort == "" {
		c.ServerPort = "8080"
	}
	if c.UserAgent == "" {
		c.UserAgent = "ChannelDock/1.0"
	}
}
