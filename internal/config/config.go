package config

import (
	"fmt"
	"os"

	"github.com/go-yaml/yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const envPrefix = "CASTLINE"

type Config struct {
	Server     Server     `yaml:"server"`
	Moderation Moderation `yaml:"moderation"`
}

type Server struct {
	Listen   string `yaml:"listen" envconfig:"LISTEN"`
	LogLevel string `yaml:"logLevel" envconfig:"LOG_LEVEL"`

	DocumentDriver string `yaml:"documentDriver" envconfig:"DOCUMENT_DRIVER"` // memory, postgres
	CacheDriver    string `yaml:"cacheDriver" envconfig:"CACHE_DRIVER"`       // memory, redis, memcached
	CacheNamespace string `yaml:"cacheNamespace" envconfig:"CACHE_NAMESPACE"`

	PostgresDsn          string `yaml:"postgresDsn" envconfig:"POSTGRES_DSN"`
	PostgresMaxOpenConns int    `yaml:"postgresMaxOpenConns" envconfig:"POSTGRES_MAX_OPEN_CONNS"`
	RedisAddr            string `yaml:"redisAddr" envconfig:"REDIS_ADDR"`
	RedisPassword        string `yaml:"redisPassword" envconfig:"REDIS_PASSWORD"`
	RedisDB              int    `yaml:"redisDB" envconfig:"REDIS_DB"`
	MemcachedAddr        string `yaml:"memcachedAddr" envconfig:"MEMCACHED_ADDR"`
	SignalChannel        string `yaml:"signalChannel" envconfig:"SIGNAL_CHANNEL"`

	EnableTrace   bool   `yaml:"enableTrace" envconfig:"ENABLE_TRACE"`
	TraceEndpoint string `yaml:"traceEndpoint" envconfig:"TRACE_ENDPOINT"`

	RestoreOnStart bool `yaml:"restoreOnStart" envconfig:"RESTORE_ON_START"`
}

type Moderation struct {
	Endpoint string `yaml:"endpoint" envconfig:"ENDPOINT"`
	APIKey   string `yaml:"apiKey" envconfig:"API_KEY"`
}

// Load reads the YAML file at path, applies CASTLINE_* environment overrides
// and resolves defaults. An empty path configures from the environment only.
func Load(path string) (Config, error) {
	var config Config

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, err
		}
		defer file.Close()

		err = yaml.NewDecoder(file).Decode(&config)
		if err != nil {
			return Config{}, errors.Wrapf(err, "decode %s", path)
		}
	}

	if err := envconfig.Process(envPrefix, &config.Server); err != nil {
		return Config{}, errors.Wrap(err, "environment")
	}
	if err := envconfig.Process(envPrefix+"_MODERATION", &config.Moderation); err != nil {
		return Config{}, errors.Wrap(err, "environment")
	}

	if err := config.ResolveDefaults(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// ResolveDefaults fills unset fields and picks drivers from whatever backends
// are configured. Explicit drivers must have their backend configured.
func (c *Config) ResolveDefaults() error {
	s := &c.Server

	if s.Listen == "" {
		s.Listen = ":8000"
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.CacheNamespace == "" {
		s.CacheNamespace = "castline"
	}
	if s.SignalChannel == "" {
		s.SignalChannel = s.CacheNamespace + ":aggregate"
	}
	if s.EnableTrace && s.TraceEndpoint == "" {
		s.TraceEndpoint = "localhost:4318"
	}

	switch s.DocumentDriver {
	case "", "auto":
		s.DocumentDriver = "memory"
		if s.PostgresDsn != "" {
			s.DocumentDriver = "postgres"
		}
	case "memory":
	case "postgres":
		if s.PostgresDsn == "" {
			return fmt.Errorf("documentDriver postgres requires postgresDsn")
		}
	default:
		return fmt.Errorf("unsupported documentDriver: %s", s.DocumentDriver)
	}

	switch s.CacheDriver {
	case "", "auto":
		switch {
		case s.RedisAddr != "":
			s.CacheDriver = "redis"
		case s.MemcachedAddr != "":
			s.CacheDriver = "memcached"
		default:
			s.CacheDriver = "memory"
		}
	case "memory":
	case "redis":
		if s.RedisAddr == "" {
			return fmt.Errorf("cacheDriver redis requires redisAddr")
		}
	case "memcached":
		if s.MemcachedAddr == "" {
			return fmt.Errorf("cacheDriver memcached requires memcachedAddr")
		}
	default:
		return fmt.Errorf("unsupported cacheDriver: %s", s.CacheDriver)
	}

	return nil
}
