// Package config loads the products service configuration from, in rising
// priority: built-in defaults, config.yaml, .env, and PRODUCTS_* variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"ProductStore/pkg/kit"
)

const EnvPrefix = "PRODUCTS_"

type HTTPConfig struct {
	Port              int           `koanf:"port"`
	ReadHeaderTimeout time.Duration `koanf:"readheadertimeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdowntimeout"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Token   string `koanf:"token"`
}

type DatabaseConfig struct {
	// Empty selects the in-memory store.
	URL string `koanf:"url"`
}

type StoreConfig struct {
	Seed bool `koanf:"seed"`
}

type RateLimitConfig struct {
	// RPS <= 0 disables limiting of mutating routes.
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
	// Peers allowed to set X-Forwarded-For, as CIDRs or addresses.
	TrustedProxies []string `koanf:"trustedproxies"`
}

type Config struct {
	HTTP      HTTPConfig      `koanf:"http"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Database  DatabaseConfig  `koanf:"database"`
	Store     StoreConfig     `koanf:"store"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

func defaults() map[string]any {
	return map[string]any{
		"http.port":              8080,
		"http.readheadertimeout": "5s",
		"http.shutdowntimeout":   "10s",
		"log.level":              "info",
		"metrics.enabled":        false,
		"store.seed":             true,
		"ratelimit.rps":          0,
		"ratelimit.burst":        10,
	}
}

type Options struct {
	File    string
	EnvFile string
}

func DefaultOptions() Options {
	return Options{File: "config.yaml", EnvFile: ".env"}
}

// Load merges every source into a Config and validates it. Missing files are
// not an error.
func Load(opts Options) (Config, error) {
	var cfg Config
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return cfg, fmt.Errorf("load defaults: %w", err)
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", opts.File, err)
		}
	}

	if opts.EnvFile != "" {
		envFile, err := godotenv.Read(opts.EnvFile)
		switch {
		case err == nil:
			m := make(map[string]any, len(envFile))
			for key, value := range envFile {
				if strings.HasPrefix(key, EnvPrefix) {
					m[envKey(key)] = value
				}
			}
			if err := k.Load(confmap.Provider(m, "."), nil); err != nil {
				return cfg, fmt.Errorf("load %s: %w", opts.EnvFile, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return cfg, fmt.Errorf("read %s: %w", opts.EnvFile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return cfg, fmt.Errorf("load env: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps PRODUCTS_HTTP_PORT to http.port.
func envKey(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "_", ".")
}

func (c Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTP.Port)
	}
	if c.HTTP.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("invalid http read header timeout: %v", c.HTTP.ReadHeaderTimeout)
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid http shutdown timeout: %v", c.HTTP.ShutdownTimeout)
	}
	if c.Metrics.Enabled && len(c.Metrics.Token) < 16 {
		return errors.New("metrics token must be at least 16 chars when metrics are enabled")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("invalid rate limit burst: %d", c.RateLimit.Burst)
	}
	if _, err := kit.ParseTrustedProxies(c.RateLimit.TrustedProxies); err != nil {
		return fmt.Errorf("ratelimit.trustedproxies: %w", err)
	}
	return nil
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}

// String renders the config for startup logs with secrets masked.
func (c Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "http.port=%d http.readheadertimeout=%s http.shutdowntimeout=%s ",
		c.HTTP.Port, c.HTTP.ReadHeaderTimeout, c.HTTP.ShutdownTimeout)
	fmt.Fprintf(&b, "log.level=%s metrics.enabled=%t ", c.Log.Level, c.Metrics.Enabled)
	fmt.Fprintf(&b, "database.url=%s store.seed=%t ", maskURL(c.Database.URL), c.Store.Seed)
	fmt.Fprintf(&b, "ratelimit.rps=%g ratelimit.burst=%d ratelimit.trustedproxies=%s",
		c.RateLimit.RPS, c.RateLimit.Burst, strings.Join(c.RateLimit.TrustedProxies, ","))
	return b.String()
}

func maskURL(url string) string {
	if url == "" {
		return "<memory>"
	}
	if _, host, ok := strings.Cut(url, "@"); ok {
		return "****@" + host
	}
	return "****"
}
