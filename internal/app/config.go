package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (DISCOUNT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (DISCOUNT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Cache       CacheConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// CacheConfig controls the read-through caches in front of PostgreSQL.
type CacheConfig struct {
	AutomaticTTL   time.Duration `default:"30s" usage:"How long automatic discounts are cached; 0 disables caching" flag:"automatic-ttl"`
	CodeCapacity   uint          `default:"1000000" usage:"Expected number of codes sized into the bloom filter" flag:"code-capacity"`
	CodeFPRate     float64       `default:"0.001" usage:"Bloom filter false positive rate" flag:"code-fp-rate"`
	CodeRefresh    time.Duration `default:"0" usage:"Interval between bloom filter rebuilds and the longest a new code can be reported missing; 0 disables the filter" flag:"code-refresh"`
	HealthInterval time.Duration `default:"10s" usage:"Interval between background health checks" flag:"health-interval"`
}

// RateLimitConfig controls the per-client token bucket limiter on /api.
type RateLimitConfig struct {
	Rate    float64       `default:"20" usage:"Sustained requests per second per client"`
	Burst   int           `default:"40" usage:"Burst size per client"`
	IdleTTL time.Duration `default:"10m" usage:"Evict idle clients after this duration" flag:"rate-limit-idle-ttl"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "DISCOUNT",
		Files:     []string{"config.yaml", "/etc/discount/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set DISCOUNT_DATABASE_URL or DATABASE_URL")
	case c.Cache.CodeRefresh > 0 && (c.Cache.CodeFPRate <= 0 || c.Cache.CodeFPRate >= 1):
		return errors.Errorf("code filter false positive rate %v out of range (0, 1)", c.Cache.CodeFPRate)
	case c.RateLimit.Rate <= 0:
		return errors.Errorf("rate limit %v must be positive", c.RateLimit.Rate)
	}
	return nil
}

// applyPlatformDefaults maps the DATABASE_URL and PORT variables set by
// hosting platforms onto the DISCOUNT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
