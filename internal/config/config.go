// Package config loads the extractor configuration from defaults, an
// optional YAML file, .env files, KLAVIYO_* environment variables and
// command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/klaviyo-extractor/pkg/client"
	"github.com/Sternrassler/klaviyo-extractor/pkg/extract"
	"github.com/Sternrassler/klaviyo-extractor/pkg/logging"
	"github.com/Sternrassler/klaviyo-extractor/pkg/pagination"
	"github.com/Sternrassler/klaviyo-extractor/pkg/ratelimit"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. KLAVIYO_API_KEY.
const EnvPrefix = "KLAVIYO"

// Config is the complete extractor configuration.
type Config struct {
	APIKey         string        `mapstructure:"api_key" validate:"required"`
	Revision       string        `mapstructure:"revision" validate:"required"`
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	Tier           string        `mapstructure:"tier" validate:"required,oneof=small medium large xl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`

	// RunTimeout bounds a whole extraction; zero disables it.
	RunTimeout time.Duration `mapstructure:"run_timeout" validate:"gte=0"`

	Workers    int           `mapstructure:"workers" validate:"gte=1,lte=32"`
	TopFlows   int           `mapstructure:"top_flows" validate:"gte=1,lte=50"`
	BatchSize  int           `mapstructure:"batch_size" validate:"gte=1,lte=100"`
	BatchPause time.Duration `mapstructure:"batch_pause" validate:"gte=0"`

	Redis RedisConfig `mapstructure:"redis"`
	Log   LogConfig   `mapstructure:"log"`

	MetricsAddr string `mapstructure:"metrics_addr"`
}

// RedisConfig enables the response cache and quota tracker when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Pretty bool   `mapstructure:"pretty"`
	File   string `mapstructure:"file"`
}

// Options control where Load looks.
type Options struct {
	// ConfigFile is an optional YAML file.
	ConfigFile string

	// EnvFiles are loaded into the environment first; missing files are
	// ignored. Defaults to ".env".
	EnvFiles []string

	// Flags maps configuration keys to command-line flags. A flag only
	// overrides the key when it was set explicitly.
	Flags map[string]*pflag.Flag
}

func setDefaults(v *viper.Viper) {
	defaults := client.DefaultConfig(client.Credential{})
	retry := client.DefaultRetryPolicy()
	batch := pagination.DefaultConfig()

	v.SetDefault("api_key", "")
	v.SetDefault("revision", client.DefaultRevision)
	v.SetDefault("base_url", client.DefaultBaseURL)
	v.SetDefault("tier", string(ratelimit.TierMedium))
	v.SetDefault("request_timeout", defaults.RequestTimeout)
	v.SetDefault("max_retries", retry.MaxRetries)
	v.SetDefault("run_timeout", 10*time.Minute)
	v.SetDefault("workers", extract.DefaultConfig().Workers)
	v.SetDefault("top_flows", extract.DefaultOptions().TopFlows)
	v.SetDefault("batch_size", batch.BatchSize)
	v.SetDefault("batch_pause", batch.Pause)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", defaults.CacheTTL)
	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.file", "")
	v.SetDefault("metrics_addr", "")
}

// Load reads, merges and validates the configuration.
func Load(opts Options) (*Config, *viper.Viper, error) {
	envFiles := opts.EnvFiles
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// Existing environment variables win over .env entries.
		_ = godotenv.Load(f)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	for key, flag := range opts.Flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, nil, fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, v, nil
}

// Budget returns the rate budget of the configured tier.
func (c *Config) Budget() (ratelimit.Budget, error) {
	return ratelimit.TierBudget(c.Tier)
}

// Client returns the client configuration. Redis is left for the caller to
// attach.
func (c *Config) Client() (client.Config, error) {
	budget, err := c.Budget()
	if err != nil {
		return client.Config{}, err
	}

	cfg := client.DefaultConfig(client.Credential{Token: c.APIKey, Revision: c.Revision})
	cfg.BaseURL = c.BaseURL
	cfg.Budget = budget
	cfg.RequestTimeout = c.RequestTimeout
	cfg.Retry.MaxRetries = c.MaxRetries
	cfg.CacheTTL = c.Redis.CacheTTL
	return cfg, nil
}

// Extract returns the extractor options.
func (c *Config) Extract() extract.Options {
	opts := extract.DefaultOptions()
	opts.TopFlows = c.TopFlows
	opts.Batch = pagination.Config{BatchSize: c.BatchSize, Pause: c.BatchPause}
	if c.BatchPause == 0 {
		// Zero means no pause; the batcher reads zero as "default".
		opts.Batch.Pause = -1
	}
	return opts
}

// Orchestrator returns the orchestrator configuration.
func (c *Config) Orchestrator() extract.Config {
	return extract.Config{Workers: c.Workers}
}

// Logging returns the logging configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	cfg.File.Path = c.Log.File
	return cfg
}

// String renders the configuration with the API key masked.
func (c *Config) String() string {
	return fmt.Sprintf("tier=%s revision=%s base_url=%s api_key=%s redis=%q workers=%d",
		c.Tier, c.Revision, c.BaseURL, logging.MaskToken(c.APIKey), c.Redis.Addr, c.Workers)
}
