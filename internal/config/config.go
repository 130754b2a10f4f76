// Package config resolves runtime settings from flags, environment, an
// optional config file, saved settings and defaults, in that order.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/valpere/stran/internal/translator"
)

const EnvPrefix = "STRAN"

// Keys understood by Load. Flag names use dashes in place of underscores.
const (
	KeyService       = "service"
	KeyAPIKey        = "api_key"
	KeyBaseURL       = "base_url"
	KeyModel         = "model"
	KeyCredentials   = "credentials"
	KeySourceLang    = "source_lang"
	KeyTargetLang    = "target_lang"
	KeyJobTimeout    = "job_timeout"
	KeyWorkerTimeout = "worker_timeout"
	KeyPlaceholder   = "placeholder"
	KeyDB            = "db"
	KeyDropStale     = "drop_stale"
	KeyWorker        = "worker"
	KeyCache         = "cache"
)

var keys = []string{
	KeyService, KeyAPIKey, KeyBaseURL, KeyModel, KeyCredentials,
	KeySourceLang, KeyTargetLang, KeyJobTimeout, KeyWorkerTimeout,
	KeyPlaceholder, KeyDB, KeyDropStale, KeyWorker, KeyCache,
}

// Saved lists the keys that may be persisted with "stran config set".
var Saved = []string{KeyAPIKey, KeyTargetLang}

// Services names the backends buildable from a Config.
var Services = []string{"openai", "ollama", "google"}

// Config is the resolved configuration.
type Config struct {
	Service       string        `mapstructure:"service"`
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Model         string        `mapstructure:"model"`
	Credentials   string        `mapstructure:"credentials"`
	SourceLang    string        `mapstructure:"source_lang"`
	TargetLang    string        `mapstructure:"target_lang"`
	JobTimeout    time.Duration `mapstructure:"job_timeout"`
	WorkerTimeout time.Duration `mapstructure:"worker_timeout"`
	Placeholder   string        `mapstructure:"placeholder"`
	DB            string        `mapstructure:"db"`
	DropStale     bool          `mapstructure:"drop_stale"`
	Worker        string        `mapstructure:"worker"`
	Cache         bool          `mapstructure:"cache"`
}

// Settings is the persisted key/value store consulted below the
// environment and above the defaults.
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyService, "openai")
	v.SetDefault(KeyTargetLang, translator.DefaultTargetLang)
	v.SetDefault(KeyJobTimeout, 60*time.Second)
	v.SetDefault(KeyWorkerTimeout, 60*time.Second)
	v.SetDefault(KeyPlaceholder, "Translating...")
	v.SetDefault(KeyDB, "./data/stran.db")
	v.SetDefault(KeyDropStale, false)
	v.SetDefault(KeyCache, false)
}

// FlagName is the command-line spelling of key.
func FlagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// Load resolves the configuration. cfgFile, flags and settings are all
// optional.
func Load(ctx context.Context, cfgFile string, flags *pflag.FlagSet, settings Settings) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if settings != nil {
		for _, key := range Saved {
			val, ok, err := settings.GetSetting(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("failed to read saved setting %s: %w", key, err)
			}
			if ok && val != "" {
				v.SetDefault(key, val)
			}
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if flags != nil {
		for _, key := range keys {
			if f := flags.Lookup(FlagName(key)); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later and further from
// their source.
func (c *Config) Validate() error {
	known := false
	for _, s := range Services {
		if c.Service == s {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown service %q (want one of %s)", c.Service, strings.Join(Services, ", "))
	}
	if c.JobTimeout < 0 || c.WorkerTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Worker != "" && !strings.HasPrefix(c.Worker, "ws://") && !strings.HasPrefix(c.Worker, "wss://") {
		return fmt.Errorf("worker URL must use ws:// or wss://, got %q", c.Worker)
	}
	return nil
}

// IsSaved reports whether key may be persisted.
func IsSaved(key string) bool {
	for _, k := range Saved {
		if k == key {
			return true
		}
	}
	return false
}
