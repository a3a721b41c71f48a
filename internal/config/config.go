package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ShopToken struct {
	Shop  string `mapstructure:"shop"`
	Token string `mapstructure:"token"`
}

type ShopifyConfig struct {
	APIVersion   string        `mapstructure:"api_version"`
	APIKey       string        `mapstructure:"api_key"`
	APISecret    string        `mapstructure:"api_secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
	AccessTokens []ShopToken   `mapstructure:"access_tokens"`
}

// TokenFor returns the offline access token configured for shop.
func (c ShopifyConfig) TokenFor(shop string) (string, bool) {
	for _, t := range c.AccessTokens {
		if strings.EqualFold(strings.TrimSpace(t.Shop), strings.TrimSpace(shop)) && t.Token != "" {
			return t.Token, true
		}
	}
	return "", false
}

type BulkConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
	CancelGrace  time.Duration `mapstructure:"cancel_grace"`
}

type CatalogConfig struct {
	PageSize int `mapstructure:"page_size"`
}

type StorageConfig struct {
	BucketURL string `mapstructure:"bucket_url"`
	Prefix    string `mapstructure:"prefix"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type Config struct {
	DatabaseURL string         `mapstructure:"database_url"`
	ServerPort  string         `mapstructure:"server_port"`
	Shopify     ShopifyConfig  `mapstructure:"shopify"`
	Bulk        BulkConfig     `mapstructure:"bulk"`
	Catalog     CatalogConfig  `mapstructure:"catalog"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Temporal    TemporalConfig `mapstructure:"temporal"`
	Metrics     MetricsConfig  `mapstructure:"metrics"`
	CORS        CORSConfig     `mapstructure:"cors"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	cfg, err := LoadFrom(viper.New())
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	return cfg
}

// LoadFrom reads config.yaml from . or ./config through v, applying PRICESYNC_* env
// overrides and defaults.
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("pricesync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_port", "8080")
	v.SetDefault("shopify.api_version", "2025-01")
	v.SetDefault("shopify.timeout", 30*time.Second)
	v.SetDefault("bulk.poll_interval", 2*time.Second)
	v.SetDefault("bulk.max_wait", 30*time.Minute)
	v.SetDefault("bulk.cancel_grace", time.Second)
	v.SetDefault("catalog.page_size", 250)
	v.SetDefault("storage.bucket_url", "mem://")
	v.SetDefault("storage.prefix", "exports/")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "PRICESYNC_BULK")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
}
