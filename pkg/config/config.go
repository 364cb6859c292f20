// Package config loads the application configuration from file, environment
// or flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds application-wide configuration
type Config struct {
	REST    RESTConfig    `mapstructure:"rest"`
	Schema  SchemaConfig  `mapstructure:"schema"`
	PG      PGConfig      `mapstructure:"pg"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type RESTConfig struct {
	ListenAddr string     `mapstructure:"listenAddr"`
	BaseURL    string     `mapstructure:"baseURL"`
	OIDC       OIDCConfig `mapstructure:"oidc"`
	// PageSize is the default page size; MaxPageSize caps the _pageSize
	// request override.
	PageSize    int `mapstructure:"pageSize"`
	MaxPageSize int `mapstructure:"maxPageSize"`
	// BlobSigningKey enables signed blob URLs when set.
	BlobSigningKey string        `mapstructure:"blobSigningKey"`
	BlobSigningTTL time.Duration `mapstructure:"blobSigningTTL"`
}

type SchemaConfig struct {
	// Dir holds per-dataset schema documents; URLs lists remote documents
	// fetched at startup.
	Dir  string   `mapstructure:"dir"`
	URLs []string `mapstructure:"urls"`
	// Profiles points at the authorization profiles document.
	Profiles string `mapstructure:"profiles"`
}

type PGConfig struct {
	ConnString string `mapstructure:"connString"`
}

type OIDCConfig struct {
	ClientID     string `mapstructure:"clientID"`
	ClientSecret string `mapstructure:"clientSecret"`
	Issuer       string `mapstructure:"issuer"`
	ScopeClaim   string `mapstructure:"scopeClaim"`
}

type MetricsConfig struct {
	ListenAddr string `mapstructure:"listenAddr"`
}

func Default() Config {
	return Config{
		REST: RESTConfig{
			ListenAddr:     ":8080",
			BaseURL:        "http://localhost:8080",
			PageSize:       20,
			MaxPageSize:    1000,
			BlobSigningTTL: 15 * time.Minute,
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9100",
		},
	}
}

// Load reads config from file or environment
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("tablo")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("TABLO")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &cfg, nil
}
