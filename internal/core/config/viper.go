package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"host":                "server.host",
	"port":                "server.port",
	"db-url":              "database.url",
	"log-level":           "log.level",
	"log-format":          "log.format",
	"refresh-interval":    "refresh.interval",
	"refresh-concurrency": "refresh.concurrency",
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
// flags may be nil; only flags the user changed take effect.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*ServiceConfig, error) {
	v := viper.New()

	// Set defaults matching DefaultServiceConfig
	d := DefaultServiceConfig()
	v.SetDefault("server.host", d.Host)
	v.SetDefault("server.port", d.Port)
	v.SetDefault("server.request_timeout", d.RequestTimeout.String())
	v.SetDefault("database.url", d.DBURL)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("engine.max_documents", d.MaxDocuments)
	v.SetDefault("refresh.interval", d.RefreshInterval.String())
	v.SetDefault("refresh.concurrency", d.RefreshConcurrency)
	v.SetDefault("log.level", d.LogLevel)
	v.SetDefault("log.format", d.LogFormat)

	// Bind environment variables with SF_ prefix
	v.SetEnvPrefix("SF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := validateNoSecretsInConfig(configPath); err != nil {
			return nil, err
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag --%s: %w", name, err)
			}
		}
	}

	cfg := &ServiceConfig{
		Host:               v.GetString("server.host"),
		Port:               v.GetInt("server.port"),
		RequestTimeout:     v.GetDuration("server.request_timeout"),
		DBURL:              v.GetString("database.url"),
		DataDir:            v.GetString("data_dir"),
		MaxDocuments:       v.GetInt("engine.max_documents"),
		RefreshInterval:    v.GetDuration("refresh.interval"),
		RefreshConcurrency: v.GetInt("refresh.concurrency"),
		LogLevel:           v.GetString("log.level"),
		LogFormat:          v.GetString("log.format"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateNoSecretsInConfig enforces environment-only database passwords.
// The file is read on its own so environment overrides do not mask it.
func validateNoSecretsInConfig(configPath string) error {
	fv := viper.New()
	fv.SetConfigFile(configPath)
	if err := fv.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if hasPassword(fv.GetString("database.url")) {
		return fmt.Errorf("database passwords not allowed in config files (use SF_DATABASE_URL environment variable)")
	}
	return nil
}
