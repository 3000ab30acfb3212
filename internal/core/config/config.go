// Package config provides configuration management for SmartFolder services.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ServiceConfig holds configuration for the folder service and its gRPC API.
type ServiceConfig struct {
	Host               string
	Port               int
	RequestTimeout     time.Duration
	DBURL              string
	DataDir            string
	MaxDocuments       int
	RefreshInterval    time.Duration
	RefreshConcurrency int
	LogLevel           string
	LogFormat          string
}

// DefaultServiceConfig returns configuration with default values.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Host:               "0.0.0.0",
		Port:               50061,
		RequestTimeout:     30 * time.Second,
		DBURL:              "sqlite://./data/smartfolder.db",
		DataDir:            "./data",
		MaxDocuments:       1000,
		RefreshInterval:    30 * time.Second,
		RefreshConcurrency: 4,
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

// Addr returns the host:port the gRPC server listens on.
func (c *ServiceConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks port range, positive limits and known log settings.
func (c *ServiceConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.MaxDocuments <= 0 {
		return fmt.Errorf("max_documents must be positive, got %d", c.MaxDocuments)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh.interval must be positive, got %v", c.RefreshInterval)
	}
	if c.RefreshConcurrency <= 0 {
		return fmt.Errorf("refresh.concurrency must be positive, got %d", c.RefreshConcurrency)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// hasPassword reports whether a database URL embeds a password.
func hasPassword(dbURL string) bool {
	u, err := url.Parse(dbURL)
	if err != nil || u.User == nil {
		return false
	}
	_, ok := u.User.Password()
	return ok
}
