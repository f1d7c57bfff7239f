package configx

import (
	"strings"
	"time"
)

// Config - config interface.
type Config interface {
	GetServiceName() string
	GetVersion() string
	GetEnvironment() string
	GetLoggingConfig() *LoggingConfig
	GetDatabaseConfig() *DatabaseConfig
	IsLocalEnvironment() bool
}

// BaseConfig - bridge configuration struct.
// This struct represents the base configuration for a service embedding the
// sqlite bridge and is expected to be in the following YAML format:
/*
name: "TestApp"
environment: "development"
version: "1.0"
logging:
  level: "debug"
database:
  dsn: "file:app.db?cache=shared"
  minSize: 1
  maxSize: 10
  acquireTimeoutMs: 30000
  recycleSec: -1
*/
type BaseConfig struct {
	Name        string          `mapstructure:"name" validate:"required"`
	Environment string          `mapstructure:"environment"`
	Version     string          `mapstructure:"version"`
	Logging     *LoggingConfig  `mapstructure:"logging"`
	Database    *DatabaseConfig `mapstructure:"database" validate:"required"`
}

// LoggingConfig - logging properties.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// DatabaseConfig - sqlite bridge pool properties.
type DatabaseConfig struct {
	DSN              string `mapstructure:"dsn" validate:"required"`
	MinSize          int    `mapstructure:"minSize" validate:"gte=0"`
	MaxSize          int    `mapstructure:"maxSize" validate:"gte=1"`
	AcquireTimeoutMs int64  `mapstructure:"acquireTimeoutMs" validate:"gte=0"`
	RecycleSec       int64  `mapstructure:"recycleSec" validate:"gte=-1"`
}

// AcquireTimeout - the acquire timeout as a time.Duration.
func (dc *DatabaseConfig) AcquireTimeout() time.Duration {
	return time.Duration(dc.AcquireTimeoutMs) * time.Millisecond
}

// Recycle - the connection recycle age as a time.Duration.
// A negative value disables recycling.
func (dc *DatabaseConfig) Recycle() time.Duration {
	if dc.RecycleSec < 0 {
		return -1
	}

	return time.Duration(dc.RecycleSec) * time.Second
}

func (cfg BaseConfig) GetServiceName() string {
	return cfg.Name
}

func (cfg BaseConfig) GetVersion() string {
	return cfg.Version
}

func (cfg BaseConfig) GetEnvironment() string {
	return cfg.Environment
}

func (cfg BaseConfig) GetLoggingConfig() *LoggingConfig {
	if cfg.Logging == nil {
		return &LoggingConfig{Level: "info"}
	}

	return cfg.Logging
}

func (cfg BaseConfig) GetDatabaseConfig() *DatabaseConfig {
	return cfg.Database
}

func (cfg BaseConfig) IsLocalEnvironment() bool {
	switch strings.ToUpper(cfg.Environment) {
	case "DEV", "STAGE", "PROD":
		return false
	default:
		return true
	}
}
