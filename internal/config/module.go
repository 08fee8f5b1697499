// Package config provides the application configuration structures and the
// loader that assembles them from defaults, embedded YAML and environment
// variables. This file defines the Fx providers.
package config

import "go.uber.org/fx"

// NewJobConfigProvider extracts and provides *JobConfig from *Config, so job
// components can depend on the job settings alone.
func NewJobConfigProvider(cfg *Config) *JobConfig {
	return &cfg.Pedalmetry.Job
}

// NewDatabaseConfigProvider extracts and provides *DatabaseConfig from *Config.
func NewDatabaseConfigProvider(cfg *Config) *DatabaseConfig {
	return &cfg.Pedalmetry.Database
}

// NewStorageConfigProvider extracts and provides *StorageConfig from *Config.
func NewStorageConfigProvider(cfg *Config) *StorageConfig {
	return &cfg.Pedalmetry.Storage
}

// Module provides configuration-related components to Fx.
var Module = fx.Options(
	fx.Provide(NewConfigProvider),
	fx.Provide(NewJobConfigProvider),
	fx.Provide(NewDatabaseConfigProvider),
	fx.Provide(NewStorageConfigProvider),
)
