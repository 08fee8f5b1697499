package config

// Package config provides structures and utilities for managing application configuration.

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelFatal  LogLevel = "FATAL"
	LogLevelSilent LogLevel = "SILENT"
)

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the civil timezone the pipeline buckets hours in.
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// JobConfig holds the settings of the demand feature job itself.
type JobConfig struct {
	// Name identifies the job in logs and metrics.
	Name string `yaml:"name"`
	// InputGlob selects the trip files to ingest.
	InputGlob string `yaml:"input_glob"`
	// InputFormat is the trip file format: "csv" or "parquet".
	InputFormat string `yaml:"input_format"`
	// SplitCutoff is the train/test boundary, RFC 3339 or "2006-01-02".
	SplitCutoff string `yaml:"split_cutoff"`
	// ChunkSize is the row count per write batch.
	ChunkSize int `yaml:"chunk_size"`
	// OutputDir is the feature export destination under the storage root.
	OutputDir string `yaml:"output_dir"`
	// Properties carries per-stage tuning maps, keyed by stage name
	// (e.g. "stations", "sanitize", "lag"), bound onto each stage's Config.
	Properties map[string]map[string]string `yaml:"properties"`
}

// StageProperties returns the property map for one stage, or nil.
func (j JobConfig) StageProperties(stage string) map[string]string {
	if j.Properties == nil {
		return nil
	}
	return j.Properties[stage]
}

// DatabaseConfig holds the observation store connection settings.
type DatabaseConfig struct {
	// Driver selects the database backend: "sqlite", "postgres" or "mysql".
	Driver string `yaml:"driver"`
	// Path is the database file path (sqlite only).
	Path string `yaml:"path"`
	// Host is the database host (postgres/mysql).
	Host string `yaml:"host"`
	// Port is the database port (postgres/mysql).
	Port int `yaml:"port"`
	// User is the database user.
	User string `yaml:"user"`
	// Password is the database password.
	Password string `yaml:"password"`
	// DBName is the database name.
	DBName string `yaml:"dbname"`
	// SSLMode is the postgres sslmode setting.
	SSLMode string `yaml:"sslmode"`
}

// StorageConfig holds the feature export destination settings.
type StorageConfig struct {
	// Type selects the storage backend: "local" or "gcs".
	Type string `yaml:"type"`
	// BasePath is the root directory for local storage.
	BasePath string `yaml:"base_path"`
	// Bucket is the GCS bucket name.
	Bucket string `yaml:"bucket"`
	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`
	// CredentialsFile is an optional service account key file for GCS.
	CredentialsFile string `yaml:"credentials_file"`
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled toggles the metrics endpoint.
	Enabled bool `yaml:"enabled"`
	// ListenAddr is the metrics HTTP listen address (e.g. ":9090").
	ListenAddr string `yaml:"listen_addr"`
}

// TracingConfig holds the OpenTelemetry export settings.
type TracingConfig struct {
	// Enabled toggles span export; when false a no-op tracer is installed.
	Enabled bool `yaml:"enabled"`
	// Endpoint is the OTLP collector endpoint.
	Endpoint string `yaml:"endpoint"`
	// Protocol selects the OTLP transport: "grpc" or "http".
	Protocol string `yaml:"protocol"`
	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`
	// ServiceName overrides the reported service name.
	ServiceName string `yaml:"service_name"`
}

// MaskedParameterKeys are configuration keys whose values are never logged.
var MaskedParameterKeys = []string{"password", "api_key", "secret", "credentials_file"}

// PedalmetryConfig holds all configuration under the "pedalmetry" top-level key.
type PedalmetryConfig struct {
	// Job contains the demand feature job settings.
	Job JobConfig `yaml:"job"`
	// System contains system-wide configurations.
	System SystemConfig `yaml:"system"`
	// Database contains the observation store settings.
	Database DatabaseConfig `yaml:"database"`
	// Storage contains the feature export settings.
	Storage StorageConfig `yaml:"storage"`
	// Metrics contains the Prometheus settings.
	Metrics MetricsConfig `yaml:"metrics"`
	// Tracing contains the OpenTelemetry settings.
	Tracing TracingConfig `yaml:"tracing"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	// Pedalmetry contains the top-level configuration for the feature pipeline.
	Pedalmetry PedalmetryConfig `yaml:"pedalmetry"`
	// EmbeddedConfig holds configuration loaded from an embedded source, not from YAML.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		Pedalmetry: PedalmetryConfig{
			System: SystemConfig{
				Timezone: "America/New_York",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Job: JobConfig{
				Name:        "demand-features",
				InputFormat: "csv",
				ChunkSize:   1000,
				OutputDir:   "features",
			},
			Database: DatabaseConfig{
				Driver:  "sqlite",
				Path:    "pedalmetry.db",
				SSLMode: "disable",
			},
			Storage: StorageConfig{
				Type:     "local",
				BasePath: "output",
			},
			Metrics: MetricsConfig{
				ListenAddr: ":9090",
			},
			Tracing: TracingConfig{
				Protocol:    "grpc",
				ServiceName: "pedalmetry",
			},
		},
	}
}
