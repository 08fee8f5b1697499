package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/pedalmetry/pedalmetry/internal/support/exception"
	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string `name:"envFilePath" optional:"true"`
}

// loadConfig loads configuration from the embedded YAML and environment
// variables. Defaults come first, YAML values override them, environment
// variables override both.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	cfg := NewConfig()

	var yamlConfig Config
	if err := yaml.Unmarshal(embeddedConfig, &yamlConfig); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false, false)
	}

	mergeConfig(cfg, &yamlConfig)

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false, false)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	for stage, props := range cfg.Pedalmetry.Job.Properties {
		for key, value := range props {
			logger.Debugf("Stage property %s.%s = %s", stage, key, maskValue(key, value))
		}
	}
	return cfg, nil
}

// maskValue hides values for sensitive keys in log output.
func maskValue(key, value string) string {
	lowered := strings.ToLower(key)
	for _, masked := range MaskedParameterKeys {
		if strings.Contains(lowered, masked) {
			return "******"
		}
	}
	return value
}

// NewConfigProvider is an Fx provider that loads and provides *Config.
// It also sets the global logger level.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig)
	if err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.Pedalmetry.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Pedalmetry.System.Logging.Level)

	return cfg, nil
}

// LoadConfig loads configuration from the embedded bytes and environment
// variables. It is expected to be called only once during application startup.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig)
}

// validate rejects configurations the job cannot run with.
func validate(cfg *Config) error {
	p := cfg.Pedalmetry

	switch p.Job.InputFormat {
	case "csv", "parquet":
	default:
		return exception.NewBatchErrorf(moduleName, "unknown input format '%s'", p.Job.InputFormat)
	}
	switch p.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return exception.NewBatchErrorf(moduleName, "unknown database driver '%s'", p.Database.Driver)
	}
	switch p.Storage.Type {
	case "local", "gcs":
	default:
		return exception.NewBatchErrorf(moduleName, "unknown storage type '%s'", p.Storage.Type)
	}
	if p.Storage.Type == "gcs" && p.Storage.Bucket == "" {
		return exception.NewBatchError(moduleName, "gcs storage requires a bucket", nil, false, false)
	}
	if p.Job.ChunkSize < 1 {
		return exception.NewBatchErrorf(moduleName, "chunk size must be positive, got %d", p.Job.ChunkSize)
	}
	return nil
}

// mergeConfig performs a deep merge from sourceConfig into destConfig.
// Values in sourceConfig overwrite corresponding values in destConfig
// when they are not zero values for their type.
func mergeConfig(destConfig, sourceConfig *Config) {
	mergePedalmetryConfig(&destConfig.Pedalmetry, &sourceConfig.Pedalmetry)
}

func mergePedalmetryConfig(dest, source *PedalmetryConfig) {
	mergeJobConfig(&dest.Job, &source.Job)
	mergeSystemConfig(&dest.System, &source.System)
	mergeDatabaseConfig(&dest.Database, &source.Database)
	mergeStorageConfig(&dest.Storage, &source.Storage)

	if source.Metrics.Enabled {
		dest.Metrics.Enabled = true
	}
	if source.Metrics.ListenAddr != "" {
		dest.Metrics.ListenAddr = source.Metrics.ListenAddr
	}

	if source.Tracing.Enabled {
		dest.Tracing.Enabled = true
	}
	if source.Tracing.Endpoint != "" {
		dest.Tracing.Endpoint = source.Tracing.Endpoint
	}
	if source.Tracing.Protocol != "" {
		dest.Tracing.Protocol = source.Tracing.Protocol
	}
	if source.Tracing.Insecure {
		dest.Tracing.Insecure = true
	}
	if source.Tracing.ServiceName != "" {
		dest.Tracing.ServiceName = source.Tracing.ServiceName
	}
}

func mergeJobConfig(dest, source *JobConfig) {
	if source.Name != "" {
		dest.Name = source.Name
	}
	if source.InputGlob != "" {
		dest.InputGlob = source.InputGlob
	}
	if source.InputFormat != "" {
		dest.InputFormat = source.InputFormat
	}
	if source.SplitCutoff != "" {
		dest.SplitCutoff = source.SplitCutoff
	}
	if source.ChunkSize != 0 {
		dest.ChunkSize = source.ChunkSize
	}
	if source.OutputDir != "" {
		dest.OutputDir = source.OutputDir
	}
	if source.Properties != nil {
		if dest.Properties == nil {
			dest.Properties = make(map[string]map[string]string)
		}
		for stage, props := range source.Properties {
			dest.Properties[stage] = props
		}
	}
}

func mergeSystemConfig(dest, source *SystemConfig) {
	if source.Timezone != "" {
		dest.Timezone = source.Timezone
	}
	if source.Logging.Level != "" {
		dest.Logging.Level = source.Logging.Level
	}
}

func mergeDatabaseConfig(dest, source *DatabaseConfig) {
	if source.Driver != "" {
		dest.Driver = source.Driver
	}
	if source.Path != "" {
		dest.Path = source.Path
	}
	if source.Host != "" {
		dest.Host = source.Host
	}
	if source.Port != 0 {
		dest.Port = source.Port
	}
	if source.User != "" {
		dest.User = source.User
	}
	if source.Password != "" {
		dest.Password = source.Password
	}
	if source.DBName != "" {
		dest.DBName = source.DBName
	}
	if source.SSLMode != "" {
		dest.SSLMode = source.SSLMode
	}
}

func mergeStorageConfig(dest, source *StorageConfig) {
	if source.Type != "" {
		dest.Type = source.Type
	}
	if source.BasePath != "" {
		dest.BasePath = source.BasePath
	}
	if source.Bucket != "" {
		dest.Bucket = source.Bucket
	}
	if source.Prefix != "" {
		dest.Prefix = source.Prefix
	}
	if source.CredentialsFile != "" {
		dest.CredentialsFile = source.CredentialsFile
	}
}

// loadStructFromEnv recursively loads configuration values into a struct from
// environment variables, using the "yaml" tag to derive the variable name.
// Example: PEDALMETRY_DATABASE_PASSWORD overrides the database password.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}
		if field.Kind() == reflect.Map {
			// Stage property maps are YAML-only.
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField sets the value of a reflect.Value field based on its kind.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	}
	return nil
}
