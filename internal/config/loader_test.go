package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("", EmbeddedConfig(""))
	require.NoError(t, err)

	assert.Equal(t, "America/New_York", cfg.Pedalmetry.System.Timezone)
	assert.Equal(t, "INFO", cfg.Pedalmetry.System.Logging.Level)
	assert.Equal(t, "csv", cfg.Pedalmetry.Job.InputFormat)
	assert.Equal(t, "sqlite", cfg.Pedalmetry.Database.Driver)
	assert.Equal(t, "local", cfg.Pedalmetry.Storage.Type)
}

func TestLoadConfig_YAMLOverridesDefaults(t *testing.T) {
	yamlContent := `
pedalmetry:
  job:
    name: backfill
    input_glob: "data/*.parquet"
    input_format: parquet
    split_cutoff: "2024-09-01"
    properties:
      stations:
        topN: "3"
      lag:
        lagDepth: "24"
        workers: "4"
  system:
    logging:
      level: DEBUG
  database:
    driver: postgres
    host: db.internal
    port: 5432
    user: pedalmetry
    dbname: features
`
	cfg, err := LoadConfig("", EmbeddedConfig(yamlContent))
	require.NoError(t, err)

	assert.Equal(t, "backfill", cfg.Pedalmetry.Job.Name)
	assert.Equal(t, "parquet", cfg.Pedalmetry.Job.InputFormat)
	assert.Equal(t, "2024-09-01", cfg.Pedalmetry.Job.SplitCutoff)
	assert.Equal(t, "DEBUG", cfg.Pedalmetry.System.Logging.Level)
	assert.Equal(t, "postgres", cfg.Pedalmetry.Database.Driver)
	assert.Equal(t, 5432, cfg.Pedalmetry.Database.Port)

	// Unset values keep their defaults.
	assert.Equal(t, 1000, cfg.Pedalmetry.Job.ChunkSize)
	assert.Equal(t, "disable", cfg.Pedalmetry.Database.SSLMode)

	assert.Equal(t, map[string]string{"topN": "3"}, cfg.Pedalmetry.Job.StageProperties("stations"))
	assert.Equal(t, "24", cfg.Pedalmetry.Job.StageProperties("lag")["lagDepth"])
	assert.Nil(t, cfg.Pedalmetry.Job.StageProperties("sanitize"))
}

func TestLoadConfig_EnvOverridesYAML(t *testing.T) {
	t.Setenv("PEDALMETRY_DATABASE_PASSWORD", "s3cret")
	t.Setenv("PEDALMETRY_JOB_CHUNK_SIZE", "250")
	t.Setenv("PEDALMETRY_METRICS_ENABLED", "true")

	yamlContent := `
pedalmetry:
  database:
    password: from-yaml
`
	cfg, err := LoadConfig("", EmbeddedConfig(yamlContent))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Pedalmetry.Database.Password)
	assert.Equal(t, 250, cfg.Pedalmetry.Job.ChunkSize)
	assert.True(t, cfg.Pedalmetry.Metrics.Enabled)
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"input format": `
pedalmetry:
  job:
    input_format: avro
`,
		"database driver": `
pedalmetry:
  database:
    driver: oracle
`,
		"storage type": `
pedalmetry:
  storage:
    type: s3
`,
		"gcs without bucket": `
pedalmetry:
  storage:
    type: gcs
`,
	}
	for name, yamlContent := range cases {
		_, err := LoadConfig("", EmbeddedConfig(yamlContent))
		assert.Error(t, err, name)
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	_, err := LoadConfig("", EmbeddedConfig("pedalmetry: [oops"))
	assert.Error(t, err)
}
