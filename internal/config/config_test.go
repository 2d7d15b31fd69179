package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 50*time.Millisecond, cfg.Engine.PointTimeout)
	assert.Equal(t, 100.0, cfg.Scoring.Base)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  addr: ":9090"
storage:
  backend: sqlite
  sqlite_path: /tmp/safety.db
engine:
  point_timeout: 80ms
scoring:
  risky_penalty: 15
  safe_inclusive: true
alerting:
  anomaly_high: 0.7
  registry_ttl: 2h
publish:
  kafka_brokers: [k1:9092, k2:9092]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, 80*time.Millisecond, cfg.Engine.PointTimeout)
	assert.Equal(t, 50*time.Millisecond, cfg.Engine.SequenceTimeout, "unset keys keep defaults")
	assert.Equal(t, 15.0, cfg.Scoring.RiskyPenalty)
	assert.True(t, cfg.Scoring.SafeInclusive)
	assert.Equal(t, 0.7, cfg.Alerting.AnomalyHigh)
	assert.Equal(t, 2*time.Hour, cfg.Alerting.RegistryTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Publish.KafkaBrokers)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeFile(t, "config.yaml", "server:\n  adr: \":1\"\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "server:\n  addr: \":9090\"\n")
	t.Setenv("SAFETY_HTTP_ADDR", ":7070")
	t.Setenv("SAFETY_KAFKA_BROKERS", "a:1, b:2,")
	t.Setenv("SAFETY_POINT_MODEL", "mahalanobis")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Publish.KafkaBrokers)
	assert.Equal(t, "mahalanobis", cfg.Training.Point.Type)
}

func TestApplyEnv_BadValues(t *testing.T) {
	env := map[string]string{
		"SAFETY_REORDER_LAG": "soon",
		"SAFETY_REDIS_DB":    "one",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	err := Default().applyEnv(lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY_REORDER_LAG")
	assert.Contains(t, err.Error(), "SAFETY_REDIS_DB")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }, "postgres_dsn"},
		{"sqlite without path", func(c *Config) { c.Storage.Backend = BackendSQLite }, "sqlite_path"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }, "storage.backend"},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"kafka without topic", func(c *Config) {
			c.Publish.KafkaBrokers = []string{"k:9092"}
			c.Publish.KafkaTopic = ""
		}, "kafka_topic"},
		{"mqtt without topic", func(c *Config) {
			c.Ingestion.MQTTBroker = "tcp://localhost:1883"
			c.Ingestion.MQTTTopic = ""
		}, "mqtt_topic"},
		{"inverted thresholds", func(c *Config) { c.Scoring.CriticalBelow = 90 }, "scoring"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", `
# comment
SAFETY_TEST_A=from-file
SAFETY_TEST_B="quoted"
SAFETY_TEST_C=keep
not a pair
`)
	t.Setenv("SAFETY_TEST_C", "existing")
	t.Setenv("SAFETY_TEST_A", "")
	t.Setenv("SAFETY_TEST_B", "")

	LoadEnvFile(path)

	assert.Equal(t, "from-file", os.Getenv("SAFETY_TEST_A"))
	assert.Equal(t, "quoted", os.Getenv("SAFETY_TEST_B"))
	assert.Equal(t, "existing", os.Getenv("SAFETY_TEST_C"))
}

func TestLoadEnvFile_Missing(t *testing.T) {
	LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
}
