// Package config loads service configuration from defaults, an optional
// YAML file and SAFETY_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tourist-safety-engine/internal/alerting"
	"tourist-safety-engine/internal/engine"
	"tourist-safety-engine/internal/features"
	"tourist-safety-engine/internal/scoring"
	"tourist-safety-engine/internal/training"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Storage   StorageConfig    `yaml:"storage"`
	Redis     RedisConfig      `yaml:"redis"`
	Ingestion IngestionConfig  `yaml:"ingestion"`
	Features  features.Options `yaml:"features"`
	Engine    engine.Config    `yaml:"engine"`
	Training  training.Config  `yaml:"training"`
	Scoring   scoring.Config   `yaml:"scoring"`
	Alerting  AlertingConfig   `yaml:"alerting"`
	Zones     ZonesConfig      `yaml:"zones"`
	Publish   PublishConfig    `yaml:"publish"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`             // default: ":8080"
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	EntityIdleTTL   time.Duration `yaml:"entity_idle_ttl"`  // in-memory state eviction (default: 24h)
}

// StorageConfig selects and configures persistence.
type StorageConfig struct {
	Backend       string `yaml:"backend"`        // memory, postgres or sqlite (default: memory)
	PostgresDSN   string `yaml:"postgres_dsn"`
	SQLitePath    string `yaml:"sqlite_path"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"` // optional analytics sink for features and assessments
}

// RedisConfig enables shared alert dedup and bonus state. Empty Addr keeps both in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// IngestionConfig configures live sample feeds.
type IngestionConfig struct {
	WSURL                string        `yaml:"ws_url"`                  // websocket feed, disabled when empty
	MQTTBroker           string        `yaml:"mqtt_broker"`             // e.g. tcp://localhost:1883, disabled when empty
	MQTTTopic            string        `yaml:"mqtt_topic"`              // default: "tourists/+/location"
	MQTTClientID         string        `yaml:"mqtt_client_id"`          // default: "safety-engine"
	ReorderLag           time.Duration `yaml:"reorder_lag"`             // hold samples this long to restore order (default: 2s)
	MaxBufferedPerEntity int           `yaml:"max_buffered_per_entity"` // default: 100
}

// AlertingConfig configures the dispatcher and its dedup registry.
type AlertingConfig struct {
	alerting.Config `yaml:",inline"`
	RegistryTTL     time.Duration `yaml:"registry_ttl"` // bound on a Redis registry entry (default: 24h)
}

// ZonesConfig configures zone hot-reload.
type ZonesConfig struct {
	ReloadInterval time.Duration `yaml:"reload_interval"` // default: 1m
}

// PublishConfig configures intent sinks beyond the alert store.
type PublishConfig struct {
	KafkaBrokers    []string      `yaml:"kafka_brokers"`
	KafkaTopic      string        `yaml:"kafka_topic"` // default: "safety.alert-intents"
	WebhookURL      string        `yaml:"webhook_url"` // police / E-FIR forwarder, disabled when empty
	WebhookToken    string        `yaml:"webhook_token"`
	WebhookTimeout  time.Duration `yaml:"webhook_timeout"`   // default: 5s
	WebhookMinLevel string        `yaml:"webhook_min_level"` // lowest forwarded alert severity (default: HIGH)
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level   string `yaml:"level"`   // default: info
	Format  string `yaml:"format"`  // json or console (default: json)
	Service string `yaml:"service"` // default: tourist-safety-engine
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 30 * time.Second,
			EntityIdleTTL:   24 * time.Hour,
		},
		Storage: StorageConfig{Backend: BackendMemory},
		Ingestion: IngestionConfig{
			MQTTTopic:            "tourists/+/location",
			MQTTClientID:         "safety-engine",
			ReorderLag:           2 * time.Second,
			MaxBufferedPerEntity: 100,
		},
		Features: features.DefaultOptions(),
		Engine:   engine.DefaultConfig(),
		Training: training.DefaultConfig(),
		Scoring:  scoring.DefaultConfig(),
		Alerting: AlertingConfig{
			Config:      alerting.DefaultConfig(),
			RegistryTTL: 24 * time.Hour,
		},
		Zones: ZonesConfig{ReloadInterval: time.Minute},
		Publish: PublishConfig{
			KafkaTopic:      "safety.alert-intents",
			WebhookTimeout:  5 * time.Second,
			WebhookMinLevel: "HIGH",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "json",
			Service: "tourist-safety-engine",
		},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.merge(data); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// merge decodes YAML over the current values. Unknown keys are rejected.
func (c *Config) merge(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// applyEnv overrides fields from SAFETY_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("SAFETY_HTTP_ADDR", &c.Server.Addr)
	dur("SAFETY_ENTITY_IDLE_TTL", &c.Server.EntityIdleTTL)

	str("SAFETY_STORAGE_BACKEND", &c.Storage.Backend)
	str("SAFETY_POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("SAFETY_SQLITE_PATH", &c.Storage.SQLitePath)
	str("SAFETY_CLICKHOUSE_DSN", &c.Storage.ClickHouseDSN)

	str("SAFETY_REDIS_ADDR", &c.Redis.Addr)
	str("SAFETY_REDIS_PASSWORD", &c.Redis.Password)
	num("SAFETY_REDIS_DB", &c.Redis.DB)

	str("SAFETY_WS_URL", &c.Ingestion.WSURL)
	str("SAFETY_MQTT_BROKER", &c.Ingestion.MQTTBroker)
	str("SAFETY_MQTT_TOPIC", &c.Ingestion.MQTTTopic)
	dur("SAFETY_REORDER_LAG", &c.Ingestion.ReorderLag)

	dur("SAFETY_POINT_TIMEOUT", &c.Engine.PointTimeout)
	dur("SAFETY_SEQUENCE_TIMEOUT", &c.Engine.SequenceTimeout)
	str("SAFETY_POINT_MODEL", &c.Training.Point.Type)
	str("SAFETY_SEQUENCE_MODEL", &c.Training.Sequence.Type)
	dur("SAFETY_TRAINING_INTERVAL", &c.Training.Interval)

	dur("SAFETY_ZONE_RELOAD_INTERVAL", &c.Zones.ReloadInterval)

	if v, ok := lookup("SAFETY_KAFKA_BROKERS"); ok && v != "" {
		c.Publish.KafkaBrokers = splitList(v)
	}
	str("SAFETY_KAFKA_TOPIC", &c.Publish.KafkaTopic)
	str("SAFETY_WEBHOOK_URL", &c.Publish.WebhookURL)
	str("SAFETY_WEBHOOK_TOKEN", &c.Publish.WebhookToken)

	str("SAFETY_LOG_LEVEL", &c.Logging.Level)
	str("SAFETY_LOG_FORMAT", &c.Logging.Format)

	return errors.Join(errs...)
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q: want memory, postgres or sqlite", c.Storage.Backend))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if len(c.Publish.KafkaBrokers) > 0 && c.Publish.KafkaTopic == "" {
		errs = append(errs, errors.New("publish.kafka_topic is required with kafka_brokers"))
	}
	if c.Ingestion.MQTTBroker != "" && c.Ingestion.MQTTTopic == "" {
		errs = append(errs, errors.New("ingestion.mqtt_topic is required with mqtt_broker"))
	}
	if err := c.Scoring.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scoring: %w", err))
	}
	return errors.Join(errs...)
}

// LoadEnvFile loads KEY=VALUE lines from path into the environment.
// Existing variables are not overridden; a missing file is ignored.
func LoadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
