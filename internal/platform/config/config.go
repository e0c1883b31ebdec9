// Package config loads service configuration from an optional YAML file and
// the environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	strutil "licensewatch/pkg/platform/strings"
)

// EnvPrefix is prepended to every environment variable, e.g. LICENSEWATCH_HTTP_ADDR.
const EnvPrefix = "licensewatch"

// Config is the full service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"      envconfig:"http"`
	Log       LogConfig       `yaml:"log"       envconfig:"log"`
	Database  DatabaseConfig  `yaml:"database"  envconfig:"database"`
	Redis     RedisConfig     `yaml:"redis"     envconfig:"redis"`
	Cache     CacheConfig     `yaml:"cache"     envconfig:"cache"`
	Authority AuthorityConfig `yaml:"authority" envconfig:"authority"`
	Roster    RosterConfig    `yaml:"roster"    envconfig:"roster"`
	Notify    NotifyConfig    `yaml:"notify"    envconfig:"notify"`
	Sweep     SweepConfig     `yaml:"sweep"     envconfig:"sweep"`
	Audit     AuditConfig     `yaml:"audit"     envconfig:"audit"`
	Tracing   TracingConfig   `yaml:"tracing"   envconfig:"tracing"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"            envconfig:"addr"`
	AdminToken      string        `yaml:"adminToken"      envconfig:"admin_token"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" envconfig:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"  envconfig:"level"`
	Format string `yaml:"format" envconfig:"format"`
}

// DatabaseConfig selects PostgreSQL when URL is set; otherwise stores are in memory.
type DatabaseConfig struct {
	URL          string        `yaml:"url"          envconfig:"url"`
	MaxOpenConns int           `yaml:"maxOpenConns" envconfig:"max_open_conns"`
	MaxIdleConns int           `yaml:"maxIdleConns" envconfig:"max_idle_conns"`
	ConnMaxLife  time.Duration `yaml:"connMaxLife"  envconfig:"conn_max_life"`
	TxTimeout    time.Duration `yaml:"txTimeout"    envconfig:"tx_timeout"`
}

// RedisConfig holds connection settings for the Redis status cache.
// An empty URL leaves the cache in the database or in memory.
type RedisConfig struct {
	URL          string        `yaml:"url"          envconfig:"url"`
	PoolSize     int           `yaml:"poolSize"     envconfig:"pool_size"`
	MinIdleConns int           `yaml:"minIdleConns" envconfig:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dialTimeout"  envconfig:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"  envconfig:"read_timeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout" envconfig:"write_timeout"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl" envconfig:"ttl"`
}

// AuthorityConfig also sets the circuit breaker; a zero BreakerThreshold disables it.
type AuthorityConfig struct {
	BaseURL          string        `yaml:"baseURL"          envconfig:"base_url"`
	APIKey           string        `yaml:"apiKey"           envconfig:"api_key"`
	Timeout          time.Duration `yaml:"timeout"          envconfig:"timeout"`
	BreakerThreshold int           `yaml:"breakerThreshold" envconfig:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown"  envconfig:"breaker_cooldown"`
}

type RosterConfig struct {
	BaseURL  string        `yaml:"baseURL"  envconfig:"base_url"`
	Token    string        `yaml:"token"    envconfig:"token"`
	Timeout  time.Duration `yaml:"timeout"  envconfig:"timeout"`
	RetryMax int           `yaml:"retryMax" envconfig:"retry_max"`
}

type NotifyConfig struct {
	SendGridAPIKey string `yaml:"sendgridAPIKey" envconfig:"sendgrid_api_key"`
	To             string `yaml:"to"             envconfig:"to"`
	From           string `yaml:"from"           envconfig:"from"`
}

// SweepConfig controls the built-in scheduler. A zero interval disables it.
type SweepConfig struct {
	Interval         time.Duration `yaml:"interval"         envconfig:"interval"`
	RenotifyCooldown time.Duration `yaml:"renotifyCooldown" envconfig:"renotify_cooldown"`
}

// AuditConfig routes audit events to Kafka when brokers are set, else to the log.
type AuditConfig struct {
	KafkaBrokers      []string `yaml:"kafkaBrokers"      envconfig:"kafka_brokers"`
	KafkaTopic        string   `yaml:"kafkaTopic"        envconfig:"kafka_topic"`
	TopicPartitions   int32    `yaml:"topicPartitions"   envconfig:"topic_partitions"`
	ReplicationFactor int16    `yaml:"replicationFactor" envconfig:"replication_factor"`
	BufferSize        int      `yaml:"bufferSize"        envconfig:"buffer_size"`
}

type TracingConfig struct {
	OTLPEndpoint string  `yaml:"otlpEndpoint" envconfig:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sampleRate"   envconfig:"sample_rate"`
	Insecure     bool    `yaml:"insecure"     envconfig:"insecure"`
}

// Default returns a configuration with every optional value filled in.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			ConnMaxLife:  30 * time.Minute,
			TxTimeout:    5 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Cache: CacheConfig{TTL: 24 * time.Hour},
		Authority: AuthorityConfig{
			BaseURL:          "https://api.reco.on.ca/registrantsearch/api/v2/registrants",
			Timeout:          15 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  time.Minute,
		},
		Roster: RosterConfig{
			Timeout:  30 * time.Second,
			RetryMax: 2,
		},
		Audit: AuditConfig{
			KafkaTopic:        "licensewatch.audit",
			TopicPartitions:   3,
			ReplicationFactor: 1,
			BufferSize:        256,
		},
		Tracing: TracingConfig{SampleRate: 1.0},
	}
}

// Load reads the YAML file at path, if any, over the defaults and then
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	cfg.Audit.KafkaBrokers = strutil.DedupeAndTrim(cfg.Audit.KafkaBrokers)
	return cfg, nil
}

// Validate reports every missing required value at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Roster.BaseURL) == "" {
		errs = append(errs, errors.New("roster.baseURL is required"))
	}
	if strings.TrimSpace(c.Authority.BaseURL) == "" {
		errs = append(errs, errors.New("authority.baseURL is required"))
	}
	if strings.TrimSpace(c.Notify.To) == "" {
		errs = append(errs, errors.New("notify.to is required"))
	}
	if strings.TrimSpace(c.Notify.From) == "" {
		errs = append(errs, errors.New("notify.from is required"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Sweep.Interval < 0 {
		errs = append(errs, errors.New("sweep.interval must not be negative"))
	}
	if len(c.Audit.KafkaBrokers) > 0 && strings.TrimSpace(c.Audit.KafkaTopic) == "" {
		errs = append(errs, errors.New("audit.kafkaTopic is required with kafka brokers"))
	}
	return errors.Join(errs...)
}
