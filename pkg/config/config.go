// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Indexer, Content, Reindex, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Content  ContentConfig  `yaml:"content"`
	Reindex  ReindexConfig  `yaml:"reindex"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	HandlerTimeout  time.Duration `yaml:"handlerTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	ConnectAttempts int           `yaml:"connectAttempts"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ContentChanges string `yaml:"contentChanges"`
	IndexComplete  string `yaml:"indexComplete"`
}

// RedisConfig holds Redis connection, progress and search-cache parameters.
type RedisConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Addr               string        `yaml:"addr"`
	Password           string        `yaml:"password"`
	DB                 int           `yaml:"db"`
	PoolSize           int           `yaml:"poolSize"`
	ProgressKey        string        `yaml:"progressKey"`
	ProgressTTL        time.Duration `yaml:"progressTTL"`
	SearchCachePattern string        `yaml:"searchCachePattern"`
}

// FieldWeights are the per-field relevance weights handed to the search
// layer alongside the index.
type FieldWeights struct {
	Content float64 `yaml:"content"`
	Title   float64 `yaml:"title"`
	Author  float64 `yaml:"author"`
}

// IndexerConfig controls tokenisation and the term index store.
type IndexerConfig struct {
	Store           string       `yaml:"store" validate:"oneof=postgres bolt memory"`
	BoltPath        string       `yaml:"boltPath"`
	OnConflict      string       `yaml:"onConflict" validate:"oneof=skip replace"`
	MinWordLength   int          `yaml:"minWordLength" validate:"min=1"`
	MaxPhraseLength int          `yaml:"maxPhraseLength" validate:"min=1,max=10"`
	PhraseWeights   []float64    `yaml:"phraseWeights"`
	FieldWeights    FieldWeights `yaml:"fieldWeights"`
	MaxTermLength   int          `yaml:"maxTermLength" validate:"min=1"`
	Stemmer         string       `yaml:"stemmer"`
	StopwordsFile   string       `yaml:"stopwordsFile"`
	StripAutotags   bool         `yaml:"stripAutotags"`
	Autotags        []string     `yaml:"autotags"`
}

// ContentConfig maps content types onto the queries that enumerate and load
// their items. Driver selects the database the queries run against: the
// shared postgres pool or a SQLite file at SQLitePath.
type ContentConfig struct {
	Driver     string              `yaml:"driver" validate:"oneof=postgres sqlite"`
	SQLitePath string              `yaml:"sqlitePath"`
	Types      []ContentTypeConfig `yaml:"types" validate:"dive"`
}

// ContentTypeConfig describes one indexable content type. ListQuery returns
// a single id column; ItemQuery takes the id as $1 and returns id, title,
// content, author and optionally owner_id, group_id, perm_owner, perm_group,
// perm_members, perm_anon.
type ContentTypeConfig struct {
	Name      string `yaml:"name" validate:"required,max=20"`
	ListQuery string `yaml:"listQuery" validate:"required"`
	ItemQuery string `yaml:"itemQuery" validate:"required"`
}

// ReindexConfig controls the batch reindex run: where the action endpoint
// lives and the per-stage timeout and pacing policy.
type ReindexConfig struct {
	Endpoint        string        `yaml:"endpoint" validate:"required"`
	CatalogTimeout  time.Duration `yaml:"catalogTimeout"`
	PurgeTimeout    time.Duration `yaml:"purgeTimeout"`
	ListTimeout     time.Duration `yaml:"listTimeout"`
	IndexTimeout    time.Duration `yaml:"indexTimeout"`
	FinishTimeout   time.Duration `yaml:"finishTimeout"`
	CompleteTimeout time.Duration `yaml:"completeTimeout"`
	Debounce        time.Duration `yaml:"debounce"`
	PurgeBackoff    time.Duration `yaml:"purgeBackoff"`
	CompleteDelay   time.Duration `yaml:"completeDelay"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. A .env file in the working directory is honoured before the
// environment is consulted. It returns a Config populated with defaults for
// any missing values.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(c.Indexer.PhraseWeights) < c.Indexer.MaxPhraseLength {
		return fmt.Errorf("invalid config: indexer.phraseWeights needs %d entries, got %d",
			c.Indexer.MaxPhraseLength, len(c.Indexer.PhraseWeights))
	}
	if c.Indexer.Store == "bolt" && c.Indexer.BoltPath == "" {
		return fmt.Errorf("invalid config: indexer.boltPath is required for the bolt store")
	}
	if c.Content.Driver == "sqlite" && c.Content.SQLitePath == "" {
		return fmt.Errorf("invalid config: content.sqlitePath is required for the sqlite driver")
	}
	seen := make(map[string]struct{}, len(c.Content.Types))
	for _, t := range c.Content.Types {
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("invalid config: content type %q declared twice", t.Name)
		}
		seen[t.Name] = struct{}{}
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    150 * time.Second,
			HandlerTimeout:  140 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searcher",
			User:            "searcher",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectAttempts: 5,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "searcher-indexer",
			Topics: KafkaTopics{
				ContentChanges: "content-changes",
				IndexComplete:  "index.complete",
			},
		},
		Redis: RedisConfig{
			Addr:               "localhost:6379",
			PoolSize:           10,
			ProgressKey:        "searcher:reindex:progress",
			ProgressTTL:        24 * time.Hour,
			SearchCachePattern: "search:*",
		},
		Indexer: IndexerConfig{
			Store:           "postgres",
			OnConflict:      "skip",
			MinWordLength:   3,
			MaxPhraseLength: 3,
			PhraseWeights:   []float64{1, 1.5, 2},
			FieldWeights:    FieldWeights{Content: 1, Title: 3, Author: 2},
			MaxTermLength:   50,
		},
		Content: ContentConfig{
			Driver: "postgres",
		},
		Reindex: ReindexConfig{
			Endpoint:       "http://localhost:8080/admin/searcher/indexer",
			CatalogTimeout: 30 * time.Second,
			PurgeTimeout:   120 * time.Second,
			ListTimeout:    60 * time.Second,
			IndexTimeout:   60 * time.Second,
			FinishTimeout:  120 * time.Second,
			Debounce:       250 * time.Millisecond,
			PurgeBackoff:   120 * time.Second,
			CompleteDelay:  3 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads CS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("CS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("CS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("CS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("CS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("CS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("CS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("CS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("CS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CS_INDEXER_STORE"); v != "" {
		cfg.Indexer.Store = v
	}
	if v := os.Getenv("CS_INDEXER_STEMMER"); v != "" {
		cfg.Indexer.Stemmer = v
	}
	if v := os.Getenv("CS_CONTENT_SQLITE_PATH"); v != "" {
		cfg.Content.Driver = "sqlite"
		cfg.Content.SQLitePath = v
	}
	if v := os.Getenv("CS_REINDEX_ENDPOINT"); v != "" {
		cfg.Reindex.Endpoint = v
	}
	if v := os.Getenv("CS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
