// Package config provides configuration management for enliterate using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute

	defaultMaxRetries           = 3
	defaultRetryBackoffInitial  = 5 * time.Second
	defaultRetryBackoffCap      = 15 * time.Minute
	defaultOrphanPreserveWindow = time.Hour
	defaultWorkerCount          = 2
	defaultPollInterval         = 5 * time.Second
	defaultLeaseTimeout         = 30 * time.Minute
	defaultItemConcurrency      = 4
	defaultRunRetention         = 7 * 24 * time.Hour

	defaultServiceTimeout   = 30 * time.Second
	defaultEmbeddingTimeout = 60 * time.Second
	defaultGraphOnlineWait  = 30 * time.Second
	defaultEmbeddingModel   = "text-embedding-3-small"
	defaultEmbeddingDims    = 1536
	defaultMaxItemSizeBytes = 10 * 1024 * 1024
	defaultMaintenanceCron  = "0 0 3 * * *"
	defaultDedupBatchSize   = 100
	defaultOrphanBatchSize  = 100
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Services  ServicesConfig  `mapstructure:"services"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds relational database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=sqlite postgres mysql"`
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// GraphConfig holds graph store configuration.
type GraphConfig struct {
	// URI is the bolt/neo4j connection URI. Empty selects the in-memory
	// store (single-binary dev mode and tests).
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// MultiDatabaseSupported controls per-batch database isolation. When
	// false, assembly uses the default database and namespaces by batch_id.
	MultiDatabaseSupported bool `mapstructure:"multi_database_supported"`

	// OnlineWaitTimeout bounds the database-online poll after provisioning.
	OnlineWaitTimeout time.Duration `mapstructure:"online_wait_timeout"`

	// VerbGlossaryPath optionally overrides the built-in verb glossary
	// with a YAML table.
	VerbGlossaryPath string `mapstructure:"verb_glossary_path"`

	DedupBatchSize  int `mapstructure:"dedup_batch_size"`
	OrphanBatchSize int `mapstructure:"orphan_batch_size"`
}

// ServiceEndpoint holds connection settings for one external service.
type ServiceEndpoint struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ServicesConfig holds external service call contracts.
type ServicesConfig struct {
	Rights     ServiceEndpoint `mapstructure:"rights"`
	Extraction ServiceEndpoint `mapstructure:"extraction"`
	Embedding  ServiceEndpoint `mapstructure:"embedding"`

	// TestRightsOverride yields permissive rights (confidence 0.9) for items
	// whose batch source is marked synthetic. Bound to
	// ENLITERATE_SERVICES_TEST_RIGHTS_OVERRIDE.
	TestRightsOverride bool `mapstructure:"test_rights_override"`
}

// PipelineConfig holds pipeline runner configuration.
type PipelineConfig struct {
	MaxRetries           int           `mapstructure:"max_retries" validate:"min=0"`
	RetryBackoffInitial  time.Duration `mapstructure:"retry_backoff_initial"`
	RetryBackoffCap      time.Duration `mapstructure:"retry_backoff_cap"`
	OrphanPreserveWindow time.Duration `mapstructure:"orphan_preserve_window"`
	WorkerCount          int           `mapstructure:"worker_count" validate:"min=1"`
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	LeaseTimeout         time.Duration `mapstructure:"lease_timeout"`

	// ItemConcurrency bounds per-item parallelism inside stages whose
	// item work is independent (intake, rights, pool extraction).
	ItemConcurrency int `mapstructure:"item_concurrency" validate:"min=1"`

	// MaxItemSizeBytes caps the size of a single ingested item.
	MaxItemSizeBytes int64 `mapstructure:"max_item_size_bytes"`

	// MaintenanceCron schedules stale-lease recovery and finished-run
	// pruning (6-field cron expression).
	MaintenanceCron string `mapstructure:"maintenance_cron"`

	// RunRetention is how long finished runs are kept before pruning.
	RunRetention time.Duration `mapstructure:"run_retention"`
}

// EmbeddingConfig selects the embedding model.
type EmbeddingConfig struct {
	Model string `mapstructure:"model" validate:"required"`
	Dims  int    `mapstructure:"dims" validate:"min=1"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with ENLITERATE_, using underscores for nesting.
// Example: ENLITERATE_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/enliterate")
		v.AddConfigPath("$HOME/.enliterate")
	}

	v.SetEnvPrefix("ENLITERATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "enliterate.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("graph.uri", "")
	v.SetDefault("graph.username", "neo4j")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.multi_database_supported", true)
	v.SetDefault("graph.online_wait_timeout", defaultGraphOnlineWait)
	v.SetDefault("graph.verb_glossary_path", "")
	v.SetDefault("graph.dedup_batch_size", defaultDedupBatchSize)
	v.SetDefault("graph.orphan_batch_size", defaultOrphanBatchSize)

	v.SetDefault("services.rights.timeout", defaultServiceTimeout)
	v.SetDefault("services.extraction.timeout", defaultServiceTimeout)
	v.SetDefault("services.embedding.timeout", defaultEmbeddingTimeout)
	v.SetDefault("services.test_rights_override", false)

	v.SetDefault("pipeline.max_retries", defaultMaxRetries)
	v.SetDefault("pipeline.retry_backoff_initial", defaultRetryBackoffInitial)
	v.SetDefault("pipeline.retry_backoff_cap", defaultRetryBackoffCap)
	v.SetDefault("pipeline.orphan_preserve_window", defaultOrphanPreserveWindow)
	v.SetDefault("pipeline.worker_count", defaultWorkerCount)
	v.SetDefault("pipeline.poll_interval", defaultPollInterval)
	v.SetDefault("pipeline.lease_timeout", defaultLeaseTimeout)
	v.SetDefault("pipeline.item_concurrency", defaultItemConcurrency)
	v.SetDefault("pipeline.max_item_size_bytes", defaultMaxItemSizeBytes)
	v.SetDefault("pipeline.maintenance_cron", defaultMaintenanceCron)
	v.SetDefault("pipeline.run_retention", defaultRunRetention)

	v.SetDefault("embedding.model", defaultEmbeddingModel)
	v.SetDefault("embedding.dims", defaultEmbeddingDims)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("invalid value for %s (%s)", f.Namespace(), f.Tag())
		}
		return err
	}

	if c.Pipeline.RetryBackoffInitial > c.Pipeline.RetryBackoffCap {
		return fmt.Errorf("pipeline.retry_backoff_initial must not exceed pipeline.retry_backoff_cap")
	}
	if c.Graph.URI != "" && c.Graph.Username == "" {
		return fmt.Errorf("graph.username is required when graph.uri is set")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
