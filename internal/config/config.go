// Package config loads neurosim application settings through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/viper"

	"neurosim/internal/logging"
	"neurosim/internal/storage"
)

const EnvPrefix = "NEUROSIM"

type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Retention RetentionConfig `mapstructure:"retention"`
	Neo4j     Neo4jConfig     `mapstructure:"neo4j"`
	Logger    logging.Config  `mapstructure:"logger"`
	Output    OutputConfig    `mapstructure:"output"`
}

type StoreConfig struct {
	Kind        string `mapstructure:"kind"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url"`
}

// DSN returns the connection string for the configured backend.
func (s StoreConfig) DSN() string {
	switch s.Kind {
	case "sqlite":
		return s.SQLitePath
	case "postgres":
		return s.PostgresURL
	default:
		return ""
	}
}

type EngineConfig struct {
	Workers int `mapstructure:"workers"`
}

type RetentionConfig struct {
	MaxAge time.Duration `mapstructure:"max_age"`
	// MaxBytes is a size such as "64MB"; empty disables the cap.
	MaxBytes string `mapstructure:"max_bytes"`
}

// Policy converts the configured limits into a storage retention policy.
func (r RetentionConfig) Policy() (storage.RetentionPolicy, error) {
	policy := storage.RetentionPolicy{MaxAge: r.MaxAge}
	if strings.TrimSpace(r.MaxBytes) == "" {
		return policy, nil
	}
	size, err := datasize.ParseString(strings.TrimSpace(r.MaxBytes))
	if err != nil {
		return storage.RetentionPolicy{}, fmt.Errorf("retention.max_bytes %q: %w", r.MaxBytes, err)
	}
	policy.MaxBytes = size
	return policy, nil
}

type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

func (n Neo4jConfig) Enabled() bool { return n.URI != "" }

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

func SetDefaults(v *viper.Viper) {
	logDefaults := logging.DefaultConfig()

	v.SetDefault("store.kind", "memory")
	v.SetDefault("store.sqlite_path", "neurosim.db")
	v.SetDefault("store.postgres_url", "")
	v.SetDefault("engine.workers", 1)
	v.SetDefault("retention.max_age", "0s")
	v.SetDefault("retention.max_bytes", "")
	v.SetDefault("neo4j.uri", "")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("logger.level", logDefaults.Level)
	v.SetDefault("logger.format", logDefaults.Format)
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size_mb", logDefaults.MaxSizeMB)
	v.SetDefault("logger.max_backups", logDefaults.MaxBackups)
	v.SetDefault("logger.max_age_days", logDefaults.MaxAgeDays)
	v.SetDefault("logger.compress", false)
	v.SetDefault("output.dir", "neurosim-output")
}

// Load fills v with defaults, the NEUROSIM_ environment and the optional
// config file, then decodes and validates the result.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store.Kind {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.PostgresURL == "" {
			return errors.New("store.postgres_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unsupported store.kind %q", c.Store.Kind)
	}
	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must be >= 0, got %d", c.Engine.Workers)
	}
	if c.Retention.MaxAge < 0 {
		return fmt.Errorf("retention.max_age must be >= 0, got %s", c.Retention.MaxAge)
	}
	if _, err := c.Retention.Policy(); err != nil {
		return err
	}
	return nil
}
