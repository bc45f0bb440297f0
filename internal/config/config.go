// Package config loads service configuration from environment variables and
// an optional YAML file via viper. Env vars win over the file; every knob has
// a default so a bare process starts with sane behavior.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Server holds HTTP listener settings.
type Server struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// Database selects and configures the tenant store backend.
type Database struct {
	Type     string `mapstructure:"type"` // sqlite or postgres
	DataDir  string `mapstructure:"data_dir"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// DSN builds the postgres connection string.
func (d Database) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// Vector configures the vector store adapter.
type Vector struct {
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api_key"`
	Collection string        `mapstructure:"collection"`
	VectorSize int           `mapstructure:"vector_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
	BackupDir  string        `mapstructure:"backup_dir"`
}

// LLM configures the router and its providers.
type LLM struct {
	AnthropicAPIKey  string        `mapstructure:"anthropic_api_key"`
	OpenAIAPIKey     string        `mapstructure:"openai_api_key"`
	GlobalTimeout    time.Duration `mapstructure:"global_timeout"`
	AnthropicTimeout time.Duration `mapstructure:"anthropic_timeout"`
	OpenAITimeout    time.Duration `mapstructure:"openai_timeout"`
	LightModel       string        `mapstructure:"light_model"`
	HeavyModel       string        `mapstructure:"heavy_model"`
	EmbeddingModel   string        `mapstructure:"embedding_model"`
	EmbeddingTTL     time.Duration `mapstructure:"embedding_ttl"`
	SummaryTTL       time.Duration `mapstructure:"summary_ttl"`
	CacheMaxEntries  int           `mapstructure:"cache_max_entries"`
}

// Upstream holds fallback credentials for the help-desk provider when a
// request carries no X-Domain / X-API-Key headers.
type Upstream struct {
	Domain string `mapstructure:"domain"`
	APIKey string `mapstructure:"api_key"`
}

// Ingest configures the ingestion engine and job manager.
type Ingest struct {
	RawDataDir        string        `mapstructure:"raw_data_dir"`
	ChunkSize         int           `mapstructure:"chunk_size"`
	DaysPerChunk      int           `mapstructure:"days_per_chunk"`
	RequestDelay      time.Duration `mapstructure:"request_delay"`
	MaxRetries        int           `mapstructure:"max_retries"`
	MaxConcurrentJobs int           `mapstructure:"max_concurrent_jobs"`
	Cooldown          time.Duration `mapstructure:"cooldown"`
}

// RateLimit configures the request token buckets.
type RateLimit struct {
	StandardRPM   int `mapstructure:"standard_rpm"`
	StandardBurst int `mapstructure:"standard_burst"`
	HeavyRPM      int `mapstructure:"heavy_rpm"`
	HeavyBurst    int `mapstructure:"heavy_burst"`
	AuthRPM       int `mapstructure:"auth_rpm"`
	MaxKeys       int `mapstructure:"max_keys"`
}

// Log configures the global logger.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the root configuration assembled at startup.
type Config struct {
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
	Vector    Vector    `mapstructure:"vector"`
	LLM       LLM       `mapstructure:"llm"`
	Upstream  Upstream  `mapstructure:"upstream"`
	Ingest    Ingest    `mapstructure:"ingest"`
	RateLimit RateLimit `mapstructure:"rate_limit"`
	Log       Log       `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.data_dir", "./data")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "supportdata")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("vector.url", "http://localhost:6333")
	v.SetDefault("vector.collection", "documents")
	v.SetDefault("vector.vector_size", 1536)
	v.SetDefault("vector.timeout", 10*time.Second)
	v.SetDefault("vector.backup_dir", "./backups")

	v.SetDefault("llm.global_timeout", 5*time.Second)
	v.SetDefault("llm.light_model", "claude-haiku-4-5")
	v.SetDefault("llm.heavy_model", "claude-sonnet-4-5")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.embedding_ttl", time.Hour)
	v.SetDefault("llm.summary_ttl", 6*time.Hour)
	v.SetDefault("llm.cache_max_entries", 10000)

	v.SetDefault("ingest.raw_data_dir", "./raw_data")
	v.SetDefault("ingest.chunk_size", 1000)
	v.SetDefault("ingest.days_per_chunk", 30)
	v.SetDefault("ingest.request_delay", 300*time.Millisecond)
	v.SetDefault("ingest.max_retries", 5)
	v.SetDefault("ingest.max_concurrent_jobs", 2)
	v.SetDefault("ingest.cooldown", 5*time.Minute)

	v.SetDefault("rate_limit.standard_rpm", 100)
	v.SetDefault("rate_limit.standard_burst", 10)
	v.SetDefault("rate_limit.heavy_rpm", 20)
	v.SetDefault("rate_limit.heavy_burst", 5)
	v.SetDefault("rate_limit.auth_rpm", 5)
	v.SetDefault("rate_limit.max_keys", 10000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration from the optional file at path (YAML) and the
// environment. Env vars use the SUPPORTD_ prefix with underscores, e.g.
// SUPPORTD_DATABASE_TYPE=postgres, SUPPORTD_LLM_GLOBAL_TIMEOUT=5s.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SUPPORTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot possibly work.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported database type %q", c.Database.Type)
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("config: ingest chunk_size must be positive")
	}
	if c.Ingest.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("config: ingest max_concurrent_jobs must be positive")
	}
	return nil
}
