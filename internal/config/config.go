package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PROMPTGEN_INDEX_HOST.
const EnvPrefix = "PROMPTGEN"

// Config holds all application configuration.
type Config struct {
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Index     IndexConfig     `mapstructure:"index"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Server    ServerConfig    `mapstructure:"server"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`

	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	// CacheSize enables an in-process embedding cache when positive.
	CacheSize int `mapstructure:"cache_size"`
}

type IndexConfig struct {
	Backend    string `mapstructure:"backend"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	ProbeLimit int    `mapstructure:"probe_limit"`
}

type IngestConfig struct {
	ChunkSize   int      `mapstructure:"chunk_size"`
	RepoTag     string   `mapstructure:"repo_tag"`
	Extensions  []string `mapstructure:"extensions"`
	Concurrency int      `mapstructure:"concurrency"`
	StateFile   string   `mapstructure:"state_file"`
}

type AuditConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// GraphConfig points at the lineage store. An empty URI disables lineage.
type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TracingConfig struct {
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
	Insecure   bool    `mapstructure:"insecure"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.timeout", 60*time.Second)
	v.SetDefault("embedding.max_retries", 0)
	v.SetDefault("embedding.retry_delay", time.Second)
	v.SetDefault("embedding.requests_per_minute", 0)
	v.SetDefault("embedding.cache_size", 0)

	v.SetDefault("index.backend", "qdrant")
	v.SetDefault("index.host", "localhost")
	v.SetDefault("index.port", 6334)
	v.SetDefault("index.collection", "repo-embeddings")
	v.SetDefault("index.probe_limit", 1000)

	v.SetDefault("ingest.chunk_size", 1000)
	v.SetDefault("ingest.repo_tag", "codex-agent")
	v.SetDefault("ingest.extensions", []string{".js", ".ts", ".jsx", ".tsx", ".md"})
	v.SetDefault("ingest.concurrency", 4)

	v.SetDefault("audit.backend", "file")
	v.SetDefault("audit.path", "stdout")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "promptgen")

	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Embedding.Provider != "" && c.Embedding.Provider != "none" && c.Embedding.Provider != "hash" &&
		c.Embedding.Provider != "ollama" && c.Embedding.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is configured but api_key is empty", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions <= 0 {
		warnings = append(warnings, fmt.Sprintf("embedding dimensions %d is not positive", c.Embedding.Dimensions))
	}
	if c.Ingest.ChunkSize <= 0 {
		warnings = append(warnings, fmt.Sprintf("ingest chunk_size %d is not positive, the default is used", c.Ingest.ChunkSize))
	}
	if c.Index.ProbeLimit <= 0 {
		warnings = append(warnings, fmt.Sprintf("index probe_limit %d is not positive", c.Index.ProbeLimit))
	}
	switch c.Index.Backend {
	case "qdrant", "memory":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown index backend '%s'", c.Index.Backend))
	}
	switch c.Audit.Backend {
	case "", "none", "memory", "file":
	case "sqlite", "postgres":
		if c.Audit.DSN == "" {
			warnings = append(warnings, fmt.Sprintf("audit backend '%s' requires dsn", c.Audit.Backend))
		}
	default:
		warnings = append(warnings, fmt.Sprintf("unknown audit backend '%s'", c.Audit.Backend))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	return warnings
}

// Load reads configuration from .env, an optional config file and the
// environment, in increasing order of precedence. An empty path skips the
// config file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The bare OPENAI_KEY variable is honored for compatibility with
	// existing deployments.
	_ = v.BindEnv("embedding.api_key", EnvPrefix+"_EMBEDDING_API_KEY", "OPENAI_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

// NewLogger builds a logger writing to w at the configured level and format.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(c.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
