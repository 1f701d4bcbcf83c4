// Package app builds the pipeline and its backends from configuration. Both
// binaries share it so they wire the same stack.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/CihadCengiz/prompt-generator/internal/audit"
	"github.com/CihadCengiz/prompt-generator/internal/config"
	"github.com/CihadCengiz/prompt-generator/internal/embedding"
	"github.com/CihadCengiz/prompt-generator/internal/graph"
	"github.com/CihadCengiz/prompt-generator/internal/graph/neo4j"
	"github.com/CihadCengiz/prompt-generator/internal/ingest"
	"github.com/CihadCengiz/prompt-generator/internal/observability"
	"github.com/CihadCengiz/prompt-generator/internal/server"
	"github.com/CihadCengiz/prompt-generator/internal/vector"
	"github.com/CihadCengiz/prompt-generator/internal/vector/memory"
	"github.com/CihadCengiz/prompt-generator/internal/vector/qdrant"
)

// Version is reported by health checks and traces.
var Version = "0.1.0"

// pinger is implemented by backends that can report reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

// App holds the wired pipeline and everything that must be closed with it.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Provider embedding.Provider
	Index    vector.Index
	Audit    audit.Log
	Lineage  graph.Recorder
	Metrics  *observability.PipelineMetrics
	Tracer   *observability.TracerProvider
	Pipeline *ingest.Pipeline

	hooks []server.ShutdownHook
}

// NewFactory returns a provider factory with the built-in providers.
func NewFactory() *embedding.ProviderFactory {
	f := embedding.NewFactory()
	embedding.RegisterDefaults(f)
	return f
}

// ProviderConfig maps the embedding section onto the factory config.
func ProviderConfig(c config.EmbeddingConfig) embedding.ProviderConfig {
	return embedding.ProviderConfig{
		Provider:          c.Provider,
		APIKey:            c.APIKey,
		Model:             c.Model,
		BaseURL:           c.BaseURL,
		Dimensions:        c.Dimensions,
		Timeout:           c.Timeout,
		MaxRetries:        c.MaxRetries,
		RetryDelay:        c.RetryDelay,
		RequestsPerMinute: c.RequestsPerMinute,
		CacheSize:         c.CacheSize,
	}
}

// Build connects every configured backend. On error, whatever was already
// opened is closed before returning.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: observability.NewPipelineMetrics()}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.Provider, err = NewFactory().Create(ProviderConfig(cfg.Embedding))
	if err != nil {
		return nil, err
	}
	if a.Provider == nil {
		return nil, fmt.Errorf("embedding provider %q is disabled", cfg.Embedding.Provider)
	}

	if err = a.openIndex(ctx); err != nil {
		return nil, err
	}

	log, closeLog, err := audit.Open(ctx, audit.Config{
		Backend: cfg.Audit.Backend,
		Path:    cfg.Audit.Path,
		DSN:     cfg.Audit.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	a.Audit = log
	a.hooks = append(a.hooks, server.CloserShutdownHook("audit-log", server.PriorityAuditLog, closeLog))

	if cfg.Graph.URI != "" {
		rec, err := neo4j.New(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
		if err != nil {
			return nil, fmt.Errorf("lineage graph: %w", err)
		}
		a.Lineage = rec
		a.hooks = append(a.hooks, server.ShutdownHook{Name: "lineage", Priority: server.PriorityLineage, Fn: rec.Close})
	}

	tcfg := observability.DefaultTracingConfig()
	tcfg.ServiceVersion = Version
	tcfg.OTLPEndpoint = cfg.Tracing.Endpoint
	tcfg.Insecure = cfg.Tracing.Insecure
	tcfg.SampleRate = cfg.Tracing.SampleRate
	a.Tracer, err = observability.InitTracing(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.hooks = append(a.hooks, server.TracingShutdownHook(a.Tracer.Shutdown))

	opts := []ingest.Option{
		ingest.WithLogger(logger),
		ingest.WithMetrics(a.Metrics),
		ingest.WithChunkSize(cfg.Ingest.ChunkSize),
		ingest.WithProbeLimit(cfg.Index.ProbeLimit),
		ingest.WithDimensions(cfg.Embedding.Dimensions),
	}
	if a.Lineage != nil {
		opts = append(opts, ingest.WithLineage(a.Lineage))
	}
	a.Pipeline = ingest.New(a.Provider, a.Index, a.Audit, opts...)

	logger.Debug("pipeline ready",
		"provider", a.Provider.Name(),
		"index", cfg.Index.Backend,
		"audit", cfg.Audit.Backend,
		"lineage", a.Lineage != nil)
	return a, nil
}

func (a *App) openIndex(ctx context.Context) error {
	cfg := a.Config.Index
	switch cfg.Backend {
	case "memory":
		a.Index = memory.New(a.Config.Embedding.Dimensions)
	case "", "qdrant":
		idx, err := qdrant.New(ctx, cfg.Host, cfg.Port, cfg.Collection)
		if err != nil {
			return err
		}
		a.Index = idx
		if err := idx.EnsureCollection(ctx, a.Config.Embedding.Dimensions); err != nil {
			_ = idx.Close()
			a.Index = nil
			return err
		}
	default:
		return fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
	a.hooks = append(a.hooks, server.CloserShutdownHook("vector-index", server.PriorityIndex, a.Index.Close))
	return nil
}

// ErrNoLineage is returned by lineage reads when no graph is configured.
var ErrNoLineage = errors.New("lineage graph is not configured (set graph.uri)")

// EmbeddingCache returns the caching layer of the provider, or nil when
// embedding.cache_size is zero.
func (a *App) EmbeddingCache() *embedding.CachedProvider {
	cp, _ := a.Provider.(*embedding.CachedProvider)
	return cp
}

// CommitFiles lists the files lineage recorded under a commit.
func (a *App) CommitFiles(ctx context.Context, repoTag, commitHash string) ([]string, error) {
	if a.Lineage == nil {
		return nil, ErrNoLineage
	}
	return a.Lineage.CommitFiles(ctx, repoTag, commitHash)
}

// RegisterHealthChecks adds a check for every backend that can be pinged.
func (a *App) RegisterHealthChecks(h *server.HealthServer) {
	if a.Provider != nil {
		h.RegisterCheck("embedding", server.EmbeddingHealthChecker(a.Provider.Name(), nil))
	}
	if p, ok := a.Index.(pinger); ok {
		h.RegisterCheck("vector-index", server.DependencyChecker("vector index", p.Ping))
	}
	if p, ok := a.Audit.(pinger); ok {
		h.RegisterCheck("audit-log", server.DependencyChecker("audit log", p.Ping))
	}
	if p, ok := a.Lineage.(pinger); ok {
		h.RegisterCheck("lineage", server.DependencyChecker("lineage graph", p.Ping))
	}
}

// RegisterShutdown hands every close hook to h.
func (a *App) RegisterShutdown(h *server.ShutdownHandler) {
	for _, hook := range a.hooks {
		h.Register(hook)
	}
}

// Close runs the close hooks in priority order. It is for short-lived
// commands that do not run a ShutdownHandler.
func (a *App) Close(ctx context.Context) error {
	hooks := append([]server.ShutdownHook(nil), a.hooks...)
	sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].Priority < hooks[j].Priority })
	var errs []error
	for _, h := range hooks {
		if err := h.Fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
		}
	}
	a.hooks = nil
	return errors.Join(errs...)
}
