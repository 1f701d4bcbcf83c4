// Package ingest embeds file content into a commit-scoped vector index,
// removes it again by commit or by file, and answers similarity queries.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/CihadCengiz/prompt-generator/internal/audit"
	"github.com/CihadCengiz/prompt-generator/internal/chunk"
	"github.com/CihadCengiz/prompt-generator/internal/embedding"
	"github.com/CihadCengiz/prompt-generator/internal/graph"
	"github.com/CihadCengiz/prompt-generator/internal/observability"
	"github.com/CihadCengiz/prompt-generator/internal/vector"
)

const (
	// DefaultProbeLimit bounds how many records one scoped lookup returns.
	// Scopes holding more records are not fully covered by a single pass.
	DefaultProbeLimit = 1000
	// DefaultDimensions is the vector size of text-embedding-3-small.
	DefaultDimensions = 1536
	// DefaultTopK is the number of chunks returned by retrieval.
	DefaultTopK = 5
	// DefaultProbeConcurrency bounds parallel per-file probes during deletion.
	DefaultProbeConcurrency = 8
)

// Pipeline wires the embedding provider, vector index and audit log together.
// It holds no per-call state and is safe for concurrent use.
type Pipeline struct {
	embedder embedding.Provider
	index    vector.Index
	audit    audit.Log
	lineage  graph.Recorder
	metrics  *observability.PipelineMetrics
	logger   *slog.Logger

	chunkSize        int
	probeLimit       int
	dimensions       int
	probeConcurrency int
	newID            func() string
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// WithLineage records file lineage after each successful call. Lineage
// failures are logged and never fail the call.
func WithLineage(r graph.Recorder) Option { return func(p *Pipeline) { p.lineage = r } }

func WithMetrics(m *observability.PipelineMetrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithChunkSize(n int) Option { return func(p *Pipeline) { p.chunkSize = n } }

// WithProbeLimit bounds how many existing records one probe returns. n <= 0
// keeps DefaultProbeLimit so both probe paths stay bounded the same way.
func WithProbeLimit(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.probeLimit = n
		}
	}
}

// WithDimensions sets the length of the zero vector used to probe indexes
// that cannot list by metadata.
func WithDimensions(n int) Option { return func(p *Pipeline) { p.dimensions = n } }

// WithProbeConcurrency bounds the parallel probes of DeleteByFileList. n <= 0
// keeps DefaultProbeConcurrency.
func WithProbeConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.probeConcurrency = n
		}
	}
}

// WithIDGenerator replaces the random record id source.
func WithIDGenerator(f func() string) Option { return func(p *Pipeline) { p.newID = f } }

// New builds a pipeline. A nil audit log discards entries.
func New(embedder embedding.Provider, index vector.Index, log audit.Log, opts ...Option) *Pipeline {
	if log == nil {
		log = audit.Nop{}
	}
	p := &Pipeline{
		embedder:         embedder,
		index:            index,
		audit:            log,
		logger:           slog.Default(),
		chunkSize:        chunk.DefaultSize,
		probeLimit:       DefaultProbeLimit,
		dimensions:       DefaultDimensions,
		probeConcurrency: DefaultProbeConcurrency,
		newID:            uuid.NewString,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// probe returns the records matching filter, up to the probe limit. Indexes
// that can list by metadata are asked directly; otherwise a similarity query
// with a zero vector is used purely for its filter, and scores are ignored.
func (p *Pipeline) probe(ctx context.Context, filter vector.Filter) ([]vector.Match, error) {
	ctx, span := observability.StartClientSpan(ctx, "index", "probe")
	defer span.End()

	var (
		matches []vector.Match
		err     error
	)
	if l, ok := p.index.(vector.Lister); ok {
		matches, err = l.List(ctx, filter, p.probeLimit)
	} else {
		matches, err = p.index.Query(ctx, make([]float32, p.dimensions), p.probeLimit, filter)
	}
	observability.RecordError(span, err)
	return matches, err
}

func (p *Pipeline) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := observability.StartClientSpan(ctx, "embedding", "embed")
	defer span.End()

	vectors, err := p.embedder.Embed(ctx, texts)
	if err == nil {
		err = embedding.CheckCount(vectors, texts)
	}
	observability.RecordError(span, err)
	return vectors, err
}

func (p *Pipeline) observe(op string, start time.Time, err error) {
	if p.metrics != nil {
		p.metrics.RecordOperation(op, time.Since(start), err)
	}
}
