package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/CihadCengiz/prompt-generator/internal/audit"
	"github.com/CihadCengiz/prompt-generator/internal/chunk"
	"github.com/CihadCengiz/prompt-generator/internal/graph"
	"github.com/CihadCengiz/prompt-generator/internal/observability"
	"github.com/CihadCengiz/prompt-generator/internal/vector"
	"github.com/CihadCengiz/prompt-generator/internal/vector/memory"
)

const (
	testTag    = "codex-agent"
	testCommit = "c1"
)

type fixture struct {
	p        *Pipeline
	embedder *stubEmbedder
	index    *memory.Index
	log      *audit.MemoryLog
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		embedder: &stubEmbedder{},
		index:    memory.New(0),
		log:      audit.NewMemoryLog(),
	}
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithChunkSize(3),
		WithIDGenerator(sequentialIDs()),
	}
	f.p = New(f.embedder, f.index, f.log, append(base, opts...)...)
	return f
}

func TestEmbedAndStore_FirstIngestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.p.EmbedAndStore(ctx, "src/a.js", "abcdefghij", testTag, testCommit)
	if err != nil {
		t.Fatalf("EmbedAndStore: %v", err)
	}
	if res.EmbeddedCount != 4 || res.SkippedCount != 0 {
		t.Errorf("counts = %d/%d, want 4/0", res.EmbeddedCount, res.SkippedCount)
	}
	if res.FilePath != "src/a.js" || res.CommitHash != testCommit {
		t.Errorf("scope = %q/%q", res.FilePath, res.CommitHash)
	}
	if res.LogID == "" {
		t.Error("expected audit log id")
	}
	if f.index.Len() != 4 {
		t.Errorf("index has %d records, want 4", f.index.Len())
	}

	matches, _ := f.index.List(ctx, nil, 0)
	wantTexts := []string{"abc", "def", "ghi", "j"}
	for i, m := range matches {
		md := m.Metadata
		if md.Text != wantTexts[i] {
			t.Errorf("record %d text = %q, want %q", i, md.Text, wantTexts[i])
		}
		if md.ChunkHash != chunk.Hash(md.Text) {
			t.Errorf("record %d chunk hash mismatch", i)
		}
		if md.FileHash != chunk.FileHash("src/a.js") || md.ContentHash != chunk.ContentHash("abcdefghij") {
			t.Errorf("record %d file/content hash mismatch", i)
		}
		if md.FilePath != "src/a.js" || md.CommitHash != testCommit || md.RepoTag != testTag {
			t.Errorf("record %d scope = %+v", i, md)
		}
	}

	entries := f.log.Entries()
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Type != audit.TypeEmbedding || e.EmbeddedCount != 4 || e.SkippedCount != 0 || e.FilePath != "src/a.js" {
		t.Errorf("audit entry = %+v", e)
	}
	if e.ID != res.LogID {
		t.Errorf("log id = %q, entry id = %q", res.LogID, e.ID)
	}
}

func TestEmbedAndStore_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.p.EmbedAndStore(ctx, "a.js", "abcdefghij", testTag, testCommit); err != nil {
		t.Fatal(err)
	}
	res, err := f.p.EmbedAndStore(ctx, "a.js", "abcdefghij", testTag, testCommit)
	if err != nil {
		t.Fatal(err)
	}
	if res.EmbeddedCount != 0 || res.SkippedCount != 4 {
		t.Errorf("second call counts = %d/%d, want 0/4", res.EmbeddedCount, res.SkippedCount)
	}
	if f.index.Len() != 4 {
		t.Errorf("index has %d records, want 4", f.index.Len())
	}
	// Every chunk is still embedded; only storage is skipped.
	if f.embedder.calls != 2 || len(f.embedder.inputs[1]) != 4 {
		t.Errorf("embedder calls = %d, inputs = %v", f.embedder.calls, f.embedder.inputs)
	}
	if n := len(f.log.Entries()); n != 2 {
		t.Errorf("audit entries = %d, want 2", n)
	}
}

func TestEmbedAndStore_DuplicateChunksWithinCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.p.EmbedAndStore(ctx, "dup.md", "abcabc", testTag, testCommit)
	if err != nil {
		t.Fatal(err)
	}
	if res.EmbeddedCount != 2 || res.SkippedCount != 0 {
		t.Errorf("counts = %d/%d, want 2/0", res.EmbeddedCount, res.SkippedCount)
	}

	res, err = f.p.EmbedAndStore(ctx, "dup.md", "abcabc", testTag, testCommit)
	if err != nil {
		t.Fatal(err)
	}
	if res.EmbeddedCount != 0 || res.SkippedCount != 2 {
		t.Errorf("repeat counts = %d/%d, want 0/2", res.EmbeddedCount, res.SkippedCount)
	}
}

func TestEmbedAndStore_ScopeIsolation(t *testing.T) {
	tests := []struct {
		name               string
		path, content, tag string
		commit             string
	}{
		{"other commit", "a.js", "abcdef", testTag, "c2"},
		{"other repo tag", "a.js", "abcdef", "other-repo", testCommit},
		{"other path", "b.js", "abcdef", testTag, testCommit},
		{"changed content", "a.js", "abcdeg", testTag, testCommit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			if _, err := f.p.EmbedAndStore(ctx, "a.js", "abcdef", testTag, testCommit); err != nil {
				t.Fatal(err)
			}
			res, err := f.p.EmbedAndStore(ctx, tt.path, tt.content, tt.tag, tt.commit)
			if err != nil {
				t.Fatal(err)
			}
			if res.EmbeddedCount != 2 || res.SkippedCount != 0 {
				t.Errorf("counts = %d/%d, want 2/0", res.EmbeddedCount, res.SkippedCount)
			}
			if f.index.Len() != 4 {
				t.Errorf("index has %d records, want 4", f.index.Len())
			}
		})
	}
}

func TestEmbedAndStore_EmptyContent(t *testing.T) {
	f := newFixture(t)

	res, err := f.p.EmbedAndStore(context.Background(), "empty.ts", "", testTag, testCommit)
	if err != nil {
		t.Fatal(err)
	}
	if res.EmbeddedCount != 0 || res.SkippedCount != 0 {
		t.Errorf("counts = %d/%d, want 0/0", res.EmbeddedCount, res.SkippedCount)
	}
	if f.embedder.calls != 0 {
		t.Errorf("embedder called %d times for empty content", f.embedder.calls)
	}
	if n := len(f.log.Entries()); n != 1 {
		t.Errorf("audit entries = %d, want 1", n)
	}
}

func TestEmbedAndStore_InvalidScope(t *testing.T) {
	tests := []struct {
		name              string
		path, tag, commit string
	}{
		{"missing path", "", testTag, testCommit},
		{"missing commit", "a.js", testTag, ""},
		{"missing repo tag", "a.js", "", testCommit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.p.EmbedAndStore(context.Background(), tt.path, "abc", tt.tag, tt.commit)
			if !errors.Is(err, ErrInvalidScope) {
				t.Fatalf("err = %v, want ErrInvalidScope", err)
			}
			var mfe *vector.MissingFieldsError
			if !errors.As(err, &mfe) || len(mfe.Fields) != 1 {
				t.Errorf("err = %v, want one missing field", err)
			}
			if f.embedder.calls != 0 || len(f.log.Entries()) != 0 {
				t.Error("invalid scope must not embed or audit")
			}
		})
	}
}

func TestEmbedAndStore_Failures(t *testing.T) {
	providerDown := errors.New("401 unauthorized")

	tests := []struct {
		name     string
		embedder *stubEmbedder
		index    func(*memory.Index) vector.Index
		wantKind error
		wantErr  error
	}{
		{
			name:     "provider failure",
			embedder: &stubEmbedder{err: providerDown},
			wantKind: ErrProvider,
			wantErr:  providerDown,
		},
		{
			name:     "provider returns too few vectors",
			embedder: &stubEmbedder{short: true},
			wantKind: ErrProvider,
		},
		{
			name:     "probe failure",
			embedder: &stubEmbedder{},
			index:    func(m *memory.Index) vector.Index { return &failingIndex{Index: m, queryErr: errIndexDown} },
			wantKind: ErrIndex,
			wantErr:  errIndexDown,
		},
		{
			name:     "upsert failure",
			embedder: &stubEmbedder{},
			index:    func(m *memory.Index) vector.Index { return &failingIndex{Index: m, upsertErr: errIndexDown} },
			wantKind: ErrIndex,
			wantErr:  errIndexDown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := memory.New(0)
			var idx vector.Index = mem
			if tt.index != nil {
				idx = tt.index(mem)
			}
			log := audit.NewMemoryLog()
			p := New(tt.embedder, idx, log,
				WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
				WithChunkSize(3))

			res, err := p.EmbedAndStore(context.Background(), "a.js", "abcdef", testTag, testCommit)
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("err = %v, want kind %v", err, tt.wantKind)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want cause %v", err, tt.wantErr)
			}
			if res.EmbeddedCount != 0 || res.SkippedCount != 0 {
				t.Errorf("counts = %d/%d, want 0/0", res.EmbeddedCount, res.SkippedCount)
			}
			if res.FilePath != "a.js" || res.CommitHash != testCommit {
				t.Errorf("result scope = %+v", res)
			}
			if mem.Len() != 0 {
				t.Errorf("index has %d records after failure", mem.Len())
			}
			if len(log.Entries()) != 0 {
				t.Error("failed call must not be audited")
			}
		})
	}
}

func TestEmbedAndStore_AuditFailureKeepsCounts(t *testing.T) {
	idx := memory.New(0)
	p := New(&stubEmbedder{}, idx, &failingLog{},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithChunkSize(3))

	res, err := p.EmbedAndStore(context.Background(), "a.js", "abcdef", testTag, testCommit)
	if !errors.Is(err, ErrAudit) {
		t.Fatalf("err = %v, want ErrAudit", err)
	}
	if res.EmbeddedCount != 2 || idx.Len() != 2 {
		t.Errorf("embedded = %d, index = %d, want 2/2", res.EmbeddedCount, idx.Len())
	}
	if res.LogID != "" {
		t.Errorf("log id = %q, want empty", res.LogID)
	}
}

func TestEmbedAndStore_ProbeFallsBackToQuery(t *testing.T) {
	mem := memory.New(0)
	idx := &queryOnlyIndex{Index: mem}
	p := New(&stubEmbedder{}, idx, nil,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithChunkSize(3),
		WithDimensions(8),
		WithProbeLimit(50))
	ctx := context.Background()

	if _, err := p.EmbedAndStore(ctx, "a.js", "abcdef", testTag, testCommit); err != nil {
		t.Fatal(err)
	}
	res, err := p.EmbedAndStore(ctx, "a.js", "abcdef", testTag, testCommit)
	if err != nil {
		t.Fatal(err)
	}
	if res.SkippedCount != 2 || res.EmbeddedCount != 0 {
		t.Errorf("counts = %d/%d, want 0/2", res.EmbeddedCount, res.SkippedCount)
	}
	if len(idx.queries) != 2 {
		t.Fatalf("queries = %d, want 2", len(idx.queries))
	}
	q := idx.queries[0]
	if q.dim != 8 || q.topK != 50 {
		t.Errorf("probe query dim=%d topK=%d, want 8/50", q.dim, q.topK)
	}
	want := vector.Filter{
		vector.KeyRepoTag:     testTag,
		vector.KeyCommitHash:  testCommit,
		vector.KeyFileHash:    chunk.FileHash("a.js"),
		vector.KeyContentHash: chunk.ContentHash("abcdef"),
	}
	if len(q.filter) != len(want) {
		t.Fatalf("filter = %v, want %v", q.filter, want)
	}
	for k, v := range want {
		if q.filter[k] != v {
			t.Errorf("filter[%s] = %q, want %q", k, q.filter[k], v)
		}
	}
}

func TestEmbedAndStore_LineageAndMetrics(t *testing.T) {
	lineage := graph.NewMemory()
	metrics := observability.NewPipelineMetrics()
	f := newFixture(t, WithLineage(lineage), WithMetrics(metrics))
	ctx := context.Background()

	for _, path := range []string{"b.js", "a.js"} {
		if _, err := f.p.EmbedAndStore(ctx, path, "abcdef", testTag, testCommit); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.p.EmbedAndStore(ctx, "a.js", "abcdef", testTag, testCommit); err != nil {
		t.Fatal(err)
	}

	files, err := lineage.CommitFiles(ctx, testTag, testCommit)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(files, ",") != "a.js,b.js" {
		t.Errorf("lineage files = %v", files)
	}
	if got := metrics.ChunksEmbedded.Value(); got != 4 {
		t.Errorf("chunks embedded = %v, want 4", got)
	}
	if got := metrics.ChunksSkipped.Value(); got != 2 {
		t.Errorf("chunks skipped = %v, want 2", got)
	}
	if got := metrics.FilesIngested.Value(); got != 3 {
		t.Errorf("files ingested = %v, want 3", got)
	}
}

func TestOptions_NonPositiveKeepDefaults(t *testing.T) {
	p := New(&stubEmbedder{}, memory.New(0), nil,
		WithProbeLimit(0),
		WithProbeConcurrency(-1))
	if p.probeLimit != DefaultProbeLimit {
		t.Errorf("probeLimit = %d, want %d", p.probeLimit, DefaultProbeLimit)
	}
	if p.probeConcurrency != DefaultProbeConcurrency {
		t.Errorf("probeConcurrency = %d, want %d", p.probeConcurrency, DefaultProbeConcurrency)
	}
}

func TestEmbedAndStore_ZeroLookupLimitStillDeduplicates(t *testing.T) {
	mem := memory.New(0)
	idx := &queryOnlyIndex{Index: mem}
	p := New(&stubEmbedder{}, idx, nil,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithChunkSize(3),
		WithProbeLimit(0))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := p.EmbedAndStore(ctx, "a.js", "abcdef", testTag, testCommit)
		if err != nil {
			t.Fatal(err)
		}
		if i == 1 && (res.EmbeddedCount != 0 || res.SkippedCount != 2) {
			t.Errorf("second call counts = %d/%d, want 0/2", res.EmbeddedCount, res.SkippedCount)
		}
	}
	if mem.Len() != 2 {
		t.Errorf("index has %d records, want 2", mem.Len())
	}
	if q := idx.queries[0]; q.topK != DefaultProbeLimit {
		t.Errorf("lookup topK = %d, want %d", q.topK, DefaultProbeLimit)
	}
}
