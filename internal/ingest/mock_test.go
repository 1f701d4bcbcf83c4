package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/CihadCengiz/prompt-generator/internal/audit"
	"github.com/CihadCengiz/prompt-generator/internal/vector"
)

// stubEmbedder returns the configured vector for a text, or {1, 0} when none
// is configured.
type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	short   bool
	calls   int
	inputs  [][]string
}

func (s *stubEmbedder) Name() string { return "stub" }

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.inputs = append(s.inputs, append([]string(nil), texts...))
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, ok := s.vectors[t]
		if !ok {
			v = []float32{1, 0}
		}
		out = append(out, v)
	}
	if s.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

// queryOnlyIndex hides the Lister implementation of the wrapped index.
type queryOnlyIndex struct {
	vector.Index
	mu      sync.Mutex
	queries []queryCall
}

type queryCall struct {
	dim    int
	topK   int
	filter vector.Filter
}

func (q *queryOnlyIndex) Query(ctx context.Context, vec []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	q.mu.Lock()
	q.queries = append(q.queries, queryCall{dim: len(vec), topK: topK, filter: filter})
	q.mu.Unlock()
	return q.Index.Query(ctx, vec, topK, filter)
}

// failingIndex wraps an index and fails the selected operations.
type failingIndex struct {
	vector.Index
	queryErr  error
	upsertErr error
	deleteErr error
	deletes   [][]string
}

var errIndexDown = errors.New("index unreachable")

func (f *failingIndex) Query(ctx context.Context, vec []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.Index.Query(ctx, vec, topK, filter)
}

func (f *failingIndex) Upsert(ctx context.Context, records []vector.Record) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.Index.Upsert(ctx, records)
}

func (f *failingIndex) DeleteMany(ctx context.Context, ids []string) error {
	f.deletes = append(f.deletes, ids)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Index.DeleteMany(ctx, ids)
}

type failingLog struct{ calls int }

func (l *failingLog) Append(context.Context, audit.Entry) (string, error) {
	l.calls++
	return "", errors.New("disk full")
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("rec-%03d", n)
	}
}
