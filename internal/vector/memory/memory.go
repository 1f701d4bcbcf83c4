// Package memory is an in-process vector index using brute-force cosine
// similarity. It backs tests and the "memory" index backend.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/CihadCengiz/prompt-generator/internal/vector"
)

type entry struct {
	seq     uint64
	record  vector.Record
	payload map[string]string
}

// Index stores records in insertion order.
type Index struct {
	mu        sync.RWMutex
	dimension int
	next      uint64
	entries   map[string]*entry
}

// New creates an empty index. A dimension of 0 accepts vectors of any length.
func New(dimension int) *Index {
	return &Index{dimension: dimension, entries: make(map[string]*entry)}
}

func (x *Index) Upsert(ctx context.Context, records []vector.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, r := range records {
		if x.dimension > 0 && len(r.Vector) != x.dimension {
			return fmt.Errorf("record %s: %w: got %d, want %d", r.ID, vector.ErrDimensionMismatch, len(r.Vector), x.dimension)
		}
	}
	for _, r := range records {
		if e, ok := x.entries[r.ID]; ok {
			e.record = r
			e.payload = r.Metadata.Map()
			continue
		}
		x.next++
		x.entries[r.ID] = &entry{seq: x.next, record: r, payload: r.Metadata.Map()}
	}
	return nil
}

func (x *Index) Query(ctx context.Context, vec []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	type scored struct {
		e     *entry
		score float32
	}
	var hits []scored
	for _, e := range x.entries {
		if filter.Matches(e.payload) {
			hits = append(hits, scored{e: e, score: cosine(vec, e.record.Vector)})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].e.seq < hits[j].e.seq
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]vector.Match, len(hits))
	for i, h := range hits {
		out[i] = vector.Match{ID: h.e.record.ID, Score: h.score, Metadata: h.e.record.Metadata}
	}
	return out, nil
}

// List returns records matching filter in insertion order.
func (x *Index) List(ctx context.Context, filter vector.Filter, limit int) ([]vector.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	var hits []*entry
	for _, e := range x.entries {
		if filter.Matches(e.payload) {
			hits = append(hits, e)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]vector.Match, len(hits))
	for i, e := range hits {
		out[i] = vector.Match{ID: e.record.ID, Metadata: e.record.Metadata}
	}
	return out, nil
}

func (x *Index) DeleteMany(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range ids {
		delete(x.entries, id)
	}
	return nil
}

// Len reports the number of stored records.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

func (x *Index) Close() error { return nil }

func cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var (
	_ vector.Index  = (*Index)(nil)
	_ vector.Lister = (*Index)(nil)
)
