// Package audit records the outcome of every ingestion and deletion call.
// Entries are append-only; the pipelines never read them back.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EntryType categorizes audit entries.
type EntryType string

const (
	TypeEmbedding     EntryType = "embedding"
	TypeDeleteAll     EntryType = "delete-all"
	TypeDeleteChanged EntryType = "delete-changed"
)

// Entry is one audit record.
type Entry struct {
	ID            string    `json:"id"`
	Type          EntryType `json:"type"`
	FilePath      string    `json:"filePath,omitempty"`
	CommitHash    string    `json:"commitHash"`
	RepoTag       string    `json:"repoTag"`
	EmbeddedCount int       `json:"embeddedCount"`
	SkippedCount  int       `json:"skippedCount"`
	DeletedCount  int       `json:"deletedCount"`
	AffectedFiles int       `json:"affectedFiles"`
	Timestamp     time.Time `json:"timestamp"`
}

// Log appends entries and returns the id assigned to each.
type Log interface {
	Append(ctx context.Context, e Entry) (string, error)
}

// Reader is implemented by logs that can return recent entries.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// stamp fills the id and timestamp when the caller left them empty.
func stamp(e *Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
}

// Config selects and configures a backend.
type Config struct {
	Backend string // "file", "sqlite", "postgres", "memory", "none"
	Path    string // file backend: path, "stdout" or "stderr"
	DSN     string // sqlite file path or postgres connection string
}

// Open builds the configured log. The returned close function is never nil.
func Open(ctx context.Context, cfg Config) (Log, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "", "file":
		l, err := NewFileLog(cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		return l, l.Close, nil
	case "sqlite", "postgres":
		l, err := OpenSQL(ctx, cfg.Backend, cfg.DSN)
		if err != nil {
			return nil, noop, err
		}
		return l, l.Close, nil
	case "memory":
		return NewMemoryLog(), noop, nil
	case "none":
		return Nop{}, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}

// Nop discards entries but still assigns ids.
type Nop struct{}

func (Nop) Append(_ context.Context, e Entry) (string, error) {
	stamp(&e)
	return e.ID, nil
}

// MemoryLog keeps entries in process.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

func (m *MemoryLog) Append(ctx context.Context, e Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	stamp(&e)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return e.ID, nil
}

// Entries returns a copy of everything appended so far, oldest first.
func (m *MemoryLog) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Recent returns up to limit entries, newest first.
func (m *MemoryLog) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for i := len(m.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}
