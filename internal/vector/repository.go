package vector

import (
	"context"
	"errors"
)

// Metadata keys stored alongside each vector. The chunk hash lives under
// "hash" so records stay compatible with indexes populated by earlier tooling.
const (
	KeyText        = "text"
	KeyChunkHash   = "hash"
	KeyFilePath    = "filePath"
	KeyFileHash    = "fileHash"
	KeyContentHash = "contentHash"
	KeyCommitHash  = "commitHash"
	KeyRepoTag     = "repoTag"
)

// ErrDimensionMismatch is returned when a vector does not match the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Metadata describes the chunk a vector was computed from.
type Metadata struct {
	Text        string
	ChunkHash   string
	FilePath    string
	FileHash    string
	ContentHash string
	CommitHash  string
	RepoTag     string
}

// Map flattens the metadata into the key/value payload an index stores.
func (m Metadata) Map() map[string]string {
	return map[string]string{
		KeyText:        m.Text,
		KeyChunkHash:   m.ChunkHash,
		KeyFilePath:    m.FilePath,
		KeyFileHash:    m.FileHash,
		KeyContentHash: m.ContentHash,
		KeyCommitHash:  m.CommitHash,
		KeyRepoTag:     m.RepoTag,
	}
}

// MetadataFromMap is the inverse of Metadata.Map. Unknown keys are ignored.
func MetadataFromMap(kv map[string]string) Metadata {
	return Metadata{
		Text:        kv[KeyText],
		ChunkHash:   kv[KeyChunkHash],
		FilePath:    kv[KeyFilePath],
		FileHash:    kv[KeyFileHash],
		ContentHash: kv[KeyContentHash],
		CommitHash:  kv[KeyCommitHash],
		RepoTag:     kv[KeyRepoTag],
	}
}

// Record is a stored embedding. Records are never updated in place.
type Record struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Match is a record returned from a lookup, ordered by the index.
type Match struct {
	ID       string
	Score    float32
	Metadata Metadata
}

// Filter is a conjunction of exact-match metadata conditions.
// An empty filter matches everything.
type Filter map[string]string

// Matches reports whether every condition holds for the given payload.
func (f Filter) Matches(kv map[string]string) bool {
	for k, v := range f {
		if kv[k] != v {
			return false
		}
	}
	return true
}

// Index is the vector store the pipelines write to and read from.
type Index interface {
	// Query returns up to topK matches ordered by descending similarity,
	// restricted to records satisfying filter.
	Query(ctx context.Context, vec []float32, topK int, filter Filter) ([]Match, error)
	// Upsert stores records as one batch.
	Upsert(ctx context.Context, records []Record) error
	// DeleteMany removes records by id. Unknown ids are ignored.
	DeleteMany(ctx context.Context, ids []string) error
	Close() error
}

// Lister is implemented by indexes that can enumerate records by metadata
// alone, without a similarity query.
type Lister interface {
	List(ctx context.Context, filter Filter, limit int) ([]Match, error)
}
