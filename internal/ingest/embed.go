package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/CihadCengiz/prompt-generator/internal/audit"
	"github.com/CihadCengiz/prompt-generator/internal/chunk"
	"github.com/CihadCengiz/prompt-generator/internal/graph"
	"github.com/CihadCengiz/prompt-generator/internal/observability"
	"github.com/CihadCengiz/prompt-generator/internal/vector"
)

// EmbedResult reports one EmbedAndStore call.
type EmbedResult struct {
	EmbeddedCount int    `json:"embeddedCount"`
	SkippedCount  int    `json:"skippedCount"`
	FilePath      string `json:"filePath"`
	CommitHash    string `json:"commitHash"`
	LogID         string `json:"logId"`
}

// EmbedAndStore chunks content and stores a vector record for every chunk
// whose hash is not already present under the exact (repoTag, commitHash,
// file, content) scope.
//
// Every chunk is sent to the embedding provider, including chunks that turn
// out to be stored already; only storage is deduplicated. Chunks are checked
// against the index, not against each other, so identical chunks within one
// file each get their own record on first ingestion.
//
// On failure the result carries the scope with zero counts. If only the
// audit append fails, the counts reflect the records that were written.
func (p *Pipeline) EmbedAndStore(ctx context.Context, filePath, content, repoTag, commitHash string) (res EmbedResult, err error) {
	start := time.Now()
	ctx, span := observability.StartOperationSpan(ctx, "embed", repoTag, commitHash)
	defer func() {
		observability.RecordError(span, err)
		span.End()
		p.observe("embed", start, err)
	}()

	res = EmbedResult{FilePath: filePath, CommitHash: commitHash}

	scope := vector.Scope{
		RepoTag:     repoTag,
		CommitHash:  commitHash,
		FilePath:    filePath,
		FileHash:    chunk.FileHash(filePath),
		ContentHash: chunk.ContentHash(content),
	}
	if err := scope.Validate(vector.FieldRepoTag, vector.FieldCommitHash, vector.FieldFilePath); err != nil {
		return res, fmt.Errorf("embed %s: %w: %w", filePath, ErrInvalidScope, err)
	}

	chunks := chunk.Chunks(content, p.chunkSize)

	// The probe scope identifies this exact file version; filePath is implied
	// by fileHash and left out of the filter.
	existing, err := p.probe(ctx, vector.Scope{
		RepoTag:     scope.RepoTag,
		CommitHash:  scope.CommitHash,
		FileHash:    scope.FileHash,
		ContentHash: scope.ContentHash,
	}.Filter())
	if err != nil {
		return res, wrap(ErrIndex, "embed "+filePath, err)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		seen[m.Metadata.ChunkHash] = struct{}{}
	}

	var records []vector.Record
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err := p.embed(ctx, texts)
		if err != nil {
			return res, wrap(ErrProvider, "embed "+filePath, err)
		}

		for i, c := range chunks {
			if _, ok := seen[c.Hash]; ok {
				continue
			}
			records = append(records, vector.Record{
				ID:     p.newID(),
				Vector: vectors[i],
				Metadata: vector.Metadata{
					Text:        c.Text,
					ChunkHash:   c.Hash,
					FilePath:    scope.FilePath,
					FileHash:    scope.FileHash,
					ContentHash: scope.ContentHash,
					CommitHash:  scope.CommitHash,
					RepoTag:     scope.RepoTag,
				},
			})
		}
	}

	if len(records) > 0 {
		if err := p.index.Upsert(ctx, records); err != nil {
			return res, wrap(ErrIndex, "embed "+filePath, err)
		}
	}

	res.EmbeddedCount = len(records)
	res.SkippedCount = len(chunks) - len(records)
	if p.metrics != nil {
		p.metrics.RecordEmbed(res.EmbeddedCount, res.SkippedCount)
	}
	observability.RecordCounts(span, map[string]int{"embedded": res.EmbeddedCount, "skipped": res.SkippedCount})

	p.recordLineage(ctx, graph.FileVersion{
		RepoTag:     scope.RepoTag,
		CommitHash:  scope.CommitHash,
		FilePath:    scope.FilePath,
		FileHash:    scope.FileHash,
		ContentHash: scope.ContentHash,
		Chunks:      len(chunks),
	})

	logID, err := p.audit.Append(ctx, audit.Entry{
		Type:          audit.TypeEmbedding,
		FilePath:      filePath,
		CommitHash:    commitHash,
		RepoTag:       repoTag,
		EmbeddedCount: res.EmbeddedCount,
		SkippedCount:  res.SkippedCount,
	})
	if err != nil {
		return res, wrap(ErrAudit, "embed "+filePath, err)
	}
	res.LogID = logID

	p.logger.Info("embedded file",
		"file", filePath,
		"repo_tag", repoTag,
		"commit", commitHash,
		"embedded", res.EmbeddedCount,
		"skipped", res.SkippedCount,
	)
	return res, nil
}

func (p *Pipeline) recordLineage(ctx context.Context, fv graph.FileVersion) {
	if p.lineage == nil {
		return
	}
	if err := p.lineage.RecordFile(ctx, fv); err != nil {
		p.logger.Warn("lineage record failed", "file", fv.FilePath, "commit", fv.CommitHash, "error", err)
	}
}
