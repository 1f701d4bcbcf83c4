package ingest

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CihadCengiz/prompt-generator/internal/audit"
	"github.com/CihadCengiz/prompt-generator/internal/observability"
	"github.com/CihadCengiz/prompt-generator/internal/vector"
)

// DeleteResult reports one deletion call. Error mirrors a non-nil returned
// error so callers that only serialize the result still see the failure.
type DeleteResult struct {
	DeletedCount  int    `json:"deletedCount"`
	CommitHash    string `json:"commitHash"`
	AffectedFiles int    `json:"affectedFiles,omitempty"`
	LogID         string `json:"logId,omitempty"`
	Error         bool   `json:"error,omitempty"`
}

// DeleteByCommit removes every record stored under (repoTag, commitHash), up
// to the probe limit. Deleting an empty scope succeeds with DeletedCount 0.
func (p *Pipeline) DeleteByCommit(ctx context.Context, repoTag, commitHash string) (res DeleteResult, err error) {
	start := time.Now()
	ctx, span := observability.StartOperationSpan(ctx, "delete_commit", repoTag, commitHash)
	defer func() {
		if err != nil {
			res.Error = true
		}
		observability.RecordError(span, err)
		span.End()
		p.observe("delete_commit", start, err)
	}()

	res = DeleteResult{CommitHash: commitHash}

	scope := vector.Scope{RepoTag: repoTag, CommitHash: commitHash}
	if err := scope.Validate(vector.FieldRepoTag, vector.FieldCommitHash); err != nil {
		return res, fmt.Errorf("delete commit: %w: %w", ErrInvalidScope, err)
	}

	matches, err := p.probe(ctx, scope.Filter())
	if err != nil {
		return res, wrap(ErrIndex, "delete commit "+commitHash, err)
	}
	ids := collectIDs(nil, nil, matches)
	if err := p.deleteIDs(ctx, ids); err != nil {
		return res, wrap(ErrIndex, "delete commit "+commitHash, err)
	}
	res.DeletedCount = len(ids)
	observability.RecordCounts(span, map[string]int{"deleted": res.DeletedCount})

	if p.lineage != nil {
		if err := p.lineage.ForgetCommit(ctx, repoTag, commitHash); err != nil {
			p.logger.Warn("lineage forget failed", "commit", commitHash, "error", err)
		}
	}

	logID, err := p.audit.Append(ctx, audit.Entry{
		Type:         audit.TypeDeleteAll,
		CommitHash:   commitHash,
		RepoTag:      repoTag,
		DeletedCount: res.DeletedCount,
	})
	if err != nil {
		return res, wrap(ErrAudit, "delete commit "+commitHash, err)
	}
	res.LogID = logID

	p.logger.Info("deleted commit", "repo_tag", repoTag, "commit", commitHash, "deleted", res.DeletedCount)
	return res, nil
}

// DeleteByFileList removes the records of the named files under
// (repoTag, commitHash). Each path is probed independently and the matching
// ids are deleted as one batch. AffectedFiles is the number of paths given,
// whether or not they matched anything.
func (p *Pipeline) DeleteByFileList(ctx context.Context, repoTag, commitHash string, filePaths []string) (res DeleteResult, err error) {
	start := time.Now()
	ctx, span := observability.StartOperationSpan(ctx, "delete_files", repoTag, commitHash)
	defer func() {
		if err != nil {
			res.Error = true
		}
		observability.RecordError(span, err)
		span.End()
		p.observe("delete_files", start, err)
	}()

	res = DeleteResult{CommitHash: commitHash}

	scope := vector.Scope{RepoTag: repoTag, CommitHash: commitHash}
	if err := scope.Validate(vector.FieldRepoTag, vector.FieldCommitHash); err != nil {
		return res, fmt.Errorf("delete files: %w: %w", ErrInvalidScope, err)
	}

	perPath := make([][]vector.Match, len(filePaths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.probeConcurrency)
	for i, path := range filePaths {
		g.Go(func() error {
			s := scope
			s.FilePath = path
			matches, err := p.probe(gctx, s.Filter())
			if err != nil {
				return fmt.Errorf("probe %s: %w", path, err)
			}
			perPath[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, wrap(ErrIndex, "delete files", err)
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, matches := range perPath {
		ids = collectIDs(ids, seen, matches)
	}
	if err := p.deleteIDs(ctx, ids); err != nil {
		return res, wrap(ErrIndex, "delete files", err)
	}
	res.DeletedCount = len(ids)
	res.AffectedFiles = len(filePaths)
	observability.RecordCounts(span, map[string]int{"deleted": res.DeletedCount, "files": res.AffectedFiles})

	if p.lineage != nil && len(filePaths) > 0 {
		if err := p.lineage.ForgetFiles(ctx, repoTag, commitHash, filePaths); err != nil {
			p.logger.Warn("lineage forget failed", "commit", commitHash, "files", len(filePaths), "error", err)
		}
	}

	logID, err := p.audit.Append(ctx, audit.Entry{
		Type:          audit.TypeDeleteChanged,
		CommitHash:    commitHash,
		RepoTag:       repoTag,
		DeletedCount:  res.DeletedCount,
		AffectedFiles: res.AffectedFiles,
	})
	if err != nil {
		return res, wrap(ErrAudit, "delete files", err)
	}
	res.LogID = logID

	p.logger.Info("deleted files",
		"repo_tag", repoTag,
		"commit", commitHash,
		"files", res.AffectedFiles,
		"deleted", res.DeletedCount,
	)
	return res, nil
}

// collectIDs appends match ids to ids. When seen is non-nil, ids already in
// it are skipped.
func collectIDs(ids []string, seen map[string]struct{}, matches []vector.Match) []string {
	for _, m := range matches {
		if seen != nil {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
		}
		ids = append(ids, m.ID)
	}
	return ids
}

func (p *Pipeline) deleteIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, span := observability.StartClientSpan(ctx, "index", "delete")
	defer span.End()
	err := p.index.DeleteMany(ctx, ids)
	observability.RecordError(span, err)
	if err == nil && p.metrics != nil {
		p.metrics.RecordDelete(len(ids))
	}
	return err
}
