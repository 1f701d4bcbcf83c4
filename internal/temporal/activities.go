package temporal

import (
	"context"
	"errors"

	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/CihadCengiz/prompt-generator/internal/ingest"
)

// Pipeline is the part of ingest.Pipeline the activities drive.
type Pipeline interface {
	EmbedAndStore(ctx context.Context, filePath, content, repoTag, commitHash string) (ingest.EmbedResult, error)
	DeleteByCommit(ctx context.Context, repoTag, commitHash string) (ingest.DeleteResult, error)
	DeleteByFileList(ctx context.Context, repoTag, commitHash string, filePaths []string) (ingest.DeleteResult, error)
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Pipeline Pipeline
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

var errNoPipeline = errors.New("temporal activities: pipeline not configured")

// FileInput is one file of a commit as read by the caller.
type FileInput struct {
	Path    string
	Content string
}

type EmbedFileInput struct {
	RepoTag    string
	CommitHash string
	File       FileInput
}

type DeleteFilesInput struct {
	RepoTag    string
	CommitHash string
	Paths      []string
}

type DeleteCommitInput struct {
	RepoTag    string
	CommitHash string
}

func EmbedFileActivity(ctx context.Context, input EmbedFileInput) (ingest.EmbedResult, error) {
	p, err := pipeline()
	if err != nil {
		return ingest.EmbedResult{}, err
	}
	res, err := p.EmbedAndStore(ctx, input.File.Path, input.File.Content, input.RepoTag, input.CommitHash)
	return res, classify(err)
}

func DeleteFilesActivity(ctx context.Context, input DeleteFilesInput) (ingest.DeleteResult, error) {
	p, err := pipeline()
	if err != nil {
		return ingest.DeleteResult{}, err
	}
	res, err := p.DeleteByFileList(ctx, input.RepoTag, input.CommitHash, input.Paths)
	return res, classify(err)
}

func DeleteCommitActivity(ctx context.Context, input DeleteCommitInput) (ingest.DeleteResult, error) {
	p, err := pipeline()
	if err != nil {
		return ingest.DeleteResult{}, err
	}
	res, err := p.DeleteByCommit(ctx, input.RepoTag, input.CommitHash)
	return res, classify(err)
}

func pipeline() (Pipeline, error) {
	if deps == nil || deps.Pipeline == nil {
		return nil, sdktemporal.NewNonRetryableApplicationError(errNoPipeline.Error(), "Configuration", errNoPipeline)
	}
	return deps.Pipeline, nil
}

// classify marks scope errors as non-retryable. Provider, index and audit
// failures keep the activity retry policy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ingest.ErrInvalidScope) {
		return sdktemporal.NewNonRetryableApplicationError(err.Error(), "InvalidScope", err)
	}
	return err
}
