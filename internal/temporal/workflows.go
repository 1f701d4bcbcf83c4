package temporal

import (
	"errors"
	"fmt"
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/CihadCengiz/prompt-generator/internal/ingest"
)

const (
	activityTimeout = 5 * time.Minute
	maxAttempts     = 3
)

// CommitSyncInput describes one commit to bring into the index. Files holds
// every new or changed file; Removed lists paths deleted by the commit.
type CommitSyncInput struct {
	RepoTag        string
	CommitHash     string
	Files          []FileInput
	Removed        []string
	PreviousCommit string
}

// CommitSyncOutput aggregates the activity results.
type CommitSyncOutput struct {
	CommitHash      string
	FilesEmbedded   int
	ChunksEmbedded  int
	ChunksSkipped   int
	RecordsDeleted  int
	PreviousDeleted int
	Errors          []string
}

// CommitSyncWorkflow replaces the records of changed and removed files under
// CommitHash, embeds the commit's files, then drops PreviousCommit. The
// previous commit is kept when any file failed to embed.
func CommitSyncWorkflow(ctx workflow.Context, input CommitSyncInput) (*CommitSyncOutput, error) {
	if input.RepoTag == "" || input.CommitHash == "" {
		return nil, errors.New("commit sync: repoTag and commitHash are required")
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: activityTimeout,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    maxAttempts,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	logger := workflow.GetLogger(ctx)

	out := &CommitSyncOutput{CommitHash: input.CommitHash}

	// Step 1: clear stale records for every touched path
	paths := make([]string, 0, len(input.Files)+len(input.Removed))
	for _, f := range input.Files {
		paths = append(paths, f.Path)
	}
	paths = append(paths, input.Removed...)
	if len(paths) > 0 {
		var del ingest.DeleteResult
		in := DeleteFilesInput{RepoTag: input.RepoTag, CommitHash: input.CommitHash, Paths: paths}
		if err := workflow.ExecuteActivity(ctx, DeleteFilesActivity, in).Get(ctx, &del); err != nil {
			return nil, fmt.Errorf("delete files: %w", err)
		}
		out.RecordsDeleted = del.DeletedCount
	}

	// Step 2: embed files concurrently
	futures := make([]workflow.Future, len(input.Files))
	for i, f := range input.Files {
		in := EmbedFileInput{RepoTag: input.RepoTag, CommitHash: input.CommitHash, File: f}
		futures[i] = workflow.ExecuteActivity(ctx, EmbedFileActivity, in)
	}
	for i, fut := range futures {
		var res ingest.EmbedResult
		if err := fut.Get(ctx, &res); err != nil {
			logger.Warn("embed failed", "path", input.Files[i].Path, "error", err)
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", input.Files[i].Path, err))
			continue
		}
		out.FilesEmbedded++
		out.ChunksEmbedded += res.EmbeddedCount
		out.ChunksSkipped += res.SkippedCount
	}

	// Step 3: retire the previous commit
	if input.PreviousCommit != "" && input.PreviousCommit != input.CommitHash {
		if len(out.Errors) > 0 {
			logger.Warn("keeping previous commit after embed failures", "previous", input.PreviousCommit)
			return out, nil
		}
		var del ingest.DeleteResult
		in := DeleteCommitInput{RepoTag: input.RepoTag, CommitHash: input.PreviousCommit}
		if err := workflow.ExecuteActivity(ctx, DeleteCommitActivity, in).Get(ctx, &del); err != nil {
			return nil, fmt.Errorf("delete previous commit: %w", err)
		}
		out.PreviousDeleted = del.DeletedCount
	}

	return out, nil
}
