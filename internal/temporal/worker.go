package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// StartWorker creates and starts a Temporal worker.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflow(CommitSyncWorkflow)
	w.RegisterActivity(EmbedFileActivity)
	w.RegisterActivity(DeleteFilesActivity)
	w.RegisterActivity(DeleteCommitActivity)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}

// WorkflowID is the deterministic id for syncing one commit, so a resubmitted
// commit joins the running execution instead of starting a second one.
func WorkflowID(repoTag, commitHash string) string {
	return fmt.Sprintf("commit-sync/%s/%s", repoTag, commitHash)
}

// StartCommitSync submits a CommitSyncWorkflow and waits for its result.
func StartCommitSync(ctx context.Context, c client.Client, taskQueue string, input CommitSyncInput) (*CommitSyncOutput, error) {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(input.RepoTag, input.CommitHash),
		TaskQueue: taskQueue,
	}, CommitSyncWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("starting commit sync: %w", err)
	}
	var out CommitSyncOutput
	if err := run.Get(ctx, &out); err != nil {
		return nil, fmt.Errorf("commit sync %s: %w", run.GetID(), err)
	}
	return &out, nil
}
