package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"docchat/internal/activities"
)

const (
	QueryGetIngestStatus = "GetIngestStatus"

	StatusPending   = "pending"
	StatusIngesting = "ingesting"
	StatusReady     = "ready"
	StatusFailed    = "failed"
)

// Steps run once: a retried ingest would clear the session a second time.
func activityOptions(timeout time.Duration) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
}

func SessionIngestWorkflow(ctx workflow.Context, input SessionIngestInput) (SessionIngestProgress, error) {
	progress := SessionIngestProgress{SessionID: input.SessionID, Status: StatusPending}
	if err := workflow.SetQueryHandler(ctx, QueryGetIngestStatus, func() (SessionIngestProgress, error) {
		return progress, nil
	}); err != nil {
		return progress, err
	}
	logger := workflow.GetLogger(ctx)

	if progress.SessionID == "" {
		sctx := workflow.WithActivityOptions(ctx, activityOptions(30*time.Second))
		var created activities.CreateSessionOutput
		if err := workflow.ExecuteActivity(sctx, "CreateSessionActivity").Get(sctx, &created); err != nil {
			progress.Status, progress.Error = StatusFailed, err.Error()
			return progress, err
		}
		progress.SessionID = created.SessionID
	}

	progress.Status = StatusIngesting
	ictx := workflow.WithActivityOptions(ctx, activityOptions(10*time.Minute))
	var out activities.IngestDocumentsOutput
	err := workflow.ExecuteActivity(ictx, "IngestDocumentsActivity", activities.IngestDocumentsInput{
		SessionID: progress.SessionID,
		Files:     input.Files,
	}).Get(ictx, &out)
	if err != nil {
		progress.Status, progress.Error = StatusFailed, err.Error()
		logger.Error("ingest failed", "session_id", progress.SessionID, "error", err)
		return progress, err
	}
	progress.Status = StatusReady
	progress.Documents = out.Documents
	progress.Chunks = out.Chunks
	logger.Info("ingest complete", "session_id", progress.SessionID, "chunks", out.Chunks)
	return progress, nil
}

func AnalyzeWorkflow(ctx workflow.Context, input AnalyzeInput) (activities.AnalyzeDocumentOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, activityOptions(5*time.Minute))
	var out activities.AnalyzeDocumentOutput
	err := workflow.ExecuteActivity(ctx, "AnalyzeDocumentActivity", input).Get(ctx, &out)
	return out, err
}

func CompareWorkflow(ctx workflow.Context, input CompareInput) (activities.CompareDocumentsOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, activityOptions(5*time.Minute))
	var out activities.CompareDocumentsOutput
	err := workflow.ExecuteActivity(ctx, "CompareDocumentsActivity", input).Get(ctx, &out)
	return out, err
}

// EvictionWorkflow is meant to run under a single workflow id so that at most
// one eviction is in flight.
func EvictionWorkflow(ctx workflow.Context, input EvictionInput) (activities.EvictSessionsOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, activityOptions(2*time.Minute))
	var out activities.EvictSessionsOutput
	if err := workflow.ExecuteActivity(ctx, "EvictSessionsActivity", activities.EvictSessionsInput{
		KeepLatest: input.KeepLatest,
	}).Get(ctx, &out); err != nil {
		return out, err
	}
	workflow.GetLogger(ctx).Info("eviction complete", "evicted", len(out.Evicted))
	return out, nil
}
