package activities

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"docchat/internal/models"
	"docchat/internal/pipeline"
	"docchat/internal/util"
)

// DocService is the slice of pipeline.Service the activities drive.
type DocService interface {
	CreateSession() (models.Session, error)
	Ingest(ctx context.Context, sessionID string, files []models.UploadedFile) (pipeline.IngestResult, error)
	Analyze(ctx context.Context, f models.UploadedFile) (models.DocumentMetadata, error)
	Compare(ctx context.Context, reference, actual models.UploadedFile) ([]models.ComparisonRecord, error)
	Evict(ctx context.Context, keepLatest int) (pipeline.EvictResult, error)
}

type Activities struct {
	svc DocService
}

func New(svc DocService) *Activities {
	return &Activities{svc: svc}
}

func (a *Activities) CreateSessionActivity(ctx context.Context) (CreateSessionOutput, error) {
	sess, err := a.svc.CreateSession()
	if err != nil {
		return CreateSessionOutput{}, appError(err)
	}
	activity.GetLogger(ctx).Info("session created", "session_id", sess.ID)
	return CreateSessionOutput{SessionID: sess.ID}, nil
}

func (a *Activities) IngestDocumentsActivity(ctx context.Context, in IngestDocumentsInput) (IngestDocumentsOutput, error) {
	files := make([]models.UploadedFile, 0, len(in.Files))
	for _, f := range in.Files {
		files = append(files, f.Upload())
	}
	activity.RecordHeartbeat(ctx, len(files))
	res, err := a.svc.Ingest(ctx, in.SessionID, files)
	if err != nil {
		return IngestDocumentsOutput{}, appError(err)
	}
	return res, nil
}

func (a *Activities) AnalyzeDocumentActivity(ctx context.Context, in AnalyzeDocumentInput) (AnalyzeDocumentOutput, error) {
	meta, err := a.svc.Analyze(ctx, in.File.Upload())
	if err != nil {
		return AnalyzeDocumentOutput{}, appError(err)
	}
	return AnalyzeDocumentOutput{Metadata: meta}, nil
}

func (a *Activities) CompareDocumentsActivity(ctx context.Context, in CompareDocumentsInput) (CompareDocumentsOutput, error) {
	records, err := a.svc.Compare(ctx, in.Reference.Upload(), in.Actual.Upload())
	if err != nil {
		return CompareDocumentsOutput{}, appError(err)
	}
	return CompareDocumentsOutput{Records: records}, nil
}

// EvictSessionsActivity reports partially failed evictions as a
// non-retryable error whose details hold the sessions that did go away.
func (a *Activities) EvictSessionsActivity(ctx context.Context, in EvictSessionsInput) (EvictSessionsOutput, error) {
	res, err := a.svc.Evict(ctx, in.KeepLatest)
	out := EvictSessionsOutput{Evicted: res.Evicted}
	if err != nil {
		var ue *util.Error
		if errors.As(err, &ue) {
			for _, f := range ue.Failures {
				out.Failures = append(out.Failures, f.Error())
			}
		}
		return out, temporal.NewNonRetryableApplicationError(err.Error(), util.KindName(err), err, out)
	}
	activity.GetLogger(ctx).Info("sessions evicted", "count", len(out.Evicted))
	return out, nil
}

// appError keeps the error kind visible to workflows. Domain errors are not
// retried.
func appError(err error) error {
	if util.KindOf(err) == nil {
		return err
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), util.KindName(err), err)
}
