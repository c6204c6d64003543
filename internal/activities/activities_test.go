package activities

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"docchat/internal/models"
	"docchat/internal/pipeline"
	"docchat/internal/util"
)

type fakeService struct {
	ingested []models.UploadedFile
	evictErr error
}

func (f *fakeService) CreateSession() (models.Session, error) {
	return models.Session{ID: "session_x"}, nil
}

func (f *fakeService) Ingest(_ context.Context, sessionID string, files []models.UploadedFile) (pipeline.IngestResult, error) {
	f.ingested = files
	if len(files) == 0 {
		return pipeline.IngestResult{}, util.Errorf(util.ErrIngestion, "fake.Ingest", "no files uploaded")
	}
	return pipeline.IngestResult{SessionID: sessionID, Documents: []string{files[0].Name}, Chunks: 1}, nil
}

func (f *fakeService) Analyze(context.Context, models.UploadedFile) (models.DocumentMetadata, error) {
	return models.DocumentMetadata{Title: "T"}, nil
}

func (f *fakeService) Compare(_ context.Context, reference, actual models.UploadedFile) ([]models.ComparisonRecord, error) {
	return []models.ComparisonRecord{{Page: "1", Changes: reference.Name + "->" + actual.Name}}, nil
}

func (f *fakeService) Evict(context.Context, int) (pipeline.EvictResult, error) {
	return pipeline.EvictResult{Evicted: []string{"old"}}, f.evictErr
}

func TestIngestDocumentsActivityPassesContent(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	svc := &fakeService{}
	a := New(svc)
	env.RegisterActivity(a.IngestDocumentsActivity)

	val, err := env.ExecuteActivity(a.IngestDocumentsActivity, IngestDocumentsInput{
		SessionID: "s1",
		Files:     []FilePayload{{Name: "notes.TXT", Content: []byte("hello")}},
	})
	require.NoError(t, err)
	var out IngestDocumentsOutput
	require.NoError(t, val.Get(&out))
	require.Equal(t, "s1", out.SessionID)
	require.Len(t, svc.ingested, 1)
	require.Equal(t, []byte("hello"), svc.ingested[0].Content)
	require.Equal(t, models.DocumentTXT, svc.ingested[0].Type)
}

func TestIngestDocumentsActivityDomainErrorIsNonRetryable(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	a := New(&fakeService{})
	env.RegisterActivity(a.IngestDocumentsActivity)

	_, err := env.ExecuteActivity(a.IngestDocumentsActivity, IngestDocumentsInput{SessionID: "s1"})
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "ingestion_error", appErr.Type())
	require.True(t, appErr.NonRetryable())
}

func TestCompareDocumentsActivity(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	a := New(&fakeService{})
	env.RegisterActivity(a.CompareDocumentsActivity)

	val, err := env.ExecuteActivity(a.CompareDocumentsActivity, CompareDocumentsInput{
		Reference: FilePayload{Name: "ref.pdf"},
		Actual:    FilePayload{Name: "act.pdf"},
	})
	require.NoError(t, err)
	var out CompareDocumentsOutput
	require.NoError(t, val.Get(&out))
	require.Equal(t, []models.ComparisonRecord{{Page: "1", Changes: "ref.pdf->act.pdf"}}, out.Records)
}

func TestEvictSessionsActivityPartialFailure(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	svc := &fakeService{evictErr: &util.Error{
		Kind:     util.ErrEviction,
		Op:       "fake.Evict",
		Err:      fmt.Errorf("1 files not removed"),
		Failures: []error{errors.New("remove a: permission denied")},
	}}
	a := New(svc)
	env.RegisterActivity(a.EvictSessionsActivity)

	_, err := env.ExecuteActivity(a.EvictSessionsActivity, EvictSessionsInput{KeepLatest: 1})
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "eviction_error", appErr.Type())

	var details EvictSessionsOutput
	require.NoError(t, appErr.Details(&details))
	require.Equal(t, []string{"old"}, details.Evicted)
	require.Equal(t, []string{"remove a: permission denied"}, details.Failures)
}
