package activities

import (
	"docchat/internal/models"
	"docchat/internal/pipeline"
)

// FilePayload carries an upload through Temporal. models.UploadedFile keeps
// its content out of JSON, so activities use this instead.
type FilePayload struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

func (f FilePayload) Upload() models.UploadedFile {
	return models.UploadedFile{Name: f.Name, Content: f.Content, Type: models.DetectType(f.Name)}
}

func Payloads(files []models.UploadedFile) []FilePayload {
	out := make([]FilePayload, 0, len(files))
	for _, f := range files {
		out = append(out, FilePayload{Name: f.Name, Content: f.Content})
	}
	return out
}

type CreateSessionOutput struct {
	SessionID string `json:"session_id"`
}

type IngestDocumentsInput struct {
	SessionID string        `json:"session_id"`
	Files     []FilePayload `json:"files"`
}

type IngestDocumentsOutput = pipeline.IngestResult

type AnalyzeDocumentInput struct {
	File FilePayload `json:"file"`
}

type AnalyzeDocumentOutput struct {
	Metadata models.DocumentMetadata `json:"metadata"`
}

type CompareDocumentsInput struct {
	Reference FilePayload `json:"reference"`
	Actual    FilePayload `json:"actual"`
}

type CompareDocumentsOutput struct {
	Records []models.ComparisonRecord `json:"records"`
}

type EvictSessionsInput struct {
	KeepLatest int `json:"keep_latest"`
}

type EvictSessionsOutput struct {
	Evicted  []string `json:"evicted"`
	Failures []string `json:"failures,omitempty"`
}
