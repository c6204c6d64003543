package workflows

import "docchat/internal/activities"

type SessionIngestInput struct {
	// SessionID is optional; a new session is created when empty.
	SessionID string                   `json:"session_id,omitempty"`
	Files     []activities.FilePayload `json:"files"`
}

type SessionIngestProgress struct {
	SessionID string   `json:"session_id"`
	Status    string   `json:"status"`
	Documents []string `json:"documents,omitempty"`
	Chunks    int      `json:"chunks"`
	Error     string   `json:"error,omitempty"`
}

type AnalyzeInput = activities.AnalyzeDocumentInput

type CompareInput = activities.CompareDocumentsInput

type EvictionInput struct {
	KeepLatest int `json:"keep_latest"`
}
