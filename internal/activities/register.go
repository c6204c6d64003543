package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.CreateSessionActivity)
	w.RegisterActivity(a.IngestDocumentsActivity)
	w.RegisterActivity(a.AnalyzeDocumentActivity)
	w.RegisterActivity(a.CompareDocumentsActivity)
	w.RegisterActivity(a.EvictSessionsActivity)
}
