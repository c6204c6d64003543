package workflows

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker) {
	w.RegisterWorkflow(SessionIngestWorkflow)
	w.RegisterWorkflow(AnalyzeWorkflow)
	w.RegisterWorkflow(CompareWorkflow)
	w.RegisterWorkflow(EvictionWorkflow)
}
