package providers

import (
	"context"

	"docchat/internal/models"
)

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

// CompletionRequest is the system/history/human message shape every LLM call uses.
type CompletionRequest struct {
	Operation string            `json:"operation"`
	System    string            `json:"system"`
	History   []models.ChatTurn `json:"history,omitempty"`
	Input     string            `json:"input"`
}

type LLMProvider interface {
	Info() ProviderInfo
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type EmbeddingProvider interface {
	Info() ProviderInfo
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// chatMessages flattens a request into OpenAI-style role/content messages.
func chatMessages(req CompletionRequest) []map[string]string {
	msgs := make([]map[string]string, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, map[string]string{"role": "system", "content": req.System})
	}
	for _, turn := range req.History {
		role := "user"
		if turn.Role == models.RoleAssistant {
			role = "assistant"
		}
		msgs = append(msgs, map[string]string{"role": role, "content": turn.Content})
	}
	return append(msgs, map[string]string{"role": "user", "content": req.Input})
}
