package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// OllamaProvider supports local embeddings and chat via Ollama.
// Example embedding model: nomic-embed-text.
type OllamaProvider struct {
	alias      string
	baseURL    string
	embedModel string
	chatModel  string
	dim        int
	client     *http.Client
}

func NewOllamaProvider(alias string, dim int) *OllamaProvider {
	baseURL := strings.TrimSpace(os.Getenv("DOCCHAT_OLLAMA_BASE_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		alias:      alias,
		baseURL:    strings.TrimRight(baseURL, "/"),
		embedModel: resolveOllamaEmbedModel(alias),
		chatModel:  getenvDefault("DOCCHAT_OLLAMA_CHAT_MODEL", "llama3.1"),
		dim:        dim,
		client:     &http.Client{Timeout: 90 * time.Second},
	}
}

func (o *OllamaProvider) Info() ProviderInfo {
	return ProviderInfo{Name: "ollama", Model: o.embedModel, Key: o.alias}
}

func (o *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := o.post(ctx, "/api/embeddings", map[string]any{"model": o.embedModel, "prompt": text}, &parsed); err != nil {
		return nil, fmt.Errorf("ollama embedding: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding")
	}
	return matchDimension(parsed.Embedding, o.dim), nil
}

func (o *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := o.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (o *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var parsed struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	payload := map[string]any{
		"model":    o.chatModel,
		"stream":   false,
		"messages": chatMessages(req),
		"options":  map[string]any{"temperature": 0},
	}
	if err := o.post(ctx, "/api/chat", payload, &parsed); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return parsed.Message.Content, nil
}

func (o *OllamaProvider) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("error %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func resolveOllamaEmbedModel(alias string) string {
	alias = strings.TrimSpace(alias)
	if alias != "" {
		key := "DOCCHAT_OLLAMA_EMBED_MODEL_" + sanitizeEnvToken(alias)
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		switch strings.ToLower(alias) {
		case "nomic":
			return "nomic-embed-text"
		case "bge":
			return "bge-small-en-v1.5"
		}
		// Allow a direct model in the provider list, e.g. ollama:nomic-embed-text
		if strings.ContainsAny(alias, "-/.") {
			return alias
		}
	}
	return getenvDefault("DOCCHAT_OLLAMA_EMBED_MODEL", "nomic-embed-text")
}

func sanitizeEnvToken(s string) string {
	return strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(strings.ToUpper(s))
}

func matchDimension(v []float32, target int) []float32 {
	if target <= 0 || len(v) == target {
		return v
	}
	if len(v) > target {
		return v[:target]
	}
	out := make([]float32, target)
	copy(out, v)
	return out
}
