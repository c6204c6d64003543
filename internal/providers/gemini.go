package providers

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"docchat/internal/models"
)

// GeminiProvider serves chat and embeddings through Google Generative AI.
// The client is dialed on first use so constructing it never touches the network.
type GeminiProvider struct {
	keyName    string
	apiKey     string
	chatModel  string
	embedModel string

	once    sync.Once
	client  *genai.Client
	dialErr error
}

func NewGeminiProvider(keyName string) *GeminiProvider {
	return &GeminiProvider{
		keyName:    keyName,
		apiKey:     resolveGeminiKey(keyName),
		chatModel:  getenvDefault("DOCCHAT_GEMINI_CHAT_MODEL", "gemini-2.0-flash"),
		embedModel: getenvDefault("DOCCHAT_GEMINI_EMBED_MODEL", "text-embedding-004"),
	}
}

func (g *GeminiProvider) Info() ProviderInfo {
	return ProviderInfo{Name: "gemini", Model: g.chatModel, Key: g.keyName}
}

func (g *GeminiProvider) dial(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		if g.apiKey == "" {
			g.dialErr = fmt.Errorf("gemini key missing for alias %q", g.keyName)
			return
		}
		g.client, g.dialErr = genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	})
	return g.client, g.dialErr
}

func (g *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	client, err := g.dial(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.EmbeddingModel(g.embedModel).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding: %w", err)
	}
	if resp.Embedding == nil {
		return nil, fmt.Errorf("gemini returned no embedding")
	}
	return resp.Embedding.Values, nil
}

func (g *GeminiProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	client, err := g.dial(ctx)
	if err != nil {
		return nil, err
	}
	em := client.EmbeddingModel(g.embedModel)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embedding: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, 0, len(texts))
	for _, e := range resp.Embeddings {
		out = append(out, e.Values)
	}
	return out, nil
}

func (g *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	client, err := g.dial(ctx)
	if err != nil {
		return "", err
	}
	model := client.GenerativeModel(g.chatModel)
	model.SetTemperature(0)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	cs := model.StartChat()
	for _, turn := range req.History {
		role := "user"
		if turn.Role == models.RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(turn.Content)}})
	}
	resp, err := cs.SendMessage(ctx, genai.Text(req.Input))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		break
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("gemini returned empty candidates")
	}
	return b.String(), nil
}

func (g *GeminiProvider) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func resolveGeminiKey(alias string) string {
	if alias != "" {
		if v := os.Getenv("DOCCHAT_GEMINI_KEY_" + sanitizeEnvToken(alias)); v != "" {
			return v
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		return v
	}
	return os.Getenv("GOOGLE_API_KEY")
}
