package providers

import (
	"strings"

	"docchat/internal/config"
	"docchat/internal/util"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

// Manager holds the configured providers in preference order.
type Manager struct {
	llmProviders   []NamedLLMProvider
	embedProviders []NamedEmbedProvider
}

func NewManager(cfg config.Config) (*Manager, error) {
	m := &Manager{}
	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		llm, ok := p.(LLMProvider)
		if !ok {
			return nil, util.Errorf(util.ErrInitialization, "providers.NewManager", "provider %s does not support llm", ref.Raw)
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: llm})
	}
	for _, ref := range ParseProviderList(cfg.EmbedProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		embed, ok := p.(EmbeddingProvider)
		if !ok {
			return nil, util.Errorf(util.ErrInitialization, "providers.NewManager", "provider %s does not support embeddings", ref.Raw)
		}
		m.embedProviders = append(m.embedProviders, NamedEmbedProvider{Ref: ref, Provider: embed})
	}
	return m, nil
}

func (m *Manager) LLM() LLMProvider {
	return m.llmProviders[0].Provider
}

func (m *Manager) Embedder() EmbeddingProvider {
	return m.embedProviders[0].Provider
}

// LLMRefs lists the configured LLM providers in preference order.
func (m *Manager) LLMRefs() []ProviderRef {
	out := make([]ProviderRef, 0, len(m.llmProviders))
	for _, p := range m.llmProviders {
		out = append(out, p.Ref)
	}
	return out
}

func (m *Manager) EmbedRefs() []ProviderRef {
	out := make([]ProviderRef, 0, len(m.embedProviders))
	for _, p := range m.embedProviders {
		out = append(out, p.Ref)
	}
	return out
}

func buildProvider(ref ProviderRef, dim int) (any, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(dim), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias, dim), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	case "gemini", "google":
		return NewGeminiProvider(ref.KeyAlias), nil
	default:
		return nil, util.Errorf(util.ErrInitialization, "providers.NewManager", "unsupported provider: %s", ref.Name)
	}
}
