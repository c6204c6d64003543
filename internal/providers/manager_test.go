package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/config"
	"docchat/internal/util"
)

func TestNewManagerOrdersProviders(t *testing.T) {
	m, err := NewManager(config.Config{LLMProviders: "mock|groq:fast", EmbedProviders: "mock", EmbedDim: 32})
	require.NoError(t, err)
	assert.Equal(t, "mock", m.LLM().Info().Name)
	assert.Equal(t, "mock-32", m.Embedder().Info().Model)

	refs := m.LLMRefs()
	require.Len(t, refs, 2)
	assert.Equal(t, "groq", refs[1].Name)
	assert.Equal(t, "fast", refs[1].KeyAlias)
	assert.Len(t, m.EmbedRefs(), 1)
}

func TestNewManagerRejectsEmbeddingOnlyGaps(t *testing.T) {
	_, err := NewManager(config.Config{LLMProviders: "mock", EmbedProviders: "groq"})
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrInitialization)
}

func TestNewManagerUnknownProvider(t *testing.T) {
	_, err := NewManager(config.Config{LLMProviders: "anthropic-ish"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}
