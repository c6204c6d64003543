package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveGroqKeyPrefersAlias(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "shared")
	t.Setenv("DOCCHAT_GROQ_KEY_TEAM_A", "team")
	assert.Equal(t, "team", resolveGroqKey("team-a"))
	assert.Equal(t, "shared", resolveGroqKey("other"))
}

func TestGroqCompleteWithoutKeyFailsBeforeNetwork(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	p := NewGroqProvider("missing")
	_, err := p.Complete(context.Background(), CompletionRequest{Input: "hi"})
	require.Error(t, err)
	assert.Equal(t, ErrorAuth, ClassifyError(err))
}
