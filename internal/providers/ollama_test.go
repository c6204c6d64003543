package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOllamaEmbedModel_Default(t *testing.T) {
	t.Setenv("DOCCHAT_OLLAMA_EMBED_MODEL", "")
	assert.Equal(t, "nomic-embed-text", resolveOllamaEmbedModel(""))
	assert.Equal(t, "bge-small-en-v1.5", resolveOllamaEmbedModel("bge"))
	assert.Equal(t, "mxbai-embed-large", resolveOllamaEmbedModel("mxbai-embed-large"))
}

func TestMatchDimension(t *testing.T) {
	src := []float32{1, 2, 3}
	assert.Equal(t, []float32{1, 2}, matchDimension(src, 2))
	assert.Equal(t, []float32{1, 2, 3, 0, 0}, matchDimension(src, 5))
	assert.Equal(t, src, matchDimension(src, 0))
}

func TestOllamaEmbedAndChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embeddings":
			_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.5, 0.5}})
		case "/api/chat":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			msgs, _ := body["messages"].([]any)
			_ = json.NewEncoder(w).Encode(map[string]any{"message": map[string]any{"content": fmt.Sprintf("turns=%d", len(msgs))}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	t.Setenv("DOCCHAT_OLLAMA_BASE_URL", srv.URL)

	p := NewOllamaProvider("", 3)
	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.5, 0.5, 0}, vecs[1])

	out, err := p.Complete(context.Background(), CompletionRequest{System: "sys", Input: "q"})
	require.NoError(t, err)
	assert.Equal(t, "turns=2", out)
}
