package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/util"
	"docchat/internal/vector"
)

type countingLLM struct {
	reply string
	err   error
	calls []providers.CompletionRequest
}

func (c *countingLLM) Info() providers.ProviderInfo { return providers.ProviderInfo{Name: "counting"} }

func (c *countingLLM) Complete(_ context.Context, req providers.CompletionRequest) (string, error) {
	c.calls = append(c.calls, req)
	return c.reply, c.err
}

func newStore(t *testing.T) *vector.Store {
	t.Helper()
	return vector.NewStore(providers.NewMockProvider(128), vector.NewFileBlobStorage(t.TempDir()), nil)
}

func seed(t *testing.T, s *vector.Store, sessionID string) {
	t.Helper()
	chunks := []models.DocumentChunk{
		{DocumentID: "d", Page: 1, Index: 0, Text: "The warranty covers parts for two years."},
		{DocumentID: "d", Page: 2, Index: 1, Text: "Labour is covered for ninety days."},
		{DocumentID: "d", Page: 3, Index: 2, Text: "Accidental damage is excluded from the warranty."},
	}
	idx, err := s.Build(context.Background(), sessionID, chunks)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), idx))
}

func TestContextualizeEmptyHistoryIsIdentity(t *testing.T) {
	llm := &countingLLM{reply: "rewritten"}
	r := NewRetriever(llm, newStore(t), Options{}, nil)
	q, err := r.Contextualize(context.Background(), nil, "What about labour?")
	require.NoError(t, err)
	assert.Equal(t, "What about labour?", q)
	assert.Empty(t, llm.calls)
}

func TestContextualizeBlankRewriteFallsBack(t *testing.T) {
	llm := &countingLLM{reply: "   "}
	r := NewRetriever(llm, newStore(t), Options{}, nil)
	hist := []models.ChatTurn{{Role: models.RoleUser, Content: "warranty?", Seq: 1}}
	q, err := r.Contextualize(context.Background(), hist, "and labour?")
	require.NoError(t, err)
	assert.Equal(t, "and labour?", q)
	require.Len(t, llm.calls, 1)
	assert.Equal(t, hist, llm.calls[0].History)
}

func TestRetrieveWithoutIndexFailsBeforeProviderCall(t *testing.T) {
	llm := &countingLLM{reply: "x"}
	r := NewRetriever(llm, newStore(t), Options{}, nil)
	hist := []models.ChatTurn{{Role: models.RoleUser, Content: "hi", Seq: 1}}
	_, err := r.Retrieve(context.Background(), "session_missing", hist, "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrRetrieverNotInitialized)
	assert.Empty(t, llm.calls)
}

func TestRetrieveMalformedSessionIsNotInitialized(t *testing.T) {
	llm := &countingLLM{reply: "x"}
	r := NewRetriever(llm, newStore(t), Options{}, nil)
	for _, id := range []string{"..", ".", "", "a/b"} {
		_, err := r.Retrieve(context.Background(), id, nil, "q")
		assert.ErrorIs(t, err, util.ErrRetrieverNotInitialized, id)
		assert.NotErrorIs(t, err, util.ErrIndexLoad, id)
	}
	assert.Empty(t, llm.calls)
}

func TestRetrieveLazilyLoadsAndRanks(t *testing.T) {
	s := newStore(t)
	seed(t, s, "s1")
	r := NewRetriever(&countingLLM{}, s, Options{K: 2}, nil)

	res, err := r.Retrieve(context.Background(), "s1", nil, "Is accidental damage under warranty?")
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)
	assert.GreaterOrEqual(t, res.Chunks[0].Score, res.Chunks[1].Score)
	assert.Equal(t, res.Chunks[0].Chunk.Text+"\n\n"+res.Chunks[1].Chunk.Text, res.Context)
	_, live := s.Active("s1")
	assert.True(t, live)
}

func TestSynthesizerEmptyContext(t *testing.T) {
	llm := &countingLLM{reply: "should not be used"}
	out, err := NewSynthesizer(llm, nil).Answer(context.Background(), " \n ", nil, "q")
	require.NoError(t, err)
	assert.Equal(t, DontKnow, out)
	assert.Empty(t, llm.calls)
}

func TestSynthesizerCapsSentences(t *testing.T) {
	llm := &countingLLM{reply: "One. Two. Three. Four."}
	out, err := NewSynthesizer(llm, nil).Answer(context.Background(), "ctx", nil, "q")
	require.NoError(t, err)
	assert.Equal(t, "One. Two. Three.", out)
	require.Len(t, llm.calls, 1)
	assert.Contains(t, llm.calls[0].System, "Context:\nctx")
}

func TestSynthesizerProviderError(t *testing.T) {
	llm := &countingLLM{err: errors.New("timeout")}
	_, err := NewSynthesizer(llm, nil).Answer(context.Background(), "ctx", nil, "q")
	assert.ErrorIs(t, err, util.ErrProviderInvocation)
}
