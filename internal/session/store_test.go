package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/models"
)

func TestStoreSequencesAreStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.AppendExchange(ctx, "s1", "q", "a")
		}()
	}
	wg.Wait()

	h, err := s.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, h, 100)
	for i := 1; i < len(h); i++ {
		assert.Equal(t, h[i-1].Seq+1, h[i].Seq)
	}
	for i := 0; i < len(h); i += 2 {
		assert.Equal(t, models.RoleUser, h[i].Role)
		assert.Equal(t, models.RoleAssistant, h[i+1].Role)
	}
}

func TestStoreHistoryIsACopyAndDropForgets(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.AppendExchange(ctx, "s1", "hello", "hi"))
	h, _ := s.History(ctx, "s1")
	h[0].Content = "mutated"
	h, _ = s.History(ctx, "s1")
	assert.Equal(t, "hello", h[0].Content)

	require.NoError(t, s.Drop(ctx, "s1"))
	h, _ = s.History(ctx, "s1")
	assert.Empty(t, h)
	require.NoError(t, s.AppendExchange(ctx, "s1", "again", "ok"))
	h, _ = s.History(ctx, "s1")
	assert.Equal(t, 1, h[0].Seq)
}
