package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/util"
)

func TestIndexBlobRepoRoundTrip(t *testing.T) {
	ctx := context.Background()
	conn := newFakeConn()
	repo := NewIndexBlobRepo(conn)

	require.NoError(t, repo.Save(ctx, "session_b", []byte("b1")))
	require.NoError(t, repo.Save(ctx, "session_a", []byte("a1")))
	require.NoError(t, repo.Save(ctx, "session_b", []byte("b2")))

	blob, err := repo.Load(ctx, "session_b")
	require.NoError(t, err)
	assert.Equal(t, "b2", string(blob))

	ok, err := repo.Exists(ctx, "session_a")
	require.NoError(t, err)
	assert.True(t, ok)

	ids, err := repo.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"session_b", "session_a"}, ids)

	require.NoError(t, repo.Delete(ctx, "session_b"))
	_, err = repo.Load(ctx, "session_b")
	assert.ErrorIs(t, err, util.ErrIndexNotFound)
}

func TestIndexBlobRepoWrapsDriverErrors(t *testing.T) {
	conn := newFakeConn()
	conn.failAll = errors.New("connection refused")
	repo := NewIndexBlobRepo(conn)

	_, err := repo.Load(context.Background(), "s")
	require.Error(t, err)
	assert.NotErrorIs(t, err, util.ErrIndexNotFound)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestLLMAuditRepoAssignsCallID(t *testing.T) {
	conn := newFakeConn()
	repo := NewLLMAuditRepo(conn)
	require.NoError(t, repo.Insert(context.Background(), LLMCallRecord{Operation: "analyze", ProviderName: "mock", Model: "mock-256", Attempt: 1, Status: "ok"}))
	require.Len(t, conn.args, 1)
	assert.NotEmpty(t, conn.args[0][0])
	assert.Equal(t, "analyze", conn.args[0][1])
}
