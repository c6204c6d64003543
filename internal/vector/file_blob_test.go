package vector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/session"
)

func TestFileBlobStorageLifecycle(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	f := NewFileBlobStorage(root)

	ok, err := f.Exists(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.Save(ctx, "s1", []byte("one")))
	b, err := f.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "one", string(b))

	require.NoError(t, f.Delete(ctx, "s1"))
	require.NoError(t, f.Delete(ctx, "s1"))
	ok, err = f.Exists(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListSessionsOrderSurvivesReingest(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	m := session.NewManager(root, nil)
	f := NewFileBlobStorage(root)

	older, err := m.Create()
	require.NoError(t, err)
	newer, err := m.Create()
	require.NoError(t, err)
	empty, err := m.Create()
	require.NoError(t, err)

	require.NoError(t, f.Save(ctx, older.ID, []byte("v1")))
	require.NoError(t, f.Save(ctx, newer.ID, []byte("v1")))
	// re-ingest rewrites the older session's index last
	later := time.Now().Add(time.Hour)
	require.NoError(t, f.Save(ctx, older.ID, []byte("v2")))
	require.NoError(t, os.Chtimes(filepath.Join(root, older.ID, indexFileName), later, later))

	ids, err := f.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{older.ID, newer.ID}, ids)
	assert.NotContains(t, ids, empty.ID)
}

func TestFileBlobStorageRejectsTraversal(t *testing.T) {
	f := NewFileBlobStorage(t.TempDir())
	assert.Error(t, f.Save(context.Background(), "../escape", []byte("x")))
	assert.Error(t, f.Save(context.Background(), "", []byte("x")))
}
