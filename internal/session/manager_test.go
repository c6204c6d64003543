package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/models"
	"docchat/internal/util"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewIDFormat(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	id := m.NewID(time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC))
	assert.Regexp(t, `^session_20250304_050607_[0-9a-f]{8}$`, id)
}

func TestTenThousandIDsAreUnique(t *testing.T) {
	if testing.Short() {
		t.Skip("creates 10,000 namespaces")
	}
	m := NewManager(t.TempDir(), nil)
	m.now = fixedClock(time.Now())
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		s, err := m.Create()
		require.NoError(t, err)
		_, dup := seen[s.ID]
		require.False(t, dup, "duplicate id %s", s.ID)
		seen[s.ID] = struct{}{}
	}
}

func TestCreateRetriesOnCollision(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	m.now = fixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	suffixes := []string{"aaaaaaaa", "aaaaaaaa", "bbbbbbbb"}
	m.suffix = func() string {
		s := suffixes[0]
		suffixes = suffixes[1:]
		return s
	}

	first, err := m.Create()
	require.NoError(t, err)
	second, err := m.Create()
	require.NoError(t, err)
	assert.Equal(t, "session_20250101_000000_aaaaaaaa", first.ID)
	assert.Equal(t, "session_20250101_000000_bbbbbbbb", second.ID)
	assert.FileExists(t, filepath.Join(second.Namespace, createdFile))
}

func TestResetIsIdempotent(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	s, err := m.Create()
	require.NoError(t, err)
	_, err = m.SaveFile(s.ID, models.UploadedFile{Name: "a.txt", Content: []byte("hello")})
	require.NoError(t, err)

	require.NoError(t, m.Reset(s.ID))
	require.NoError(t, m.Reset(s.ID))
	entries, err := os.ReadDir(s.Namespace)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, createdFile, entries[0].Name())
}

func TestResetAbsentIsNoop(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, nil)
	require.NoError(t, m.Reset("session_20250101_000000_deadbeef"))
	_, err := os.Stat(filepath.Join(root, "session_20250101_000000_deadbeef"))
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, m.Reset(".."), util.ErrIngestion)
	assert.ErrorIs(t, m.Reset(""), util.ErrIngestion)
}

func TestSaveFileStripsDirectories(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	s, err := m.Create()
	require.NoError(t, err)
	path, err := m.SaveFile(s.ID, models.UploadedFile{Name: "../../evil.txt", Content: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Namespace, "evil.txt"), path)
}

func createN(t *testing.T, m *Manager, n int) []string {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		m.now = fixedClock(base.Add(time.Duration(i) * time.Second))
		s, err := m.Create()
		require.NoError(t, err)
		_, err = m.SaveFile(s.ID, models.UploadedFile{Name: "doc.txt", Content: []byte("x")})
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	return ids
}

func TestEvictKeepsNewest(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, nil)
	ids := createN(t, m, 5)

	evicted, err := m.Evict(3)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids[:2], evicted)

	left, err := m.List()
	require.NoError(t, err)
	assert.Equal(t, []string{ids[4], ids[3], ids[2]}, left)
	assert.NoDirExists(t, filepath.Join(root, ids[0]))
	assert.FileExists(t, filepath.Join(root, ids[2], "doc.txt"))
}

func TestEvictOrderSurvivesEqualClock(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	m.now = fixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	var ids []string
	for i := 0; i < 4; i++ {
		s, err := m.Create()
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	evicted, err := m.Evict(1)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids[:3], evicted)
}

func TestEvictAggregatesPartialFailures(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, nil)
	ids := createN(t, m, 5)
	stuck := filepath.Join(root, ids[0], "doc.txt")
	m.remove = func(p string) error {
		if p == stuck {
			return errors.New("permission denied")
		}
		return os.Remove(p)
	}

	evicted, err := m.Evict(3)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrEviction)
	var ue *util.Error
	require.ErrorAs(t, err, &ue)
	require.Len(t, ue.Failures, 1)
	assert.True(t, strings.Contains(ue.Failures[0].Error(), "permission denied"))

	assert.Equal(t, []string{ids[1]}, evicted)
	assert.DirExists(t, filepath.Join(root, ids[0]), "namespace with a failed delete is kept")
	assert.NoDirExists(t, filepath.Join(root, ids[1]))
	for _, id := range ids[2:] {
		assert.FileExists(t, filepath.Join(root, id, "doc.txt"))
	}
}

func TestEvictNothingToDo(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent"), nil)
	evicted, err := m.Evict(3)
	require.NoError(t, err)
	assert.Empty(t, evicted)
}
