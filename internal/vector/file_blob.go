package vector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"docchat/internal/session"
	"docchat/internal/util"
)

const indexFileName = "index.json"

// FileBlobStorage keeps each index as index.json inside the session namespace
// directory root/<sessionID>.
type FileBlobStorage struct {
	root string
}

func NewFileBlobStorage(root string) *FileBlobStorage {
	return &FileBlobStorage{root: root}
}

func (f *FileBlobStorage) path(sessionID string) (string, error) {
	if sessionID == "" || sessionID != filepath.Base(sessionID) || strings.HasPrefix(sessionID, ".") {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(f.root, sessionID, indexFileName), nil
}

func (f *FileBlobStorage) Save(ctx context.Context, sessionID string, blob []byte) error {
	_ = ctx
	p, err := f.path(sessionID)
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(p, blob)
}

func (f *FileBlobStorage) Load(ctx context.Context, sessionID string) ([]byte, error) {
	_ = ctx
	p, err := f.path(sessionID)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, util.Errorf(util.ErrIndexNotFound, "vector.FileBlobStorage.Load", "no index for session %s", sessionID)
		}
		return nil, fmt.Errorf("read index %s: %w", sessionID, err)
	}
	return b, nil
}

func (f *FileBlobStorage) Exists(ctx context.Context, sessionID string) (bool, error) {
	_ = ctx
	p, err := f.path(sessionID)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat index %s: %w", sessionID, err)
	}
	return true, nil
}

// ListSessions returns sessions holding an index, ordered by the creation
// marker of their namespace, oldest first. Rewriting an index on re-ingest
// does not change the order.
func (f *FileBlobStorage) ListSessions(ctx context.Context) ([]string, error) {
	_ = ctx
	entries, err := os.ReadDir(f.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", f.root, err)
	}
	type item struct {
		id      string
		created int64
		seq     int64
	}
	items := make([]item, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(f.root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, indexFileName)); err != nil {
			continue
		}
		it := item{id: e.Name()}
		if created, seq, ok := session.ReadCreated(dir); ok {
			it.created, it.seq = created, seq
		} else if info, err := e.Info(); err == nil {
			it.created = info.ModTime().UnixNano()
		}
		items = append(items, it)
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.created != b.created {
			return a.created < b.created
		}
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		return a.id < b.id
	})
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.id)
	}
	return out, nil
}

// Delete removes only the index file; the namespace belongs to the session manager.
func (f *FileBlobStorage) Delete(ctx context.Context, sessionID string) error {
	_ = ctx
	p, err := f.path(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete index %s: %w", sessionID, err)
	}
	return nil
}
