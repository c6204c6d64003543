package session

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"docchat/internal/logging"
	"docchat/internal/models"
	"docchat/internal/util"
)

const (
	createdFile  = ".created"
	manifestFile = ".manifest.json"
	idPrefix    = "session_"
	maxIDTries  = 16
)

// Manager owns session namespaces: one directory per session under root.
type Manager struct {
	root string
	log  *slog.Logger

	now    func() time.Time
	suffix func() string
	remove func(string) error
	seq    atomic.Int64
}

func NewManager(root string, logger *slog.Logger) *Manager {
	return &Manager{
		root:   root,
		log:    logging.OrDiscard(logger),
		now:    time.Now,
		suffix: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:8] },
		remove: os.Remove,
	}
}

func (m *Manager) Root() string { return m.root }

// NewID formats a session id for t with a random 8 hex suffix.
func (m *Manager) NewID(t time.Time) string {
	return idPrefix + t.Format("20060102_150405") + "_" + m.suffix()
}

// Create allocates a fresh namespace. Ids that already exist on disk are
// skipped by drawing a new suffix.
func (m *Manager) Create() (models.Session, error) {
	if err := util.EnsureDir(m.root); err != nil {
		return models.Session{}, util.NewError(util.ErrInitialization, "session.Create", err)
	}
	for i := 0; i < maxIDTries; i++ {
		now := m.now()
		id := m.NewID(now)
		dir := filepath.Join(m.root, id)
		if err := os.Mkdir(dir, 0o755); err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return models.Session{}, util.Errorf(util.ErrInitialization, "session.Create", "create namespace %s: %w", id, err)
		}
		stamp := strconv.FormatInt(now.UnixNano(), 10) + " " + strconv.FormatInt(m.seq.Add(1), 10)
		if err := util.WriteTextAtomic(filepath.Join(dir, createdFile), stamp); err != nil {
			_ = os.RemoveAll(dir)
			return models.Session{}, util.NewError(util.ErrInitialization, "session.Create", err)
		}
		m.log.Info("session created", "session_id", id)
		return models.Session{ID: id, Namespace: dir, CreatedAt: now.UTC()}, nil
	}
	return models.Session{}, util.Errorf(util.ErrInitialization, "session.Create", "no unique session id after %d attempts", maxIDTries)
}

// ValidID reports whether id can name a namespace directly under root.
func ValidID(id string) bool {
	return id != "" && id == filepath.Base(id) && !strings.HasPrefix(id, ".")
}

// Namespace returns the directory of an existing session.
func (m *Manager) Namespace(id string) (string, error) {
	if !ValidID(id) {
		return "", util.Errorf(util.ErrIngestion, "session.Namespace", "invalid session id %q", id)
	}
	dir := filepath.Join(m.root, id)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", util.Errorf(util.ErrIngestion, "session.Namespace", "unknown session %s", id)
	}
	return dir, nil
}

// Reset deletes every document file in the namespace. The creation marker
// stays so eviction order is unaffected. Resetting twice, or resetting an
// absent namespace, is a no-op.
func (m *Manager) Reset(id string) error {
	if !ValidID(id) {
		return util.Errorf(util.ErrIngestion, "session.Reset", "invalid session id %q", id)
	}
	dir := filepath.Join(m.root, id)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return util.Errorf(util.ErrIngestion, "session.Reset", "read namespace %s: %w", id, err)
	}
	for _, e := range entries {
		if e.Name() == createdFile {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return util.Errorf(util.ErrIngestion, "session.Reset", "remove %s: %w", e.Name(), err)
		}
	}
	m.log.Info("session reset", "session_id", id, "removed", len(entries))
	return nil
}

// SaveFile writes an uploaded file into the namespace under its base name.
func (m *Manager) SaveFile(id string, f models.UploadedFile) (string, error) {
	dir, err := m.Namespace(id)
	if err != nil {
		return "", err
	}
	name := filepath.Base(f.Name)
	if name == createdFile || name == manifestFile || name == "." || name == string(filepath.Separator) {
		return "", util.Errorf(util.ErrIngestion, "session.SaveFile", "invalid file name %q", f.Name)
	}
	path := util.SafeJoin(dir, name)
	if err := util.WriteFileAtomic(path, f.Content); err != nil {
		return "", util.NewError(util.ErrIngestion, "session.SaveFile", err)
	}
	return path, nil
}

// WriteManifest records what the namespace currently holds. Reset removes it
// together with the documents.
func (m *Manager) WriteManifest(id string, v any) error {
	dir, err := m.Namespace(id)
	if err != nil {
		return err
	}
	if err := util.WriteJSONAtomic(filepath.Join(dir, manifestFile), v); err != nil {
		return util.NewError(util.ErrIngestion, "session.WriteManifest", err)
	}
	return nil
}

type entry struct {
	id      string
	created int64
	seq     int64
}

// List returns session ids newest first.
func (m *Manager) List() ([]string, error) {
	entries, err := m.list()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.id)
	}
	return out, nil
}

func (m *Manager) list() ([]entry, error) {
	dirs, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]entry, 0, len(dirs))
	for _, d := range dirs {
		if !d.IsDir() || !strings.HasPrefix(d.Name(), idPrefix) {
			continue
		}
		out = append(out, m.readCreated(d))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.created != b.created {
			return a.created > b.created
		}
		if a.seq != b.seq {
			return a.seq > b.seq
		}
		return a.id > b.id
	})
	return out, nil
}

// readCreated falls back to the directory mtime for namespaces without a marker.
func (m *Manager) readCreated(d fs.DirEntry) entry {
	e := entry{id: d.Name()}
	if created, seq, ok := ReadCreated(filepath.Join(m.root, d.Name())); ok {
		e.created, e.seq = created, seq
		return e
	}
	if info, err := d.Info(); err == nil {
		e.created = info.ModTime().UnixNano()
	}
	return e
}

// ReadCreated parses the creation marker of the namespace at dir. ok is false
// when the marker is missing or unreadable.
func ReadCreated(dir string) (created, seq int64, ok bool) {
	b, err := os.ReadFile(filepath.Join(dir, createdFile))
	if err != nil {
		return 0, 0, false
	}
	parts := strings.Fields(string(b))
	if len(parts) > 0 {
		created, _ = strconv.ParseInt(parts[0], 10, 64)
	}
	if len(parts) > 1 {
		seq, _ = strconv.ParseInt(parts[1], 10, 64)
	}
	return created, seq, created != 0
}

// Exists reports whether the namespace of id is present.
func (m *Manager) Exists(id string) bool {
	_, err := m.Namespace(id)
	return err == nil
}

// Evict removes every namespace except the keepLatest newest. A namespace is
// only removed once all of its files are deleted; per-file failures are
// collected into one EvictionError. It returns the fully evicted ids.
func (m *Manager) Evict(keepLatest int) ([]string, error) {
	if keepLatest < 0 {
		keepLatest = 0
	}
	entries, err := m.list()
	if err != nil {
		return nil, util.NewError(util.ErrEviction, "session.Evict", err)
	}
	if len(entries) <= keepLatest {
		return nil, nil
	}
	var evicted []string
	var failures []error
	for _, e := range entries[keepLatest:] {
		errs := m.evictOne(e.id)
		if len(errs) > 0 {
			failures = append(failures, errs...)
			m.log.Warn("session eviction incomplete", "session_id", e.id, "failures", len(errs))
			continue
		}
		evicted = append(evicted, e.id)
	}
	m.log.Info("sessions evicted", "evicted", len(evicted), "kept", keepLatest, "failures", len(failures))
	if len(failures) > 0 {
		return evicted, &util.Error{
			Kind:     util.ErrEviction,
			Op:       "session.Evict",
			Err:      fmt.Errorf("%d of %d sessions not fully removed", len(entries)-keepLatest-len(evicted), len(entries)-keepLatest),
			Failures: failures,
		}
	}
	return evicted, nil
}

func (m *Manager) evictOne(id string) []error {
	dir := filepath.Join(m.root, id)
	var files, dirs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, path)
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return []error{fmt.Errorf("walk %s: %w", id, err)}
	}
	var errs []error
	for _, f := range files {
		if err := m.remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("delete %s: %w", f, err))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	// deepest directories first
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := m.remove(dirs[i]); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove dir %s: %w", dirs[i], err))
		}
	}
	return errs
}
