package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"docchat/internal/logging"
	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/util"
)

const (
	ModeSimilarity     = "similarity"
	ModeScoreThreshold = "similarity_score_threshold"
)

type Entry struct {
	Chunk  models.DocumentChunk `json:"chunk"`
	Vector []float32            `json:"vector"`
}

// Index is the searchable form of one session's chunks. It is never mutated
// after Build; a re-ingest produces a new Index.
type Index struct {
	SessionID string    `json:"session_id"`
	Embedder  string    `json:"embedder"`
	Dim       int       `json:"dim"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
	Entries   []Entry   `json:"entries"`
}

func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.Entries)
}

func (i *Index) checksum() string {
	parts := make([]string, 0, len(i.Entries)+1)
	parts = append(parts, i.SessionID)
	for _, e := range i.Entries {
		parts = append(parts, e.Chunk.DocumentID, e.Chunk.Text)
	}
	return util.Fingerprint(parts...)
}

// BlobStorage persists serialized indexes keyed by session. Load of an absent
// session returns an error matching util.ErrIndexNotFound.
type BlobStorage interface {
	Save(ctx context.Context, sessionID string, blob []byte) error
	Load(ctx context.Context, sessionID string) ([]byte, error)
	Exists(ctx context.Context, sessionID string) (bool, error)
	// ListSessions returns sessions ordered by creation time, oldest first.
	ListSessions(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, sessionID string) error
}

type SearchOptions struct {
	K         int
	Mode      string
	Threshold float64
}

// Store builds, persists and serves session indexes. It holds at most one live
// handle per session.
type Store struct {
	embedder providers.EmbeddingProvider
	blobs    BlobStorage
	log      *slog.Logger

	mu     sync.RWMutex
	active map[string]*Index
}

func NewStore(embedder providers.EmbeddingProvider, blobs BlobStorage, logger *slog.Logger) *Store {
	return &Store{
		embedder: embedder,
		blobs:    blobs,
		log:      logging.OrDiscard(logger),
		active:   map[string]*Index{},
	}
}

func (s *Store) Build(ctx context.Context, sessionID string, chunks []models.DocumentChunk) (*Index, error) {
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	info := s.embedder.Info()
	idx := &Index{SessionID: sessionID, Embedder: info.Name + "/" + info.Model, CreatedAt: time.Now().UTC()}
	if len(texts) > 0 {
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			s.log.Error("embed chunks failed", "session_id", sessionID, "provider", info.Name, "error_type", providers.ClassifyError(err), "err", err)
			return nil, providers.InvocationError("vector.Build", info, err)
		}
		if len(vecs) != len(texts) {
			return nil, util.Errorf(util.ErrProviderInvocation, "vector.Build", "%s returned %d vectors for %d chunks", info.Name, len(vecs), len(texts))
		}
		idx.Entries = make([]Entry, len(chunks))
		for i, c := range chunks {
			idx.Entries[i] = Entry{Chunk: c, Vector: vecs[i]}
		}
		idx.Dim = len(vecs[0])
	}
	idx.Checksum = idx.checksum()
	s.log.Info("index built", "session_id", sessionID, "chunks", idx.Len(), "dim", idx.Dim)
	return idx, nil
}

func (s *Store) Save(ctx context.Context, idx *Index) error {
	blob, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index %s: %w", idx.SessionID, err)
	}
	if err := s.blobs.Save(ctx, idx.SessionID, blob); err != nil {
		return fmt.Errorf("save index %s: %w", idx.SessionID, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, sessionID string) (*Index, error) {
	blob, err := s.blobs.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, util.ErrIndexNotFound) {
			return nil, err
		}
		return nil, util.NewError(util.ErrIndexLoad, "vector.Load", err)
	}
	var idx Index
	if err := json.Unmarshal(blob, &idx); err != nil {
		return nil, util.Errorf(util.ErrIndexLoad, "vector.Load", "decode index %s: %w", sessionID, err)
	}
	if idx.SessionID != sessionID {
		return nil, util.Errorf(util.ErrIndexLoad, "vector.Load", "blob for %s holds index of %s", sessionID, idx.SessionID)
	}
	if idx.Checksum != idx.checksum() {
		return nil, util.Errorf(util.ErrIndexLoad, "vector.Load", "index %s checksum mismatch", sessionID)
	}
	for i, e := range idx.Entries {
		if len(e.Vector) != idx.Dim {
			return nil, util.Errorf(util.ErrIndexLoad, "vector.Load", "index %s entry %d has dim %d, want %d", sessionID, i, len(e.Vector), idx.Dim)
		}
	}
	return &idx, nil
}

// Exists reports whether a persisted index is available for the session.
func (s *Store) Exists(ctx context.Context, sessionID string) (bool, error) {
	if _, ok := s.Active(sessionID); ok {
		return true, nil
	}
	return s.blobs.Exists(ctx, sessionID)
}

// Activate makes idx the live handle for its session, replacing any previous one.
func (s *Store) Activate(idx *Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[idx.SessionID] = idx
}

func (s *Store) Active(sessionID string) (*Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.active[sessionID]
	return idx, ok
}

func (s *Store) Deactivate(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, sessionID)
}

// Acquire returns the live handle, loading and activating the persisted index
// when none is live yet.
func (s *Store) Acquire(ctx context.Context, sessionID string) (*Index, error) {
	if idx, ok := s.Active(sessionID); ok {
		return idx, nil
	}
	idx, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// a concurrent Activate wins over the loaded copy
	if live, ok := s.active[sessionID]; ok {
		return live, nil
	}
	s.active[sessionID] = idx
	return idx, nil
}

func (s *Store) Query(ctx context.Context, idx *Index, text string, k int) ([]models.ChunkResult, error) {
	return s.Search(ctx, idx, text, SearchOptions{K: k, Mode: ModeSimilarity})
}

// Search ranks chunks by cosine similarity to text. Results are sorted by
// descending score, ties by chunk order, and hold at most opts.K entries.
func (s *Store) Search(ctx context.Context, idx *Index, text string, opts SearchOptions) ([]models.ChunkResult, error) {
	if idx.Len() == 0 {
		return []models.ChunkResult{}, nil
	}
	if opts.K <= 0 {
		opts.K = 5
	}
	info := s.embedder.Info()
	qv, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.log.Error("embed query failed", "session_id", idx.SessionID, "provider", info.Name, "error_type", providers.ClassifyError(err), "err", err)
		return nil, providers.InvocationError("vector.Query", info, err)
	}
	results := make([]models.ChunkResult, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		score := Cosine(qv, e.Vector)
		if opts.Mode == ModeScoreThreshold && score < opts.Threshold {
			continue
		}
		results = append(results, models.ChunkResult{Chunk: e.Chunk, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > opts.K {
		results = results[:opts.K]
	}
	return results, nil
}

// Cosine returns 0 when either vector is zero or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
