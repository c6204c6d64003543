package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docchat/internal/config"
	"docchat/internal/extraction"
	"docchat/internal/ingest"
	"docchat/internal/logging"
	"docchat/internal/metrics"
	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/retrieval"
	"docchat/internal/session"
	"docchat/internal/util"
	"docchat/internal/vector"
)

const snippetRunes = 280

type Deps struct {
	Config   config.Config
	LLM      providers.LLMProvider
	Embedder providers.EmbeddingProvider
	Blobs    vector.BlobStorage
	// Auditor is optional.
	Auditor extraction.Auditor
	// History is optional; an in-memory store is used when nil.
	History session.History
	Logger  *slog.Logger
}

// Service is the document chat facade: ingest, ask, analyze, compare, evict.
type Service struct {
	cfg       config.Config
	sessions  *session.Manager
	history   session.History
	blobs     vector.BlobStorage
	index     *vector.Store
	retriever *retrieval.Retriever
	synth     *retrieval.Synthesizer
	extractor *extraction.Pipeline
	log       *slog.Logger
}

func New(d Deps) *Service {
	log := logging.OrDiscard(d.Logger)
	history := d.History
	if history == nil {
		history = session.NewStore()
	}
	index := vector.NewStore(d.Embedder, d.Blobs, log.With("component", "vector"))
	extractor := extraction.New(d.LLM, d.Config.MaxRepairAttempts, log.With("component", "extraction"))
	if d.Auditor != nil {
		extractor.WithAuditor(d.Auditor)
	}
	return &Service{
		cfg:      d.Config,
		sessions: session.NewManager(d.Config.DataRoot, log.With("component", "session")),
		history:  history,
		blobs:    d.Blobs,
		index:    index,
		retriever: retrieval.NewRetriever(d.LLM, index, retrieval.Options{
			K:         d.Config.RetrievalK,
			Mode:      d.Config.SearchMode,
			Threshold: d.Config.ScoreThreshold,
		}, log.With("component", "retrieval")),
		synth:     retrieval.NewSynthesizer(d.LLM, log.With("component", "retrieval")),
		extractor: extractor,
		log:       log,
	}
}

func (s *Service) CreateSession() (models.Session, error) {
	return s.sessions.Create()
}

type IngestResult struct {
	SessionID string   `json:"session_id"`
	Documents []string `json:"documents"`
	Chunks    int      `json:"chunks"`
}

// Ingest replaces the session's documents and index with files. The previous
// index keeps serving until the new one is saved. If ingestion fails after the
// namespace was cleared, the session is left without an index.
func (s *Service) Ingest(ctx context.Context, sessionID string, files []models.UploadedFile) (IngestResult, error) {
	if len(files) == 0 {
		return IngestResult{}, util.Errorf(util.ErrIngestion, "pipeline.Ingest", "no files uploaded")
	}
	for i := range files {
		if files[i].Type == "" {
			files[i].Type = models.DetectType(files[i].Name)
		}
		if files[i].Type == "" {
			return IngestResult{}, util.Errorf(util.ErrIngestion, "pipeline.Ingest", "unsupported file type: %s", files[i].Name)
		}
	}
	if _, err := s.sessions.Namespace(sessionID); err != nil {
		return IngestResult{}, err
	}
	if err := s.sessions.Reset(sessionID); err != nil {
		return IngestResult{}, err
	}
	res, err := s.rebuild(ctx, sessionID, files)
	if err != nil {
		s.index.Deactivate(sessionID)
		if derr := s.blobs.Delete(ctx, sessionID); derr != nil {
			s.log.Warn("drop stale index failed", "session_id", sessionID, "err", derr)
		}
		s.log.Error("ingest failed", "session_id", sessionID, "kind", util.KindName(err), "err", err)
		return IngestResult{}, err
	}
	metrics.IngestedChunks.Add(float64(res.Chunks))
	s.log.Info("ingest complete", "session_id", sessionID, "documents", len(res.Documents), "chunks", res.Chunks)
	return res, nil
}

// Manifest is written into the namespace after a successful ingest.
type Manifest struct {
	SessionID  string             `json:"session_id"`
	IngestedAt time.Time          `json:"ingested_at"`
	Documents  []ManifestDocument `json:"documents"`
	Chunks     int                `json:"chunks"`
}

type ManifestDocument struct {
	Name   string              `json:"name"`
	Type   models.DocumentType `json:"type"`
	SHA256 string              `json:"sha256"`
	Pages  int                 `json:"pages"`
	Chunks int                 `json:"chunks"`
}

func (s *Service) rebuild(ctx context.Context, sessionID string, files []models.UploadedFile) (IngestResult, error) {
	res := IngestResult{SessionID: sessionID}
	manifest := Manifest{SessionID: sessionID}
	var chunks []models.DocumentChunk
	for _, f := range files {
		if _, err := s.sessions.SaveFile(sessionID, f); err != nil {
			return res, err
		}
		pages, err := ingest.Extract(f)
		if err != nil {
			return res, err
		}
		text := ingest.Annotate(pages, false)
		docChunks := vector.ChunkDocument(f.Name, text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
		chunks = append(chunks, docChunks...)
		res.Documents = append(res.Documents, f.Name)
		manifest.Documents = append(manifest.Documents, ManifestDocument{
			Name:   f.Name,
			Type:   f.Type,
			SHA256: util.SHA256Hex(f.Content),
			Pages:  len(pages),
			Chunks: len(docChunks),
		})
	}
	idx, err := s.index.Build(ctx, sessionID, chunks)
	if err != nil {
		return res, err
	}
	if err := s.index.Save(ctx, idx); err != nil {
		return res, util.NewError(util.ErrIngestion, "pipeline.Ingest", err)
	}
	s.index.Activate(idx)
	res.Chunks = idx.Len()

	manifest.Chunks = res.Chunks
	manifest.IngestedAt = idx.CreatedAt
	if err := s.sessions.WriteManifest(sessionID, manifest); err != nil {
		s.log.Warn("write manifest failed", "session_id", sessionID, "err", err)
	}
	return res, nil
}

type Source struct {
	DocumentID string  `json:"document_id"`
	Page       int     `json:"page"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
}

type Answer struct {
	SessionID string   `json:"session_id"`
	Question  string   `json:"question"`
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
}

// Ask answers input from the session's documents. The exchange is appended to
// the session history only when the whole call succeeds.
func (s *Service) Ask(ctx context.Context, sessionID, input string) (Answer, error) {
	history, err := s.history.History(ctx, sessionID)
	if err != nil {
		return Answer{}, err
	}
	ret, err := s.retriever.Retrieve(ctx, sessionID, history, input)
	if err != nil {
		return Answer{}, err
	}
	answer, err := s.synth.Answer(ctx, ret.Context, history, input)
	if err != nil {
		return Answer{}, err
	}
	if err := s.history.AppendExchange(ctx, sessionID, input, answer); err != nil {
		return Answer{}, err
	}

	sources := make([]Source, 0, len(ret.Chunks))
	for _, c := range ret.Chunks {
		sources = append(sources, Source{
			DocumentID: c.Chunk.DocumentID,
			Page:       c.Chunk.Page,
			Score:      c.Score,
			Snippet:    util.EvidenceSnippet(c.Chunk.Text, ret.Question, snippetRunes),
		})
	}
	return Answer{SessionID: sessionID, Question: ret.Question, Answer: answer, Sources: sources}, nil
}

// Forget drops the in-memory index of a session so the next question reloads
// it from storage. Used when another process rebuilds the index.
func (s *Service) Forget(sessionID string) {
	s.index.Deactivate(sessionID)
}

// Release drops all in-memory state of a session evicted elsewhere.
func (s *Service) Release(ctx context.Context, sessionID string) {
	s.index.Deactivate(sessionID)
	if err := s.history.Drop(ctx, sessionID); err != nil {
		s.log.Warn("drop history failed", "session_id", sessionID, "err", err)
	}
}

func (s *Service) History(ctx context.Context, sessionID string) ([]models.ChatTurn, error) {
	return s.history.History(ctx, sessionID)
}

func (s *Service) Analyze(ctx context.Context, f models.UploadedFile) (models.DocumentMetadata, error) {
	pages, err := ingest.Extract(f)
	if err != nil {
		return models.DocumentMetadata{}, err
	}
	return s.extractor.Analyze(ctx, ingest.Annotate(pages, false))
}

// Compare keeps empty pages in both documents so page numbers line up.
func (s *Service) Compare(ctx context.Context, reference, actual models.UploadedFile) ([]models.ComparisonRecord, error) {
	refPages, err := ingest.Extract(reference)
	if err != nil {
		return nil, err
	}
	actPages, err := ingest.Extract(actual)
	if err != nil {
		return nil, err
	}
	combined := ingest.Combine(
		ingest.NamedText{Name: reference.Name, Text: ingest.Annotate(refPages, true)},
		ingest.NamedText{Name: actual.Name, Text: ingest.Annotate(actPages, true)},
	)
	return s.extractor.Compare(ctx, combined)
}

type EvictResult struct {
	Evicted []string `json:"evicted"`
}

// Evict drops all but the keepLatest newest sessions along with their live
// index, persisted index and chat history.
func (s *Service) Evict(ctx context.Context, keepLatest int) (EvictResult, error) {
	evicted, err := s.sessions.Evict(keepLatest)
	metrics.EvictedSessions.Add(float64(len(evicted)))
	var failures []error
	for _, id := range evicted {
		s.index.Deactivate(id)
		if herr := s.history.Drop(ctx, id); herr != nil {
			failures = append(failures, fmt.Errorf("drop history %s: %w", id, herr))
		}
		if derr := s.blobs.Delete(ctx, id); derr != nil {
			failures = append(failures, fmt.Errorf("delete index %s: %w", id, derr))
		}
	}
	failures = append(failures, s.collectOrphans(ctx)...)
	if len(failures) == 0 {
		return EvictResult{Evicted: evicted}, err
	}
	var ue *util.Error
	if errors.As(err, &ue) {
		ue.Failures = append(ue.Failures, failures...)
		return EvictResult{Evicted: evicted}, ue
	}
	return EvictResult{Evicted: evicted}, &util.Error{
		Kind:     util.ErrEviction,
		Op:       "pipeline.Evict",
		Err:      fmt.Errorf("%d cleanup steps failed", len(failures)),
		Failures: failures,
	}
}

// collectOrphans deletes persisted indexes whose namespace is gone, such as
// Postgres blobs left behind by a process that evicted without database access.
func (s *Service) collectOrphans(ctx context.Context) []error {
	ids, err := s.blobs.ListSessions(ctx)
	if err != nil {
		return []error{fmt.Errorf("list indexes: %w", err)}
	}
	var failures []error
	for _, id := range ids {
		if s.sessions.Exists(id) {
			continue
		}
		s.index.Deactivate(id)
		if err := s.blobs.Delete(ctx, id); err != nil {
			failures = append(failures, fmt.Errorf("delete orphaned index %s: %w", id, err))
			continue
		}
		s.log.Info("orphaned index removed", "session_id", id)
	}
	return failures
}
