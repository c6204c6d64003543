package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"docchat/internal/activities"
	"docchat/internal/config"
	"docchat/internal/logging"
	"docchat/internal/metrics"
	"docchat/internal/models"
	"docchat/internal/pipeline"
	"docchat/internal/util"
	"docchat/internal/workflows"
)

const (
	maxUploadBytes = 128 << 20
	evictWorkflow  = "evict-sessions"
)

// DocChat is what the HTTP layer needs from pipeline.Service.
type DocChat interface {
	CreateSession() (models.Session, error)
	Ingest(ctx context.Context, sessionID string, files []models.UploadedFile) (pipeline.IngestResult, error)
	Ask(ctx context.Context, sessionID, input string) (pipeline.Answer, error)
	History(ctx context.Context, sessionID string) ([]models.ChatTurn, error)
	Analyze(ctx context.Context, f models.UploadedFile) (models.DocumentMetadata, error)
	Compare(ctx context.Context, reference, actual models.UploadedFile) ([]models.ComparisonRecord, error)
	Evict(ctx context.Context, keepLatest int) (pipeline.EvictResult, error)
	Forget(sessionID string)
	Release(ctx context.Context, sessionID string)
}

type Server struct {
	cfg      config.Config
	svc      DocChat
	temporal tclient.Client
	locks    *sessionLocks
	log      *slog.Logger
}

// NewServer serves svc over HTTP. With a nil temporal client every operation
// runs in-process; otherwise ingest (when asked), analyze, compare and evict
// are dispatched as workflows.
func NewServer(cfg config.Config, svc DocChat, temporal tclient.Client, logger *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		svc:      svc,
		temporal: temporal,
		locks:    newSessionLocks(),
		log:      logging.OrDiscard(logger).With("component", "api"),
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("POST /sessions/{id}/documents", s.handleUpload)
	mux.HandleFunc("GET /sessions/{id}/ingest", s.handleIngestStatus)
	mux.HandleFunc("POST /sessions/{id}/ask", s.handleAsk)
	mux.HandleFunc("GET /sessions/{id}/history", s.handleHistory)
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("POST /compare", s.handleCompare)
	mux.HandleFunc("POST /evict", s.handleEvict)
	return withCORS(s.withRequestLog(mux))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess, err := s.svc.CreateSession()
	if err != nil {
		s.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		if single, ok := firstSingleFile(r.MultipartForm.File); ok {
			headers = append(headers, single)
		}
	}
	if len(headers) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
		return
	}
	files := make([]models.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := readUpload(fh)
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		files = append(files, f)
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async && s.temporal != nil {
		s.startIngest(w, r, sessionID, files)
		return
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()
	res, err := s.svc.Ingest(r.Context(), sessionID, files)
	if err != nil {
		s.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) startIngest(w http.ResponseWriter, r *http.Request, sessionID string, files []models.UploadedFile) {
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       ingestWorkflowID(sessionID),
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.SessionIngestWorkflow, workflows.SessionIngestInput{
		SessionID: sessionID,
		Files:     activities.Payloads(files),
	})
	if err != nil {
		s.writeDomainErr(w, err)
		return
	}
	s.svc.Forget(sessionID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id":  sessionID,
		"workflow_id": we.GetID(),
		"run_id":      we.GetRunID(),
	})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	if s.temporal == nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("no background ingestion configured"))
		return
	}
	sessionID := r.PathValue("id")
	val, err := s.temporal.QueryWorkflow(r.Context(), ingestWorkflowID(sessionID), "", workflows.QueryGetIngestStatus)
	if err != nil {
		var nf *serviceerror.NotFound
		if errors.As(err, &nf) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("no ingestion found for session"))
			return
		}
		s.writeDomainErr(w, err)
		return
	}
	var progress workflows.SessionIngestProgress
	if err := val.Get(&progress); err != nil {
		s.writeDomainErr(w, err)
		return
	}
	if progress.Status == workflows.StatusReady {
		s.svc.Forget(sessionID)
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()
	ans, err := s.svc.Ask(r.Context(), sessionID, req.Question)
	if err != nil {
		s.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	history, err := s.svc.History(r.Context(), sessionID)
	if err != nil {
		s.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"history":    history,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	f, err := formFile(r.MultipartForm, "file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if s.temporal != nil {
		var out activities.AnalyzeDocumentOutput
		if err := s.runWorkflow(r.Context(), "analyze-"+uuid.NewString(), workflows.AnalyzeWorkflow,
			workflows.AnalyzeInput{File: activities.FilePayload{Name: f.Name, Content: f.Content}}, &out); err != nil {
			s.writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out.Metadata)
		return
	}
	meta, err := s.svc.Analyze(r.Context(), f)
	if err != nil {
		s.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	ref, err := formFile(r.MultipartForm, "reference")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	act, err := formFile(r.MultipartForm, "actual")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if s.temporal != nil {
		var out activities.CompareDocumentsOutput
		if err := s.runWorkflow(r.Context(), "compare-"+uuid.NewString(), workflows.CompareWorkflow, workflows.CompareInput{
			Reference: activities.FilePayload{Name: ref.Name, Content: ref.Content},
			Actual:    activities.FilePayload{Name: act.Name, Content: act.Content},
		}, &out); err != nil {
			s.writeDomainErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": out.Records})
		return
	}
	records, err := s.svc.Compare(r.Context(), ref, act)
	if err != nil {
		s.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleEvict(w http.ResponseWriter, r *http.Request) {
	keep := s.cfg.KeepLatestSessions
	if raw := r.URL.Query().Get("keep"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("keep must be a non-negative integer"))
			return
		}
		keep = n
	}

	res, err := s.Evict(r.Context(), keep)
	if err != nil {
		s.writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Evict keeps the keepLatest newest sessions. It runs as a workflow when a
// Temporal client is configured and drops local state of every evicted
// session, also when eviction partly failed.
func (s *Server) Evict(ctx context.Context, keepLatest int) (pipeline.EvictResult, error) {
	if s.temporal == nil {
		return s.svc.Evict(ctx, keepLatest)
	}
	var out activities.EvictSessionsOutput
	err := s.runWorkflow(ctx, evictWorkflow, workflows.EvictionWorkflow, workflows.EvictionInput{KeepLatest: keepLatest}, &out)
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.HasDetails() {
		_ = appErr.Details(&out)
	}
	s.release(ctx, out.Evicted)
	return pipeline.EvictResult{Evicted: out.Evicted}, err
}

// release drops local state of sessions evicted by a worker process.
func (s *Server) release(ctx context.Context, ids []string) {
	for _, id := range ids {
		s.svc.Release(ctx, id)
	}
}

// runWorkflow starts a workflow and waits for its result.
func (s *Server) runWorkflow(ctx context.Context, id string, wf any, input any, out any) error {
	we, err := s.temporal.ExecuteWorkflow(ctx, tclient.StartWorkflowOptions{
		ID:                                       id,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, wf, input)
	if err != nil {
		return err
	}
	return we.Get(ctx, out)
}

// writeDomainErr maps every pipeline failure to one status; the body names the
// error kind.
func (s *Server) writeDomainErr(w http.ResponseWriter, err error) {
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		writeErr(w, http.StatusConflict, fmt.Errorf("operation already running"))
		return
	}
	kind := errorKind(err)
	s.log.Error("request failed", "kind", kind, "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error":   kind,
		"message": err.Error(),
	})
}

// errorKind reads the kind from a local error or from a workflow failure.
func errorKind(err error) string {
	if util.KindOf(err) != nil {
		return util.KindName(err)
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() != "" {
		return appErr.Type()
	}
	return util.KindName(err)
}

func ingestWorkflowID(sessionID string) string {
	return "ingest-" + sessionID
}

func readUpload(fh *multipart.FileHeader) (models.UploadedFile, error) {
	typ := models.DetectType(fh.Filename)
	if typ == "" {
		return models.UploadedFile{}, fmt.Errorf("unsupported file type: %s", fh.Filename)
	}
	src, err := fh.Open()
	if err != nil {
		return models.UploadedFile{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		return models.UploadedFile{}, fmt.Errorf("read upload: %w", err)
	}
	return models.UploadedFile{Name: fh.Filename, Content: content, Type: typ}, nil
}

func formFile(form *multipart.Form, field string) (models.UploadedFile, error) {
	headers := form.File[field]
	if len(headers) == 0 {
		return models.UploadedFile{}, fmt.Errorf("%s file is required", field)
	}
	return readUpload(headers[0])
}

func firstSingleFile(m map[string][]*multipart.FileHeader) (*multipart.FileHeader, bool) {
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

// sessionLocks serializes requests against the same session. An entry lives
// only while some request holds or waits for it.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: map[string]*sessionLock{}}
}

func (l *sessionLocks) lock(id string) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sessionLock{}
		l.locks[id] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		defer l.mu.Unlock()
		if m.refs--; m.refs == 0 {
			delete(l.locks, id)
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{
		"error":   errorCode(code),
		"message": err.Error(),
	})
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	default:
		return "internal_error"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		// r.Pattern is set by the mux once a route matched.
		metrics.ObserveHTTP(r.Method, r.Pattern, rec.status, elapsed)
		s.log.Info("request",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
