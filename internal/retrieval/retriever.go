package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"docchat/internal/logging"
	"docchat/internal/models"
	"docchat/internal/prompts"
	"docchat/internal/providers"
	"docchat/internal/session"
	"docchat/internal/util"
	"docchat/internal/vector"
)

type Options struct {
	K         int
	Mode      string
	Threshold float64
}

// Retrieval is the outcome of one history-aware lookup.
type Retrieval struct {
	Question string
	Chunks   []models.ChunkResult
	Context  string
}

// Retriever rewrites a follow-up into a standalone question and fetches the
// closest chunks from the session's index.
type Retriever struct {
	llm   providers.LLMProvider
	store *vector.Store
	opts  Options
	log   *slog.Logger
}

func NewRetriever(llm providers.LLMProvider, store *vector.Store, opts Options, logger *slog.Logger) *Retriever {
	if opts.K <= 0 {
		opts.K = 5
	}
	if opts.Mode == "" {
		opts.Mode = vector.ModeSimilarity
	}
	return &Retriever{llm: llm, store: store, opts: opts, log: logging.OrDiscard(logger)}
}

// Contextualize returns input unchanged when there is no history. Otherwise it
// asks the model for a standalone rewrite, falling back to input when the
// rewrite comes back blank.
func (r *Retriever) Contextualize(ctx context.Context, history []models.ChatTurn, input string) (string, error) {
	if len(history) == 0 {
		return input, nil
	}
	out, err := r.llm.Complete(ctx, providers.CompletionRequest{
		Operation: "contextualize",
		System:    prompts.ContextualizeQuestion,
		History:   history,
		Input:     input,
	})
	if err != nil {
		r.log.Error("contextualize failed", "error_type", providers.ClassifyError(err), "err", err)
		return "", providers.InvocationError("retrieval.Contextualize", r.llm.Info(), err)
	}
	if q := strings.TrimSpace(out); q != "" {
		return q, nil
	}
	return input, nil
}

// Retrieve resolves the session index before any model call, so a session
// without an index fails with RetrieverNotInitializedError and costs nothing.
func (r *Retriever) Retrieve(ctx context.Context, sessionID string, history []models.ChatTurn, input string) (Retrieval, error) {
	if !session.ValidID(sessionID) {
		return Retrieval{}, util.Errorf(util.ErrRetrieverNotInitialized, "retrieval.Retrieve", "no session %q", sessionID)
	}
	idx, err := r.store.Acquire(ctx, sessionID)
	if err != nil {
		if errors.Is(err, util.ErrIndexNotFound) {
			return Retrieval{}, util.Errorf(util.ErrRetrieverNotInitialized, "retrieval.Retrieve", "session %s has no index, ingest documents first", sessionID)
		}
		return Retrieval{}, err
	}
	question, err := r.Contextualize(ctx, history, input)
	if err != nil {
		return Retrieval{}, err
	}
	chunks, err := r.store.Search(ctx, idx, question, vector.SearchOptions{K: r.opts.K, Mode: r.opts.Mode, Threshold: r.opts.Threshold})
	if err != nil {
		return Retrieval{}, err
	}
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Chunk.Text)
	}
	r.log.Debug("retrieved", "session_id", sessionID, "question", question, "chunks", len(chunks))
	return Retrieval{Question: question, Chunks: chunks, Context: strings.Join(texts, "\n\n")}, nil
}
