package retrieval

import (
	"context"
	"log/slog"
	"strings"

	"docchat/internal/logging"
	"docchat/internal/models"
	"docchat/internal/prompts"
	"docchat/internal/providers"
	"docchat/internal/util"
)

const (
	DontKnow     = "I don't know."
	maxSentences = 3
)

type Synthesizer struct {
	llm providers.LLMProvider
	log *slog.Logger
}

func NewSynthesizer(llm providers.LLMProvider, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{llm: llm, log: logging.OrDiscard(logger)}
}

// Answer grounds the reply in contextText. Empty context never reaches the model.
func (s *Synthesizer) Answer(ctx context.Context, contextText string, history []models.ChatTurn, input string) (string, error) {
	if strings.TrimSpace(contextText) == "" {
		return DontKnow, nil
	}
	out, err := s.llm.Complete(ctx, providers.CompletionRequest{
		Operation: "answer",
		System:    prompts.ContextQA(contextText),
		History:   history,
		Input:     input,
	})
	if err != nil {
		s.log.Error("answer failed", "error_type", providers.ClassifyError(err), "err", err)
		return "", providers.InvocationError("retrieval.Answer", s.llm.Info(), err)
	}
	answer := util.CapSentences(out, maxSentences)
	if answer == "" {
		return DontKnow, nil
	}
	return answer, nil
}
