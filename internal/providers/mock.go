package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strings"

	"docchat/internal/util"
)

// MockProvider is deterministic and offline. Embeddings are hashed bag-of-words
// vectors, so texts sharing words score higher; completions echo structure the
// pipeline can parse.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 256
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Info() ProviderInfo {
	return ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-%d", m.dim), Key: "mock"}
}

func (m *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	_ = ctx
	return bagOfWordsVector(text, m.dim), nil
}

func (m *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	_ = ctx
	switch strings.ToLower(req.Operation) {
	case "contextualize":
		return req.Input, nil
	case "answer":
		if strings.TrimSpace(contextSection(req.System)) == "" {
			return "I don't know.", nil
		}
		return "Based on the provided context, the answer is in the retrieved passages.", nil
	case "analyze":
		pages := util.DistinctPages(req.Input)
		return fmt.Sprintf(`{"Summary":["Deterministic mock summary."],"Title":"Not Available","Author":"Not Available","DateCreated":"Not Available","LastModifiedDate":"Not Available","Publisher":"Not Available","Language":"English","PageCount":%d,"SentimentTone":"neutral"}`, len(pages)), nil
	case "compare":
		pages := util.DistinctPages(req.Input)
		parts := make([]string, 0, len(pages))
		for _, p := range pages {
			parts = append(parts, fmt.Sprintf(`{"Page":"%d","Changes":"No Change"}`, p))
		}
		return "[" + strings.Join(parts, ",") + "]", nil
	default:
		return "Mock response.", nil
	}
}

var mockWordRe = regexp.MustCompile(`\p{L}+|\p{N}+`)

func bagOfWordsVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for _, w := range mockWordRe.FindAllString(strings.ToLower(text), -1) {
		h := sha256.Sum256([]byte(w))
		vec[binary.BigEndian.Uint32(h[:4])%uint32(dim)]++
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// contextSection returns what follows the "Context:" header of a system prompt.
func contextSection(system string) string {
	_, after, ok := strings.Cut(system, "Context:")
	if !ok {
		return ""
	}
	return after
}
