package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/storage"
	"docchat/internal/util"
)

type scriptedLLM struct {
	outputs []string
	err     error
	calls   []providers.CompletionRequest
}

func (s *scriptedLLM) Info() providers.ProviderInfo {
	return providers.ProviderInfo{Name: "scripted", Model: "v1"}
}

func (s *scriptedLLM) Complete(_ context.Context, req providers.CompletionRequest) (string, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return "", s.err
	}
	out := s.outputs[0]
	if len(s.outputs) > 1 {
		s.outputs = s.outputs[1:]
	}
	return out, nil
}

type memAuditor struct{ recs []storage.LLMCallRecord }

func (m *memAuditor) Insert(_ context.Context, rec storage.LLMCallRecord) error {
	m.recs = append(m.recs, rec)
	return nil
}

const goodMetadata = `{"Summary":["s"],"Title":"T","Author":"A","DateCreated":"d","LastModifiedDate":"d","Publisher":"p","Language":"en","PageCount":"Not Available","SentimentTone":"neutral"}`

func TestAnalyzeRepairsOnce(t *testing.T) {
	llm := &scriptedLLM{outputs: []string{"Sure! Here is the metadata.", "```json\n" + goodMetadata + "\n```"}}
	audit := &memAuditor{}
	p := New(llm, 1, nil).WithAuditor(audit)

	md, err := p.Analyze(context.Background(), "--- Page 1 ---\nhello")
	require.NoError(t, err)
	assert.Equal(t, "T", md.Title)
	assert.True(t, md.PageCount.IsText)
	require.Len(t, llm.calls, 2)
	assert.Contains(t, llm.calls[1].Input, "Sure! Here is the metadata.")
	assert.Contains(t, llm.calls[1].Input, "SentimentTone")
	require.Len(t, audit.recs, 2)
	assert.Equal(t, "invalid", audit.recs[0].Status)
	assert.Equal(t, "ok", audit.recs[1].Status)
}

func TestAnalyzeRepairsFractionalPageCount(t *testing.T) {
	fractional := strings.Replace(goodMetadata, `"PageCount":"Not Available"`, `"PageCount":3.0`, 1)
	fixed := strings.Replace(goodMetadata, `"PageCount":"Not Available"`, `"PageCount":3`, 1)
	llm := &scriptedLLM{outputs: []string{fractional, fixed}}
	p := New(llm, 1, nil)

	md, err := p.Analyze(context.Background(), "--- Page 1 ---\nhello")
	require.NoError(t, err)
	assert.False(t, md.PageCount.IsText)
	assert.Equal(t, 3, md.PageCount.Int)
	require.Len(t, llm.calls, 2)
	assert.Contains(t, llm.calls[1].Input, "3.0")
}

func TestAnalyzeDecodeFailureKeepsRawOutput(t *testing.T) {
	fractional := strings.Replace(goodMetadata, `"PageCount":"Not Available"`, `"PageCount":3.0`, 1)
	llm := &scriptedLLM{outputs: []string{fractional}}
	p := New(llm, 0, nil)

	_, err := p.Analyze(context.Background(), "text")
	var ue *util.Error
	require.ErrorAs(t, err, &ue)
	assert.ErrorIs(t, err, util.ErrSchemaValidation)
	assert.Equal(t, fractional, ue.RawOutput)
}

func TestRepairBoundExhausted(t *testing.T) {
	llm := &scriptedLLM{outputs: []string{"nope", "still nope"}}
	p := New(llm, 1, nil)

	_, err := p.Analyze(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrSchemaValidation)
	var ue *util.Error
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "still nope", ue.RawOutput)
	assert.Len(t, llm.calls, 2, "one extraction call and exactly one repair call")
}

func TestZeroRepairsMeansSingleCall(t *testing.T) {
	llm := &scriptedLLM{outputs: []string{"nope"}}
	_, err := New(llm, 0, nil).Analyze(context.Background(), "text")
	assert.ErrorIs(t, err, util.ErrSchemaValidation)
	assert.Len(t, llm.calls, 1)
}

func TestProviderFailureIsNotRepaired(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("error 500: upstream")}
	_, err := New(llm, 3, nil).Analyze(context.Background(), "text")
	assert.ErrorIs(t, err, util.ErrProviderInvocation)
	assert.Len(t, llm.calls, 1)
}

func combinedThreePages() string {
	var b strings.Builder
	b.WriteString("<Document: reference.pdf>\n")
	for p := 1; p <= 3; p++ {
		b.WriteString(util.PageMarker(p) + "\nref page text\n")
	}
	b.WriteString("<Document: actual.pdf>\n")
	for p := 1; p <= 3; p++ {
		b.WriteString(util.PageMarker(p) + "\nactual page text\n")
	}
	return b.String()
}

func TestCompareKeepsUnchangedPages(t *testing.T) {
	llm := &scriptedLLM{outputs: []string{`[{"Page":1,"Changes":"Title reworded"},{"Page":"2","Changes":"Added a clause"},{"Page":"Page 3","Changes":"no change."}]`}}
	recs, err := New(llm, 1, nil).Compare(context.Background(), combinedThreePages())
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, models.ComparisonRecord{Page: "3", Changes: models.NoChange}, recs[2])
	assert.Equal(t, "1", recs[0].Page)
}

func TestCompareRepairsMissingPage(t *testing.T) {
	llm := &scriptedLLM{outputs: []string{
		`[{"Page":"1","Changes":"x"},{"Page":"2","Changes":"y"}]`,
		`[{"Page":"1","Changes":"x"},{"Page":"2","Changes":"y"},{"Page":"3","Changes":"No Change"}]`,
	}}
	recs, err := New(llm, 1, nil).Compare(context.Background(), combinedThreePages())
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	require.Len(t, llm.calls, 2)
	assert.Contains(t, llm.calls[1].Input, "missing records for pages 3")
}

func TestCompareRejectsOutOfOrder(t *testing.T) {
	llm := &scriptedLLM{outputs: []string{`[{"Page":"2","Changes":"x"},{"Page":"1","Changes":"y"},{"Page":"3","Changes":"No Change"}]`}}
	_, err := New(llm, 0, nil).Compare(context.Background(), combinedThreePages())
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrSchemaValidation)
	assert.Contains(t, err.Error(), "ascending")
}

func TestCompareWithMockProvider(t *testing.T) {
	recs, err := New(providers.NewMockProvider(0), 1, nil).Compare(context.Background(), combinedThreePages())
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for _, r := range recs {
		assert.Equal(t, models.NoChange, r.Changes)
	}
}
