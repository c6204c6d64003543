package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"docchat/internal/logging"
	"docchat/internal/metrics"
	"docchat/internal/models"
	"docchat/internal/prompts"
	"docchat/internal/providers"
	"docchat/internal/schema"
	"docchat/internal/storage"
	"docchat/internal/util"
)

// Auditor receives one record per model call. *storage.LLMAuditRepo implements it.
type Auditor interface {
	Insert(ctx context.Context, rec storage.LLMCallRecord) error
}

// Pipeline turns a prompt into schema-valid JSON, asking the model to repair
// its own output a bounded number of times.
type Pipeline struct {
	llm        providers.LLMProvider
	maxRepairs int
	audit      Auditor
	log        *slog.Logger
}

func New(llm providers.LLMProvider, maxRepairs int, logger *slog.Logger) *Pipeline {
	if maxRepairs < 0 {
		maxRepairs = 0
	}
	return &Pipeline{llm: llm, maxRepairs: maxRepairs, log: logging.OrDiscard(logger)}
}

// WithAuditor records every model call made by p.
func (p *Pipeline) WithAuditor(a Auditor) *Pipeline {
	p.audit = a
	return p
}

type Request struct {
	Operation string
	SessionID string
	Prompt    string
	Schema    *schema.Schema
	// Check runs after JSON Schema validation on the cleaned output.
	Check func(clean string) error
}

// Run returns validated JSON text. Provider failures end the run immediately;
// validation failures trigger at most maxRepairs repair calls, after which a
// SchemaValidationError carrying the last raw output is returned.
func (p *Pipeline) Run(ctx context.Context, req Request) (string, error) {
	op := "extraction." + req.Operation
	input := req.Prompt
	var raw string
	var lastErr error
	for attempt := 0; attempt <= p.maxRepairs; attempt++ {
		if attempt > 0 {
			input = prompts.Repair(lastErr.Error(), raw, req.Schema.FormatInstructions())
		}
		out, err := p.llm.Complete(ctx, providers.CompletionRequest{Operation: req.Operation, Input: input})
		if err != nil {
			p.record(ctx, req, attempt, "provider_error", string(providers.ClassifyError(err)))
			p.log.Error("extraction call failed", "operation", req.Operation, "attempt", attempt, "error_type", providers.ClassifyError(err), "err", err)
			return "", providers.InvocationError(op, p.llm.Info(), err)
		}
		raw = out
		clean, verr := req.Schema.ValidateRaw(raw)
		if verr == nil && req.Check != nil {
			verr = req.Check(clean)
		}
		if verr == nil {
			p.record(ctx, req, attempt, "ok", "")
			p.log.Info("extraction succeeded", "operation", req.Operation, "session_id", req.SessionID, "attempt", attempt)
			return clean, nil
		}
		lastErr = verr
		p.record(ctx, req, attempt, "invalid", "schema")
		p.log.Warn("extraction output invalid", "operation", req.Operation, "attempt", attempt, "err", verr)
	}
	return "", &util.Error{Kind: util.ErrSchemaValidation, Op: op, Err: lastErr, RawOutput: raw}
}

func (p *Pipeline) record(ctx context.Context, req Request, attempt int, status, errType string) {
	metrics.ExtractionAttempts.WithLabelValues(req.Operation, status).Inc()
	if p.audit == nil {
		return
	}
	info := p.llm.Info()
	rec := storage.LLMCallRecord{
		Operation:    req.Operation,
		SessionID:    req.SessionID,
		ProviderName: info.Name,
		Model:        info.Model,
		Attempt:      attempt,
		Status:       status,
		ErrorType:    errType,
	}
	if err := p.audit.Insert(ctx, rec); err != nil {
		p.log.Warn("audit insert failed", "operation", req.Operation, "err", err)
	}
}

// Analyze extracts document metadata. The typed decode runs inside the repair
// loop, so output the schema accepts but the model type rejects is repaired.
func (p *Pipeline) Analyze(ctx context.Context, documentText string) (models.DocumentMetadata, error) {
	var md models.DocumentMetadata
	check := func(clean string) error {
		var out models.DocumentMetadata
		if err := schema.Into(clean, &out); err != nil {
			return err
		}
		md = out
		return nil
	}
	if _, err := p.Run(ctx, Request{
		Operation: "analyze",
		Prompt:    prompts.DocumentAnalysis(schema.DocumentMetadata.FormatInstructions(), documentText),
		Schema:    schema.DocumentMetadata,
		Check:     check,
	}); err != nil {
		return models.DocumentMetadata{}, err
	}
	return md, nil
}

type rawRecord struct {
	Page    models.IntOrString `json:"Page"`
	Changes string             `json:"Changes"`
}

// Compare diffs the annotated combined text of two documents. The result has
// one record per page marker found in the text, in ascending page order.
func (p *Pipeline) Compare(ctx context.Context, combinedText string) ([]models.ComparisonRecord, error) {
	pages := util.DistinctPages(combinedText)
	var records []models.ComparisonRecord
	check := func(clean string) error {
		recs, err := checkComparison(clean, pages)
		if err != nil {
			return err
		}
		records = recs
		return nil
	}
	if _, err := p.Run(ctx, Request{
		Operation: "compare",
		Prompt:    prompts.DocumentComparison(combinedText, schema.ComparisonRecords.FormatInstructions()),
		Schema:    schema.ComparisonRecords,
		Check:     check,
	}); err != nil {
		return nil, err
	}
	return records, nil
}

func checkComparison(clean string, pages []int) ([]models.ComparisonRecord, error) {
	var raw []rawRecord
	if err := schema.Into(clean, &raw); err != nil {
		return nil, err
	}
	out := make([]models.ComparisonRecord, 0, len(raw))
	prev := 0
	var problems []error
	for i, r := range raw {
		n, ok := pageNumber(r.Page)
		if !ok {
			problems = append(problems, fmt.Errorf("record %d: page %q is not a page number", i, r.Page.String()))
			continue
		}
		if i > 0 && n <= prev {
			problems = append(problems, fmt.Errorf("record %d: page %d is out of ascending order", i, n))
		}
		prev = n
		changes := strings.TrimSpace(r.Changes)
		switch {
		case changes == "":
			problems = append(problems, fmt.Errorf("record %d: Changes is empty, use %q for unchanged pages", i, models.NoChange))
		case strings.EqualFold(strings.TrimSuffix(changes, "."), models.NoChange):
			changes = models.NoChange
		}
		out = append(out, models.ComparisonRecord{Page: fmt.Sprint(n), Changes: changes})
	}
	if len(pages) > 0 {
		got := map[string]bool{}
		for _, r := range out {
			got[r.Page] = true
		}
		var missing []string
		for _, pg := range pages {
			if !got[fmt.Sprint(pg)] {
				missing = append(missing, fmt.Sprint(pg))
			}
		}
		if len(missing) > 0 {
			problems = append(problems, fmt.Errorf("missing records for pages %s", strings.Join(missing, ", ")))
		}
		want := map[string]bool{}
		for _, pg := range pages {
			want[fmt.Sprint(pg)] = true
		}
		for _, r := range out {
			if !want[r.Page] {
				problems = append(problems, fmt.Errorf("page %s does not exist in either document", r.Page))
			}
		}
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	return out, nil
}

func pageNumber(v models.IntOrString) (int, bool) {
	if !v.IsText {
		return v.Int, v.Int > 0
	}
	s := strings.TrimSpace(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(v.Str)), "page"))
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || fmt.Sprint(n) != s {
		return 0, false
	}
	return n, n > 0
}
