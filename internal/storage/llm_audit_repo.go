package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type LLMCallRecord struct {
	CallID       string
	Operation    string
	SessionID    string
	ProviderName string
	Model        string
	Attempt      int
	Status       string
	ErrorType    string
}

// LLMAuditRepo records one row per model call made by the extraction pipeline.
type LLMAuditRepo struct {
	conn Conn
}

func NewLLMAuditRepo(conn Conn) *LLMAuditRepo {
	return &LLMAuditRepo{conn: conn}
}

func (r *LLMAuditRepo) Insert(ctx context.Context, rec LLMCallRecord) error {
	if rec.CallID == "" {
		rec.CallID = uuid.NewString()
	}
	_, err := r.conn.Exec(ctx, `
INSERT INTO llm_calls(call_id, operation, session_id, provider_name, model, attempt, status, error_type)
VALUES ($1::uuid, $2, NULLIF($3,''), $4, $5, $6, $7, NULLIF($8,''))`,
		rec.CallID, rec.Operation, rec.SessionID, rec.ProviderName, rec.Model, rec.Attempt, rec.Status, rec.ErrorType)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}
