package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds. Match with errors.Is; the concrete error is always *Error.
var (
	ErrInitialization          = errors.New("initialization error")
	ErrIngestion               = errors.New("ingestion error")
	ErrIndexNotFound           = errors.New("index not found")
	ErrIndexLoad               = errors.New("index load error")
	ErrRetrieverNotInitialized = errors.New("retriever not initialized")
	ErrSchemaValidation        = errors.New("schema validation error")
	ErrEviction                = errors.New("eviction error")
	ErrProviderInvocation      = errors.New("provider invocation error")
	ErrHistory                 = errors.New("history store error")

	ErrNoExtractableText = errors.New("no extractable text found in document")
)

type Error struct {
	Kind error
	Op   string
	Err  error

	// RawOutput is the last model output seen by a failed extraction.
	RawOutput string
	// Failures holds per-file errors of a partial eviction.
	Failures []error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if n := len(e.Failures); n > 0 {
		fmt.Fprintf(&b, " (%d failures)", n)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	out := []error{e.Kind}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return append(out, e.Failures...)
}

func NewError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Errorf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the sentinel kind carried by err, or nil for foreign errors.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// KindName is a stable snake_case label for a kind, used in API responses and logs.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrInitialization:
		return "initialization_error"
	case ErrIngestion:
		return "ingestion_error"
	case ErrIndexNotFound:
		return "index_not_found"
	case ErrIndexLoad:
		return "index_load_error"
	case ErrRetrieverNotInitialized:
		return "retriever_not_initialized"
	case ErrSchemaValidation:
		return "schema_validation_error"
	case ErrEviction:
		return "eviction_error"
	case ErrProviderInvocation:
		return "provider_invocation_error"
	case ErrHistory:
		return "history_error"
	default:
		return "internal_error"
	}
}
