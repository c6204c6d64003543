package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Seq     int    `json:"seq"`
}

type Session struct {
	ID        string     `json:"session_id"`
	Namespace string     `json:"namespace"`
	CreatedAt time.Time  `json:"created_at"`
	History   []ChatTurn `json:"history,omitempty"`
}

type DocumentChunk struct {
	DocumentID string `json:"document_id"`
	Page       int    `json:"page,omitempty"`
	Text       string `json:"text"`
	Index      int    `json:"chunk_index"`
	// Overlap is how many trailing runes the successor chunk repeats.
	Overlap int `json:"overlap"`
}

type ChunkResult struct {
	Chunk DocumentChunk `json:"chunk"`
	Score float64       `json:"score"`
}

type DocumentType string

const (
	DocumentPDF  DocumentType = "pdf"
	DocumentDOCX DocumentType = "docx"
	DocumentTXT  DocumentType = "txt"
)

// UploadedFile is what callers hand to the ingestion boundary.
type UploadedFile struct {
	Name    string       `json:"name"`
	Content []byte       `json:"-"`
	Type    DocumentType `json:"type"`
}

// DetectType maps a file name to a supported type, or "" when unsupported.
func DetectType(name string) DocumentType {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return DocumentPDF
	case strings.HasSuffix(lower, ".docx"):
		return DocumentDOCX
	case strings.HasSuffix(lower, ".txt"):
		return DocumentTXT
	default:
		return ""
	}
}

type ComparisonRecord struct {
	Page    string `json:"Page"`
	Changes string `json:"Changes"`
}

const NoChange = "No Change"

type DocumentMetadata struct {
	Summary          []string    `json:"Summary"`
	Title            string      `json:"Title"`
	Author           string      `json:"Author"`
	DateCreated      string      `json:"DateCreated"`
	LastModifiedDate string      `json:"LastModifiedDate"`
	Publisher        string      `json:"Publisher"`
	Language         string      `json:"Language"`
	PageCount        IntOrString `json:"PageCount"`
	SentimentTone    string      `json:"SentimentTone"`
}

// IntOrString holds a JSON value that is either an integer or a string.
type IntOrString struct {
	Int    int
	Str    string
	IsText bool
}

func (v IntOrString) String() string {
	if v.IsText {
		return v.Str
	}
	return strconv.Itoa(v.Int)
}

func (v IntOrString) MarshalJSON() ([]byte, error) {
	if v.IsText {
		return json.Marshal(v.Str)
	}
	return json.Marshal(v.Int)
}

func (v *IntOrString) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case string:
		*v = IntOrString{Str: x, IsText: true}
		return nil
	case json.Number:
		i, err := strconv.Atoi(x.String())
		if err != nil {
			return fmt.Errorf("%s is not an integer", x)
		}
		*v = IntOrString{Int: i}
		return nil
	default:
		return fmt.Errorf("expected integer or string, got %s", string(b))
	}
}
