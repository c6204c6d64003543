package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type FieldKind string

const (
	KindString      FieldKind = "string"
	KindStringList  FieldKind = "list_of_string"
	KindIntOrString FieldKind = "int_or_string"
	KindEnum        FieldKind = "enum"
)

type Field struct {
	Name        string
	Kind        FieldKind
	Description string
	Enum        []string
}

// Schema describes the JSON object (or array of objects, when Array is set)
// a model must return. It renders both prompt instructions and a JSON Schema
// document used for validation.
type Schema struct {
	Name   string
	Array  bool
	Fields []Field

	once     sync.Once
	compiled *jsonschema.Schema
	err      error
}

func (s *Schema) object() map[string]any {
	props := make(map[string]any, len(s.Fields))
	required := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		var p map[string]any
		switch f.Kind {
		case KindStringList:
			p = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
		case KindIntOrString:
			p = map[string]any{"type": []string{"integer", "string"}}
		case KindEnum:
			p = map[string]any{"type": "string", "enum": f.Enum}
		default:
			p = map[string]any{"type": "string"}
		}
		if f.Description != "" {
			p["description"] = f.Description
		}
		props[f.Name] = p
		required = append(required, f.Name)
	}
	return map[string]any{"type": "object", "properties": props, "required": required}
}

// Document returns the JSON Schema for s.
func (s *Schema) Document() map[string]any {
	doc := map[string]any{"$schema": "http://json-schema.org/draft-07/schema#", "title": s.Name}
	if s.Array {
		doc["type"] = "array"
		doc["items"] = s.object()
	} else {
		for k, v := range s.object() {
			doc[k] = v
		}
	}
	return doc
}

// FormatInstructions is the schema text appended to extraction and repair prompts.
func (s *Schema) FormatInstructions() string {
	raw, _ := json.MarshalIndent(s.Document(), "", "  ")
	var b strings.Builder
	if s.Array {
		b.WriteString("The output must be a JSON array of objects conforming to the JSON schema below.\n")
	} else {
		b.WriteString("The output must be a single JSON object conforming to the JSON schema below.\n")
	}
	b.WriteString("Every listed property is required. Return JSON only.\n\n```json\n")
	b.Write(raw)
	b.WriteString("\n```")
	return b.String()
}

func (s *Schema) compile() (*jsonschema.Schema, error) {
	s.once.Do(func() {
		raw, err := json.Marshal(s.Document())
		if err != nil {
			s.err = fmt.Errorf("encode %s schema: %w", s.Name, err)
			return
		}
		url := s.Name + ".json"
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
			s.err = fmt.Errorf("add schema resource: %w", err)
			return
		}
		s.compiled, s.err = compiler.Compile(url)
		if s.err != nil {
			s.err = fmt.Errorf("compile %s schema: %w", s.Name, s.err)
		}
	})
	return s.compiled, s.err
}

// Validate checks a decoded JSON document (as produced by Decode) against s.
func (s *Schema) Validate(doc any) error {
	compiled, err := s.compile()
	if err != nil {
		return err
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("output does not match %s schema: %w", s.Name, err)
	}
	return nil
}

// ValidateRaw strips any code fence, decodes and validates raw model output,
// returning the cleaned JSON text.
func (s *Schema) ValidateRaw(raw string) (string, error) {
	clean := StripCodeFence(raw)
	doc, err := Decode(clean)
	if err != nil {
		return clean, err
	}
	return clean, s.Validate(doc)
}

var DocumentMetadata = &Schema{
	Name: "document_metadata",
	Fields: []Field{
		{Name: "Summary", Kind: KindStringList, Description: "List of summary points of the document"},
		{Name: "Title", Kind: KindString},
		{Name: "Author", Kind: KindString},
		{Name: "DateCreated", Kind: KindString},
		{Name: "LastModifiedDate", Kind: KindString},
		{Name: "Publisher", Kind: KindString},
		{Name: "Language", Kind: KindString},
		{Name: "PageCount", Kind: KindIntOrString},
		{Name: "SentimentTone", Kind: KindString},
	},
}

var ComparisonRecords = &Schema{
	Name:  "page_comparison",
	Array: true,
	Fields: []Field{
		{Name: "Page", Kind: KindIntOrString, Description: "Page number"},
		{Name: "Changes", Kind: KindString, Description: `Changes on that page, or "No Change"`},
	},
}
