package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// JSONSchema renders the schema as a JSON Schema document. Every value is
// nullable; required fields only require the key to be present.
func (s *Schema) JSONSchema() map[string]any {
	return map[string]any{
		"title":                s.Title,
		"type":                 "object",
		"properties":           properties(s.Fields),
		"required":             requiredNames(s.Fields),
		"additionalProperties": true,
	}
}

// PromptJSON returns the indented JSON Schema embedded verbatim in prompts.
func (s *Schema) PromptJSON() string {
	b, err := json.MarshalIndent(s.JSONSchema(), "", "  ")
	if err != nil {
		// the schema is built from static maps of strings
		panic(fmt.Sprintf("schema %s: %v", s.Name, err))
	}
	return string(b)
}

func properties(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f.Name] = property(f)
	}
	return props
}

func property(f Field) map[string]any {
	switch f.Kind {
	case KindObject:
		return map[string]any{
			"type":                 []string{"object", "null"},
			"description":          f.Description,
			"properties":           properties(f.Children),
			"additionalProperties": true,
		}
	case KindMRZ:
		line := func(description string) map[string]any {
			return map[string]any{
				"type":        "string",
				"description": description,
				"minLength":   MRZLineLength,
				"maxLength":   MRZLineLength,
				"pattern":     mrzLinePattern.String(),
			}
		}
		return map[string]any{
			"type":        []string{"object", "null"},
			"description": f.Description,
			"properties": map[string]any{
				"line1": line(f.Children[0].Description),
				"line2": line(f.Children[1].Description),
			},
			"required":             []string{"line1", "line2"},
			"additionalProperties": false,
		}
	default:
		return map[string]any{
			"type":        []string{"string", "null"},
			"description": f.Description,
		}
	}
}

func requiredNames(fields []Field) []string {
	names := []string{}
	for _, f := range fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

type lazySchema struct {
	once     sync.Once
	compiled *jsonschema.Schema
	err      error
}

// Validate checks v, a value produced by encoding/json, against the rendered JSON Schema.
func (s *Schema) Validate(v any) error {
	s.compiled.once.Do(func() {
		s.compiled.compiled, s.compiled.err = compile(s)
	})
	if s.compiled.err != nil {
		return s.compiled.err
	}

	// round trip so map[string]string and friends become plain JSON values
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}

	if err := s.compiled.compiled.Validate(doc); err != nil {
		return fmt.Errorf("json does not match %s schema: %w", s.Name, err)
	}
	return nil
}

func compile(s *Schema) (*jsonschema.Schema, error) {
	b, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	url := s.Name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}
