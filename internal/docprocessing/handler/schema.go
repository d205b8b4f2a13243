package handler

import "github.com/docverify/docverify-backend/internal/docprocessing/schema"

type fieldResponse struct {
	Name        string          `json:"name"`
	Kind        schema.Kind     `json:"kind"`
	Description string          `json:"description"`
	Required    bool            `json:"required"`
	Children    []fieldResponse `json:"children,omitempty"`
}

type schemaResponse struct {
	DocumentType string          `json:"document_type"`
	Title        string          `json:"title"`
	Fields       []fieldResponse `json:"fields"`
	Required     []string        `json:"required"`
	JSONSchema   map[string]any  `json:"json_schema"`
}

func describeFields(fields []schema.Field) []fieldResponse {
	out := make([]fieldResponse, len(fields))
	for i, f := range fields {
		out[i] = fieldResponse{
			Name:        f.Name,
			Kind:        f.Kind,
			Description: f.Description,
			Required:    f.Required,
			Children:    describeFields(f.Children),
		}
	}
	return out
}
