package modelclient

import (
	"context"
	"encoding/json"
)

// Message roles
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Response format types understood by the chat-completions endpoint
const (
	FormatText       = "text"
	FormatJSONObject = "json_object"
)

// Completer sends one chat-completions request and returns the first choice's content.
type Completer interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// ChatRequest is the body of POST {base}/chat/completions.
type ChatRequest struct {
	Model          string          `json:"model"`
	MaxTokens      int             `json:"max_tokens"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Messages       []Message       `json:"messages"`
}

// ResponseFormat is the output-format hint. Schema is only sent with json_object.
type ResponseFormat struct {
	Type   string         `json:"type"`
	Schema map[string]any `json:"schema,omitempty"`
}

// Message is a chat message. Content is sent as a plain string when Parts is
// empty and as a list of parts otherwise.
type Message struct {
	Role  string
	Text  string
	Parts []ContentPart
}

// ContentPart is one element of a multi-part user message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image, here always a data URI.
type ImageURL struct {
	URL string `json:"url"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// MarshalJSON implements json.Marshaler
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Role: m.Role, Content: m.Text}
	if len(m.Parts) > 0 {
		w.Content = m.Parts
	}
	return json.Marshal(w)
}

// SystemMessage builds a text-only system message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Text: text}
}

// UserMessage builds a text-only user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// ImageMessage builds a user message carrying an image followed by a prompt.
func ImageMessage(dataURL, text string) Message {
	return Message{
		Role: RoleUser,
		Parts: []ContentPart{
			{Type: "image_url", ImageURL: &ImageURL{URL: dataURL}},
			{Type: "text", Text: text},
		},
	}
}

// TextFormat requests unconstrained text output.
func TextFormat() *ResponseFormat {
	return &ResponseFormat{Type: FormatText}
}

// JSONFormat requests a JSON object, optionally constrained by schema.
func JSONFormat(schema map[string]any) *ResponseFormat {
	return &ResponseFormat{Type: FormatJSONObject, Schema: schema}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
