package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docverify/docverify-backend/pkg/config"
)

// TestAPIKey is the bearer credential ModelServer expects.
const TestAPIKey = "test-model-key"

// ModelRequest is a chat-completions request as seen by ModelServer.
type ModelRequest struct {
	Authorization  string           `json:"-"`
	Model          string           `json:"model"`
	MaxTokens      int              `json:"max_tokens"`
	Temperature    float64          `json:"temperature"`
	ResponseFormat map[string]any   `json:"response_format"`
	Messages       []map[string]any `json:"messages"`
}

// FormatType returns response_format.type or "".
func (r ModelRequest) FormatType() string {
	if r.ResponseFormat == nil {
		return ""
	}
	s, _ := r.ResponseFormat["type"].(string)
	return s
}

// HasImage reports whether any message carries an image_url part.
func (r ModelRequest) HasImage() bool {
	for _, m := range r.Messages {
		parts, ok := m["content"].([]any)
		if !ok {
			continue
		}
		for _, p := range parts {
			if part, ok := p.(map[string]any); ok && part["type"] == "image_url" {
				return true
			}
		}
	}
	return false
}

// Text concatenates every text fragment of every message.
func (r ModelRequest) Text() string {
	var sb strings.Builder
	for _, m := range r.Messages {
		switch c := m["content"].(type) {
		case string:
			sb.WriteString(c)
			sb.WriteString("\n")
		case []any:
			for _, p := range c {
				if part, ok := p.(map[string]any); ok {
					if text, ok := part["text"].(string); ok {
						sb.WriteString(text)
						sb.WriteString("\n")
					}
				}
			}
		}
	}
	return sb.String()
}

// ModelReply scripts one response of ModelServer.
type ModelReply struct {
	Status  int
	Content string
	// Body replaces the whole response body when set
	Body  string
	Delay time.Duration
}

// Reply returns a 200 response whose first choice carries content.
func Reply(content string) ModelReply {
	return ModelReply{Status: http.StatusOK, Content: content}
}

// ReplyJSON returns a 200 response whose content is v encoded as JSON.
func ReplyJSON(v any) ModelReply {
	return Reply(MustJSON(v))
}

// ReplyStatus returns a non-2xx response.
func ReplyStatus(status int, body string) ModelReply {
	return ModelReply{Status: status, Body: body}
}

// ModelServer is a fake chat-completions endpoint.
type ModelServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []ModelRequest
	replies  []ModelReply
	respond  func(ModelRequest) ModelReply
}

// NewModelServer serves replies in arrival order; once exhausted it answers 500.
func NewModelServer(t *testing.T, replies ...ModelReply) *ModelServer {
	t.Helper()
	s := &ModelServer{replies: replies}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// NewModelServerFunc answers every request with respond.
func NewModelServerFunc(t *testing.T, respond func(ModelRequest) ModelReply) *ModelServer {
	t.Helper()
	s := &ModelServer{respond: respond}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Requests returns a copy of the requests received so far.
func (s *ModelServer) Requests() []ModelRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ModelRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Config returns a model configuration pointing at the server.
func (s *ModelServer) Config() *config.ModelConfig {
	return &config.ModelConfig{
		BaseURL:              s.URL + "/v1",
		APIKey:               TestAPIKey,
		VisionModel:          "test/vision",
		ValidationModel:      "test/validation",
		MaxTokens:            16384,
		OrientationMaxTokens: 1024,
		Timeout:              5 * time.Second,
	}
}

func (s *ModelServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}

	raw, _ := io.ReadAll(r.Body)
	var req ModelRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	req.Authorization = r.Header.Get("Authorization")

	s.mu.Lock()
	s.requests = append(s.requests, req)
	var reply ModelReply
	switch {
	case s.respond != nil:
		s.mu.Unlock()
		reply = s.respond(req)
		s.mu.Lock()
	case len(s.replies) > 0:
		reply = s.replies[0]
		s.replies = s.replies[1:]
	default:
		reply = ReplyStatus(http.StatusInternalServerError, `{"error":"no scripted reply"}`)
	}
	s.mu.Unlock()

	if req.Authorization != "Bearer "+TestAPIKey {
		reply = ReplyStatus(http.StatusUnauthorized, `{"error":"invalid api key"}`)
	}

	if reply.Delay > 0 {
		time.Sleep(reply.Delay)
	}

	w.Header().Set("Content-Type", "application/json")
	if reply.Status == 0 {
		reply.Status = http.StatusOK
	}
	w.WriteHeader(reply.Status)

	if reply.Body != "" {
		io.WriteString(w, reply.Body)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]any{"role": "assistant", "content": reply.Content}, "finish_reason": "stop"},
		},
	})
}
