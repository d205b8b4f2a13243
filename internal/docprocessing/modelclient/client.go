// Package modelclient talks to an OpenAI compatible chat-completions endpoint
// with a static bearer credential.
package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/docverify/docverify-backend/pkg/config"
	"github.com/docverify/docverify-backend/pkg/logger"
)

// maxErrorBody caps how much of a failed response body ends up in errors and logs
const maxErrorBody = 512

var (
	ErrTransport         = errors.New("model endpoint request failed")
	ErrMalformedResponse = errors.New("malformed model response")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// Client is safe for concurrent use. Its configuration is fixed at construction.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	log        *logger.Logger
}

// New creates a client for cfg.BaseURL. cfg.Timeout bounds every call.
func New(cfg *config.ModelConfig, log *logger.Logger) (*Client, error) {
	ep, err := config.ParseEndpointURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, errors.New("model API key is empty")
	}

	return &Client{
		endpoint: ep.CompletionsURL(),
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log.WithComponent("modelclient"),
	}, nil
}

// Complete posts req and returns choices[0].message.content.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	c.log.Debug().
		Str("req_id", rid).
		Str("model", req.Model).
		Float64("temperature", req.Temperature).
		Int("request_bytes", len(body)).
		Msg("model request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Error().Err(err).
			Str("req_id", rid).
			Int64("elapsed_ms", time.Since(start).Milliseconds()).
			Msg("model request failed")
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}
		c.log.Error().
			Str("req_id", rid).
			Int("status", resp.StatusCode).
			Int64("elapsed_ms", time.Since(start).Milliseconds()).
			Msg("model endpoint returned an error status")
		return "", statusErr
	}

	content, err := parseContent(raw)
	if err != nil {
		c.log.Error().Err(err).
			Str("req_id", rid).
			Int("raw_bytes", len(raw)).
			Msg("model response could not be decoded")
		return "", err
	}

	c.log.Info().
		Str("req_id", rid).
		Str("model", req.Model).
		Int("content_len", len(content)).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("model request completed")

	return content, nil
}

func parseContent(raw []byte) (string, error) {
	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	content := bytes.TrimSpace(cc.Choices[0].Message.Content)
	switch {
	case len(content) == 0 || bytes.Equal(content, []byte("null")):
		return "", fmt.Errorf("%w: empty message content", ErrMalformedResponse)
	case content[0] == '"':
		var s string
		if err := json.Unmarshal(content, &s); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return s, nil
	default:
		// Some servers inline the JSON object instead of a JSON-encoded string
		return string(content), nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
