package modelclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docverify/docverify-backend/internal/docprocessing/modelclient"
	"github.com/docverify/docverify-backend/pkg/logger"
	"github.com/docverify/docverify-backend/pkg/testutil"
)

func newClient(t *testing.T, srv *testutil.ModelServer) *modelclient.Client {
	t.Helper()
	c, err := modelclient.New(srv.Config(), logger.Nop())
	require.NoError(t, err)
	return c
}

func TestComplete_RequestShape(t *testing.T) {
	srv := testutil.NewModelServer(t, testutil.Reply(`{"orientation": 90}`))
	c := newClient(t, srv)

	content, err := c.Complete(context.Background(), modelclient.ChatRequest{
		Model:          "test/vision",
		MaxTokens:      1024,
		Temperature:    0,
		ResponseFormat: modelclient.JSONFormat(nil),
		Messages: []modelclient.Message{
			modelclient.SystemMessage("You are a document validator."),
			modelclient.ImageMessage("data:image/jpeg;base64,QUJD", "Give me the orientation."),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"orientation": 90}`, content)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	got := reqs[0]
	assert.Equal(t, "Bearer "+testutil.TestAPIKey, got.Authorization)
	assert.Equal(t, "test/vision", got.Model)
	assert.Equal(t, 1024, got.MaxTokens)
	assert.Equal(t, "json_object", got.FormatType())
	_, hasSchema := got.ResponseFormat["schema"]
	assert.False(t, hasSchema)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0]["role"])
	assert.Equal(t, "You are a document validator.", got.Messages[0]["content"])

	parts, ok := got.Messages[1]["content"].([]any)
	require.True(t, ok, "user content should be a list of parts")
	require.Len(t, parts, 2)
	image := parts[0].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
	assert.Equal(t, "data:image/jpeg;base64,QUJD", image["image_url"].(map[string]any)["url"])
	assert.Equal(t, "text", parts[1].(map[string]any)["type"])
}

func TestComplete_TemperatureZeroIsSent(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	cfg := testutil.NewModelServer(t).Config()
	cfg.BaseURL = srv.URL
	c, err := modelclient.New(cfg, logger.Nop())
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), modelclient.ChatRequest{
		Model:    "m",
		Messages: []modelclient.Message{modelclient.UserMessage("hi")},
	})
	require.NoError(t, err)

	assert.Contains(t, body, "temperature")
	assert.NotContains(t, body, "response_format")
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name   string
		reply  testutil.ModelReply
		assert func(t *testing.T, err error)
	}{
		{
			name:  "server error",
			reply: testutil.ReplyStatus(http.StatusInternalServerError, `{"error":"overloaded"}`),
			assert: func(t *testing.T, err error) {
				var statusErr *modelclient.StatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
				assert.Contains(t, statusErr.Body, "overloaded")
			},
		},
		{
			name:  "body is not json",
			reply: testutil.ModelReply{Status: http.StatusOK, Body: "<html>gateway</html>"},
			assert: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, modelclient.ErrMalformedResponse)
			},
		},
		{
			name:  "no choices",
			reply: testutil.ModelReply{Status: http.StatusOK, Body: `{"choices":[]}`},
			assert: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, modelclient.ErrMalformedResponse)
			},
		},
		{
			name:  "null content",
			reply: testutil.ModelReply{Status: http.StatusOK, Body: `{"choices":[{"message":{"content":null}}]}`},
			assert: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, modelclient.ErrMalformedResponse)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testutil.NewModelServer(t, tt.reply)
			_, err := newClient(t, srv).Complete(context.Background(), modelclient.ChatRequest{Model: "m"})
			require.Error(t, err)
			tt.assert(t, err)
		})
	}
}

func TestComplete_InlineObjectContent(t *testing.T) {
	srv := testutil.NewModelServer(t, testutil.ModelReply{
		Status: http.StatusOK,
		Body:   `{"choices":[{"message":{"content":{"orientation":180}}}]}`,
	})

	content, err := newClient(t, srv).Complete(context.Background(), modelclient.ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"orientation":180}`, content)
}

func TestComplete_Transport(t *testing.T) {
	srv := testutil.NewModelServer(t)
	cfg := srv.Config()
	srv.Close()

	c, err := modelclient.New(cfg, logger.Nop())
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), modelclient.ChatRequest{Model: "m"})
	assert.ErrorIs(t, err, modelclient.ErrTransport)
}

func TestComplete_ContextDeadline(t *testing.T) {
	srv := testutil.NewModelServer(t, testutil.ModelReply{Status: http.StatusOK, Content: "late", Delay: 500 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newClient(t, srv).Complete(ctx, modelclient.ChatRequest{Model: "m"})
	assert.ErrorIs(t, err, modelclient.ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_RequiresCredential(t *testing.T) {
	cfg := testutil.NewModelServer(t).Config()
	cfg.APIKey = ""

	_, err := modelclient.New(cfg, logger.Nop())
	assert.Error(t, err)
}
