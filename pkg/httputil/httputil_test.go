package httputil_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docverify/docverify-backend/pkg/errors"
	"github.com/docverify/docverify-backend/pkg/httputil"
	"github.com/docverify/docverify-backend/pkg/logger"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"app error", errors.NotFound("job"), http.StatusNotFound, "NOT_FOUND"},
		{"upstream", errors.Upstream(assert.AnError), http.StatusBadGateway, "UPSTREAM_MODEL_ERROR"},
		{"plain error", assert.AnError, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			httputil.Error(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decode(t, rec)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestErrorWithData(t *testing.T) {
	rec := httptest.NewRecorder()
	httputil.ErrorWithData(rec, errors.Upstream(assert.AnError), map[string]string{"stage": "raw_extraction"})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decode(t, rec)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, map[string]any{"stage": "raw_extraction"}, resp.Data)
}

func TestJSON_SuccessFlag(t *testing.T) {
	rec := httptest.NewRecorder()
	httputil.Accepted(rec, map[string]string{"job_id": "abc"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.True(t, decode(t, rec).Success)
}

func TestBlob(t *testing.T) {
	rec := httptest.NewRecorder()
	httputil.Blob(rec, http.StatusOK, "image/jpeg", []byte{0xff, 0xd8, 0xff})

	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "3", rec.Header().Get("Content-Length"))
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, rec.Body.Bytes())
}

type uploadForm struct {
	DocumentType string `form:"document_type" validate:"required,oneof=license passport"`
	Rotation     int    `form:"rotation" validate:"gte=-180,lte=180"`
}

func TestValidate(t *testing.T) {
	err := httputil.Validate(uploadForm{DocumentType: "visa", Rotation: 270})
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
	assert.Equal(t, "must be one of: license passport", appErr.Details["document_type"])
	assert.Equal(t, "must be less than or equal to 180", appErr.Details["rotation"])

	assert.NoError(t, httputil.Validate(uploadForm{DocumentType: "license", Rotation: -90}))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := httputil.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = httputil.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestLoggerAndRecoverer(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "test")

	h := httputil.Logger(log)(httputil.Recoverer(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/documents/extract", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), `"status":500`)
}
