package errors_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docverify/docverify-backend/pkg/errors"
)

func TestConstructors(t *testing.T) {
	cause := stderrors.New("connection refused")

	tests := []struct {
		name       string
		err        *errors.AppError
		wantStatus int
		wantCode   string
		sentinel   error
	}{
		{"not found", errors.NotFound("job"), http.StatusNotFound, "NOT_FOUND", errors.ErrNotFound},
		{"bad request", errors.BadRequest("missing file"), http.StatusBadRequest, "BAD_REQUEST", errors.ErrBadRequest},
		{"validation", errors.Validation(map[string]string{"file": "required"}), http.StatusBadRequest, "VALIDATION_ERROR", errors.ErrValidation},
		{"unprocessable", errors.Unprocessable("corrupt image"), http.StatusUnprocessableEntity, "UNPROCESSABLE_IMAGE", errors.ErrUnprocessable},
		{"unsupported media", errors.UnsupportedMedia("application/pdf"), http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", errors.ErrUnsupportedMedia},
		{"upstream", errors.Upstream(cause), http.StatusBadGateway, "UPSTREAM_MODEL_ERROR", cause},
		{"internal", errors.Internal("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", errors.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, tt.err.StatusCode)
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.True(t, errors.Is(tt.err, tt.sentinel))
		})
	}
}

func TestUpstream_KeepsBothChains(t *testing.T) {
	cause := stderrors.New("status 500")
	err := errors.Upstream(cause)

	assert.True(t, errors.Is(err, errors.ErrUpstream))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "status 500")
}

func TestAs(t *testing.T) {
	var wrapped error = errors.Wrap(stderrors.New("inner"), "X", "outer", http.StatusTeapot)

	var appErr *errors.AppError
	assert.True(t, errors.As(wrapped, &appErr))
	assert.Equal(t, http.StatusTeapot, appErr.StatusCode)
	assert.Equal(t, "outer: inner", appErr.Error())
}
