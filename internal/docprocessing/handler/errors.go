package handler

import (
	"net/http"
	"strconv"

	"github.com/docverify/docverify-backend/internal/docprocessing/imagecodec"
	"github.com/docverify/docverify-backend/internal/docprocessing/modelclient"
	"github.com/docverify/docverify-backend/internal/docprocessing/pipeline"
	"github.com/docverify/docverify-backend/internal/docprocessing/service"
	"github.com/docverify/docverify-backend/pkg/errors"
)

func mapError(err error) *errors.AppError {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, service.ErrUnsupportedDocument):
		return errors.BadRequest(err.Error())
	case errors.Is(err, imagecodec.ErrDecode):
		return errors.Unprocessable("the upload could not be decoded as an image")
	case errors.Is(err, imagecodec.ErrEmptyCrop):
		return errors.Validation(map[string]string{"crop": "crop rectangle does not overlap the image"})
	}

	var statusErr *modelclient.StatusError
	if errors.As(err, &statusErr) ||
		errors.Is(err, modelclient.ErrTransport) ||
		errors.Is(err, modelclient.ErrMalformedResponse) ||
		errors.Is(err, pipeline.ErrMalformedOutput) {
		upstream := errors.Upstream(err)
		details := map[string]string{}
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			details["stage"] = stageErr.Stage.String()
		}
		if statusErr != nil {
			details["upstream_status"] = strconv.Itoa(statusErr.StatusCode)
		}
		if len(details) > 0 {
			upstream = upstream.WithDetails(details)
		}
		return upstream
	}

	return errors.Wrap(err, "INTERNAL_ERROR", "an unexpected error occurred", http.StatusInternalServerError)
}
