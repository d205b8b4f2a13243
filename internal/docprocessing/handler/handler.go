package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/docverify/docverify-backend/internal/docprocessing/domain"
	"github.com/docverify/docverify-backend/internal/docprocessing/schema"
	"github.com/docverify/docverify-backend/internal/docprocessing/service"
	"github.com/docverify/docverify-backend/internal/docprocessing/storage"
	"github.com/docverify/docverify-backend/pkg/errors"
	"github.com/docverify/docverify-backend/pkg/httputil"
	"github.com/docverify/docverify-backend/pkg/logger"
	"github.com/docverify/docverify-backend/pkg/messaging"
)

// DefaultMaxUploadSize applies when no limit is configured
const DefaultMaxUploadSize = 20 << 20 // 20MB

// acceptedImageTypes are the upload formats the image codec can decode
var acceptedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/bmp", "image/tiff", "image/webp"}

// Handler handles HTTP requests for document extraction
type Handler struct {
	service       *service.Service
	maxUploadSize int64
	log           *logger.Logger
}

// NewHandler creates a new document extraction handler
func NewHandler(svc *service.Service, maxUploadSize int64, log *logger.Logger) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &Handler{
		service:       svc,
		maxUploadSize: maxUploadSize,
		log:           log,
	}
}

// Routes mounts the document endpoints on r
func (h *Handler) Routes(r chi.Router) {
	r.Get("/schemas/{documentType}", h.GetSchema)
	r.Post("/orientation", h.DetectOrientation)
	r.Post("/preview", h.Preview)
	r.Post("/extract", h.Extract)
	r.Get("/extract/{jobId}", h.GetResult)
}

// GetSchema handles GET /documents/schemas/{documentType}
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "documentType")
	sch, ok := schema.ByName(name)
	if !ok {
		httputil.Error(w, errors.NotFound("document type "+strconv.Quote(name)))
		return
	}

	httputil.JSON(w, http.StatusOK, schemaResponse{
		DocumentType: sch.Name,
		Title:        sch.Title,
		Fields:       describeFields(sch.Fields),
		Required:     sch.RequiredFields(),
		JSONSchema:   sch.JSONSchema(),
	})
}

// DetectOrientation handles POST /documents/orientation
// Accepts multipart form with:
// - file: the document image
func (h *Handler) DetectOrientation(w http.ResponseWriter, r *http.Request) {
	imageData, err := h.readUpload(w, r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	reading, err := h.service.DetectOrientation(r.Context(), imageData)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, reading)
}

// Preview handles POST /documents/preview
// Accepts multipart form with:
// - file: the document image
// - rotation: clockwise degrees
// - crop_x, crop_y, crop_width, crop_height: crop rectangle in pixels of the rotated image
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	imageData, err := h.readUpload(w, r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	form, err := parseEditForm(r)
	if err != nil {
		storage.ZeroBytes(imageData)
		httputil.Error(w, err)
		return
	}

	preview, err := h.service.Preview(imageData, form.edits())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	httputil.Blob(w, http.StatusOK, "image/jpeg", preview)
}

// Extract handles POST /documents/extract
// Accepts multipart form with:
// - file: the document image
// - document_type: one of license, passport
// - rotation, crop_x, crop_y, crop_width, crop_height: optional edits
// - auto_orient: apply the inferred orientation correction
// - wait: respond with the result instead of a job
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	imageData, err := h.readUpload(w, r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	form, err := parseExtractForm(r)
	if err != nil {
		storage.ZeroBytes(imageData)
		httputil.Error(w, err)
		return
	}
	docType := domain.DocumentType(form.DocumentType)

	// Events published for this upload carry the request ID
	ctx := messaging.WithCorrelationID(r.Context(), httputil.GetRequestID(r.Context()))

	// imageData is zeroed by the service
	if form.Wait {
		result, err := h.service.Extract(ctx, imageData, docType, form.edit.edits())
		if err != nil {
			// The audit trail of a failed run shows which stage failed
			if result != nil {
				h.respondFailure(w, r, err, result)
				return
			}
			h.respondError(w, r, err)
			return
		}
		httputil.JSON(w, http.StatusOK, result)
		return
	}

	job, err := h.service.StartExtraction(ctx, imageData, docType, form.edit.edits())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	httputil.Accepted(w, job)
}

// GetResult handles GET /documents/extract/{jobId}
// Returns the extraction job status and results
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if err := httputil.Validate(jobParams{JobID: jobID}); err != nil {
		httputil.Error(w, err)
		return
	}

	job := h.service.GetJob(jobID)
	if job == nil {
		httputil.Error(w, errors.NotFound("job"))
		return
	}

	httputil.JSON(w, http.StatusOK, job)
}

// readUpload reads the multipart file field into memory and checks its
// content type by sniffing.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	// Limit request size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errors.New("PAYLOAD_TOO_LARGE", "file exceeds the upload limit", http.StatusRequestEntityTooLarge)
		}
		return nil, errors.BadRequest("invalid multipart form")
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, errors.Validation(map[string]string{"file": "this field is required"})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.Internal("failed to read uploaded file")
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), acceptedImageTypes...) {
		storage.ZeroBytes(data)
		return nil, errors.UnsupportedMedia(strings.SplitN(mtype.String(), ";", 2)[0])
	}
	return data, nil
}

// respondError maps service and pipeline errors to API errors.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	h.respondFailure(w, r, err, nil)
}

// respondFailure is respondError with a partial result in the envelope data.
func (h *Handler) respondFailure(w http.ResponseWriter, r *http.Request, err error, partial interface{}) {
	appErr := mapError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("request_id", httputil.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("document request failed")
	}
	httputil.ErrorWithData(w, appErr, partial)
}
