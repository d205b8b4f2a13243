package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sort"
	"time"

	"github.com/docverify/docverify-backend/internal/docprocessing/domain"
	"github.com/docverify/docverify-backend/internal/docprocessing/imagecodec"
	"github.com/docverify/docverify-backend/internal/docprocessing/orientation"
	"github.com/docverify/docverify-backend/internal/docprocessing/pipeline"
	"github.com/docverify/docverify-backend/internal/docprocessing/processor"
	"github.com/docverify/docverify-backend/internal/docprocessing/schema"
	"github.com/docverify/docverify-backend/internal/docprocessing/storage"
	"github.com/docverify/docverify-backend/pkg/logger"
	"github.com/docverify/docverify-backend/pkg/messaging"
)

// ErrUnsupportedDocument is returned when no processor handles the document type.
var ErrUnsupportedDocument = errors.New("unsupported document type")

// warningOrientationUnknown is added when auto-orientation could not be inferred.
const warningOrientationUnknown = "orientation could not be determined; image was left unrotated"

// EventPublisher publishes extraction events.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// OrientationAdvisor infers how a document image must be turned.
type OrientationAdvisor interface {
	Infer(ctx context.Context, img image.Image) (degrees int, known bool)
}

// Edits are the reviewer's adjustments, applied rotate first, then crop.
type Edits struct {
	// Rotation in clockwise degrees
	Rotation float64
	// Crop is relative to the rotated image; nil keeps the whole image
	Crop *image.Rectangle
	// AutoOrient asks the advisor for a correction after the manual edits
	AutoOrient bool
}

// Service orchestrates document processing: edit, materialize, dispatch, cleanup
type Service struct {
	registry  *processor.Registry
	storage   *storage.TempStorage
	advisor   OrientationAdvisor
	codec     *imagecodec.Codec
	publisher EventPublisher
	tempDir   string
	log       *logger.Logger
}

// NewService creates a new document processing service. A nil publisher drops events.
func NewService(registry *processor.Registry, store *storage.TempStorage, advisor OrientationAdvisor, codec *imagecodec.Codec, publisher EventPublisher, tempDir string, log *logger.Logger) *Service {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	return &Service{
		registry:  registry,
		storage:   store,
		advisor:   advisor,
		codec:     codec,
		publisher: publisher,
		tempDir:   tempDir,
		log:       log.WithComponent("docprocessing"),
	}
}

// DetectOrientation asks the advisor about an uploaded image. Only an
// undecodable image is an error; an unusable answer is reported as unknown.
func (s *Service) DetectOrientation(ctx context.Context, imageData []byte) (*domain.OrientationReading, error) {
	defer storage.ZeroBytes(imageData)

	img, _, err := s.codec.Decode(imageData)
	if err != nil {
		return nil, err
	}

	degrees, known := s.advisor.Infer(ctx, imagecodec.Flatten(img))
	reading := &domain.OrientationReading{Known: known}
	if known {
		reading.Orientation = &degrees
		reading.Rotation = orientation.Correction(degrees)
	}
	return reading, nil
}

// Preview applies edits and returns the result as JPEG so the reviewer can
// confirm it before extraction.
func (s *Service) Preview(imageData []byte, edits Edits) ([]byte, error) {
	defer storage.ZeroBytes(imageData)

	img, err := s.decodeAndEdit(imageData, edits)
	if err != nil {
		return nil, err
	}
	return s.codec.EncodeJPEG(img)
}

// Extract runs the document through its processor and waits for the result.
// The uploaded bytes are zeroed before returning.
func (s *Service) Extract(ctx context.Context, imageData []byte, docType domain.DocumentType, edits Edits) (*domain.ExtractionResult, error) {
	proc := s.registry.FindProcessor(docType)
	if proc == nil {
		storage.ZeroBytes(imageData)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDocument, docType)
	}
	return s.extract(ctx, "", imageData, docType, proc, edits)
}

// StartExtraction creates a new extraction job and processes the document asynchronously.
// Returns the job immediately so the caller can poll for results.
// The caller must not touch imageData afterwards.
func (s *Service) StartExtraction(ctx context.Context, imageData []byte, docType domain.DocumentType, edits Edits) (*domain.ExtractionJob, error) {
	proc := s.registry.FindProcessor(docType)
	if proc == nil {
		storage.ZeroBytes(imageData)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDocument, docType)
	}

	jobID := storage.GenerateJobID()

	// Create job in processing state
	s.storage.StoreJob(&domain.ExtractionJob{
		JobID:        jobID,
		DocumentType: docType,
		Status:       domain.StatusProcessing,
		CreatedAt:    time.Now().UTC(),
	})

	// Keep request values such as the correlation ID, drop its cancellation
	go s.processAsync(context.WithoutCancel(ctx), jobID, imageData, docType, proc, edits)

	return s.storage.GetJob(jobID), nil
}

// processAsync runs extraction in a background goroutine.
func (s *Service) processAsync(ctx context.Context, jobID string, imageData []byte, docType domain.DocumentType, proc processor.Processor, edits Edits) {
	result, err := s.extract(ctx, jobID, imageData, docType, proc, edits)

	s.storage.UpdateJob(jobID, func(j *domain.ExtractionJob) {
		now := time.Now().UTC()
		j.CompletedAt = &now
		j.Result = result
		if err != nil {
			j.Status = domain.StatusFailed
			j.Error = err.Error()
			return
		}
		j.Status = domain.StatusCompleted
	})
}

// GetJob retrieves an extraction job by ID
func (s *Service) GetJob(jobID string) *domain.ExtractionJob {
	return s.storage.GetJob(jobID)
}

func (s *Service) extract(ctx context.Context, jobID string, imageData []byte, docType domain.DocumentType, proc processor.Processor, edits Edits) (*domain.ExtractionResult, error) {
	log := s.log.WithDocumentType(string(docType))
	if jobID != "" {
		log = log.WithJobID(jobID)
	}

	img, err := s.decodeAndEdit(imageData, edits)
	// Uploaded bytes are no longer needed once decoded
	storage.ZeroBytes(imageData)
	if err != nil {
		s.publishFailure(ctx, jobID, docType, nil, err)
		return nil, err
	}

	var warnings []string
	if edits.AutoOrient {
		degrees, known := s.advisor.Infer(ctx, img)
		if known {
			img = imagecodec.Rotate(img, float64(orientation.Correction(degrees)))
			log.Debug().Int("orientation", degrees).Msg("auto-orientation applied")
		} else {
			warnings = append(warnings, warningOrientationUnknown)
		}
	}

	path, release, err := s.materialize(img)
	if err != nil {
		s.publishFailure(ctx, jobID, docType, nil, err)
		return nil, err
	}
	defer release()

	log.Info().Str("processor", proc.Name()).Msg("starting document extraction")

	result, err := proc.Process(ctx, path)
	if result != nil {
		result.Warnings = append(warnings, result.Warnings...)
	}
	if err != nil {
		log.Error().Err(err).Str("processor", proc.Name()).Msg("document extraction failed")
		s.publishFailure(ctx, jobID, docType, result, err)
		return result, err
	}

	log.Info().
		Int("fields_extracted", len(result.Fields)).
		Bool("coerced", result.Coerced).
		Int64("duration_ms", result.ProcessingTimeMs).
		Msg("document extraction completed")
	s.publishSuccess(ctx, jobID, result)
	return result, nil
}

func (s *Service) decodeAndEdit(imageData []byte, edits Edits) (image.Image, error) {
	img, _, err := s.codec.Decode(imageData)
	if err != nil {
		return nil, err
	}

	// Flatten first so rotation and cropping keep straight colour
	img = imagecodec.Flatten(img)
	if edits.Rotation != 0 {
		img = imagecodec.Rotate(img, edits.Rotation)
	}
	if edits.Crop != nil {
		if img, err = imagecodec.Crop(img, *edits.Crop); err != nil {
			return nil, err
		}
	}
	return img, nil
}

// materialize writes img as a temp JPEG. release deletes the file.
func (s *Service) materialize(img image.Image) (string, func(), error) {
	data, err := s.codec.EncodeJPEG(img)
	if err != nil {
		return "", nil, err
	}
	defer storage.ZeroBytes(data)

	f, err := os.CreateTemp(s.tempDir, "docverify-*.jpg")
	if err != nil {
		return "", nil, fmt.Errorf("create temp image: %w", err)
	}
	path := f.Name()
	release := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", path).Msg("failed to remove temp image")
		}
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		release()
		return "", nil, fmt.Errorf("write temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", nil, fmt.Errorf("close temp image: %w", err)
	}
	return path, release, nil
}

func (s *Service) publishSuccess(ctx context.Context, jobID string, result *domain.ExtractionResult) {
	keys := make([]string, 0, len(result.Fields))
	for _, f := range fieldOrder(result) {
		if result.Fields[f] != nil {
			keys = append(keys, f)
		}
	}

	event := messaging.ExtractionCompletedEvent{
		JobID:        jobID,
		DocumentType: string(result.DocumentType),
		FieldKeys:    keys,
		Coerced:      result.Coerced,
		Warnings:     len(result.Warnings),
		Stages:       len(result.AuditTrail),
		DurationMs:   result.ProcessingTimeMs,
	}
	if err := s.publisher.Publish(ctx, messaging.EventExtractionCompleted, event); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish extraction event")
	}
}

func (s *Service) publishFailure(ctx context.Context, jobID string, docType domain.DocumentType, result *domain.ExtractionResult, cause error) {
	event := messaging.ExtractionFailedEvent{
		JobID:        jobID,
		DocumentType: string(docType),
		Error:        cause.Error(),
	}
	var stageErr *pipeline.StageError
	if errors.As(cause, &stageErr) {
		event.Stage = stageErr.Stage.String()
	}
	if result != nil {
		event.Stages = len(result.AuditTrail)
		event.DurationMs = result.ProcessingTimeMs
	}
	if err := s.publisher.Publish(ctx, messaging.EventExtractionFailed, event); err != nil {
		s.log.Warn().Err(err).Msg("failed to publish extraction event")
	}
}

// fieldOrder lists result keys with schema fields first, in schema order.
func fieldOrder(result *domain.ExtractionResult) []string {
	seen := make(map[string]bool, len(result.Fields))
	var order []string
	if sch, ok := schema.ByName(string(result.DocumentType)); ok {
		for _, name := range sch.FieldNames() {
			if _, present := result.Fields[name]; present {
				order = append(order, name)
				seen[name] = true
			}
		}
	}
	var extra []string
	for k := range result.Fields {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}
