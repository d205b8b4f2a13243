package domain

import (
	"time"

	"github.com/docverify/docverify-backend/internal/docprocessing/pipeline"
	"github.com/docverify/docverify-backend/internal/docprocessing/reconcile"
)

// DocumentType represents the type of document being processed
type DocumentType string

const (
	DocumentTypeLicense  DocumentType = "license"
	DocumentTypePassport DocumentType = "passport"
)

// DocumentTypes lists the supported document types
var DocumentTypes = []DocumentType{DocumentTypeLicense, DocumentTypePassport}

// Valid reports whether d is a supported document type
func (d DocumentType) Valid() bool {
	return d == DocumentTypeLicense || d == DocumentTypePassport
}

// ExtractionStatus represents the processing state of an extraction job
type ExtractionStatus string

const (
	StatusPending    ExtractionStatus = "pending"
	StatusProcessing ExtractionStatus = "processing"
	StatusCompleted  ExtractionStatus = "completed"
	StatusFailed     ExtractionStatus = "failed"
)

// MRZData is a decoded TD3 machine readable zone
type MRZData struct {
	DocumentCode   string `json:"document_code"`
	IssuingState   string `json:"issuing_state"`
	Surname        string `json:"surname"`
	GivenNames     string `json:"given_names"`
	DocumentNumber string `json:"document_number"`
	Nationality    string `json:"nationality"`
	// Dates are YYMMDD as encoded in the zone
	DateOfBirth    string `json:"date_of_birth"`
	Sex            string `json:"sex"`
	ExpirationDate string `json:"expiration_date"`
	PersonalNumber string `json:"personal_number,omitempty"`
	ChecksValid    bool   `json:"checks_valid"`
}

// ExtractionResult represents the result from processing a single document.
// Fields is nil only when the pipeline aborted; the last record of
// AuditTrail then carries the error.
type ExtractionResult struct {
	DocumentType DocumentType   `json:"document_type"`
	Fields       map[string]any `json:"fields"`
	// Coerced is false when Fields is the raw cross-validation output
	Coerced          bool                            `json:"coerced"`
	CoercionError    string                          `json:"coercion_error,omitempty"`
	Warnings         []string                        `json:"warnings,omitempty"`
	Provenance       map[string]reconcile.Provenance `json:"provenance,omitempty"`
	MRZ              *MRZData                        `json:"mrz,omitempty"`
	AuditTrail       []pipeline.StepRecord           `json:"audit_trail"`
	ProcessingTimeMs int64                           `json:"processing_time_ms"`
}

// ExtractionJob represents an asynchronous extraction
type ExtractionJob struct {
	JobID        string            `json:"job_id"`
	DocumentType DocumentType      `json:"document_type"`
	Status       ExtractionStatus  `json:"status"`
	Result       *ExtractionResult `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// OrientationReading is the advisor's answer for one image
type OrientationReading struct {
	// Orientation is the reported degrees, nil when unknown
	Orientation *int `json:"orientation"`
	Known       bool `json:"known"`
	// Rotation is the signed clockwise correction to apply
	Rotation int `json:"rotation"`
}
