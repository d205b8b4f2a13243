package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventExtractionCompleted = "document.extraction.completed"
	EventExtractionFailed    = "document.extraction.failed"
)

// Exchange names
const (
	ExchangeDocumentEvents = "document.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Document Events. Payloads carry field names, never field values.

// ExtractionCompletedEvent is published when a document was extracted
type ExtractionCompletedEvent struct {
	JobID        string   `json:"job_id,omitempty"`
	DocumentType string   `json:"document_type"`
	FieldKeys    []string `json:"field_keys"`
	Coerced      bool     `json:"coerced"`
	Warnings     int      `json:"warnings"`
	Stages       int      `json:"stages"`
	DurationMs   int64    `json:"duration_ms"`
}

// ExtractionFailedEvent is published when the pipeline aborted
type ExtractionFailedEvent struct {
	JobID        string `json:"job_id,omitempty"`
	DocumentType string `json:"document_type"`
	Stage        string `json:"stage,omitempty"`
	Error        string `json:"error"`
	Stages       int    `json:"stages"`
	DurationMs   int64  `json:"duration_ms"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.New().String()
}
