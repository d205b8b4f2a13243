package processor

import (
	"context"

	"github.com/docverify/docverify-backend/internal/docprocessing/domain"
)

// Processor defines the interface for document data extraction.
type Processor interface {
	// CanProcess returns true if this processor handles the given document type
	CanProcess(docType domain.DocumentType) bool

	// Process extracts fields from the JPEG at imagePath. The returned result
	// is non-nil even on error and carries the partial audit trail.
	Process(ctx context.Context, imagePath string) (*domain.ExtractionResult, error)

	// Name returns the processor name for logging/audit
	Name() string
}

// Registry holds all registered processors and dispatches to the right one
type Registry struct {
	processors []Processor
}

// NewRegistry creates a new processor registry
func NewRegistry(processors ...Processor) *Registry {
	return &Registry{processors: processors}
}

// FindProcessor returns the first processor that can handle the given document type
func (r *Registry) FindProcessor(docType domain.DocumentType) Processor {
	for _, p := range r.processors {
		if p.CanProcess(docType) {
			return p
		}
	}
	return nil
}

// Supports reports whether any processor handles docType
func (r *Registry) Supports(docType domain.DocumentType) bool {
	return r.FindProcessor(docType) != nil
}
