package processor

import (
	"context"

	"github.com/docverify/docverify-backend/internal/docprocessing/domain"
	"github.com/docverify/docverify-backend/internal/docprocessing/pipeline"
	"github.com/docverify/docverify-backend/pkg/logger"
)

// Driver binds one document template to the shared pipeline and shapes the
// cross-validation output into the template's schema.
type Driver struct {
	name     string
	docType  domain.DocumentType
	template pipeline.Template
	pipe     *pipeline.Pipeline
	// inspect runs on a finalized result, e.g. to decode the MRZ
	inspect func(*domain.ExtractionResult)
	log     *logger.Logger
}

func (d *Driver) Name() string {
	return d.name
}

func (d *Driver) CanProcess(docType domain.DocumentType) bool {
	return docType == d.docType
}

// Template returns the driver's pipeline template.
func (d *Driver) Template() pipeline.Template {
	return d.template
}

func (d *Driver) Process(ctx context.Context, imagePath string) (*domain.ExtractionResult, error) {
	out, err := d.pipe.Process(ctx, imagePath, d.template)

	result := &domain.ExtractionResult{DocumentType: d.docType}
	if out != nil {
		result.AuditTrail = out.Trail
		result.ProcessingTimeMs = out.Duration.Milliseconds()
	}
	if err != nil {
		return result, err
	}

	result.Provenance = out.Provenance
	d.finalize(result, out.Validated)
	if d.inspect != nil {
		d.inspect(result)
	}

	d.log.Info().
		Str("processor", d.name).
		Bool("coerced", result.Coerced).
		Int("warnings", len(result.Warnings)).
		Int64("processing_time_ms", result.ProcessingTimeMs).
		Msg("document processed")
	return result, nil
}

// finalize coerces validated against the schema. A coercion failure keeps the
// raw mapping and records the error instead of failing the document.
func (d *Driver) finalize(result *domain.ExtractionResult, validated map[string]any) {
	coerced, err := d.template.Schema.Coerce(validated)
	if err != nil {
		d.log.Warn().Err(err).Str("processor", d.name).Msg("schema coercion failed, returning raw fields")
		result.Fields = validated
		result.Coerced = false
		result.CoercionError = err.Error()
		return
	}
	result.Fields = coerced.Fields
	result.Coerced = true
	result.Warnings = append(result.Warnings, coerced.Warnings...)
}
