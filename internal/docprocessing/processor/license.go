package processor

import (
	"fmt"

	"github.com/docverify/docverify-backend/internal/docprocessing/domain"
	"github.com/docverify/docverify-backend/internal/docprocessing/pipeline"
	"github.com/docverify/docverify-backend/internal/docprocessing/schema"
	"github.com/docverify/docverify-backend/pkg/logger"
)

const licenseRawPrompt = "Extract all the information from this image. " +
	"Transcribe every line of text exactly as printed, including numbers, codes and labels."

// LicenseTemplate is the driver's license pipeline template.
func LicenseTemplate() pipeline.Template {
	return pipeline.Template{
		DocumentType:     string(domain.DocumentTypeLicense),
		Schema:           schema.License,
		StructuredPrompt: licenseStructuredPrompt(schema.License.PromptJSON()),
		RawPrompt:        licenseRawPrompt,
		ValidationPrompt: func(structuredJSON, rawText string) string {
			return licenseValidationPrompt(schema.License.PromptJSON(), structuredJSON, rawText)
		},
	}
}

// NewLicenseProcessor creates the driver's license processor.
func NewLicenseProcessor(pipe *pipeline.Pipeline, log *logger.Logger) *Driver {
	return &Driver{
		name:     "license",
		docType:  domain.DocumentTypeLicense,
		template: LicenseTemplate(),
		pipe:     pipe,
		log:      log.WithComponent("processor"),
	}
}

func licenseStructuredPrompt(schemaJSON string) string {
	return fmt.Sprintf(`Extract the following fields from the driver's license and provide them in a structured JSON format:
- Full Name
- Date of Birth
- License Number
- Address (Street, City, State, Zip Code)
- Sex
- Height
- Weight
- Eye Color
- Hair Color
- Issuance Date
- Expiration Date
- License Class, Endorsements and Restrictions

The JSON object must follow this schema:
%s

Ensure that the JSON output is structured correctly and the fields are properly filled.
Use null for any field that is not printed on the license.
Do not hallucinate information. Only provide data that can be verified from the image.`, schemaJSON)
}

func licenseValidationPrompt(schemaJSON, structuredJSON, rawText string) string {
	return fmt.Sprintf(`You are an expert in US driver's license validation. Your task is to validate and correct information extracted from a driver's license image, accommodating variations across different states.

Given the extracted JSON and the raw text from the image:
1. Compare every field of the extracted JSON with the raw text.
2. Where they disagree, prefer the raw text evidence and correct the field.
3. Fill fields that are missing from the extracted JSON but evidenced by the raw text.
4. Set a field to null when neither source provides evidence for it.

Extracted JSON:
%s

Raw Text from Image:
%s

Respond with a single JSON object that conforms to this schema:
%s`, structuredJSON, rawText, schemaJSON)
}
