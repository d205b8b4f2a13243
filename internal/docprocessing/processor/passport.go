package processor

import (
	"fmt"
	"strings"

	"github.com/docverify/docverify-backend/internal/docprocessing/domain"
	"github.com/docverify/docverify-backend/internal/docprocessing/pipeline"
	"github.com/docverify/docverify-backend/internal/docprocessing/schema"
	"github.com/docverify/docverify-backend/pkg/logger"
)

const (
	exampleMRZLine1 = "P<USASMITH<<JOHN<<<<<<<<<<<<<<<<<<<<<<<<<<<<"
	exampleMRZLine2 = "1234567890USA6802034M1509048<<<<<<<<<<<<<<02"
)

const passportRawPrompt = `Extract and list all text visible in this passport image, line by line. Include everything you can see, such as:
- All text on the passport page
- Any numbers, codes, or identifiers
- Text in different fonts or sizes
- Text orientation and placement

Transcribe the Machine Readable Zone (MRZ) at the bottom of the page exactly as it appears.
Provide the extracted text as plain text without any formatting or markdown syntax.
Do not interpret or structure the information, just provide a raw, detailed transcription of all visible text.`

// PassportTemplate is the passport pipeline template.
func PassportTemplate() pipeline.Template {
	return pipeline.Template{
		DocumentType:     string(domain.DocumentTypePassport),
		Schema:           schema.Passport,
		StructuredPrompt: passportStructuredPrompt(schema.Passport.PromptJSON()),
		RawPrompt:        passportRawPrompt,
		ValidationPrompt: func(structuredJSON, rawText string) string {
			return passportValidationPrompt(schema.Passport.PromptJSON(), structuredJSON, rawText)
		},
		SchemaInResponseFormat: true,
	}
}

// NewPassportProcessor creates the passport processor. A valid MRZ is decoded
// and checked against the extracted fields.
func NewPassportProcessor(pipe *pipeline.Pipeline, log *logger.Logger) *Driver {
	return &Driver{
		name:     "passport",
		docType:  domain.DocumentTypePassport,
		template: PassportTemplate(),
		pipe:     pipe,
		inspect:  inspectMRZ,
		log:      log.WithComponent("processor"),
	}
}

func passportStructuredPrompt(schemaJSON string) string {
	return fmt.Sprintf(`Analyze this passport image and extract the following information:
- Full name of the passport holder
- Date of birth (in format: DD MMM YYYY)
- Passport number
- Nationality
- Place of birth (if visible)
- Issuance date (in format: DD MMM YYYY)
- Expiration date (in format: DD MMM YYYY)
- Sex (M or F)
- Authority (issuing authority)
- MRZ (Machine Readable Zone)

For the MRZ:
1. Provide the exact two lines of 44 characters each.
2. Do not interpret the MRZ, just provide the raw text.
3. Ensure each line is exactly 44 characters long.
4. The MRZ should only contain uppercase letters, numbers, and '<' symbols.

Provide the extracted information in a JSON format strictly adhering to the following schema:
%s

Example MRZ format:
"mrz": {
    "line1": "%s",
    "line2": "%s"
}

Important:
- Extract only the information visible in the image.
- Do not invent or assume any information not present.
- If a field is not visible or not applicable, use null for optional fields.
- Ensure all dates are in DD MMM YYYY format.`, schemaJSON, exampleMRZLine1, exampleMRZLine2)
}

func passportValidationPrompt(schemaJSON, structuredJSON, rawText string) string {
	return fmt.Sprintf(`You are an expert in passport validation. Your task is to validate and correct the information extracted from a passport image. Use the following step-by-step approach:

1. Analyze the extracted JSON:
%s

2. Compare it with the raw text extraction:
%s

3. For each field in the JSON:
   a. Check if it matches the information in the raw text.
   b. Verify if the format is correct (dates in DD MMM YYYY format).
   c. Where they disagree, prefer the raw text evidence.

4. Pay special attention to the MRZ (Machine Readable Zone):
   - It consists of two lines, each exactly 44 characters long.
   - It only contains uppercase letters, numbers, and '<' symbols.
   - The first line starts with 'P<' followed by the issuing country code.
   - The second line contains the passport number, date of birth, and expiration date.

Example of a valid MRZ:
%s

5. Fill fields evidenced only by the raw text.

Remember:
- Only include information that can be verified from the provided data.
- If a field cannot be determined, use null for optional fields.

Respond with a single JSON object that conforms to this schema:
%s`, structuredJSON, rawText, strings.Join([]string{exampleMRZLine1, exampleMRZLine2}, "\n"), schemaJSON)
}

// inspectMRZ decodes the MRZ of a coerced passport result and turns check
// digit failures and disagreements into warnings.
func inspectMRZ(result *domain.ExtractionResult) {
	if !result.Coerced {
		return
	}
	zone, ok := result.Fields["mrz"].(map[string]any)
	if !ok {
		return
	}
	line1, _ := zone["line1"].(string)
	line2, _ := zone["line2"].(string)

	data, warnings, err := DecodeTD3(line1, line2)
	if err != nil {
		result.Warnings = append(result.Warnings, err.Error())
		return
	}
	result.MRZ = data
	result.Warnings = append(result.Warnings, warnings...)

	if number, ok := result.Fields["passport_number"].(string); ok && data.DocumentNumber != "" {
		if normalizeDocNumber(number) != data.DocumentNumber {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("passport number %q does not match MRZ document number %q", number, data.DocumentNumber))
		}
	}
}

func normalizeDocNumber(s string) string {
	return strings.ToUpper(strings.NewReplacer(" ", "", "-", "", "<", "").Replace(s))
}
