package processor_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docverify/docverify-backend/internal/docprocessing/domain"
	"github.com/docverify/docverify-backend/internal/docprocessing/imagecodec"
	"github.com/docverify/docverify-backend/internal/docprocessing/modelclient"
	"github.com/docverify/docverify-backend/internal/docprocessing/pipeline"
	"github.com/docverify/docverify-backend/internal/docprocessing/processor"
	"github.com/docverify/docverify-backend/pkg/config"
	"github.com/docverify/docverify-backend/pkg/logger"
	"github.com/docverify/docverify-backend/pkg/testutil"
)

func newPipeline(t *testing.T, srv *testutil.ModelServer) *pipeline.Pipeline {
	t.Helper()
	cfg := srv.Config()
	client, err := modelclient.New(cfg, logger.Nop())
	require.NoError(t, err)
	settings := pipeline.SettingsFromConfig(cfg, &config.PipelineConfig{
		StructuredTemperature: 0.1,
		RawTemperature:        0.1,
		ValidationTemperature: 0.2,
	})
	return pipeline.New(client, imagecodec.New(imagecodec.DefaultQuality), settings, logger.Nop())
}

func cardPath(t *testing.T) string {
	return testutil.WriteJPEG(t, "doc.jpg", testutil.DocumentImage(80, 50))
}

func TestRegistry_FindProcessor(t *testing.T) {
	srv := testutil.NewModelServer(t)
	pipe := newPipeline(t, srv)
	reg := processor.NewRegistry(
		processor.NewLicenseProcessor(pipe, logger.Nop()),
		processor.NewPassportProcessor(pipe, logger.Nop()),
	)

	tests := []struct {
		docType domain.DocumentType
		want    string
	}{
		{domain.DocumentTypeLicense, "license"},
		{domain.DocumentTypePassport, "passport"},
		{domain.DocumentType("visa"), ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.docType), func(t *testing.T) {
			p := reg.FindProcessor(tt.docType)
			if tt.want == "" {
				assert.Nil(t, p)
				assert.False(t, reg.Supports(tt.docType))
				return
			}
			require.NotNil(t, p)
			assert.Equal(t, tt.want, p.Name())
		})
	}
}

func TestLicense_CrossValidationAddsEvidencedField(t *testing.T) {
	structured := map[string]any{
		"full_name":       "JOHN A SAMPLE",
		"date_of_birth":   "03/14/1985",
		"license_number":  "S1234567",
		"expiration_date": "03/14/2030",
	}
	validated := map[string]any{
		"full_name":       "JOHN A SAMPLE",
		"date_of_birth":   "03/14/1985",
		"license_number":  "S1234567",
		"expiration_date": "03/14/2030",
		"issuance_date":   "01/01/2020",
		"address":         map[string]any{"street": "123 MAIN ST", "city": "SPRINGFIELD", "state": "IL", "zip_code": "62701"},
	}
	srv := testutil.NewModelServer(t,
		testutil.ReplyJSON(structured),
		testutil.Reply("ILLINOIS DRIVER'S LICENSE\nDL S1234567\nJOHN A SAMPLE\n123 MAIN ST\nSPRINGFIELD IL 62701\nDOB 03/14/1985\nISS 01/01/2020\nEXP 03/14/2030"),
		testutil.ReplyJSON(validated),
	)
	p := processor.NewLicenseProcessor(newPipeline(t, srv), logger.Nop())

	result, err := p.Process(testutil.DefaultTestContext(t), cardPath(t))
	require.NoError(t, err)

	assert.Equal(t, domain.DocumentTypeLicense, result.DocumentType)
	assert.True(t, result.Coerced)
	assert.Empty(t, result.CoercionError)
	assert.Equal(t, "01/01/2020", result.Fields["issuance_date"])
	assert.NotContains(t, structured, "issuance_date")

	prov := result.Provenance["issuance_date"]
	assert.Equal(t, pipeline.SourceCrossValidation, prov.Source)
	assert.True(t, prov.Corroborated)

	// every schema field is present, unmatched ones as explicit null
	for _, name := range []string{"sex", "height", "weight", "eye_color", "hair_color", "license_class"} {
		v, ok := result.Fields[name]
		assert.True(t, ok, name)
		assert.Nil(t, v, name)
	}
	assert.Empty(t, result.Warnings)
	assert.Len(t, result.AuditTrail, 4)

	reqs := srv.Requests()
	require.Len(t, reqs, 3)
	assert.Contains(t, reqs[0].Text(), `"license_number"`)
	assert.Contains(t, reqs[0].Text(), "Do not hallucinate information")
	assert.Nil(t, reqs[0].ResponseFormat["schema"])
	assert.Contains(t, reqs[2].Text(), "ISS 01/01/2020")
}

func TestLicense_ProvenanceUsesSchemaNames(t *testing.T) {
	srv := testutil.NewModelServer(t,
		testutil.ReplyJSON(map[string]any{"Full Name": "JOHN A SAMPLE", "license_number": "S1234567"}),
		testutil.Reply("DL S1234567\nJOHN A SAMPLE\nISS 01/01/2020"),
		testutil.ReplyJSON(map[string]any{
			"Full Name":      "JOHN A SAMPLE",
			"License Number": "S1234567",
			"Issue Date":     "01/01/2020",
		}),
	)
	p := processor.NewLicenseProcessor(newPipeline(t, srv), logger.Nop())

	result, err := p.Process(testutil.DefaultTestContext(t), cardPath(t))
	require.NoError(t, err)

	require.True(t, result.Coerced)
	assert.Equal(t, "01/01/2020", result.Fields["issuance_date"])

	for _, key := range []string{"Full Name", "License Number", "Issue Date"} {
		assert.NotContains(t, result.Provenance, key)
	}
	issued := result.Provenance["issuance_date"]
	assert.Equal(t, pipeline.SourceCrossValidation, issued.Source)
	assert.True(t, issued.Corroborated)

	name := result.Provenance["full_name"]
	assert.Equal(t, []string{pipeline.SourceStructured}, name.AgreedBy)
	assert.True(t, name.Corroborated)

	// every provenance key is a field of the result
	for key := range result.Provenance {
		assert.Contains(t, result.Fields, key)
	}
}

func TestLicense_CoercionFailureKeepsRawFields(t *testing.T) {
	validated := map[string]any{
		"full_name":      "JOHN A SAMPLE",
		"license_number": "S1234567",
		"address":        "123 MAIN ST, SPRINGFIELD IL",
	}
	srv := testutil.NewModelServer(t,
		testutil.ReplyJSON(map[string]any{"full_name": "JOHN A SAMPLE"}),
		testutil.Reply("JOHN A SAMPLE"),
		testutil.ReplyJSON(validated),
	)
	p := processor.NewLicenseProcessor(newPipeline(t, srv), logger.Nop())

	result, err := p.Process(testutil.DefaultTestContext(t), cardPath(t))
	require.NoError(t, err)

	assert.False(t, result.Coerced)
	assert.Contains(t, result.CoercionError, "address")
	assert.Equal(t, validated, result.Fields)
}

func TestLicense_MissingRequiredFieldWarns(t *testing.T) {
	srv := testutil.NewModelServer(t,
		testutil.ReplyJSON(map[string]any{"full_name": "JOHN A SAMPLE"}),
		testutil.Reply("JOHN A SAMPLE"),
		testutil.ReplyJSON(map[string]any{"full_name": "JOHN A SAMPLE", "date_of_birth": "N/A"}),
	)
	p := processor.NewLicenseProcessor(newPipeline(t, srv), logger.Nop())

	result, err := p.Process(testutil.DefaultTestContext(t), cardPath(t))
	require.NoError(t, err)

	assert.True(t, result.Coerced)
	assert.Nil(t, result.Fields["date_of_birth"])
	assert.Contains(t, result.Warnings, "required field date_of_birth has no value")
	assert.Contains(t, result.Warnings, "required field license_number has no value")
}

func TestLicense_PipelineFailure(t *testing.T) {
	srv := testutil.NewModelServer(t,
		testutil.ReplyJSON(map[string]any{"full_name": "JOHN A SAMPLE"}),
		testutil.ReplyStatus(http.StatusInternalServerError, "overloaded"),
	)
	p := processor.NewLicenseProcessor(newPipeline(t, srv), logger.Nop())

	result, err := p.Process(testutil.DefaultTestContext(t), cardPath(t))
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Nil(t, result.Fields)
	require.Len(t, result.AuditTrail, 3)
	assert.Equal(t, pipeline.StepFailed, result.AuditTrail[2].Status)
}

func passportFields(line1, line2, number string) map[string]any {
	return map[string]any{
		"full_name":       "ANNA MARIA ERIKSSON",
		"date_of_birth":   "12 AUG 1974",
		"passport_number": number,
		"nationality":     "UTOPIAN",
		"expiration_date": "15 APR 2012",
		"sex":             "F",
		"mrz":             line1 + "\n" + line2,
	}
}

func TestPassport_DecodesMRZ(t *testing.T) {
	srv := testutil.NewModelServer(t,
		testutil.ReplyJSON(map[string]any{"full_name": "ANNA MARIA ERIKSSON"}),
		testutil.Reply("PASSPORT\nERIKSSON\nANNA MARIA\n"+testutil.SpecimenMRZLine1+"\n"+testutil.SpecimenMRZLine2),
		testutil.ReplyJSON(passportFields(testutil.SpecimenMRZLine1, testutil.SpecimenMRZLine2, "L898902C3")),
	)
	p := processor.NewPassportProcessor(newPipeline(t, srv), logger.Nop())

	result, err := p.Process(testutil.DefaultTestContext(t), cardPath(t))
	require.NoError(t, err)

	require.True(t, result.Coerced, result.CoercionError)
	assert.Equal(t, map[string]any{"line1": testutil.SpecimenMRZLine1, "line2": testutil.SpecimenMRZLine2}, result.Fields["mrz"])
	require.NotNil(t, result.MRZ)
	assert.True(t, result.MRZ.ChecksValid)
	assert.Equal(t, "L898902C3", result.MRZ.DocumentNumber)
	assert.Empty(t, result.Warnings)
	assert.True(t, result.Provenance["mrz"].Corroborated)

	reqs := srv.Requests()
	require.Len(t, reqs, 3)
	assert.NotNil(t, reqs[0].ResponseFormat["schema"])
	assert.NotNil(t, reqs[2].ResponseFormat["schema"])
	assert.Contains(t, reqs[0].Text(), "exactly 44 characters")
}

func TestPassport_NumberMismatchWarns(t *testing.T) {
	srv := testutil.NewModelServer(t,
		testutil.ReplyJSON(map[string]any{}),
		testutil.Reply("PASSPORT"),
		testutil.ReplyJSON(passportFields(testutil.SpecimenMRZLine1, testutil.SpecimenMRZLine2, "L8989O2C3")),
	)
	p := processor.NewPassportProcessor(newPipeline(t, srv), logger.Nop())

	result, err := p.Process(testutil.DefaultTestContext(t), cardPath(t))
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "does not match MRZ document number")
}
