package schema_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docverify/docverify-backend/internal/docprocessing/schema"
	"github.com/docverify/docverify-backend/pkg/testutil"
)

func TestRequiredFields(t *testing.T) {
	assert.Equal(t,
		[]string{"full_name", "date_of_birth", "license_number", "expiration_date"},
		schema.License.RequiredFields())
	assert.Equal(t,
		[]string{"full_name", "date_of_birth", "passport_number", "nationality", "expiration_date", "sex"},
		schema.Passport.RequiredFields())

	weight, ok := schema.License.Field("weight")
	require.True(t, ok)
	assert.False(t, weight.Required)

	pob, ok := schema.Passport.Field("place_of_birth")
	require.True(t, ok)
	assert.False(t, pob.Required)
}

func TestByName(t *testing.T) {
	s, ok := schema.ByName("passport")
	require.True(t, ok)
	assert.Same(t, schema.Passport, s)

	_, ok = schema.ByName("visa")
	assert.False(t, ok)
}

func TestPromptJSON(t *testing.T) {
	text := schema.Passport.PromptJSON()

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &doc))
	assert.Equal(t, "PassportData", doc["title"])

	props := doc["properties"].(map[string]any)
	for _, name := range schema.Passport.FieldNames() {
		assert.Contains(t, props, name)
	}
	mrz := props["mrz"].(map[string]any)["properties"].(map[string]any)
	assert.EqualValues(t, 44, mrz["line1"].(map[string]any)["minLength"])
	assert.Contains(t, text, "Date of birth (DD MMM YYYY)")
}

func TestNormalizeKey(t *testing.T) {
	tests := map[string]string{
		"Full Name":      "full_name",
		"Date of Birth":  "date_of_birth",
		"Sex/Gender":     "sex_gender",
		" Zip Code ":     "zip_code",
		"license_number": "license_number",
		"Eye-Color:":     "eye_color",
	}
	for in, want := range tests {
		assert.Equal(t, want, schema.NormalizeKey(in), in)
	}
}

func TestValidMRZLine(t *testing.T) {
	assert.True(t, schema.ValidMRZLine(testutil.SpecimenMRZLine1))
	assert.True(t, schema.ValidMRZLine(testutil.SpecimenMRZLine2))
	assert.False(t, schema.ValidMRZLine(testutil.SpecimenMRZLine1[:43]))
	assert.False(t, schema.ValidMRZLine(strings.ToLower(testutil.SpecimenMRZLine1)))
	assert.False(t, schema.ValidMRZLine(strings.Replace(testutil.SpecimenMRZLine2, "<", " ", 1)))
}
