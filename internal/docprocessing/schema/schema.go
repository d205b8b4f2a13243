// Package schema declares the target shape of each supported identity document
// and converts model output into that shape.
package schema

import (
	"regexp"
	"strings"
)

// Kind is the value type of a schema field.
type Kind string

const (
	KindString Kind = "string"
	KindObject Kind = "object"
	// KindMRZ is an object of two 44 character machine readable lines
	KindMRZ Kind = "mrz"
)

// MRZLineLength is the length of each TD3 (passport) MRZ line.
const MRZLineLength = 44

var mrzLinePattern = regexp.MustCompile(`^[A-Z0-9<]{44}$`)

// Field is one named, typed entry of a document schema. Required fields must
// be present in every result, possibly as explicit null.
type Field struct {
	Name        string
	Kind        Kind
	Description string
	Required    bool
	Children    []Field
	// Aliases are alternative keys the model is known to emit for this field
	Aliases []string
}

// Schema is an ordered set of fields.
type Schema struct {
	Name   string
	Title  string
	Fields []Field

	compiled lazySchema
}

// Field returns the top-level field called name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the top-level field names in schema order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// RequiredFields returns the names of required top-level fields.
func (s *Schema) RequiredFields() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// ValidMRZLine reports whether line is exactly 44 characters of A-Z, 0-9 and '<'.
func ValidMRZLine(line string) bool {
	return mrzLinePattern.MatchString(line)
}

// NormalizeKey maps a model supplied key such as "Date of Birth" to date_of_birth.
func NormalizeKey(key string) string {
	var sb strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(key)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			underscore = false
		default:
			if !underscore && sb.Len() > 0 {
				sb.WriteByte('_')
				underscore = true
			}
		}
	}
	return strings.TrimSuffix(sb.String(), "_")
}

func str(name, description string, required bool, aliases ...string) Field {
	return Field{Name: name, Kind: KindString, Description: description, Required: required, Aliases: aliases}
}

// License is the canonical US driver's license schema. Weight is optional
// because many states do not print it.
var License = &Schema{
	Name:  "license",
	Title: "DriverLicense",
	Fields: []Field{
		str("full_name", "Full name of the license holder as printed", true, "name", "holder_name"),
		str("date_of_birth", "Date of birth as printed on the license", true, "dob", "birth_date"),
		str("license_number", "Driver's license number", true, "dl_number", "dln", "license_no", "driver_license_number"),
		{
			Name:        "address",
			Kind:        KindObject,
			Description: "Residential address printed on the license",
			Children: []Field{
				str("street", "Street address including unit", false, "street_address", "address_line_1"),
				str("city", "City", false),
				str("state", "State or territory", false),
				str("zip_code", "ZIP or postal code", false, "zip", "postal_code", "zipcode"),
			},
		},
		str("sex", "Sex as printed (M, F or X)", false, "gender", "sex_gender"),
		str("height", "Height as printed, e.g. 5'-10\"", false, "hgt"),
		str("weight", "Weight as printed, e.g. 180 lb", false, "wgt"),
		str("eye_color", "Eye color code or name", false, "eyes"),
		str("hair_color", "Hair color code or name", false, "hair"),
		str("issuance_date", "Date the license was issued", false, "issue_date", "date_of_issue", "iss", "issued"),
		str("expiration_date", "Date the license expires", true, "expiry_date", "exp", "expires", "date_of_expiry"),
		str("license_class", "License class, e.g. C", false, "class"),
		str("endorsements", "Endorsement codes, NONE if printed as none", false, "end"),
		str("restrictions", "Restriction codes, NONE if printed as none", false, "rstr", "restr"),
	},
}

// Passport is the canonical passport data page schema. Place of birth is
// optional because several countries omit it.
var Passport = &Schema{
	Name:  "passport",
	Title: "PassportData",
	Fields: []Field{
		str("full_name", "Full name of the passport holder", true, "name"),
		str("date_of_birth", "Date of birth (DD MMM YYYY)", true, "dob", "birth_date"),
		str("passport_number", "Passport number", true, "passport_no", "document_number"),
		str("nationality", "Nationality", true),
		str("place_of_birth", "Place of birth", false, "birth_place"),
		str("issuance_date", "Date of issuance (DD MMM YYYY)", false, "issue_date", "date_of_issue"),
		str("expiration_date", "Expiration date (DD MMM YYYY)", true, "expiry_date", "date_of_expiry"),
		str("sex", "Sex (M or F)", true, "gender"),
		str("authority", "Issuing authority", false, "issuing_authority"),
		{
			Name:        "mrz",
			Kind:        KindMRZ,
			Description: "Machine Readable Zone data",
			Aliases:     []string{"machine_readable_zone"},
			Children: []Field{
				{Name: "line1", Kind: KindString, Description: "First line of MRZ (44 characters)", Required: true},
				{Name: "line2", Kind: KindString, Description: "Second line of MRZ (44 characters)", Required: true},
			},
		},
	},
}

// ByName returns the schema for a document type name.
func ByName(name string) (*Schema, bool) {
	switch name {
	case License.Name:
		return License, true
	case Passport.Name:
		return Passport, true
	}
	return nil, false
}
