package processor

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/docverify/docverify-backend/internal/docprocessing/domain"
	"github.com/docverify/docverify-backend/internal/docprocessing/schema"
)

// ErrInvalidMRZ is returned when the zone is not two 44 character TD3 lines.
var ErrInvalidMRZ = errors.New("mrz: not a valid TD3 zone")

var checkWeights = [3]int{7, 3, 1}

// DecodeTD3 decodes a passport MRZ (ICAO 9303 part 4).
// Line 1: P<ISSUING_STATE SURNAME<<GIVEN<NAMES...
// Line 2: DOC_NUMBER CHECK NATIONALITY DOB CHECK SEX EXPIRY CHECK PERSONAL_NUMBER CHECK COMPOSITE
//
// Check digit mismatches are returned as warnings, not errors.
func DecodeTD3(line1, line2 string) (*domain.MRZData, []string, error) {
	if !schema.ValidMRZLine(line1) || !schema.ValidMRZLine(line2) {
		return nil, nil, ErrInvalidMRZ
	}

	var warnings []string
	data := &domain.MRZData{
		DocumentCode: cleanMRZ(line1[0:2]),
		IssuingState: cleanMRZ(line1[2:5]),
	}
	if line1[0] != 'P' {
		warnings = append(warnings, fmt.Sprintf("mrz: document code %q is not a passport", data.DocumentCode))
	}

	nameParts := strings.SplitN(line1[5:], "<<", 2)
	data.Surname = cleanMRZName(nameParts[0])
	if len(nameParts) == 2 {
		data.GivenNames = cleanMRZName(nameParts[1])
	}

	// Line 2: document number (0-8), check (9), nationality (10-12),
	// DOB (13-18), check (19), sex (20), expiry (21-26), check (27),
	// personal number (28-41), check (42), composite check (43)
	data.DocumentNumber = cleanMRZ(line2[0:9])
	data.Nationality = cleanMRZ(line2[10:13])
	data.DateOfBirth = line2[13:19]
	data.Sex = cleanMRZ(line2[20:21])
	data.ExpirationDate = line2[21:27]
	data.PersonalNumber = cleanMRZ(line2[28:42])

	if !isValidMRZDate(data.DateOfBirth) {
		warnings = append(warnings, fmt.Sprintf("mrz: date of birth %q is not YYMMDD", data.DateOfBirth))
	}
	if !isValidMRZDate(data.ExpirationDate) {
		warnings = append(warnings, fmt.Sprintf("mrz: expiration date %q is not YYMMDD", data.ExpirationDate))
	}
	if data.Sex != "M" && data.Sex != "F" && data.Sex != "" {
		warnings = append(warnings, fmt.Sprintf("mrz: sex %q is not M, F or unspecified", data.Sex))
	}

	checks := []struct {
		name  string
		field string
		digit byte
		// a personal number that is entirely filler may carry '<' as its check
		fillerOK bool
	}{
		{name: "document number", field: line2[0:9], digit: line2[9]},
		{name: "date of birth", field: line2[13:19], digit: line2[19]},
		{name: "expiration date", field: line2[21:27], digit: line2[27]},
		{name: "personal number", field: line2[28:42], digit: line2[42], fillerOK: true},
		{name: "composite", field: line2[0:10] + line2[13:20] + line2[21:43], digit: line2[43]},
	}

	data.ChecksValid = true
	for _, c := range checks {
		if c.fillerOK && c.digit == '<' && strings.Trim(c.field, "<") == "" {
			continue
		}
		want := CheckDigit(c.field)
		if c.digit != byte('0'+want) {
			data.ChecksValid = false
			warnings = append(warnings, fmt.Sprintf("mrz: %s check digit is %q, computed %d", c.name, c.digit, want))
		}
	}

	return data, warnings, nil
}

// CheckDigit computes the ICAO 9303 check digit of s: characters weighted
// 7, 3, 1 in turn, with digits at face value, A-Z as 10-35 and '<' as 0.
func CheckDigit(s string) int {
	sum := 0
	for i := 0; i < len(s); i++ {
		sum += charValue(s[i]) * checkWeights[i%3]
	}
	return sum % 10
}

func charValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return 0
}

// Helper functions

func cleanMRZ(s string) string {
	return strings.TrimRight(strings.ReplaceAll(s, "<", ""), " ")
}

func cleanMRZName(s string) string {
	// Replace single < with space (name separator), remove trailing filler
	cleaned := strings.TrimRight(s, "< ")
	cleaned = strings.ReplaceAll(cleaned, "<", " ")
	return strings.TrimSpace(cleaned)
}

func isValidMRZDate(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, c := range s {
		if !unicode.IsDigit(c) {
			return false
		}
	}
	return true
}
