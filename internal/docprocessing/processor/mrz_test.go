package processor_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/docverify/docverify-backend/internal/docprocessing/processor"
	"github.com/docverify/docverify-backend/pkg/testutil"
)

func TestDecodeTD3_Specimen(t *testing.T) {
	data, warnings, err := processor.DecodeTD3(testutil.SpecimenMRZLine1, testutil.SpecimenMRZLine2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	tests := []struct {
		key  string
		got  string
		want string
	}{
		{"document_code", data.DocumentCode, "P"},
		{"issuing_state", data.IssuingState, "UTO"},
		{"surname", data.Surname, "ERIKSSON"},
		{"given_names", data.GivenNames, "ANNA MARIA"},
		{"document_number", data.DocumentNumber, "L898902C3"},
		{"nationality", data.Nationality, "UTO"},
		{"date_of_birth", data.DateOfBirth, "740812"},
		{"sex", data.Sex, "F"},
		{"expiration_date", data.ExpirationDate, "120415"},
		{"personal_number", data.PersonalNumber, "ZE184226B"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.key, tt.got, tt.want)
			}
		})
	}

	if !data.ChecksValid {
		t.Error("ChecksValid = false, want true")
	}
}

func TestDecodeTD3_CheckDigitMismatch(t *testing.T) {
	// document number check digit 6 changed to 7
	line2 := "L898902C37" + testutil.SpecimenMRZLine2[10:]

	data, warnings, err := processor.DecodeTD3(testutil.SpecimenMRZLine1, line2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.ChecksValid {
		t.Error("ChecksValid = true, want false")
	}

	var sawDocNumber, sawComposite bool
	for _, w := range warnings {
		sawDocNumber = sawDocNumber || strings.Contains(w, "document number check digit")
		sawComposite = sawComposite || strings.Contains(w, "composite check digit")
	}
	if !sawDocNumber || !sawComposite {
		t.Errorf("warnings = %v, want document number and composite mismatches", warnings)
	}
}

func TestDecodeTD3_EmptyPersonalNumber(t *testing.T) {
	line2 := "L898902C36UTO7408122F1204159<<<<<<<<<<<<<<<"
	line2 = line2[:43] + string(rune('0'+processor.CheckDigit(line2[0:10]+line2[13:20]+line2[21:43])))

	data, warnings, err := processor.DecodeTD3(testutil.SpecimenMRZLine1, line2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !data.ChecksValid || len(warnings) != 0 {
		t.Errorf("ChecksValid = %v, warnings = %v", data.ChecksValid, warnings)
	}
	if data.PersonalNumber != "" {
		t.Errorf("PersonalNumber = %q, want empty", data.PersonalNumber)
	}
}

func TestDecodeTD3_InvalidShape(t *testing.T) {
	tests := []struct {
		name         string
		line1, line2 string
	}{
		{"short line", "P<UTOERIKSSON<<ANNA", testutil.SpecimenMRZLine2},
		{"lower case", strings.ToLower(testutil.SpecimenMRZLine1), testutil.SpecimenMRZLine2},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := processor.DecodeTD3(tt.line1, tt.line2)
			if !errors.Is(err, processor.ErrInvalidMRZ) {
				t.Errorf("err = %v, want ErrInvalidMRZ", err)
			}
		})
	}
}

func TestCheckDigit(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"L898902C3", 6},
		{"740812", 2},
		{"120415", 9},
		{"ZE184226B<<<<<", 1},
		{"<<<<<<", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := processor.CheckDigit(tt.in); got != tt.want {
				t.Errorf("CheckDigit(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
