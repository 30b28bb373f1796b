package services

import (
	"errors"
	"testing"
)

func TestParseStepPayloadsSplitsKnownShapes(t *testing.T) {
	payloads := ParseStepPayloads(map[string]any{
		"firstName":           "Ann",
		"businessName":        "Forno",
		"additionalLanguages": []any{"de"},
		"websiteStyle":        "minimal",
		"step1":               map[string]any{"lastName": "Rossi"},
	})

	counts := map[string]int{}
	for _, payload := range payloads {
		switch payload.(type) {
		case PersonalInfoPayload:
			counts["personal"]++
		case BusinessBasicsPayload:
			counts["business"]++
		case LanguageAddOnsPayload:
			counts["languages"]++
		case GenericPayload:
			counts["generic"]++
		}
	}
	if counts["personal"] != 2 || counts["business"] != 1 || counts["languages"] != 1 || counts["generic"] != 1 {
		t.Fatalf("unexpected payload split: %#v", counts)
	}
}

func TestValidateFormData(t *testing.T) {
	tests := []struct {
		name      string
		partial   map[string]any
		wantField string
	}{
		{name: "valid personal info", partial: map[string]any{"firstName": "Ann", "lastName": "Rossi", "email": "ann@example.com"}},
		{name: "valid nested business", partial: map[string]any{"step3": map[string]any{"businessName": "Forno Bianco", "businessPhone": "+39 06 1234"}}},
		{name: "generic keys pass", partial: map[string]any{"colorPalette": []any{"#fff"}, "currentStepNote": 3}},
		{name: "known languages", partial: map[string]any{"additionalLanguages": []any{"de", "FR"}}},
		{name: "empty languages", partial: map[string]any{"additionalLanguages": []any{}}},
		{name: "short first name", partial: map[string]any{"firstName": "A"}, wantField: "firstName"},
		{name: "long last name", partial: map[string]any{"lastName": "abcdefghijabcdefghijabcdefghijabcdefghijabcdefghijk"}, wantField: "lastName"},
		{name: "bad email", partial: map[string]any{"email": "nope"}, wantField: "email"},
		{name: "nested bad business email", partial: map[string]any{"step3": map[string]any{"businessEmail": "x@"}}, wantField: "step3.businessEmail"},
		{name: "business name not string", partial: map[string]any{"businessName": 12}, wantField: "businessName"},
		{name: "unknown nested personal field", partial: map[string]any{"step1": map[string]any{"nickname": "Annie"}}, wantField: "step1.nickname"},
		{name: "unknown language", partial: map[string]any{"additionalLanguages": []any{"xx"}}, wantField: "additionalLanguages"},
		{name: "languages not a list", partial: map[string]any{"additionalLanguages": "de"}, wantField: "additionalLanguages"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			err := ValidateFormData(testCase.partial)
			if testCase.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateFormData() unexpected error: %v", err)
				}
				return
			}

			var fieldErr *FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("expected FieldError, got %v", err)
			}
			if fieldErr.Field != testCase.wantField {
				t.Fatalf("expected field %q, got %q", testCase.wantField, fieldErr.Field)
			}
		})
	}
}

func TestValidateFormDataRequiresPayload(t *testing.T) {
	if err := ValidateFormData(nil); !errors.Is(err, ErrInvalidFormData) {
		t.Fatalf("expected ErrInvalidFormData, got %v", err)
	}
}

func TestNormalizeAddOnLanguageCodes(t *testing.T) {
	codes, err := NormalizeAddOnLanguageCodes([]string{" DE ", "fr", "de"})
	if err != nil {
		t.Fatalf("NormalizeAddOnLanguageCodes() unexpected error: %v", err)
	}
	if len(codes) != 2 || codes[0] != "de" || codes[1] != "fr" {
		t.Fatalf("expected [de fr], got %v", codes)
	}

	if _, err := NormalizeAddOnLanguageCodes([]string{"de", "klingon"}); !errors.Is(err, ErrInvalidLanguageCode) {
		t.Fatalf("expected ErrInvalidLanguageCode, got %v", err)
	}
	if _, err := NormalizeAddOnLanguageCodes([]string{"en"}); !errors.Is(err, ErrInvalidLanguageCode) {
		t.Fatalf("base languages are not add-ons, got %v", err)
	}
}

func TestAddOnLanguageName(t *testing.T) {
	language, ok := LookupAddOnLanguage("de")
	if !ok {
		t.Fatal("expected de in catalog")
	}
	if language.Name("en") != "German" || language.Name("it") != "Tedesco" {
		t.Fatalf("unexpected names %q %q", language.Name("en"), language.Name("it"))
	}
}
