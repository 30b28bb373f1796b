package services

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// StepPayload is one recognized slice of a form-data save. Known step shapes get field
// validation; anything else travels as GenericPayload.
type StepPayload interface {
	Keys() []string
	Validate() error
}

type PersonalInfoPayload struct {
	Fields map[string]any
}

type BusinessBasicsPayload struct {
	Fields map[string]any
}

type LanguageAddOnsPayload struct {
	Codes any
}

type GenericPayload struct {
	Fields map[string]any
}

var personalInfoFields = map[string]struct{}{
	"firstName": {},
	"lastName":  {},
	"email":     {},
}

var businessBasicsFields = map[string]struct{}{
	"businessName":              {},
	"businessEmail":             {},
	"businessPhone":             {},
	"industry":                  {},
	"vatNumber":                 {},
	"physicalAddressStreet":     {},
	"physicalAddressCity":       {},
	"physicalAddressProvince":   {},
	"physicalAddressPostalCode": {},
	"physicalAddressCountry":    {},
	"physicalAddressPlaceId":    {},
}

const (
	additionalLanguagesKey = "additionalLanguages"
	personalInfoStepKey    = "step1"
	businessBasicsStepKey  = "step3"
)

// ParseStepPayloads splits a partial form-data map into step payloads. Nested "step1" and
// "step3" objects are validated with the same shapes as their flat counterparts.
func ParseStepPayloads(partial map[string]any) []StepPayload {
	personal := map[string]any{}
	business := map[string]any{}
	generic := map[string]any{}
	payloads := make([]StepPayload, 0, 4)

	for key, value := range partial {
		switch {
		case isField(personalInfoFields, key):
			personal[key] = value
		case isField(businessBasicsFields, key):
			business[key] = value
		case key == additionalLanguagesKey:
			payloads = append(payloads, LanguageAddOnsPayload{Codes: value})
		case key == personalInfoStepKey || key == businessBasicsStepKey:
			nested, ok := value.(map[string]any)
			if !ok {
				generic[key] = value
				continue
			}
			if key == personalInfoStepKey {
				payloads = append(payloads, PersonalInfoPayload{Fields: nestedFields(key, nested)})
			} else {
				payloads = append(payloads, BusinessBasicsPayload{Fields: nestedFields(key, nested)})
			}
		default:
			generic[key] = value
		}
	}

	if len(personal) > 0 {
		payloads = append(payloads, PersonalInfoPayload{Fields: personal})
	}
	if len(business) > 0 {
		payloads = append(payloads, BusinessBasicsPayload{Fields: business})
	}
	if len(generic) > 0 {
		payloads = append(payloads, GenericPayload{Fields: generic})
	}
	return payloads
}

// ValidateFormData validates every recognized step payload in a partial save.
func ValidateFormData(partial map[string]any) error {
	if partial == nil {
		return newFieldError("formData", "is required")
	}
	for _, payload := range ParseStepPayloads(partial) {
		if err := payload.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (payload PersonalInfoPayload) Keys() []string {
	return sortedKeys(payload.Fields)
}

func (payload PersonalInfoPayload) Validate() error {
	for _, key := range payload.Keys() {
		value := payload.Fields[key]
		field := fieldBaseName(key)
		switch field {
		case "firstName", "lastName":
			if err := validateStringLength(key, value, 2, 50); err != nil {
				return err
			}
		case "email":
			if err := validateEmailField(key, value); err != nil {
				return err
			}
		default:
			return newFieldError(key, "is not part of personal information")
		}
	}
	return nil
}

func (payload BusinessBasicsPayload) Keys() []string {
	return sortedKeys(payload.Fields)
}

func (payload BusinessBasicsPayload) Validate() error {
	for _, key := range payload.Keys() {
		value := payload.Fields[key]
		field := fieldBaseName(key)
		switch field {
		case "businessName":
			if err := validateStringLength(key, value, 2, 50); err != nil {
				return err
			}
		case "businessEmail":
			if err := validateEmailField(key, value); err != nil {
				return err
			}
		default:
			if !isField(businessBasicsFields, field) {
				return newFieldError(key, "is not part of business basics")
			}
			if value == nil {
				continue
			}
			if _, ok := value.(string); !ok {
				return newFieldError(key, "must be a string")
			}
		}
	}
	return nil
}

func (payload LanguageAddOnsPayload) Keys() []string {
	return []string{additionalLanguagesKey}
}

func (payload LanguageAddOnsPayload) Validate() error {
	if payload.Codes == nil {
		return nil
	}
	rawCodes, ok := payload.Codes.([]any)
	if !ok {
		return newFieldError(additionalLanguagesKey, "must be a list of language codes")
	}
	codes := make([]string, 0, len(rawCodes))
	for _, raw := range rawCodes {
		code, ok := raw.(string)
		if !ok {
			return newFieldError(additionalLanguagesKey, "must be a list of language codes")
		}
		codes = append(codes, code)
	}
	if _, err := NormalizeAddOnLanguageCodes(codes); err != nil {
		return newFieldError(additionalLanguagesKey, "contains an unknown language code")
	}
	return nil
}

func (payload GenericPayload) Keys() []string {
	return sortedKeys(payload.Fields)
}

func (payload GenericPayload) Validate() error {
	for _, key := range payload.Keys() {
		if strings.TrimSpace(key) == "" {
			return newFieldError("formData", "keys must not be empty")
		}
	}
	return nil
}

func validateStringLength(field string, value any, minLength int, maxLength int) error {
	text, ok := value.(string)
	if !ok {
		return newFieldError(field, "must be a string")
	}
	length := utf8.RuneCountInString(strings.TrimSpace(text))
	if length < minLength || length > maxLength {
		return newFieldError(field, fmt.Sprintf("must be between %d and %d characters", minLength, maxLength))
	}
	return nil
}

func validateEmailField(field string, value any) error {
	text, ok := value.(string)
	if !ok {
		return newFieldError(field, "must be a string")
	}
	if NormalizeEmail(text) == "" {
		return newFieldError(field, "must be a valid email address")
	}
	return nil
}

func nestedFields(prefix string, nested map[string]any) map[string]any {
	fields := make(map[string]any, len(nested))
	for key, value := range nested {
		fields[prefix+"."+key] = value
	}
	return fields
}

func fieldBaseName(key string) string {
	if separator := strings.LastIndex(key, "."); separator >= 0 {
		return key[separator+1:]
	}
	return key
}

func isField(fields map[string]struct{}, key string) bool {
	_, ok := fields[key]
	return ok
}

func sortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
