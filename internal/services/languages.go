package services

import "strings"

type AddOnLanguage struct {
	Code   string `json:"code"`
	NameEN string `json:"name_en"`
	NameIT string `json:"name_it"`
}

// English and Italian ship with the base package and are not sold as add-ons.
var addOnLanguages = []AddOnLanguage{
	{Code: "nl", NameEN: "Dutch", NameIT: "Olandese"},
	{Code: "fr", NameEN: "French", NameIT: "Francese"},
	{Code: "de", NameEN: "German", NameIT: "Tedesco"},
	{Code: "pt", NameEN: "Portuguese", NameIT: "Portoghese"},
	{Code: "es", NameEN: "Spanish", NameIT: "Spagnolo"},
	{Code: "da", NameEN: "Danish", NameIT: "Danese"},
	{Code: "fi", NameEN: "Finnish", NameIT: "Finlandese"},
	{Code: "no", NameEN: "Norwegian", NameIT: "Norvegese"},
	{Code: "sv", NameEN: "Swedish", NameIT: "Svedese"},
	{Code: "bg", NameEN: "Bulgarian", NameIT: "Bulgaro"},
	{Code: "cs", NameEN: "Czech", NameIT: "Ceco"},
	{Code: "hu", NameEN: "Hungarian", NameIT: "Ungherese"},
	{Code: "pl", NameEN: "Polish", NameIT: "Polacco"},
	{Code: "ro", NameEN: "Romanian", NameIT: "Rumeno"},
	{Code: "sk", NameEN: "Slovak", NameIT: "Slovacco"},
	{Code: "uk", NameEN: "Ukrainian", NameIT: "Ucraino"},
	{Code: "sq", NameEN: "Albanian", NameIT: "Albanese"},
	{Code: "bs", NameEN: "Bosnian", NameIT: "Bosniaco"},
	{Code: "hr", NameEN: "Croatian", NameIT: "Croato"},
	{Code: "el", NameEN: "Greek", NameIT: "Greco"},
	{Code: "sr", NameEN: "Serbian", NameIT: "Serbo"},
	{Code: "sl", NameEN: "Slovenian", NameIT: "Sloveno"},
	{Code: "tr", NameEN: "Turkish", NameIT: "Turco"},
	{Code: "ca", NameEN: "Catalan", NameIT: "Catalano"},
	{Code: "lv", NameEN: "Latvian", NameIT: "Lettone"},
	{Code: "lt", NameEN: "Lithuanian", NameIT: "Lituano"},
}

var addOnLanguageByCode = func() map[string]AddOnLanguage {
	index := make(map[string]AddOnLanguage, len(addOnLanguages))
	for _, language := range addOnLanguages {
		index[language.Code] = language
	}
	return index
}()

func AddOnLanguages() []AddOnLanguage {
	result := make([]AddOnLanguage, len(addOnLanguages))
	copy(result, addOnLanguages)
	return result
}

func LookupAddOnLanguage(code string) (AddOnLanguage, bool) {
	language, ok := addOnLanguageByCode[strings.ToLower(strings.TrimSpace(code))]
	return language, ok
}

func (language AddOnLanguage) Name(locale string) string {
	if locale == "it" {
		return language.NameIT
	}
	return language.NameEN
}

// NormalizeAddOnLanguageCodes lowercases the codes, drops duplicates while keeping the
// first-seen order, and rejects any code outside the catalog.
func NormalizeAddOnLanguageCodes(codes []string) ([]string, error) {
	normalized := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, raw := range codes {
		code := strings.ToLower(strings.TrimSpace(raw))
		if _, ok := addOnLanguageByCode[code]; !ok {
			return nil, ErrInvalidLanguageCode
		}
		if _, duplicate := seen[code]; duplicate {
			continue
		}
		seen[code] = struct{}{}
		normalized = append(normalized, code)
	}
	return normalized, nil
}
