package services

import (
	"net/mail"
	"strings"

	"github.com/terraincognita07/whiteboar/internal/models"
)

func NormalizeEmail(raw string) string {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return ""
	}
	address, err := mail.ParseAddress(email)
	if err != nil || address.Address != email {
		return ""
	}
	return email
}

func NormalizeLocale(raw string) string {
	locale := strings.ToLower(strings.TrimSpace(raw))
	switch locale {
	case models.LocaleEN, models.LocaleIT:
		return locale
	default:
		return ""
	}
}
