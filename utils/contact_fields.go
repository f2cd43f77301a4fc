package utils

import (
	"strings"

	"cadencecrm/domain"

	"github.com/badoux/checkmail"
	"github.com/nyaruka/phonenumbers"
)

// NormalizeEmail lowercases and syntax-checks an address. Empty stays empty.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", nil
	}
	if err := checkmail.ValidateFormat(email); err != nil {
		return "", domain.NewValidationError("email must be a valid email")
	}
	return email, nil
}

// NormalizePhone formats a phone number as E.164 using region for numbers
// written without a country code. Empty stays empty.
func NormalizePhone(phone, region string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}
	if region == "" {
		region = "US"
	}

	parsed, err := phonenumbers.Parse(phone, region)
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return "", domain.NewValidationError("phone must be a valid phone number")
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
