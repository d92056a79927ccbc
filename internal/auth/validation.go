package auth

import (
	"strings"
	"unicode"

	"github.com/abduss/messenger/internal/result"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 11
)

// NormalizePhone keeps the digits of phone and a leading plus sign.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	if strings.HasPrefix(phone, "+") {
		b.WriteByte('+')
	}
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidatePhone accepts numbers with 10 or 11 digits, ignoring formatting characters.
func ValidatePhone(phone string) error {
	digits := len(strings.TrimPrefix(NormalizePhone(phone), "+"))
	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return &result.ValidationError{Field: "phone", Reason: "must contain 10 or 11 digits"}
	}
	return nil
}

func ValidateCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return &result.ValidationError{Field: "code", Reason: "must not be empty"}
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return &result.ValidationError{Field: "code", Reason: "must contain digits only"}
		}
	}
	return nil
}

func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &result.ValidationError{Field: "name", Reason: "must not be blank"}
	}
	return nil
}

// ValidateUsername accepts letters, digits, '-' and '_'.
func ValidateUsername(username string) error {
	if username == "" {
		return &result.ValidationError{Field: "username", Reason: "must not be blank"}
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return &result.ValidationError{Field: "username", Reason: "may contain only letters, digits, '-' and '_'"}
		}
	}
	return nil
}
