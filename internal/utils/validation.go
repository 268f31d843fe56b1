package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	emailRegex     = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	queryHashRegex = regexp.MustCompile(`^[0-9a-f]{32}$`)
)

// Validator collects form validation errors
type Validator struct {
	errors []string
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		errors: make([]string, 0),
	}
}

// AddError adds a validation error
func (v *Validator) AddError(message string) {
	v.errors = append(v.errors, message)
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []string {
	return v.errors
}

// ErrorString returns all errors as a single string
func (v *Validator) ErrorString() string {
	return strings.Join(v.errors, "; ")
}

// ValidateRequired checks if a string is not empty
func (v *Validator) ValidateRequired(value, field string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(fmt.Sprintf("%s is required", field))
	}
	return v
}

// ValidateLength checks string length constraints
func (v *Validator) ValidateLength(value, field string, min, max int) *Validator {
	length := utf8.RuneCountInString(value)
	if length < min {
		v.AddError(fmt.Sprintf("%s must be at least %d characters long", field, min))
	}
	if max > 0 && length > max {
		v.AddError(fmt.Sprintf("%s must be no more than %d characters long", field, max))
	}
	return v
}

// ValidateEmail validates email format
func (v *Validator) ValidateEmail(email, field string) *Validator {
	if email == "" {
		return v
	}

	if !emailRegex.MatchString(email) {
		v.AddError(fmt.Sprintf("%s must be a valid email address", field))
		return v
	}

	if len(email) > 320 { // RFC 5321 limit
		v.AddError(fmt.Sprintf("%s is too long (maximum 320 characters)", field))
	}

	return v
}

// ValidateQueryHash checks the shape of a query hash taken from a URL
func (v *Validator) ValidateQueryHash(hash, field string) *Validator {
	if hash == "" {
		return v
	}
	if !queryHashRegex.MatchString(hash) {
		v.AddError(fmt.Sprintf("%s must be a 32 character hex digest", field))
	}
	return v
}

// ValidateSafeText rejects control characters other than line breaks and tabs
func (v *Validator) ValidateSafeText(value, field string) *Validator {
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			v.AddError(fmt.Sprintf("%s contains invalid characters", field))
			break
		}
	}
	return v
}

// SanitizeInput trims whitespace, strips control characters and caps the length.
func SanitizeInput(input string, maxLen int) string {
	input = strings.TrimSpace(input)

	var result strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) || r == '\n' || r == '\r' || r == '\t' {
			result.WriteRune(r)
		}
	}

	sanitized := result.String()
	if maxLen > 0 && utf8.RuneCountInString(sanitized) > maxLen {
		sanitized = string([]rune(sanitized)[:maxLen])
	}
	return sanitized
}
