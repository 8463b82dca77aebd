package utils

import (
	"github.com/go-playground/validator/v10"
)

// MaxErrorDetailLength caps upstream error text persisted to logs and
// contingency rows.
const MaxErrorDetailLength = 500

// Truncate cuts s to at most max bytes.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// TruncateErrorDetail applies the standard cap for persisted error text.
func TruncateErrorDetail(s string) string {
	return Truncate(s, MaxErrorDetailLength)
}

func ProcessValidationErrors(err error) map[string]string {

	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

func NewFalse() *bool {
	b := false
	return &b
}
