package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
)

// Messages shared by the teacher-facing services.
const (
	msgAssessmentUnavailable = "Assessment not found, unauthorized, or already completed."
	msgNotAuthorized         = "You are not authorized to modify this assessment."
	msgStaleVersion          = "This item was changed by someone else. Reload the page and try again."
	msgTeacherMissing        = "Teacher record not found."
)

// validationError turns the first validator failure into a message a teacher can act on.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "Invalid form input.")
	}
	fe := fieldErrs[0]
	name := fieldLabel(fe.Field())
	var msg string
	switch fe.Tag() {
	case "required":
		msg = name + " is required."
	case "min", "gte":
		msg = fmt.Sprintf("%s must be at least %s.", name, fe.Param())
	case "max", "lte":
		if fe.Kind().String() == "string" {
			msg = fmt.Sprintf("%s must be at most %s characters.", name, fe.Param())
		} else {
			msg = fmt.Sprintf("%s must be at most %s.", name, fe.Param())
		}
	case "datetime":
		msg = name + " has an invalid format."
	default:
		msg = name + " is invalid."
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, msg)
}

// invalid builds a validation error whose message is shown verbatim.
func invalid(message string) error {
	return appErrors.Clone(appErrors.ErrValidation, message)
}

// fieldLabel renders a Go field name such as "AssessmentDate" as "Assessment date".
func fieldLabel(field string) string {
	var b strings.Builder
	prevLower := false
	for i, r := range field {
		if i > 0 && unicode.IsUpper(r) {
			if prevLower {
				b.WriteByte(' ')
			}
			prevLower = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		prevLower = unicode.IsLower(r)
		b.WriteRune(r)
	}
	return b.String()
}
