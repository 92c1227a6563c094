package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/taskflow-api/internal/api/shared"
	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/service"
	"github.com/phrazzld/taskflow-api/internal/service/auth"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingSubject):
		return http.StatusUnauthorized

	case store.IsNotFoundError(err):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, service.ErrDependencyUnavailable):
		return http.StatusServiceUnavailable

	// Publish failures and everything unknown
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. Only text produced by the domain layer is passed
// through; driver and infrastructure messages never are.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErrs validator.ValidationErrors
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingSubject):
		return "Invalid token"

	case store.IsNotFoundError(err):
		return "Task not found"

	case errors.As(err, &validationErrs):
		return SanitizeValidationError(validationErrs)

	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid task ID"

	case errors.Is(err, domain.ErrValidation):
		return domainDetail(err, domain.ErrValidation, "Validation error")

	case errors.Is(err, domain.ErrInvalidTransition):
		return domainDetail(err, domain.ErrInvalidTransition, "Invalid status transition")

	case errors.Is(err, store.ErrConflict):
		return "Task was modified concurrently, please retry"

	case errors.Is(err, service.ErrDependencyUnavailable):
		return "Service temporarily unavailable"

	case errors.Is(err, service.ErrPublishFailure):
		return "Change was saved but its event could not be published"

	default:
		return "An unexpected error occurred"
	}
}

// domainDetail returns the text that follows sentinel in err's message,
// which is the detail the domain layer attached, with an upper-case first
// letter. It falls back when there is no detail.
func domainDetail(err, sentinel error, fallback string) string {
	msg := err.Error()
	marker := sentinel.Error() + ": "
	idx := strings.LastIndex(msg, marker)
	if idx < 0 {
		return fallback
	}
	detail := strings.TrimSpace(msg[idx+len(marker):])
	if detail == "" {
		return fallback
	}
	return strings.ToUpper(detail[:1]) + detail[1:]
}

// SanitizeValidationError turns validator errors into a message naming the
// first offending field.
func SanitizeValidationError(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "Validation error"
	}
	fe := errs[0]
	return fmt.Sprintf("Invalid %s: %s", fieldName(fe), getValidationTagMessage(fe.Tag()))
}

func fieldName(fe validator.FieldError) string {
	return strings.ToLower(fe.Field())
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "uuid":
		return "invalid format"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the status and safe message for err. A non-empty
// message overrides the derived one.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
