package handler

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/forgo/hiretrack/api/internal/model"
	"github.com/forgo/hiretrack/api/internal/service"
)

// MapServiceError converts a service error to a ProblemDetails response.
// Errors are mapped by the kind they were marked with in the service layer;
// a ProblemDetails returned by a service passes through unchanged.
func MapServiceError(err error) *model.ProblemDetails {
	if err == nil {
		return nil
	}

	var problem *model.ProblemDetails
	if errors.As(err, &problem) {
		return problem
	}

	switch kind := service.ErrorKind(err); kind {
	case service.ErrNotFound:
		return notFound(err)
	case service.ErrConflict:
		return model.NewConflictError(err.Error())
	case service.ErrInvalidState:
		return model.NewInvalidStateError(err.Error())
	case service.ErrValidation:
		return model.NewValidationError([]model.FieldError{{Field: validationField(err), Message: err.Error()}})
	case service.ErrForbidden:
		return model.NewForbiddenError(err.Error())
	case service.ErrUnauthorized:
		return model.NewUnauthorizedError(err.Error())
	default:
		return model.NewInternalError("")
	}
}

// MapServiceErrorWithContext is MapServiceError that logs unexpected errors
// and names the failed operation in the 500 detail
func MapServiceErrorWithContext(err error, operation string) *model.ProblemDetails {
	pd := MapServiceError(err)
	if pd != nil && pd.Status == 500 {
		slog.Error("unexpected service error",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		pd.Detail = operation + ": an unexpected error occurred"
	}
	return pd
}

func notFound(err error) *model.ProblemDetails {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		return model.NewNotFoundError("job")
	case errors.Is(err, service.ErrApplicationNotFound):
		return model.NewNotFoundError("application")
	case errors.Is(err, service.ErrUserNotFound):
		return model.NewNotFoundError("user")
	default:
		return model.NewNotFoundError("resource")
	}
}

func validationField(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidStage):
		return "stage"
	case errors.Is(err, service.ErrInvalidRole):
		return "role"
	case errors.Is(err, service.ErrFullNameRequired):
		return "full_name"
	case errors.Is(err, service.ErrInvalidEmail):
		return "email"
	case errors.Is(err, service.ErrPasswordRequired),
		errors.Is(err, service.ErrPasswordTooShort),
		errors.Is(err, service.ErrPasswordTooLong):
		return "password"
	default:
		return "request"
	}
}
