package service

import "github.com/cockroachdb/errors"

// Centralized service layer errors.
// All errors returned by service methods are defined here for consistency
// and to make error handling in handlers predictable.
//
// Every sentinel belongs to one kind so the HTTP layer can map by kind,
// while sentinels of the same kind stay distinct:
//
//	errors.Is(ErrJobNotOpen, ErrInvalidState)      // true
//	errors.Is(ErrJobNotOpen, ErrIllegalTransition) // false

// ===== Error Kinds =====
var (
	ErrNotFound     = errors.New("kind: not found")
	ErrInvalidState = errors.New("kind: invalid state")
	ErrConflict     = errors.New("kind: conflict")
	ErrValidation   = errors.New("kind: validation")
	ErrForbidden    = errors.New("kind: forbidden")
	ErrUnauthorized = errors.New("kind: unauthorized")
)

// kindError is a sentinel that matches itself and its kind, nothing else
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }

func kinded(msg string, kind error) error {
	return &kindError{msg: msg, kind: kind}
}

// ===== Authentication Errors =====
var (
	ErrInvalidCredentials = kinded("invalid email or password", ErrUnauthorized)
	ErrInvalidToken       = kinded("invalid or expired token", ErrUnauthorized)
	ErrEmailAlreadyExists = kinded("email already registered", ErrConflict)
	ErrUserNotFound       = kinded("user not found", ErrNotFound)
	ErrPasswordRequired   = kinded("password is required", ErrValidation)
	ErrPasswordTooShort   = kinded("password must be at least 8 characters", ErrValidation)
	ErrPasswordTooLong    = kinded("password must be at most 128 characters", ErrValidation)
	ErrInvalidEmail       = kinded("invalid email format", ErrValidation)
	ErrInvalidRole        = kinded("role must be candidate, recruiter or hiring_manager", ErrValidation)
	ErrFullNameRequired   = kinded("full_name is required", ErrValidation)
)

// ===== Job Errors =====
var (
	ErrJobNotFound = kinded("job not found", ErrNotFound)
	ErrJobNotOpen  = kinded("job is not open for applications", ErrInvalidState)
	ErrNotJobOwner = kinded("not the owner of this job", ErrForbidden)

	ErrJobHasApplications = kinded("job has applications and cannot be deleted", ErrInvalidState)
)

// ===== Application Lifecycle Errors =====
var (
	ErrApplicationNotFound  = kinded("application not found", ErrNotFound)
	ErrAlreadyApplied       = kinded("candidate already applied to this job", ErrConflict)
	ErrInvalidStage         = kinded("unknown stage", ErrValidation)
	ErrIllegalTransition    = kinded("stage transition not allowed", ErrInvalidState)
	ErrConcurrentTransition = kinded("application was changed concurrently, retry", ErrConflict)
	ErrNotApplicationOwner  = kinded("not the owner of this application", ErrForbidden)
)

// ErrorKind returns the kind of the sentinel in err's chain, or nil if none
func ErrorKind(err error) error {
	for _, kind := range []error{ErrNotFound, ErrInvalidState, ErrConflict, ErrValidation, ErrForbidden, ErrUnauthorized} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
