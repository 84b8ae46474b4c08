package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized access")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal server error")
	ErrRateLimited    = errors.New("too many requests")
	ErrBadRequest     = errors.New("bad request")
	ErrDuplicateEntry = errors.New("duplicate entry")

	ErrLimitReached         = errors.New("monthly limit reached")
	ErrInvalidSignature     = errors.New("invalid payment signature")
	ErrPaymentNotSuccessful = errors.New("payment not successful")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrUnprocessable        = errors.New("unprocessable request")
)

// Detailer is implemented by errors that carry client-facing context.
type Detailer interface {
	Details() map[string]interface{}
}

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Unwrap extracts the underlying wrapped error.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// DetailsOf returns the details carried by err, if any.
func DetailsOf(err error) map[string]interface{} {
	var d Detailer
	if errors.As(err, &d) {
		return d.Details()
	}
	return nil
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
