// internal/pkg/response/response.go
package response

import (
	"net/http"

	xerrors "medlink-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response defines the standard API response format.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success sends a successful response with a message and optional data.
func Success(c *gin.Context, status int, message string, data interface{}) {
	if status == 0 {
		status = http.StatusOK
	}

	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error sends a standardized error response.
func Error(c *gin.Context, code int, message string, err error, data ...interface{}) {
	// Abort before writing so later handlers in the chain do not run
	c.Abort()

	response := Response{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
	}

	if len(data) > 0 {
		response.Data = data[0]
	}

	c.JSON(code, response)
}

// FromError maps a service error onto an HTTP status and writes it.
// Errors carrying details (quota, slot ranges) expose them in data.
func FromError(c *gin.Context, message string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		Error(c, status, message, xerrors.ErrInternal)
		return
	}

	if details := xerrors.DetailsOf(err); details != nil {
		Error(c, status, message, err, details)
		return
	}
	Error(c, status, message, err)
}

// StatusFor returns the HTTP status code for err.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case xerrors.Is(err, xerrors.ErrLimitReached):
		return http.StatusForbidden
	case xerrors.Is(err, xerrors.ErrNotFound):
		return http.StatusNotFound
	case xerrors.Is(err, xerrors.ErrConflict), xerrors.Is(err, xerrors.ErrDuplicateEntry),
		xerrors.Is(err, xerrors.ErrInvalidTransition):
		return http.StatusConflict
	case xerrors.Is(err, xerrors.ErrUnprocessable):
		return http.StatusUnprocessableEntity
	case xerrors.Is(err, xerrors.ErrInvalidInput), xerrors.Is(err, xerrors.ErrBadRequest),
		xerrors.Is(err, xerrors.ErrInvalidSignature), xerrors.Is(err, xerrors.ErrPaymentNotSuccessful):
		return http.StatusBadRequest
	case xerrors.Is(err, xerrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case xerrors.Is(err, xerrors.ErrForbidden):
		return http.StatusForbidden
	case xerrors.Is(err, xerrors.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError sends a 400 Bad Request response for invalid input.
func ValidationError(c *gin.Context, message string, err error) {
	Error(c, http.StatusBadRequest, message, err)
}

// Unauthorized sends a 401 Unauthorized response.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message, nil)
}

// Forbidden sends a 403 Forbidden response.
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message, nil)
}

// NotFound sends a 404 Not Found response.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message, nil)
}
