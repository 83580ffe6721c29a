package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"golang-bank-reconciliation/pkg/errors"
)

// APIError represents a structured error response.
// All error responses from the API use this format.
type APIError struct {
	Code       string                 `json:"code"`
	Category   string                 `json:"category,omitempty"`
	Message    string                 `json:"message"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeInternalError = "internal_error"
)

// statusFor maps an error category to an HTTP status code
func statusFor(category errors.ErrorCategory) int {
	switch category {
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConcurrency:
		return http.StatusConflict
	case errors.CategoryValidation, errors.CategoryParse:
		return http.StatusUnprocessableEntity
	case errors.CategoryStorage, errors.CategoryInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// writeError writes err as an APIError with the status of its category
func (s *Server) writeError(c *gin.Context, err error) {
	re := errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeUnexpectedError, "request failed")
	status := statusFor(re.Category)
	body := APIError{
		Code:       string(re.Code),
		Category:   string(re.Category),
		Message:    re.Message,
		Suggestion: re.Suggestion,
		Context:    re.Context,
	}
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).Error("Request failed")
		body.Code = ErrCodeInternalError
		body.Message = "an internal error occurred"
		body.Context = nil
	}
	c.AbortWithStatusJSON(status, body)
}

// badRequest reports a malformed request body or parameter
func (s *Server) badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, APIError{
		Code:    ErrCodeBadRequest,
		Message: message,
	})
}
