package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/gcbaptista/go-doc-stats/internal/errors"
	"github.com/gcbaptista/go-doc-stats/internal/logger"
)

// ErrorCode represents standardized error codes for the API
type ErrorCode string

const (
	// Client Error Codes (4xx)
	ErrorCodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrorCodeCollectionNotFound ErrorCode = "COLLECTION_NOT_FOUND"
	ErrorCodeDocumentNotFound   ErrorCode = "DOCUMENT_NOT_FOUND"
	ErrorCodeCollectionExists   ErrorCode = "COLLECTION_ALREADY_EXISTS"
	ErrorCodeInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrorCodeInvalidJSON        ErrorCode = "INVALID_JSON"
	ErrorCodeInvalidEncoding    ErrorCode = "INVALID_ENCODING"
	ErrorCodeUnsupportedFile    ErrorCode = "UNSUPPORTED_FILE"
	ErrorCodePayloadTooLarge    ErrorCode = "PAYLOAD_TOO_LARGE"

	// Server Error Codes (5xx)
	ErrorCodeInternalError       ErrorCode = "INTERNAL_ERROR"
	ErrorCodeRecalculationFailed ErrorCode = "RECALCULATION_FAILED"
	ErrorCodeStorageUnavailable  ErrorCode = "STORAGE_UNAVAILABLE"
)

// ErrorDetail provides additional context for an error
type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// APIError represents a standardized API error response
type APIError struct {
	Error     string        `json:"error"`
	Code      ErrorCode     `json:"code"`
	Message   string        `json:"message"`
	Details   []ErrorDetail `json:"details,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIErrorResponse creates a standardized error response
func APIErrorResponse(code ErrorCode, message string, details ...ErrorDetail) *APIError {
	return &APIError{
		Error:     "Request failed",
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}

// SendError sends a standardized error response
func SendError(c *gin.Context, statusCode int, code ErrorCode, message string, details ...ErrorDetail) {
	errorResponse := APIErrorResponse(code, message, details...)

	if requestID, exists := c.Get(requestIDKey); exists {
		if id, ok := requestID.(string); ok {
			errorResponse.RequestID = id
		}
	}

	c.AbortWithStatusJSON(statusCode, errorResponse)
}

// SendStructuredValidationError sends a validation error with one detail per failed field
func SendStructuredValidationError(c *gin.Context, result *ValidationResult) {
	details := make([]ErrorDetail, len(result.Errors))
	for i, err := range result.Errors {
		details[i] = ErrorDetail{
			Field:   err.Field,
			Message: err.Message,
			Code:    "VALIDATION_ERROR",
		}
	}

	SendError(c, http.StatusBadRequest, ErrorCodeValidationFailed, "Request validation failed", details...)
}

// SendInvalidJSONError sends a standardized invalid JSON error
func SendInvalidJSONError(c *gin.Context, err error) {
	SendError(c, http.StatusBadRequest, ErrorCodeInvalidJSON,
		"Invalid JSON in request body: "+err.Error())
}

// SendPayloadTooLargeError sends a standardized body size error
func SendPayloadTooLargeError(c *gin.Context, limit int64) {
	SendError(c, http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge,
		"Request body exceeds the limit of "+formatBytes(limit))
}

// SendEngineError maps an engine or store error onto a status code and error code.
func SendEngineError(c *gin.Context, operation string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("request failed",
			"operation", operation,
			"error", err)
	}

	var validation *apperrors.ValidationError
	if errors.As(err, &validation) {
		SendError(c, status, code, err.Error(), ErrorDetail{
			Field:   validation.Field,
			Message: validation.Message,
			Code:    "VALIDATION_ERROR",
		})
		return
	}
	SendError(c, status, code, err.Error())
}

func classify(err error) (int, ErrorCode) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, ErrorCodeValidationFailed
	case errors.Is(err, apperrors.ErrInvalidEncoding):
		return http.StatusBadRequest, ErrorCodeInvalidEncoding
	case errors.Is(err, apperrors.ErrDocumentNotFound):
		return http.StatusNotFound, ErrorCodeDocumentNotFound
	case errors.Is(err, apperrors.ErrCollectionNotFound):
		return http.StatusNotFound, ErrorCodeCollectionNotFound
	case errors.Is(err, apperrors.ErrCollectionAlreadyExists):
		return http.StatusConflict, ErrorCodeCollectionExists
	case errors.Is(err, apperrors.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, ErrorCodeStorageUnavailable
	case errors.Is(err, apperrors.ErrRecalculationFailed):
		return http.StatusInternalServerError, ErrorCodeRecalculationFailed
	default:
		return http.StatusInternalServerError, ErrorCodeInternalError
	}
}
