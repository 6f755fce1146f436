// Package api provides the HTTP layer over the statistics engine.
package api

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

// ValidationError represents a validation error with field context
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of validation operations
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// AddError adds a validation error to the result
func (vr *ValidationResult) AddError(field, message string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// ValidateID validates a path identifier such as a collection or document ID
func ValidateID(field, id string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if id == "" {
		result.AddError(field, "ID is required")
		return result
	}

	if strings.TrimSpace(id) != id {
		result.AddError(field, "ID cannot have leading or trailing whitespace")
	}

	return result
}

// ValidateCollectionRequest validates a collection creation request
func ValidateCollectionRequest(req *CreateCollectionRequest) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if strings.TrimSpace(req.Name) == "" {
		result.AddError("name", "Collection name is required")
	}
	if strings.TrimSpace(req.OwnerID) != req.OwnerID {
		result.AddError("owner_id", "Owner ID cannot have leading or trailing whitespace")
	}

	return result
}

// ValidateUpload checks the filename against the allowed extensions and the
// content for valid UTF-8. An empty allowed list accepts every extension.
func ValidateUpload(filename string, content []byte, allowed []string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if strings.TrimSpace(filename) == "" {
		result.AddError("filename", "Filename is required")
		return result
	}

	if len(allowed) > 0 {
		ext := strings.ToLower(filepath.Ext(filename))
		ok := false
		for _, a := range allowed {
			if strings.ToLower(a) == ext {
				ok = true
				break
			}
		}
		if !ok {
			result.AddError("filename", fmt.Sprintf("Extension %q is not allowed (allowed: %s)", ext, strings.Join(allowed, ", ")))
		}
	}

	if !utf8.Valid(content) {
		result.AddError("content", "Content must be valid UTF-8 text")
	}

	return result
}

// SendValidationError sends a standardized validation error response
func SendValidationError(c *gin.Context, result *ValidationResult) {
	SendStructuredValidationError(c, result)
}

// ValidateJSONBinding validates JSON binding and returns a standardized error
func ValidateJSONBinding(c *gin.Context, target interface{}) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if err := c.ShouldBindJSON(target); err != nil {
		result.AddError("request_body", "Invalid request body: "+err.Error())
	}

	return result
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MiB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%d KiB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
