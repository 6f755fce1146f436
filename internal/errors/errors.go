package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrDocumentNotFound is returned when a document is not found
	ErrDocumentNotFound = errors.New("document not found")

	// ErrCollectionNotFound is returned when a collection is not found
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionAlreadyExists is returned when an owner already has a collection with the same name
	ErrCollectionAlreadyExists = errors.New("collection already exists")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrDegenerateDocument is signalled when a document yields no tokens
	ErrDegenerateDocument = errors.New("degenerate document")

	// ErrRecalculationFailed is returned when the collection's document set changed mid-scan
	ErrRecalculationFailed = errors.New("recalculation failed")

	// ErrStorageUnavailable is returned when the storage collaborator fails
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidEncoding is returned when a bit string cannot be decoded with a code table
	ErrInvalidEncoding = errors.New("invalid encoding")
)

// DocumentNotFoundError represents a document not found error with context
type DocumentNotFoundError struct {
	DocumentID   string
	CollectionID string
}

func (e *DocumentNotFoundError) Error() string {
	if e.CollectionID != "" {
		return fmt.Sprintf("document with ID '%s' not found in collection '%s'", e.DocumentID, e.CollectionID)
	}
	return fmt.Sprintf("document with ID '%s' not found", e.DocumentID)
}

func (e *DocumentNotFoundError) Is(target error) bool {
	return target == ErrDocumentNotFound
}

// NewDocumentNotFoundError creates a new DocumentNotFoundError
func NewDocumentNotFoundError(documentID string, collectionID ...string) *DocumentNotFoundError {
	err := &DocumentNotFoundError{DocumentID: documentID}
	if len(collectionID) > 0 {
		err.CollectionID = collectionID[0]
	}
	return err
}

// CollectionNotFoundError represents a collection not found error with context
type CollectionNotFoundError struct {
	CollectionID string
}

func (e *CollectionNotFoundError) Error() string {
	return fmt.Sprintf("collection with ID '%s' not found", e.CollectionID)
}

func (e *CollectionNotFoundError) Is(target error) bool {
	return target == ErrCollectionNotFound
}

// NewCollectionNotFoundError creates a new CollectionNotFoundError
func NewCollectionNotFoundError(collectionID string) *CollectionNotFoundError {
	return &CollectionNotFoundError{CollectionID: collectionID}
}

// CollectionAlreadyExistsError represents a duplicate collection name for one owner
type CollectionAlreadyExistsError struct {
	OwnerID string
	Name    string
}

func (e *CollectionAlreadyExistsError) Error() string {
	return fmt.Sprintf("collection named '%s' already exists for owner '%s'", e.Name, e.OwnerID)
}

func (e *CollectionAlreadyExistsError) Is(target error) bool {
	return target == ErrCollectionAlreadyExists
}

// NewCollectionAlreadyExistsError creates a new CollectionAlreadyExistsError
func NewCollectionAlreadyExistsError(ownerID, name string) *CollectionAlreadyExistsError {
	return &CollectionAlreadyExistsError{OwnerID: ownerID, Name: name}
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RecalculationFailedError reports an inconsistent document set observed while
// recalculating collection statistics. Nothing has been written when it is returned.
type RecalculationFailedError struct {
	CollectionID string
	Reason       string
	Err          error
}

func (e *RecalculationFailedError) Error() string {
	msg := fmt.Sprintf("recalculation of collection '%s' failed: %s", e.CollectionID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RecalculationFailedError) Is(target error) bool {
	return target == ErrRecalculationFailed
}

func (e *RecalculationFailedError) Unwrap() error {
	return e.Err
}

// NewRecalculationFailedError creates a new RecalculationFailedError
func NewRecalculationFailedError(collectionID, reason string, cause ...error) *RecalculationFailedError {
	err := &RecalculationFailedError{CollectionID: collectionID, Reason: reason}
	if len(cause) > 0 {
		err.Err = cause[0]
	}
	return err
}

// StorageUnavailableError wraps a failure of the storage collaborator
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage unavailable during %s", e.Op)
	}
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}

// NewStorageUnavailableError creates a new StorageUnavailableError
func NewStorageUnavailableError(op string, err error) *StorageUnavailableError {
	return &StorageUnavailableError{Op: op, Err: err}
}

// InvalidEncodingError reports the bit offset at which decoding stopped
type InvalidEncodingError struct {
	Offset int
	Reason string
}

func (e *InvalidEncodingError) Error() string {
	return fmt.Sprintf("invalid encoding at bit %d: %s", e.Offset, e.Reason)
}

func (e *InvalidEncodingError) Is(target error) bool {
	return target == ErrInvalidEncoding
}

// NewInvalidEncodingError creates a new InvalidEncodingError
func NewInvalidEncodingError(offset int, reason string) *InvalidEncodingError {
	return &InvalidEncodingError{Offset: offset, Reason: reason}
}
