package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestDocumentNotFoundError(t *testing.T) {
	// Test without collection ID
	docID := "doc123"
	err := NewDocumentNotFoundError(docID)

	expectedMsg := "document with ID 'doc123' not found"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg, err.Error())
	}

	// Test with collection ID
	err2 := NewDocumentNotFoundError(docID, "col-1")

	expectedMsg2 := "document with ID 'doc123' not found in collection 'col-1'"
	if err2.Error() != expectedMsg2 {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg2, err2.Error())
	}

	if !errors.Is(err, ErrDocumentNotFound) {
		t.Error("Expected error to match ErrDocumentNotFound sentinel")
	}
	if !errors.Is(err2, ErrDocumentNotFound) {
		t.Error("Expected error with collection to match ErrDocumentNotFound sentinel")
	}
	if errors.Is(err, ErrCollectionNotFound) {
		t.Error("Error should not match ErrCollectionNotFound")
	}
}

func TestCollectionNotFoundError(t *testing.T) {
	err := NewCollectionNotFoundError("col-9")

	expectedMsg := "collection with ID 'col-9' not found"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg, err.Error())
	}
	if !errors.Is(err, ErrCollectionNotFound) {
		t.Error("Expected error to match ErrCollectionNotFound sentinel")
	}
}

func TestCollectionAlreadyExistsError(t *testing.T) {
	err := NewCollectionAlreadyExistsError("user-1", "papers")

	expectedMsg := "collection named 'papers' already exists for owner 'user-1'"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg, err.Error())
	}
	if !errors.Is(err, ErrCollectionAlreadyExists) {
		t.Error("Expected error to match ErrCollectionAlreadyExists sentinel")
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("name", "cannot be empty")

	expectedMsg := "validation error for field 'name': cannot be empty"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg, err.Error())
	}

	err2 := NewValidationError("", "cannot be empty")

	expectedMsg2 := "validation error: cannot be empty"
	if err2.Error() != expectedMsg2 {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg2, err2.Error())
	}

	if !errors.Is(err, ErrInvalidInput) {
		t.Error("Expected error to match ErrInvalidInput sentinel")
	}
}

func TestRecalculationFailedError(t *testing.T) {
	cause := NewDocumentNotFoundError("doc-1")
	err := NewRecalculationFailedError("col-1", "document vanished during scan", cause)

	expectedMsg := "recalculation of collection 'col-1' failed: document vanished during scan: document with ID 'doc-1' not found"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg, err.Error())
	}
	if !errors.Is(err, ErrRecalculationFailed) {
		t.Error("Expected error to match ErrRecalculationFailed sentinel")
	}
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Error("Expected wrapped cause to be reachable")
	}

	noCause := NewRecalculationFailedError("col-2", "member set mismatch")
	if noCause.Error() != "recalculation of collection 'col-2' failed: member set mismatch" {
		t.Errorf("Unexpected message '%s'", noCause.Error())
	}
}

func TestStorageUnavailableError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStorageUnavailableError("fetch documents", cause)

	expectedMsg := "storage unavailable during fetch documents: connection refused"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg, err.Error())
	}
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Error("Expected error to match ErrStorageUnavailable sentinel")
	}
	if !errors.Is(err, cause) {
		t.Error("Expected cause to be unwrappable")
	}
	if errors.Is(err, ErrRecalculationFailed) {
		t.Error("Storage failures must stay distinguishable from recalculation failures")
	}
}

func TestInvalidEncodingError(t *testing.T) {
	err := NewInvalidEncodingError(7, "dangling bits")

	if err.Error() != "invalid encoding at bit 7: dangling bits" {
		t.Errorf("Unexpected message '%s'", err.Error())
	}
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Error("Expected error to match ErrInvalidEncoding sentinel")
	}
}

func TestErrorChaining(t *testing.T) {
	originalErr := NewCollectionNotFoundError("col-1")
	wrappedErr := fmt.Errorf("loading collection: %w", originalErr)

	if !errors.Is(wrappedErr, ErrCollectionNotFound) {
		t.Error("Expected wrapped error to still match ErrCollectionNotFound sentinel")
	}

	var colErr *CollectionNotFoundError
	if !errors.As(wrappedErr, &colErr) {
		t.Fatal("Expected to be able to unwrap to CollectionNotFoundError")
	}
	if colErr.CollectionID != "col-1" {
		t.Errorf("Expected collection ID 'col-1', got '%s'", colErr.CollectionID)
	}
}
