package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/gcbaptista/go-doc-stats/internal/errors"
	"github.com/gcbaptista/go-doc-stats/model"
)

// isDomainError reports whether err already carries one of the typed store errors.
func isDomainError(err error) bool {
	return errors.Is(err, apperrors.ErrDocumentNotFound) ||
		errors.Is(err, apperrors.ErrCollectionNotFound) ||
		errors.Is(err, apperrors.ErrCollectionAlreadyExists) ||
		errors.Is(err, apperrors.ErrInvalidInput) ||
		errors.Is(err, apperrors.ErrStorageUnavailable)
}

// wrapBackend keeps typed errors and marks backend failures as storage unavailability.
func wrapBackend(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return apperrors.NewStorageUnavailableError(op, err)
}

func encodeDocument(doc model.Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding document '%s': %w", doc.ID, err)
	}
	return data, nil
}

func decodeDocument(data []byte) (model.Document, error) {
	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.Document{}, fmt.Errorf("decoding document: %w", err)
	}
	return doc, nil
}

func encodeTerms(terms []model.TermStat) ([]byte, error) {
	if terms == nil {
		terms = []model.TermStat{}
	}
	data, err := json.Marshal(terms)
	if err != nil {
		return nil, fmt.Errorf("encoding terms: %w", err)
	}
	return data, nil
}

func decodeTerms(data []byte) ([]model.TermStat, error) {
	if len(data) == 0 {
		return []model.TermStat{}, nil
	}
	var terms []model.TermStat
	if err := json.Unmarshal(data, &terms); err != nil {
		return nil, fmt.Errorf("decoding terms: %w", err)
	}
	return terms, nil
}

// collectionMeta is a collection without its member list, which backends keep separately.
type collectionMeta struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func encodeCollection(c model.Collection) ([]byte, error) {
	data, err := json.Marshal(collectionMeta{ID: c.ID, OwnerID: c.OwnerID, Name: c.Name, CreatedAt: c.CreatedAt})
	if err != nil {
		return nil, fmt.Errorf("encoding collection '%s': %w", c.ID, err)
	}
	return data, nil
}

func decodeCollection(data []byte, members []string) (model.Collection, error) {
	var meta collectionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return model.Collection{}, fmt.Errorf("decoding collection: %w", err)
	}
	if members == nil {
		members = []string{}
	}
	return model.Collection{
		ID:          meta.ID,
		OwnerID:     meta.OwnerID,
		Name:        meta.Name,
		DocumentIDs: members,
		CreatedAt:   meta.CreatedAt,
	}, nil
}
