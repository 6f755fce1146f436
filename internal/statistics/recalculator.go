package statistics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/gcbaptista/go-doc-stats/internal/errors"
	"github.com/gcbaptista/go-doc-stats/internal/logger"
	"github.com/gcbaptista/go-doc-stats/model"
)

// Source is the subset of the store the recalculator needs.
type Source interface {
	Collection(ctx context.Context, collectionID string) (model.Collection, error)
	DocumentsInCollection(ctx context.Context, collectionID string) ([]model.Document, error)
	PersistTerms(ctx context.Context, updates map[string][]model.TermStat) error
}

// Result describes a completed recalculation pass.
type Result struct {
	CollectionID string
	Documents    []model.Document // rescored documents, in collection order
	Terms        int              // number of distinct terms that received an IDF
}

// Recalculator rescans a collection and rewrites every document's IDF values.
// It does not serialize callers; holding the collection's lock around Run is
// the caller's responsibility.
type Recalculator struct {
	source Source
	logger *slog.Logger
}

// NewRecalculator creates a Recalculator reading from and writing to source.
func NewRecalculator(source Source) (*Recalculator, error) {
	if source == nil {
		return nil, fmt.Errorf("recalculator source cannot be nil")
	}
	return &Recalculator{
		source: source,
		logger: logger.WithComponent("recalculator"),
	}, nil
}

// Run recomputes IDF for every term of every document in the collection.
//
// The member list of the collection and the documents fetched for it must
// agree; otherwise ErrRecalculationFailed is returned and nothing is written.
// All new term lists are computed before the single batched write.
func (r *Recalculator) Run(ctx context.Context, collectionID string) (Result, error) {
	collection, err := r.source.Collection(ctx, collectionID)
	if err != nil {
		return Result{}, classify("load collection", err)
	}

	docs, err := r.source.DocumentsInCollection(ctx, collectionID)
	if err != nil {
		return Result{}, classify("fetch documents in collection", err)
	}

	if err := verifyMembership(collection, docs); err != nil {
		return Result{}, err
	}

	updates := Rescore(docs)
	if len(updates) > 0 {
		if err := r.source.PersistTerms(ctx, updates); err != nil {
			if errors.Is(err, apperrors.ErrDocumentNotFound) {
				return Result{}, apperrors.NewRecalculationFailedError(collectionID, "document vanished before scores were written", err)
			}
			return Result{}, classify("persist document terms", err)
		}
	}

	result := Result{
		CollectionID: collectionID,
		Documents:    Apply(docs, updates),
		Terms:        len(DocumentFrequencies(docs)),
	}
	r.logger.Debug("collection recalculated",
		"collection_id", collectionID,
		"documents", len(docs),
		"terms", result.Terms)
	return result, nil
}

// verifyMembership checks that the fetched documents are exactly the listed members.
func verifyMembership(collection model.Collection, docs []model.Document) error {
	fetched := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		if doc.CollectionID != collection.ID {
			return apperrors.NewRecalculationFailedError(collection.ID,
				fmt.Sprintf("document '%s' references collection '%s'", doc.ID, doc.CollectionID))
		}
		if !collection.Contains(doc.ID) {
			return apperrors.NewRecalculationFailedError(collection.ID,
				fmt.Sprintf("document '%s' is not listed as a member", doc.ID))
		}
		fetched[doc.ID] = struct{}{}
	}
	for _, id := range collection.DocumentIDs {
		if _, ok := fetched[id]; !ok {
			return apperrors.NewRecalculationFailedError(collection.ID,
				"document vanished between listing and fetch",
				apperrors.NewDocumentNotFoundError(id, collection.ID))
		}
	}
	return nil
}

// classify keeps typed store errors and marks anything else as a storage failure.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrCollectionNotFound),
		errors.Is(err, apperrors.ErrDocumentNotFound),
		errors.Is(err, apperrors.ErrStorageUnavailable):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return apperrors.NewStorageUnavailableError(op, err)
	}
}
