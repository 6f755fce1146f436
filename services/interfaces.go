package services

import (
	"context"

	"github.com/gcbaptista/go-doc-stats/model"
)

// DocumentStore is the persistence collaborator for documents.
// Implementations report missing documents with errors matching
// errors.ErrDocumentNotFound and backend failures with errors matching
// errors.ErrStorageUnavailable.
type DocumentStore interface {
	// Document fetches a single document.
	Document(ctx context.Context, documentID string) (model.Document, error)
	// DocumentsInCollection returns the documents whose collection reference is collectionID,
	// in the order they joined the collection.
	DocumentsInCollection(ctx context.Context, collectionID string) ([]model.Document, error)
	// InsertDocument stores a new document and adds it to its collection's member set.
	InsertDocument(ctx context.Context, doc model.Document) error
	// DeleteDocument removes a document and its collection membership.
	DeleteDocument(ctx context.Context, documentID string) error
	// SetDocumentCollection moves a document to another collection; an empty collectionID detaches it.
	SetDocumentCollection(ctx context.Context, documentID, collectionID string) error
	// PersistDocumentTerms overwrites the term list of one document.
	PersistDocumentTerms(ctx context.Context, documentID string, terms []model.TermStat) error
	// PersistTerms overwrites the term lists of several documents in one write.
	// Either every update is applied or none is.
	PersistTerms(ctx context.Context, updates map[string][]model.TermStat) error
}

// CollectionStore is the persistence collaborator for collections.
type CollectionStore interface {
	CreateCollection(ctx context.Context, collection model.Collection) error
	Collection(ctx context.Context, collectionID string) (model.Collection, error)
	ListCollections(ctx context.Context, ownerID string) ([]model.Collection, error)
	// DeleteCollection removes the collection and every document in it.
	DeleteCollection(ctx context.Context, collectionID string) error
}

// Store combines both collaborators.
type Store interface {
	DocumentStore
	CollectionStore
	Close() error
}

// DocumentManager defines write operations that keep collection statistics consistent.
type DocumentManager interface {
	UploadDocument(ctx context.Context, collectionID, filename, content string) (model.Document, error)
	DeleteDocument(ctx context.Context, documentID string) error
	AttachDocument(ctx context.Context, collectionID, documentID string) error
	DetachDocument(ctx context.Context, collectionID, documentID string) error
	Recalculate(ctx context.Context, collectionID string) error
}

// CollectionManager defines collection lifecycle operations.
type CollectionManager interface {
	CreateCollection(ctx context.Context, ownerID, name string) (model.Collection, error)
	GetCollection(ctx context.Context, collectionID string) (model.Collection, error)
	ListCollections(ctx context.Context, ownerID string) ([]model.Collection, error)
	DeleteCollection(ctx context.Context, collectionID string) error
}

// StatisticsReader defines the read-only query side.
type StatisticsReader interface {
	GetDocument(ctx context.Context, documentID string) (model.Document, error)
	DocumentStatistics(ctx context.Context, documentID string) ([]model.TermScore, error)
	CollectionStatistics(ctx context.Context, collectionID string) ([]model.TermScore, error)
	EncodeDocument(ctx context.Context, documentID string) (model.HuffmanEncoding, error)
}

// Engine is everything the HTTP layer needs.
type Engine interface {
	DocumentManager
	CollectionManager
	StatisticsReader
	ProcessingMetrics() model.ProcessingMetrics
}
