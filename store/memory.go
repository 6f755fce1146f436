package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	apperrors "github.com/gcbaptista/go-doc-stats/internal/errors"
	"github.com/gcbaptista/go-doc-stats/internal/logger"
	"github.com/gcbaptista/go-doc-stats/internal/persistence"
	"github.com/gcbaptista/go-doc-stats/model"
)

const snapshotFile = "docstats.gob"

// MemoryStore keeps documents and collections in maps guarded by one RWMutex.
// When a data directory is configured every successful write is followed by a
// gob snapshot of the whole store; a failed snapshot rolls the write back.
type MemoryStore struct {
	mu           sync.RWMutex
	docs         map[string]model.Document
	collections  map[string]model.Collection
	snapshotPath string
	logger       *slog.Logger
}

// gobStoreData is the snapshot shape. It excludes the mutex.
type gobStoreData struct {
	Docs        map[string]model.Document
	Collections map[string]model.Collection
}

// NewMemoryStore creates an empty store without snapshots.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:        make(map[string]model.Document),
		collections: make(map[string]model.Collection),
		logger:      logger.WithComponent("memory-store"),
	}
}

// OpenMemoryStore creates a store snapshotting into dataDir, loading the
// previous snapshot when one exists.
func OpenMemoryStore(dataDir string) (*MemoryStore, error) {
	s := NewMemoryStore()
	if dataDir == "" {
		return s, nil
	}
	s.snapshotPath = filepath.Join(dataDir, snapshotFile)

	var data gobStoreData
	err := persistence.LoadGob(s.snapshotPath, &data)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.logger.Info("no snapshot found, starting empty", "path", s.snapshotPath)
	case err != nil:
		return nil, apperrors.NewStorageUnavailableError("load snapshot", err)
	default:
		if data.Docs != nil {
			s.docs = data.Docs
		}
		if data.Collections != nil {
			s.collections = data.Collections
		}
		s.logger.Info("snapshot loaded",
			"path", s.snapshotPath,
			"documents", len(s.docs),
			"collections", len(s.collections))
	}
	return s, nil
}

// commit writes a snapshot if configured. On failure undo restores the
// in-memory state. Must be called with mu held for writing.
func (s *MemoryStore) commit(op string, undo func()) error {
	if s.snapshotPath == "" {
		return nil
	}
	data := gobStoreData{Docs: s.docs, Collections: s.collections}
	if err := persistence.SaveGob(s.snapshotPath, data); err != nil {
		undo()
		return apperrors.NewStorageUnavailableError(op, err)
	}
	return nil
}

func copyDocument(doc model.Document) model.Document {
	doc.Terms = doc.CopyTerms()
	return doc
}

func copyCollection(c model.Collection) model.Collection {
	ids := make([]string, len(c.DocumentIDs))
	copy(ids, c.DocumentIDs)
	c.DocumentIDs = ids
	return c
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

// Document fetches a single document.
func (s *MemoryStore) Document(_ context.Context, documentID string) (model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[documentID]
	if !ok {
		return model.Document{}, apperrors.NewDocumentNotFoundError(documentID)
	}
	return copyDocument(doc), nil
}

// DocumentsInCollection returns members in the order they joined. Documents that
// reference the collection without being listed are appended in ID order so
// callers can detect the inconsistency.
func (s *MemoryStore) DocumentsInCollection(_ context.Context, collectionID string) ([]model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	collection, ok := s.collections[collectionID]
	if !ok {
		return nil, apperrors.NewCollectionNotFoundError(collectionID)
	}

	docs := make([]model.Document, 0, len(collection.DocumentIDs))
	seen := make(map[string]struct{}, len(collection.DocumentIDs))
	for _, id := range collection.DocumentIDs {
		doc, ok := s.docs[id]
		if !ok || doc.CollectionID != collectionID {
			continue
		}
		seen[id] = struct{}{}
		docs = append(docs, copyDocument(doc))
	}

	var strays []model.Document
	for id, doc := range s.docs {
		if _, listed := seen[id]; !listed && doc.CollectionID == collectionID {
			strays = append(strays, copyDocument(doc))
		}
	}
	sort.Slice(strays, func(i, j int) bool { return strays[i].ID < strays[j].ID })
	return append(docs, strays...), nil
}

// InsertDocument stores a new document and appends it to its collection's members.
func (s *MemoryStore) InsertDocument(_ context.Context, doc model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.ID]; exists {
		return apperrors.NewValidationError("id", fmt.Sprintf("document '%s' already exists", doc.ID))
	}

	var (
		collection model.Collection
		inColl     bool
	)
	if doc.CollectionID != "" {
		c, ok := s.collections[doc.CollectionID]
		if !ok {
			return apperrors.NewCollectionNotFoundError(doc.CollectionID)
		}
		collection, inColl = c, true
		updated := copyCollection(c)
		updated.DocumentIDs = append(updated.DocumentIDs, doc.ID)
		s.collections[c.ID] = updated
	}
	s.docs[doc.ID] = copyDocument(doc)

	return s.commit("insert document", func() {
		delete(s.docs, doc.ID)
		if inColl {
			s.collections[collection.ID] = collection
		}
	})
}

// DeleteDocument removes a document and its collection membership.
func (s *MemoryStore) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[documentID]
	if !ok {
		return apperrors.NewDocumentNotFoundError(documentID)
	}
	collection, inColl := s.collections[doc.CollectionID]
	if inColl {
		updated := copyCollection(collection)
		updated.DocumentIDs = removeID(updated.DocumentIDs, documentID)
		s.collections[collection.ID] = updated
	}
	delete(s.docs, documentID)

	return s.commit("delete document", func() {
		s.docs[documentID] = doc
		if inColl {
			s.collections[collection.ID] = collection
		}
	})
}

// SetDocumentCollection moves a document to collectionID, or detaches it when collectionID is empty.
func (s *MemoryStore) SetDocumentCollection(_ context.Context, documentID, collectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[documentID]
	if !ok {
		return apperrors.NewDocumentNotFoundError(documentID)
	}
	if doc.CollectionID == collectionID {
		return nil
	}

	target, hasTarget := s.collections[collectionID]
	if collectionID != "" && !hasTarget {
		return apperrors.NewCollectionNotFoundError(collectionID)
	}
	source, hasSource := s.collections[doc.CollectionID]

	if hasSource {
		updated := copyCollection(source)
		updated.DocumentIDs = removeID(updated.DocumentIDs, documentID)
		s.collections[source.ID] = updated
	}
	if hasTarget {
		updated := copyCollection(target)
		if !updated.Contains(documentID) {
			updated.DocumentIDs = append(updated.DocumentIDs, documentID)
		}
		s.collections[target.ID] = updated
	}
	moved := doc
	moved.CollectionID = collectionID
	s.docs[documentID] = moved

	return s.commit("move document", func() {
		s.docs[documentID] = doc
		if hasSource {
			s.collections[source.ID] = source
		}
		if hasTarget {
			s.collections[target.ID] = target
		}
	})
}

// PersistDocumentTerms overwrites the term list of one document.
func (s *MemoryStore) PersistDocumentTerms(ctx context.Context, documentID string, terms []model.TermStat) error {
	return s.PersistTerms(ctx, map[string][]model.TermStat{documentID: terms})
}

// PersistTerms overwrites several term lists. Nothing is written if any document is missing.
func (s *MemoryStore) PersistTerms(_ context.Context, updates map[string][]model.TermStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range updates {
		if _, ok := s.docs[id]; !ok {
			return apperrors.NewDocumentNotFoundError(id)
		}
	}

	previous := make(map[string]model.Document, len(updates))
	for id, terms := range updates {
		doc := s.docs[id]
		previous[id] = doc
		doc.Terms = make([]model.TermStat, len(terms))
		copy(doc.Terms, terms)
		s.docs[id] = doc
	}

	return s.commit("persist terms", func() {
		for id, doc := range previous {
			s.docs[id] = doc
		}
	})
}

// CreateCollection stores a new collection. Names are unique per owner.
func (s *MemoryStore) CreateCollection(_ context.Context, collection model.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[collection.ID]; exists {
		return apperrors.NewValidationError("id", fmt.Sprintf("collection '%s' already exists", collection.ID))
	}
	for _, existing := range s.collections {
		if existing.OwnerID == collection.OwnerID && existing.Name == collection.Name {
			return apperrors.NewCollectionAlreadyExistsError(collection.OwnerID, collection.Name)
		}
	}
	s.collections[collection.ID] = copyCollection(collection)

	return s.commit("create collection", func() {
		delete(s.collections, collection.ID)
	})
}

// Collection fetches a single collection.
func (s *MemoryStore) Collection(_ context.Context, collectionID string) (model.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	collection, ok := s.collections[collectionID]
	if !ok {
		return model.Collection{}, apperrors.NewCollectionNotFoundError(collectionID)
	}
	return copyCollection(collection), nil
}

// ListCollections returns the collections of ownerID, or all of them when ownerID is empty,
// oldest first.
func (s *MemoryStore) ListCollections(_ context.Context, ownerID string) ([]model.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Collection, 0, len(s.collections))
	for _, c := range s.collections {
		if ownerID == "" || c.OwnerID == ownerID {
			out = append(out, copyCollection(c))
		}
	}
	sortCollections(out)
	return out, nil
}

// DeleteCollection removes the collection and every document that belongs to it.
func (s *MemoryStore) DeleteCollection(_ context.Context, collectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection, ok := s.collections[collectionID]
	if !ok {
		return apperrors.NewCollectionNotFoundError(collectionID)
	}

	removed := make(map[string]model.Document)
	for id, doc := range s.docs {
		if doc.CollectionID == collectionID {
			removed[id] = doc
			delete(s.docs, id)
		}
	}
	delete(s.collections, collectionID)

	return s.commit("delete collection", func() {
		for id, doc := range removed {
			s.docs[id] = doc
		}
		s.collections[collectionID] = collection
	})
}

// Close writes a final snapshot when snapshots are enabled.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit("close", func() {})
}

func sortCollections(cs []model.Collection) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.Before(cs[j].CreatedAt)
		}
		return cs[i].ID < cs[j].ID
	})
}
