package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gcbaptista/go-doc-stats/internal/errors"
	"github.com/gcbaptista/go-doc-stats/model"
	"github.com/gcbaptista/go-doc-stats/services"
)

func seedCollection(t *testing.T, s services.Store, id, owner, name string) model.Collection {
	t.Helper()
	c := model.Collection{ID: id, OwnerID: owner, Name: name, CreatedAt: time.Now()}
	require.NoError(t, s.CreateCollection(context.Background(), c))
	return c
}

func seedDocument(t *testing.T, s services.Store, id, collectionID string, terms ...model.TermStat) model.Document {
	t.Helper()
	doc := model.Document{ID: id, CollectionID: collectionID, Filename: id + ".txt", Terms: terms, TokenCount: len(terms)}
	require.NoError(t, s.InsertDocument(context.Background(), doc))
	return doc
}

func TestMemoryStore_InsertAndFetch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedCollection(t, s, "c1", "alice", "papers")

	seedDocument(t, s, "d1", "c1", model.Unscored("cat", 0.5))
	seedDocument(t, s, "d2", "c1", model.Unscored("dog", 1))

	doc, err := s.Document(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "c1", doc.CollectionID)
	assert.False(t, doc.IsScored())

	coll, err := s.Collection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2"}, coll.DocumentIDs)

	docs, err := s.DocumentsInCollection(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d1", docs[0].ID)
	assert.Equal(t, "d2", docs[1].ID)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedCollection(t, s, "c1", "alice", "papers")
	seedDocument(t, s, "d1", "c1", model.Unscored("cat", 1))

	doc, err := s.Document(ctx, "d1")
	require.NoError(t, err)
	doc.Terms[0].Term = "mutated"

	coll, err := s.Collection(ctx, "c1")
	require.NoError(t, err)
	coll.DocumentIDs[0] = "mutated"

	again, err := s.Document(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "cat", again.Terms[0].Term)

	collAgain, err := s.Collection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, collAgain.DocumentIDs)
}

func TestMemoryStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedCollection(t, s, "c1", "alice", "papers")

	_, err := s.Document(ctx, "missing")
	assert.True(t, errors.Is(err, apperrors.ErrDocumentNotFound))

	_, err = s.Collection(ctx, "missing")
	assert.True(t, errors.Is(err, apperrors.ErrCollectionNotFound))

	_, err = s.DocumentsInCollection(ctx, "missing")
	assert.True(t, errors.Is(err, apperrors.ErrCollectionNotFound))

	err = s.InsertDocument(ctx, model.Document{ID: "d1", CollectionID: "missing"})
	assert.True(t, errors.Is(err, apperrors.ErrCollectionNotFound))

	seedDocument(t, s, "d1", "c1")
	err = s.InsertDocument(ctx, model.Document{ID: "d1", CollectionID: "c1"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	err = s.CreateCollection(ctx, model.Collection{ID: "c2", OwnerID: "alice", Name: "papers"})
	assert.True(t, errors.Is(err, apperrors.ErrCollectionAlreadyExists))

	// Same name under another owner is fine
	require.NoError(t, s.CreateCollection(ctx, model.Collection{ID: "c3", OwnerID: "bob", Name: "papers"}))

	assert.True(t, errors.Is(s.DeleteDocument(ctx, "missing"), apperrors.ErrDocumentNotFound))
	assert.True(t, errors.Is(s.DeleteCollection(ctx, "missing"), apperrors.ErrCollectionNotFound))
	assert.True(t, errors.Is(s.SetDocumentCollection(ctx, "d1", "missing"), apperrors.ErrCollectionNotFound))
}

func TestMemoryStore_PersistTermsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedCollection(t, s, "c1", "alice", "papers")
	seedDocument(t, s, "d1", "c1", model.Unscored("cat", 1))

	err := s.PersistTerms(ctx, map[string][]model.TermStat{
		"d1":      {model.Scored("cat", 1, 1)},
		"missing": {model.Scored("dog", 1, 1)},
	})
	assert.True(t, errors.Is(err, apperrors.ErrDocumentNotFound))

	doc, err := s.Document(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, doc.IsScored(), "partial update must not be applied")

	require.NoError(t, s.PersistTerms(ctx, map[string][]model.TermStat{"d1": {model.Scored("cat", 1, 1)}}))
	doc, err = s.Document(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, doc.IsScored())
}

func TestMemoryStore_MoveAndDetach(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedCollection(t, s, "c1", "alice", "a")
	seedCollection(t, s, "c2", "alice", "b")
	seedDocument(t, s, "d1", "c1")

	require.NoError(t, s.SetDocumentCollection(ctx, "d1", "c2"))
	c1, _ := s.Collection(ctx, "c1")
	c2, _ := s.Collection(ctx, "c2")
	assert.Empty(t, c1.DocumentIDs)
	assert.Equal(t, []string{"d1"}, c2.DocumentIDs)

	require.NoError(t, s.SetDocumentCollection(ctx, "d1", ""))
	c2, _ = s.Collection(ctx, "c2")
	assert.Empty(t, c2.DocumentIDs)
	doc, err := s.Document(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "", doc.CollectionID)

	docs, err := s.DocumentsInCollection(ctx, "c2")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestMemoryStore_DeleteCollectionCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedCollection(t, s, "c1", "alice", "a")
	seedCollection(t, s, "c2", "alice", "b")
	seedDocument(t, s, "d1", "c1")
	seedDocument(t, s, "d2", "c2")

	require.NoError(t, s.DeleteCollection(ctx, "c1"))

	_, err := s.Document(ctx, "d1")
	assert.True(t, errors.Is(err, apperrors.ErrDocumentNotFound))
	_, err = s.Document(ctx, "d2")
	assert.NoError(t, err)

	list, err := s.ListCollections(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c2", list[0].ID)
}

func TestMemoryStore_ListCollections(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Now()
	require.NoError(t, s.CreateCollection(ctx, model.Collection{ID: "b", OwnerID: "alice", Name: "second", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, s.CreateCollection(ctx, model.Collection{ID: "a", OwnerID: "alice", Name: "first", CreatedAt: base}))
	require.NoError(t, s.CreateCollection(ctx, model.Collection{ID: "c", OwnerID: "bob", Name: "other", CreatedAt: base}))

	alice, err := s.ListCollections(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, "a", alice[0].ID)
	assert.Equal(t, "b", alice[1].ID)

	all, err := s.ListCollections(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryStore_Snapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenMemoryStore(dir)
	require.NoError(t, err)
	seedCollection(t, s, "c1", "alice", "papers")
	seedDocument(t, s, "d1", "c1", model.Scored("cat", 0.5, 1.2))
	require.NoError(t, s.Close())

	reopened, err := OpenMemoryStore(dir)
	require.NoError(t, err)
	doc, err := reopened.Document(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, doc.Terms, 1)
	assert.InDelta(t, 1.2, doc.Terms[0].IDFOrZero(), 1e-12)

	coll, err := reopened.Collection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, coll.DocumentIDs)
}

func TestMemoryStore_SnapshotFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := OpenMemoryStore(dir)
	require.NoError(t, err)
	seedCollection(t, s, "c1", "alice", "papers")

	// Replace the data directory with a file so the next snapshot cannot be written
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o600))
	t.Cleanup(func() { os.Remove(dir) })

	err = s.InsertDocument(ctx, model.Document{ID: "d1", CollectionID: "c1"})
	assert.True(t, errors.Is(err, apperrors.ErrStorageUnavailable))

	_, err = s.Document(ctx, "d1")
	assert.True(t, errors.Is(err, apperrors.ErrDocumentNotFound))
	coll, err := s.Collection(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, coll.DocumentIDs)
}

func TestOpenMemoryStore_CorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, snapshotFile), []byte("garbage"), 0o600))

	_, err := OpenMemoryStore(dir)
	assert.True(t, errors.Is(err, apperrors.ErrStorageUnavailable))
}
