// Package testing provides fixtures and helpers for testing the statistics engine.
package testing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/go-doc-stats/internal/engine"
	"github.com/gcbaptista/go-doc-stats/internal/metrics"
	"github.com/gcbaptista/go-doc-stats/model"
	"github.com/gcbaptista/go-doc-stats/services"
	"github.com/gcbaptista/go-doc-stats/store"
)

// SampleCorpus is a small set of documents with overlapping vocabulary.
var SampleCorpus = []struct {
	Filename string
	Content  string
}{
	{"cat.txt", "the cat sat on the mat"},
	{"dog.txt", "the dog sat on the log"},
	{"bird.txt", "a bird sang in the tree"},
}

// CreateTestEngine creates an engine over a fresh in-memory store with
// sequential IDs ("id-1", "id-2", ...) so tests can predict them.
func CreateTestEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *store.MemoryStore) {
	t.Helper()
	memStore := store.NewMemoryStore()
	eng := CreateTestEngineWithStore(t, memStore, opts...)
	return eng, memStore
}

// CreateTestEngineWithStore creates an engine over the given store.
func CreateTestEngineWithStore(t *testing.T, s services.Store, opts ...engine.Option) *engine.Engine {
	t.Helper()
	var seq atomic.Int64
	defaults := []engine.Option{
		engine.WithMetrics(metrics.New()),
		engine.WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
	}
	eng, err := engine.New(s, append(defaults, opts...)...)
	require.NoError(t, err, "Failed to create test engine")
	t.Cleanup(func() { _ = s.Close() })
	return eng
}

// CreateTestCollection creates a collection and fails the test on error.
func CreateTestCollection(t *testing.T, eng services.Engine, ownerID, name string) model.Collection {
	t.Helper()
	collection, err := eng.CreateCollection(context.Background(), ownerID, name)
	require.NoError(t, err, "Failed to create test collection")
	return collection
}

// UploadTestDocument uploads content into collectionID and fails the test on error.
func UploadTestDocument(t *testing.T, eng services.Engine, collectionID, filename, content string) model.Document {
	t.Helper()
	doc, err := eng.UploadDocument(context.Background(), collectionID, filename, content)
	require.NoError(t, err, "Failed to upload test document %s", filename)
	return doc
}

// UploadSampleCorpus uploads every SampleCorpus entry into collectionID.
func UploadSampleCorpus(t *testing.T, eng services.Engine, collectionID string) []model.Document {
	t.Helper()
	docs := make([]model.Document, 0, len(SampleCorpus))
	for _, sample := range SampleCorpus {
		docs = append(docs, UploadTestDocument(t, eng, collectionID, sample.Filename, sample.Content))
	}
	return docs
}

// TermByName finds a term in a term list.
func TermByName(terms []model.TermStat, term string) (model.TermStat, bool) {
	for _, ts := range terms {
		if ts.Term == term {
			return ts, true
		}
	}
	return model.TermStat{}, false
}

// AssertScored asserts that every term of doc carries an IDF.
func AssertScored(t *testing.T, doc model.Document) {
	t.Helper()
	for _, ts := range doc.Terms {
		assert.True(t, ts.IsScored(), "term %q of document %s has no IDF", ts.Term, doc.ID)
	}
}

// AssertUnscored asserts that no term of doc carries an IDF.
func AssertUnscored(t *testing.T, doc model.Document) {
	t.Helper()
	for _, ts := range doc.Terms {
		assert.False(t, ts.IsScored(), "term %q of document %s still has an IDF", ts.Term, doc.ID)
	}
}

// FaultyStore wraps a store and injects errors into selected operations.
type FaultyStore struct {
	services.Store

	mu                 sync.Mutex
	persistTermsErr    error
	documentsInCollErr error
	persistCalls       int
}

// NewFaultyStore wraps inner.
func NewFaultyStore(inner services.Store) *FaultyStore {
	return &FaultyStore{Store: inner}
}

// FailPersistTerms makes every following PersistTerms call return err; nil restores normal behavior.
func (f *FaultyStore) FailPersistTerms(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persistTermsErr = err
}

// FailDocumentsInCollection makes every following DocumentsInCollection call return err.
func (f *FaultyStore) FailDocumentsInCollection(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documentsInCollErr = err
}

// PersistCalls reports how many PersistTerms calls reached the wrapper.
func (f *FaultyStore) PersistCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.persistCalls
}

// PersistTerms fails with the injected error, if any.
func (f *FaultyStore) PersistTerms(ctx context.Context, updates map[string][]model.TermStat) error {
	f.mu.Lock()
	f.persistCalls++
	err := f.persistTermsErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.PersistTerms(ctx, updates)
}

// DocumentsInCollection fails with the injected error, if any.
func (f *FaultyStore) DocumentsInCollection(ctx context.Context, collectionID string) ([]model.Document, error) {
	f.mu.Lock()
	err := f.documentsInCollErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.DocumentsInCollection(ctx, collectionID)
}
