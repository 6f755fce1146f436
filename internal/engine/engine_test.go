package engine_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/go-doc-stats/internal/engine"
	apperrors "github.com/gcbaptista/go-doc-stats/internal/errors"
	"github.com/gcbaptista/go-doc-stats/internal/huffman"
	testutil "github.com/gcbaptista/go-doc-stats/internal/testing"
	"github.com/gcbaptista/go-doc-stats/model"
	"github.com/gcbaptista/go-doc-stats/services"
	"github.com/gcbaptista/go-doc-stats/store"
)

const rareIDF = 1.4054651081081644 // ln(3/2) + 1

func termsByName(terms []model.TermStat) map[string]model.TermStat {
	out := make(map[string]model.TermStat, len(terms))
	for _, ts := range terms {
		out[ts.Term] = ts
	}
	return out
}

func TestNew_NilStore(t *testing.T) {
	_, err := engine.New(nil)
	assert.Error(t, err)
}

func TestUploadDocument_SingleDocument(t *testing.T) {
	eng, _ := testutil.CreateTestEngine(t)
	coll := testutil.CreateTestCollection(t, eng, "alice", "animals")

	doc := testutil.UploadTestDocument(t, eng, coll.ID, "cat.txt", "the cat sat on the mat")

	assert.Equal(t, coll.ID, doc.CollectionID)
	assert.Equal(t, "alice", doc.OwnerID)
	assert.Equal(t, 6, doc.TokenCount)
	require.Len(t, doc.Terms, 5)

	wantOrder := []string{"the", "cat", "sat", "on", "mat"}
	for i, term := range wantOrder {
		assert.Equal(t, term, doc.Terms[i].Term)
	}
	assert.InDelta(t, 2.0/6.0, doc.Terms[0].TF, 1e-12)
	for _, ts := range doc.Terms {
		idf, ok := ts.IDFValue()
		require.True(t, ok)
		assert.InDelta(t, 1.0, idf, 1e-12, "single document collection gives idf 1 for %q", ts.Term)
	}
}

func TestUploadDocument_RescoresSiblings(t *testing.T) {
	ctx := context.Background()
	eng, _ := testutil.CreateTestEngine(t)
	coll := testutil.CreateTestCollection(t, eng, "alice", "animals")

	cat := testutil.UploadTestDocument(t, eng, coll.ID, "cat.txt", "the cat sat on the mat")
	testutil.UploadTestDocument(t, eng, coll.ID, "dog.txt", "the dog sat on the log")

	stored, err := eng.GetDocument(ctx, cat.ID)
	require.NoError(t, err)
	terms := termsByName(stored.Terms)
	assert.InDelta(t, 1.0, terms["the"].IDFOrZero(), 1e-12)
	assert.InDelta(t, 1.0, terms["sat"].IDFOrZero(), 1e-12)
	assert.InDelta(t, rareIDF, terms["cat"].IDFOrZero(), 1e-12)
	assert.InDelta(t, rareIDF, terms["mat"].IDFOrZero(), 1e-12)
}

func TestUploadDocument_Standalone(t *testing.T) {
	eng, _ := testutil.CreateTestEngine(t)

	doc := testutil.UploadTestDocument(t, eng, "", "note.txt", "hello world")
	assert.Equal(t, "", doc.CollectionID)
	testutil.AssertUnscored(t, doc)
}

func TestUploadDocument_DegenerateContent(t *testing.T) {
	eng, _ := testutil.CreateTestEngine(t)
	coll := testutil.CreateTestCollection(t, eng, "alice", "misc")

	doc := testutil.UploadTestDocument(t, eng, coll.ID, "empty.txt", "   !!! ... ???")
	assert.Equal(t, 0, doc.TokenCount)
	assert.Empty(t, doc.Terms)
}

func TestUploadDocument_Validation(t *testing.T) {
	ctx := context.Background()
	eng, _ := testutil.CreateTestEngine(t)

	_, err := eng.UploadDocument(ctx, "", "  ", "content")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = eng.UploadDocument(ctx, "missing", "a.txt", "content")
	assert.True(t, errors.Is(err, apperrors.ErrCollectionNotFound))
}

func TestUploadDocument_RejectsInvalidUTF8(t *testing.T) {
	ctx := context.Background()
	eng, _ := testutil.CreateTestEngine(t)
	coll := testutil.CreateTestCollection(t, eng, "alice", "bytes")

	_, err := eng.UploadDocument(ctx, coll.ID, "bin.txt", "ab\xffa")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	got, err := eng.GetCollection(ctx, coll.ID)
	require.NoError(t, err)
	assert.Empty(t, got.DocumentIDs)

	// Valid multi-byte content still round-trips through the encoder
	doc := testutil.UploadTestDocument(t, eng, coll.ID, "ru.txt", "привет мир")
	enc, err := eng.EncodeDocument(ctx, doc.ID)
	require.NoError(t, err)
	parsed, err := huffman.FromModel(enc)
	require.NoError(t, err)
	out, err := huffman.Decode(parsed.Encoded, parsed.Table)
	require.NoError(t, err)
	assert.Equal(t, "привет мир", out)
}

func TestUploadDocument_RecalculationFailureRemovesDocument(t *testing.T) {
	ctx := context.Background()
	faulty := testutil.NewFaultyStore(store.NewMemoryStore())
	eng := testutil.CreateTestEngineWithStore(t, faulty)
	coll := testutil.CreateTestCollection(t, eng, "alice", "animals")
	first := testutil.UploadTestDocument(t, eng, coll.ID, "cat.txt", "the cat sat on the mat")

	faulty.FailPersistTerms(errors.New("disk full"))
	_, err := eng.UploadDocument(ctx, coll.ID, "dog.txt", "the dog sat on the log")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStorageUnavailable))

	got, err := eng.GetCollection(ctx, coll.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, got.DocumentIDs, "failed upload must not stay in the collection")

	// The surviving document keeps its previous scores
	stored, err := eng.GetDocument(ctx, first.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, termsByName(stored.Terms)["cat"].IDFOrZero(), 1e-12)

	// Retrying after the fault clears succeeds
	faulty.FailPersistTerms(nil)
	testutil.UploadTestDocument(t, eng, coll.ID, "dog.txt", "the dog sat on the log")
	stored, err = eng.GetDocument(ctx, first.ID)
	require.NoError(t, err)
	assert.InDelta(t, rareIDF, termsByName(stored.Terms)["cat"].IDFOrZero(), 1e-12)
}

func TestDeleteDocument_Rescores(t *testing.T) {
	ctx := context.Background()
	eng, _ := testutil.CreateTestEngine(t)
	coll := testutil.CreateTestCollection(t, eng, "alice", "animals")
	cat := testutil.UploadTestDocument(t, eng, coll.ID, "cat.txt", "the cat sat on the mat")
	dog := testutil.UploadTestDocument(t, eng, coll.ID, "dog.txt", "the dog sat on the log")

	require.NoError(t, eng.DeleteDocument(ctx, dog.ID))

	_, err := eng.GetDocument(ctx, dog.ID)
	assert.True(t, errors.Is(err, apperrors.ErrDocumentNotFound))

	stored, err := eng.GetDocument(ctx, cat.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, termsByName(stored.Terms)["cat"].IDFOrZero(), 1e-12)

	assert.True(t, errors.Is(eng.DeleteDocument(ctx, dog.ID), apperrors.ErrDocumentNotFound))
}

func TestDeleteDocument_RecalculationFailureRestores(t *testing.T) {
	ctx := context.Background()
	faulty := testutil.NewFaultyStore(store.NewMemoryStore())
	eng := testutil.CreateTestEngineWithStore(t, faulty)
	coll := testutil.CreateTestCollection(t, eng, "alice", "animals")
	cat := testutil.UploadTestDocument(t, eng, coll.ID, "cat.txt", "the cat sat on the mat")
	testutil.UploadTestDocument(t, eng, coll.ID, "dog.txt", "the dog sat on the log")

	faulty.FailPersistTerms(errors.New("timeout"))
	err := eng.DeleteDocument(ctx, cat.ID)
	require.Error(t, err)

	_, err = eng.GetDocument(ctx, cat.ID)
	assert.NoError(t, err, "document must be restored after a failed recalculation")
	got, err := eng.GetCollection(ctx, coll.ID)
	require.NoError(t, err)
	assert.True(t, got.Contains(cat.ID))
}

func TestAttachAndDetach(t *testing.T) {
	ctx := context.Background()
	eng, _ := testutil.CreateTestEngine(t)
	coll := testutil.CreateTestCollection(t, eng, "alice", "animals")
	cat := testutil.UploadTestDocument(t, eng, coll.ID, "cat.txt", "the cat sat on the mat")
	loose := testutil.UploadTestDocument(t, eng, "", "dog.txt", "the dog sat on the log")

	require.NoError(t, eng.AttachDocument(ctx, coll.ID, loose.ID))

	attached, err := eng.GetDocument(ctx, loose.ID)
	require.NoError(t, err)
	assert.Equal(t, coll.ID, attached.CollectionID)
	testutil.AssertScored(t, attached)

	stored, err := eng.GetDocument(ctx, cat.ID)
	require.NoError(t, err)
	assert.InDelta(t, rareIDF, termsByName(stored.Terms)["cat"].IDFOrZero(), 1e-12)

	// Attaching twice is a no-op
	require.NoError(t, eng.AttachDocument(ctx, coll.ID, loose.ID))

	require.NoError(t, eng.DetachDocument(ctx, coll.ID, loose.ID))
	detached, err := eng.GetDocument(ctx, loose.ID)
	require.NoError(t, err)
	assert.Equal(t, "", detached.CollectionID)
	testutil.AssertUnscored(t, detached)

	stored, err = eng.GetDocument(ctx, cat.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, termsByName(stored.Terms)["cat"].IDFOrZero(), 1e-12)

	got, err := eng.GetCollection(ctx, coll.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{cat.ID}, got.DocumentIDs)
}

func TestAttach_MovesBetweenCollections(t *testing.T) {
	ctx := context.Background()
	eng, _ := testutil.CreateTestEngine(t)
	a := testutil.CreateTestCollection(t, eng, "alice", "a")
	b := testutil.CreateTestCollection(t, eng, "alice", "b")
	stay := testutil.UploadTestDocument(t, eng, a.ID, "cat.txt", "the cat sat on the mat")
	move := testutil.UploadTestDocument(t, eng, a.ID, "dog.txt", "the dog sat on the log")

	require.NoError(t, eng.AttachDocument(ctx, b.ID, move.ID))

	gotA, err := eng.GetCollection(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{stay.ID}, gotA.DocumentIDs)
	gotB, err := eng.GetCollection(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{move.ID}, gotB.DocumentIDs)

	stored, err := eng.GetDocument(ctx, stay.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, termsByName(stored.Terms)["cat"].IDFOrZero(), 1e-12, "previous collection must be rescored")
}

func TestAttachDetach_Errors(t *testing.T) {
	ctx := context.Background()
	eng, _ := testutil.CreateTestEngine(t)
	a := testutil.CreateTestCollection(t, eng, "alice", "a")
	b := testutil.CreateTestCollection(t, eng, "alice", "b")
	doc := testutil.UploadTestDocument(t, eng, a.ID, "cat.txt", "the cat")

	assert.True(t, errors.Is(eng.AttachDocument(ctx, "missing", doc.ID), apperrors.ErrCollectionNotFound))
	assert.True(t, errors.Is(eng.AttachDocument(ctx, a.ID, "missing"), apperrors.ErrDocumentNotFound))
	assert.True(t, errors.Is(eng.AttachDocument(ctx, "", doc.ID), apperrors.ErrInvalidInput))
	assert.True(t, errors.Is(eng.DetachDocument(ctx, b.ID, doc.ID), apperrors.ErrDocumentNotFound))
}

func TestCollections(t *testing.T) {
	ctx := context.Background()
	eng, _ := testutil.CreateTestEngine(t)

	coll := testutil.CreateTestCollection(t, eng, "alice", "  papers  ")
	assert.Equal(t, "papers", coll.Name)
	assert.Empty(t, coll.DocumentIDs)

	_, err := eng.CreateCollection(ctx, "alice", "papers")
	assert.True(t, errors.Is(err, apperrors.ErrCollectionAlreadyExists))
	_, err = eng.CreateCollection(ctx, "alice", " ")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	testutil.CreateTestCollection(t, eng, "bob", "papers")

	list, err := eng.ListCollections(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	docs := testutil.UploadSampleCorpus(t, eng, coll.ID)
	require.NoError(t, eng.DeleteCollection(ctx, coll.ID))

	_, err = eng.GetCollection(ctx, coll.ID)
	assert.True(t, errors.Is(err, apperrors.ErrCollectionNotFound))
	for _, doc := range docs {
		_, err := eng.GetDocument(ctx, doc.ID)
		assert.True(t, errors.Is(err, apperrors.ErrDocumentNotFound))
	}
}

func TestRecalculate(t *testing.T) {
	ctx := context.Background()
	eng, _ := testutil.CreateTestEngine(t)
	coll := testutil.CreateTestCollection(t, eng, "alice", "animals")
	cat := testutil.UploadTestDocument(t, eng, coll.ID, "cat.txt", "the cat sat on the mat")
	testutil.UploadTestDocument(t, eng, coll.ID, "dog.txt", "the dog sat on the log")

	before, err := eng.GetDocument(ctx, cat.ID)
	require.NoError(t, err)
	require.NoError(t, eng.Recalculate(ctx, coll.ID))
	after, err := eng.GetDocument(ctx, cat.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Terms, after.Terms, "recalculation must be idempotent")

	assert.True(t, errors.Is(eng.Recalculate(ctx, "missing"), apperrors.ErrCollectionNotFound))
}

func TestDocumentStatistics(t *testing.T) {
	ctx := context.Background()
	eng, _ := testutil.CreateTestEngine(t)
	coll := testutil.CreateTestCollection(t, eng, "alice", "animals")
	cat := testutil.UploadTestDocument(t, eng, coll.ID, "cat.txt", "the cat sat on the mat")
	testutil.UploadTestDocument(t, eng, coll.ID, "dog.txt", "the dog sat on the log")

	scores, err := eng.DocumentStatistics(ctx, cat.ID)
	require.NoError(t, err)
	got := make([]string, len(scores))
	for i, s := range scores {
		got[i] = s.Term
	}
	assert.Equal(t, []string{"cat", "mat", "the", "sat", "on"}, got)

	_, err = eng.DocumentStatistics(ctx, "missing")
	assert.True(t, errors.Is(err, apperrors.ErrDocumentNotFound))
}

func TestCollectionStatistics(t *testing.T) {
	ctx := context.Background()
	eng, _ := testutil.CreateTestEngine(t)
	coll := testutil.CreateTestCollection(t, eng, "alice", "animals")

	empty, err := eng.CollectionStatistics(ctx, coll.ID)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	testutil.UploadTestDocument(t, eng, coll.ID, "cat.txt", "the cat sat on the mat")
	testutil.UploadTestDocument(t, eng, coll.ID, "dog.txt", "the dog sat on the log")

	scores, err := eng.CollectionStatistics(ctx, coll.ID)
	require.NoError(t, err)
	got := make([]string, len(scores))
	for i, s := range scores {
		got[i] = s.Term
	}
	assert.Equal(t, []string{"cat", "mat", "dog", "log", "the", "sat", "on"}, got)
	assert.InDelta(t, 4.0/12.0, scores[4].TF, 1e-12)
	assert.InDelta(t, 1.0/12.0, scores[0].TF, 1e-12)

	var sum float64
	for _, s := range scores {
		sum += s.TF
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	_, err = eng.CollectionStatistics(ctx, "missing")
	assert.True(t, errors.Is(err, apperrors.ErrCollectionNotFound))
}

func TestCollectionStatistics_ConcurrentReads(t *testing.T) {
	ctx := context.Background()
	eng, _ := testutil.CreateTestEngine(t)
	coll := testutil.CreateTestCollection(t, eng, "alice", "animals")
	testutil.UploadSampleCorpus(t, eng, coll.ID)

	want, err := eng.CollectionStatistics(ctx, coll.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]model.TermScore, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			scores, err := eng.CollectionStatistics(ctx, coll.ID)
			assert.NoError(t, err)
			results[i] = scores
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, want, r)
	}
}

// gatedStore holds DocumentsInCollection until released and then honours the caller's ctx.
type gatedStore struct {
	services.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) DocumentsInCollection(ctx context.Context, collectionID string) ([]model.Document, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Store.DocumentsInCollection(ctx, collectionID)
}

func TestCollectionStatistics_CancelledCallerDoesNotFailOthers(t *testing.T) {
	ctx := context.Background()
	seeder, memStore := testutil.CreateTestEngine(t)
	coll := testutil.CreateTestCollection(t, seeder, "alice", "animals")
	testutil.UploadSampleCorpus(t, seeder, coll.ID)
	want, err := seeder.CollectionStatistics(ctx, coll.ID)
	require.NoError(t, err)

	gated := &gatedStore{
		Store:   memStore,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	eng := testutil.CreateTestEngineWithStore(t, gated)

	firstCtx, cancel := context.WithCancel(ctx)
	firstErr := make(chan error, 1)
	go func() {
		_, err := eng.CollectionStatistics(firstCtx, coll.ID)
		firstErr <- err
	}()
	<-gated.entered

	type outcome struct {
		scores []model.TermScore
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		scores, err := eng.CollectionStatistics(ctx, coll.ID)
		second <- outcome{scores, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	// Give the second reader time to join the in-flight fetch
	time.Sleep(20 * time.Millisecond)
	close(gated.release)

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, want, got.scores)
}

func TestEncodeDocument(t *testing.T) {
	ctx := context.Background()
	eng, _ := testutil.CreateTestEngine(t)
	doc := testutil.UploadTestDocument(t, eng, "", "a.txt", "aaab")

	enc, err := eng.EncodeDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "1110", enc.Encoded)
	assert.Equal(t, map[string]string{"a": "1", "b": "0"}, enc.CodeTable)

	_, err = eng.EncodeDocument(ctx, "missing")
	assert.True(t, errors.Is(err, apperrors.ErrDocumentNotFound))
}

func TestProcessingMetrics(t *testing.T) {
	eng, _ := testutil.CreateTestEngine(t)
	assert.Equal(t, int64(0), eng.ProcessingMetrics().FilesProcessed)

	coll := testutil.CreateTestCollection(t, eng, "alice", "animals")
	testutil.UploadSampleCorpus(t, eng, coll.ID)

	m := eng.ProcessingMetrics()
	assert.Equal(t, int64(len(testutil.SampleCorpus)), m.FilesProcessed)
	require.NotNil(t, m.AvgTimeProcessed)
	require.NotNil(t, m.LatestFileProcessedAt)
}

func TestWithTopK(t *testing.T) {
	eng, _ := testutil.CreateTestEngine(t, engine.WithTopK(2))
	doc := testutil.UploadTestDocument(t, eng, "", "cat.txt", "the cat sat on the mat")
	require.Len(t, doc.Terms, 2)
	assert.Equal(t, "the", doc.Terms[0].Term)
	assert.Equal(t, "cat", doc.Terms[1].Term)
}

// Concurrent uploads into one collection must never lose an update: once all
// finish, every document carries the IDF of a full-size collection.
func TestUploadDocument_ConcurrentSameCollection(t *testing.T) {
	ctx := context.Background()
	eng, _ := testutil.CreateTestEngine(t)
	coll := testutil.CreateTestCollection(t, eng, "alice", "busy")

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := eng.UploadDocument(ctx, coll.ID, fmt.Sprintf("doc%d.txt", i), fmt.Sprintf("shared unique%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := eng.GetCollection(ctx, coll.ID)
	require.NoError(t, err)
	require.Len(t, got.DocumentIDs, n)

	uniqueIDF := math.Log(float64(n+1)/2) + 1
	for _, id := range got.DocumentIDs {
		doc, err := eng.GetDocument(ctx, id)
		require.NoError(t, err)
		terms := termsByName(doc.Terms)
		assert.InDelta(t, 1.0, terms["shared"].IDFOrZero(), 1e-12)
		for term, ts := range terms {
			if term != "shared" {
				assert.InDelta(t, uniqueIDF, ts.IDFOrZero(), 1e-12)
			}
		}
	}
}
