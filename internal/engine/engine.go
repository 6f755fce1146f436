// Package engine orchestrates the statistics pipeline over a store: tokenizing
// uploads, building term frequencies, keeping collection IDF values current and
// answering ranking and encoding reads.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/gcbaptista/go-doc-stats/internal/errors"
	"github.com/gcbaptista/go-doc-stats/internal/huffman"
	"github.com/gcbaptista/go-doc-stats/internal/logger"
	"github.com/gcbaptista/go-doc-stats/internal/metrics"
	"github.com/gcbaptista/go-doc-stats/internal/ranking"
	"github.com/gcbaptista/go-doc-stats/internal/statistics"
	"github.com/gcbaptista/go-doc-stats/internal/termfreq"
	"github.com/gcbaptista/go-doc-stats/internal/tokenizer"
	"github.com/gcbaptista/go-doc-stats/model"
	"github.com/gcbaptista/go-doc-stats/services"
)

// maxMoveAttempts bounds how often a document lock is retaken when the
// document changes collection between the read and the lock.
const maxMoveAttempts = 5

// Engine implements services.Engine.
//
// Every write that changes a collection's membership holds that collection's
// lock from the store write through the recalculation and its persist.
// Reads take no lock and may observe IDF values from the previous pass.
type Engine struct {
	store        services.Store
	builder      *termfreq.Builder
	recalculator *statistics.Recalculator
	locks        *keyedLocks
	aggregates   singleflight.Group
	metrics      *metrics.Metrics
	tracker      *metrics.ProcessingTracker
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithTopK sets how many terms are kept per document.
func WithTopK(k int) Option {
	return func(e *Engine) { e.builder = termfreq.NewBuilder(k) }
}

// WithMetrics shares a metrics instance, typically with the HTTP layer.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how document and collection IDs are generated.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

var _ services.Engine = (*Engine)(nil)

// New creates an engine over store.
func New(store services.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	recalculator, err := statistics.NewRecalculator(store)
	if err != nil {
		return nil, fmt.Errorf("failed to create recalculator: %w", err)
	}

	e := &Engine{
		store:        store,
		builder:      termfreq.NewBuilder(model.DefaultTopK),
		recalculator: recalculator,
		locks:        newKeyedLocks(),
		tracker:      metrics.NewProcessingTracker(metrics.DefaultSampleWindow),
		logger:       logger.WithComponent("engine"),
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	return e, nil
}

// Metrics returns the collectors the engine records into.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// ProcessingMetrics summarizes upload processing times.
func (e *Engine) ProcessingMetrics() model.ProcessingMetrics {
	return e.tracker.Snapshot()
}

// recalculate runs one pass over collectionID. The caller holds the collection lock.
func (e *Engine) recalculate(ctx context.Context, collectionID string) error {
	start := e.now()
	result, err := e.recalculator.Run(ctx, collectionID)
	e.metrics.RecalculationDuration.Observe(e.now().Sub(start).Seconds())
	if err != nil {
		e.metrics.RecalculationsTotal.WithLabelValues("failure").Inc()
		e.log(ctx).Error("recalculation failed",
			"collection_id", collectionID,
			"error", err)
		return err
	}
	e.metrics.RecalculationsTotal.WithLabelValues("success").Inc()
	e.log(ctx).Debug("recalculation complete",
		"collection_id", collectionID,
		"documents", len(result.Documents),
		"terms", result.Terms)
	return nil
}

// log returns the engine logger tagged with the request ID of ctx, if any.
func (e *Engine) log(ctx context.Context) *slog.Logger {
	if id, ok := logger.RequestID(ctx); ok {
		return e.logger.With("request_id", id)
	}
	return e.logger
}

// undo runs a compensating write that must complete even if the request was cancelled.
func (e *Engine) undo(ctx context.Context, what string, fn func(ctx context.Context) error) {
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		e.log(ctx).Error("failed to undo write",
			"operation", what,
			"error", err)
	}
}

// lockDocument reads the document and locks its current collection together with extra.
// The read is repeated under the lock so the returned document is stable until unlock.
func (e *Engine) lockDocument(ctx context.Context, documentID string, extra ...string) (model.Document, func(), error) {
	for attempt := 0; attempt < maxMoveAttempts; attempt++ {
		before, err := e.store.Document(ctx, documentID)
		if err != nil {
			return model.Document{}, nil, err
		}
		unlock := e.locks.Lock(append([]string{before.CollectionID}, extra...)...)
		doc, err := e.store.Document(ctx, documentID)
		if err != nil {
			unlock()
			return model.Document{}, nil, err
		}
		if doc.CollectionID == before.CollectionID {
			return doc, unlock, nil
		}
		unlock()
	}
	return model.Document{}, nil, apperrors.NewRecalculationFailedError("",
		fmt.Sprintf("document '%s' kept moving between collections", documentID))
}

// UploadDocument tokenizes content, stores the document and rescores its collection.
// An empty collectionID stores a standalone document whose terms stay unscored.
// When the recalculation fails the document is removed again and the error returned.
func (e *Engine) UploadDocument(ctx context.Context, collectionID, filename, content string) (model.Document, error) {
	start := e.now()
	filename = strings.TrimSpace(filename)
	if filename == "" {
		e.metrics.DocumentsRejected.WithLabelValues("invalid_input").Inc()
		return model.Document{}, apperrors.NewValidationError("filename", "filename cannot be empty")
	}
	if !utf8.ValidString(content) {
		e.metrics.DocumentsRejected.WithLabelValues("invalid_input").Inc()
		return model.Document{}, apperrors.NewValidationError("content", "content must be valid UTF-8")
	}

	unlock := e.locks.Lock(collectionID)
	defer unlock()

	var ownerID string
	if collectionID != "" {
		collection, err := e.store.Collection(ctx, collectionID)
		if err != nil {
			return model.Document{}, err
		}
		ownerID = collection.OwnerID
	}

	res, err := e.builder.Build(tokenizer.Tokenize(content))
	if err != nil && !errors.Is(err, apperrors.ErrDegenerateDocument) {
		return model.Document{}, err
	}
	if err != nil {
		e.log(ctx).Info("document has no terms",
			"filename", filename)
	}

	doc := model.Document{
		ID:           e.newID(),
		CollectionID: collectionID,
		OwnerID:      ownerID,
		Filename:     filename,
		Content:      content,
		TokenCount:   res.TokenCount,
		Terms:        res.Terms,
		CreatedAt:    e.now().UTC(),
	}
	if err := e.store.InsertDocument(ctx, doc); err != nil {
		return model.Document{}, err
	}

	if collectionID != "" {
		if err := e.recalculate(ctx, collectionID); err != nil {
			e.undo(ctx, "remove uploaded document", func(ctx context.Context) error {
				return e.store.DeleteDocument(ctx, doc.ID)
			})
			e.metrics.DocumentsRejected.WithLabelValues("recalculation_failed").Inc()
			return model.Document{}, err
		}
	}

	stored, err := e.store.Document(ctx, doc.ID)
	if err != nil {
		return model.Document{}, err
	}

	elapsed := e.now().Sub(start)
	e.metrics.DocumentsProcessed.Inc()
	e.metrics.ProcessingDuration.Observe(elapsed.Seconds())
	e.tracker.Record(elapsed)

	e.log(ctx).Info("document processed",
		"document_id", stored.ID,
		"collection_id", collectionID,
		"tokens", stored.TokenCount,
		"terms", len(stored.Terms),
		"duration", elapsed)
	return stored, nil
}

// DeleteDocument removes a document and rescores the collection it belonged to.
func (e *Engine) DeleteDocument(ctx context.Context, documentID string) error {
	doc, unlock, err := e.lockDocument(ctx, documentID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := e.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if doc.CollectionID == "" {
		return nil
	}
	if err := e.recalculate(ctx, doc.CollectionID); err != nil {
		e.undo(ctx, "restore deleted document", func(ctx context.Context) error {
			return e.store.InsertDocument(ctx, doc)
		})
		return err
	}
	e.log(ctx).Info("document deleted",
		"document_id", documentID,
		"collection_id", doc.CollectionID)
	return nil
}

// AttachDocument moves a document into collectionID and rescores every affected collection.
// Attaching a document to the collection it already belongs to is a no-op.
func (e *Engine) AttachDocument(ctx context.Context, collectionID, documentID string) error {
	if collectionID == "" {
		return apperrors.NewValidationError("collection_id", "collection ID cannot be empty")
	}
	doc, unlock, err := e.lockDocument(ctx, documentID, collectionID)
	if err != nil {
		return err
	}
	defer unlock()

	if doc.CollectionID == collectionID {
		return nil
	}
	if _, err := e.store.Collection(ctx, collectionID); err != nil {
		return err
	}

	previous := doc.CollectionID
	if err := e.store.SetDocumentCollection(ctx, documentID, collectionID); err != nil {
		return err
	}
	if err := e.recalculate(ctx, collectionID); err != nil {
		e.undo(ctx, "revert attach", func(ctx context.Context) error {
			return e.store.SetDocumentCollection(ctx, documentID, previous)
		})
		return err
	}
	if previous != "" {
		// The move stands; a later Recalculate repairs the previous collection.
		if err := e.recalculate(ctx, previous); err != nil {
			return err
		}
	}

	e.log(ctx).Info("document attached",
		"document_id", documentID,
		"collection_id", collectionID,
		"previous_collection_id", previous)
	return nil
}

// DetachDocument removes a document from collectionID without deleting it.
// The detached document's terms revert to unscored.
func (e *Engine) DetachDocument(ctx context.Context, collectionID, documentID string) error {
	doc, unlock, err := e.lockDocument(ctx, documentID, collectionID)
	if err != nil {
		return err
	}
	defer unlock()

	if collectionID == "" || doc.CollectionID != collectionID {
		return apperrors.NewDocumentNotFoundError(documentID, collectionID)
	}

	unscored := make([]model.TermStat, len(doc.Terms))
	for i, t := range doc.Terms {
		unscored[i] = t.WithoutIDF()
	}

	if err := e.store.SetDocumentCollection(ctx, documentID, ""); err != nil {
		return err
	}
	if err := e.store.PersistDocumentTerms(ctx, documentID, unscored); err != nil {
		e.undo(ctx, "revert detach", func(ctx context.Context) error {
			return e.store.SetDocumentCollection(ctx, documentID, collectionID)
		})
		return err
	}
	if err := e.recalculate(ctx, collectionID); err != nil {
		e.undo(ctx, "revert detach", func(ctx context.Context) error {
			if err := e.store.SetDocumentCollection(ctx, documentID, collectionID); err != nil {
				return err
			}
			return e.store.PersistDocumentTerms(ctx, documentID, doc.Terms)
		})
		return err
	}

	e.log(ctx).Info("document detached",
		"document_id", documentID,
		"collection_id", collectionID)
	return nil
}

// Recalculate runs an explicit recalculation pass over collectionID.
func (e *Engine) Recalculate(ctx context.Context, collectionID string) error {
	unlock := e.locks.Lock(collectionID)
	defer unlock()

	if _, err := e.store.Collection(ctx, collectionID); err != nil {
		return err
	}
	return e.recalculate(ctx, collectionID)
}

// CreateCollection creates an empty collection. Names are trimmed and must be unique per owner.
func (e *Engine) CreateCollection(ctx context.Context, ownerID, name string) (model.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Collection{}, apperrors.NewValidationError("name", "collection name cannot be empty")
	}

	collection := model.Collection{
		ID:          e.newID(),
		OwnerID:     strings.TrimSpace(ownerID),
		Name:        name,
		DocumentIDs: []string{},
		CreatedAt:   e.now().UTC(),
	}
	if err := e.store.CreateCollection(ctx, collection); err != nil {
		return model.Collection{}, err
	}
	e.log(ctx).Info("collection created",
		"collection_id", collection.ID,
		"owner_id", collection.OwnerID,
		"name", collection.Name)
	return collection, nil
}

// GetCollection fetches a collection and its member IDs.
func (e *Engine) GetCollection(ctx context.Context, collectionID string) (model.Collection, error) {
	return e.store.Collection(ctx, collectionID)
}

// ListCollections lists the collections of ownerID, or every collection when ownerID is empty.
func (e *Engine) ListCollections(ctx context.Context, ownerID string) ([]model.Collection, error) {
	return e.store.ListCollections(ctx, strings.TrimSpace(ownerID))
}

// DeleteCollection deletes a collection together with its documents.
func (e *Engine) DeleteCollection(ctx context.Context, collectionID string) error {
	unlock := e.locks.Lock(collectionID)
	defer unlock()

	if err := e.store.DeleteCollection(ctx, collectionID); err != nil {
		return err
	}
	e.log(ctx).Info("collection deleted",
		"collection_id", collectionID)
	return nil
}

// GetDocument fetches a stored document.
func (e *Engine) GetDocument(ctx context.Context, documentID string) (model.Document, error) {
	return e.store.Document(ctx, documentID)
}

// DocumentStatistics returns the document's terms ranked by IDF.
func (e *Engine) DocumentStatistics(ctx context.Context, documentID string) ([]model.TermScore, error) {
	doc, err := e.store.Document(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return ranking.DocumentRanking(doc), nil
}

// CollectionStatistics returns the collection-wide aggregate. Concurrent reads of
// the same collection share one computation. The shared fetch is not bound to any
// single caller's cancellation; each caller stops waiting when its own ctx is done.
func (e *Engine) CollectionStatistics(ctx context.Context, collectionID string) ([]model.TermScore, error) {
	fetchCtx := context.WithoutCancel(ctx)
	ch := e.aggregates.DoChan(collectionID, func() (interface{}, error) {
		docs, err := e.store.DocumentsInCollection(fetchCtx, collectionID)
		if err != nil {
			return nil, err
		}
		return ranking.CollectionAggregate(docs), nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	e.metrics.AggregateReadsTotal.WithLabelValues(strconv.FormatBool(res.Shared)).Inc()
	if res.Err != nil {
		return nil, res.Err
	}

	scores := res.Val.([]model.TermScore)
	out := make([]model.TermScore, len(scores))
	copy(out, scores)
	return out, nil
}

// EncodeDocument Huffman-encodes the document's content.
func (e *Engine) EncodeDocument(ctx context.Context, documentID string) (model.HuffmanEncoding, error) {
	doc, err := e.store.Document(ctx, documentID)
	if err != nil {
		return model.HuffmanEncoding{}, err
	}
	enc := huffman.Encode(doc.Content).Model()
	e.metrics.HuffmanEncodesTotal.Inc()
	return enc, nil
}
