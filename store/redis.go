package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gcbaptista/go-doc-stats/config"
	apperrors "github.com/gcbaptista/go-doc-stats/internal/errors"
	"github.com/gcbaptista/go-doc-stats/internal/logger"
	"github.com/gcbaptista/go-doc-stats/model"
)

// maxWatchRetries bounds optimistic transaction retries under contention.
const maxWatchRetries = 8

// RedisStore keeps documents and collections in Redis.
//
// Key layout:
//
//	<prefix>:doc:<id>              document JSON
//	<prefix>:coll:<id>             collection metadata JSON
//	<prefix>:coll:<id>:docs        member list, in join order
//	<prefix>:owner:<owner>:names   hash of collection name to collection ID
//	<prefix>:colls                 set of all collection IDs
//
// Multi-key writes run in WATCH/MULTI transactions so they apply entirely or not at all.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewRedisClient creates a Redis client and verifies the connection with a PING.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, apperrors.NewStorageUnavailableError("redis ping", err)
	}
	return rdb, nil
}

// NewRedisStore wraps an existing client. An empty prefix defaults to "docstats".
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "docstats"
	}
	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		logger: logger.WithComponent("redis-store"),
	}
}

// OpenRedisStore connects to Redis and returns a store using cfg.KeyPrefix.
func OpenRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	rdb, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	s := NewRedisStore(rdb, cfg.KeyPrefix)
	s.logger.Info("connected to redis", "addr", cfg.Addr, "db", cfg.DB, "prefix", s.prefix)
	return s, nil
}

func (s *RedisStore) docKey(id string) string      { return s.prefix + ":doc:" + id }
func (s *RedisStore) collKey(id string) string     { return s.prefix + ":coll:" + id }
func (s *RedisStore) membersKey(id string) string  { return s.prefix + ":coll:" + id + ":docs" }
func (s *RedisStore) ownerKey(owner string) string { return s.prefix + ":owner:" + owner + ":names" }
func (s *RedisStore) allCollectionsKey() string    { return s.prefix + ":colls" }

// redisReader is the read side shared by clients and transactions.
type redisReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// isNil reports whether err is a Redis nil (key-not-found) reply.
func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// watch runs fn in an optimistic transaction over keys, retrying when a watched key changes.
func (s *RedisStore) watch(ctx context.Context, op string, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.rdb.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("transaction conflict, retrying", "op", op, "attempt", attempt+1)
			continue
		}
		return wrapBackend(op, err)
	}
	return apperrors.NewStorageUnavailableError(op, fmt.Errorf("gave up after %d conflicting attempts", maxWatchRetries))
}

func (s *RedisStore) loadDocument(ctx context.Context, c redisReader, documentID string) (model.Document, error) {
	data, err := c.Get(ctx, s.docKey(documentID)).Bytes()
	if isNil(err) {
		return model.Document{}, apperrors.NewDocumentNotFoundError(documentID)
	}
	if err != nil {
		return model.Document{}, apperrors.NewStorageUnavailableError("get document", err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return model.Document{}, apperrors.NewStorageUnavailableError("decode document", err)
	}
	return doc, nil
}

func (s *RedisStore) loadCollection(ctx context.Context, c redisReader, collectionID string) (model.Collection, error) {
	data, err := c.Get(ctx, s.collKey(collectionID)).Bytes()
	if isNil(err) {
		return model.Collection{}, apperrors.NewCollectionNotFoundError(collectionID)
	}
	if err != nil {
		return model.Collection{}, apperrors.NewStorageUnavailableError("get collection", err)
	}
	members, err := c.LRange(ctx, s.membersKey(collectionID), 0, -1).Result()
	if err != nil {
		return model.Collection{}, apperrors.NewStorageUnavailableError("list collection members", err)
	}
	collection, err := decodeCollection(data, members)
	if err != nil {
		return model.Collection{}, apperrors.NewStorageUnavailableError("decode collection", err)
	}
	return collection, nil
}

// Document fetches a single document.
func (s *RedisStore) Document(ctx context.Context, documentID string) (model.Document, error) {
	return s.loadDocument(ctx, s.rdb, documentID)
}

// DocumentsInCollection returns listed members that still reference the collection, in join order.
func (s *RedisStore) DocumentsInCollection(ctx context.Context, collectionID string) ([]model.Document, error) {
	collection, err := s.loadCollection(ctx, s.rdb, collectionID)
	if err != nil {
		return nil, err
	}
	if len(collection.DocumentIDs) == 0 {
		return []model.Document{}, nil
	}

	keys := make([]string, len(collection.DocumentIDs))
	for i, id := range collection.DocumentIDs {
		keys[i] = s.docKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError("fetch collection documents", err)
	}

	docs := make([]model.Document, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // member vanished
		}
		doc, err := decodeDocument([]byte(raw))
		if err != nil {
			return nil, apperrors.NewStorageUnavailableError("decode document", err)
		}
		if doc.CollectionID == collectionID {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// InsertDocument stores a new document and appends it to its collection's members.
func (s *RedisStore) InsertDocument(ctx context.Context, doc model.Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return apperrors.NewStorageUnavailableError("encode document", err)
	}

	keys := []string{s.docKey(doc.ID)}
	if doc.CollectionID != "" {
		keys = append(keys, s.collKey(doc.CollectionID))
	}

	return s.watch(ctx, "insert document", func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, s.docKey(doc.ID)).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return apperrors.NewValidationError("id", fmt.Sprintf("document '%s' already exists", doc.ID))
		}
		if doc.CollectionID != "" {
			n, err := tx.Exists(ctx, s.collKey(doc.CollectionID)).Result()
			if err != nil {
				return err
			}
			if n == 0 {
				return apperrors.NewCollectionNotFoundError(doc.CollectionID)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.docKey(doc.ID), data, 0)
			if doc.CollectionID != "" {
				pipe.RPush(ctx, s.membersKey(doc.CollectionID), doc.ID)
			}
			return nil
		})
		return err
	}, keys...)
}

// DeleteDocument removes a document and its collection membership.
func (s *RedisStore) DeleteDocument(ctx context.Context, documentID string) error {
	return s.watch(ctx, "delete document", func(tx *redis.Tx) error {
		doc, err := s.loadDocument(ctx, tx, documentID)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.docKey(documentID))
			if doc.CollectionID != "" {
				pipe.LRem(ctx, s.membersKey(doc.CollectionID), 0, documentID)
			}
			return nil
		})
		return err
	}, s.docKey(documentID))
}

// SetDocumentCollection moves a document to collectionID, or detaches it when collectionID is empty.
func (s *RedisStore) SetDocumentCollection(ctx context.Context, documentID, collectionID string) error {
	keys := []string{s.docKey(documentID)}
	if collectionID != "" {
		keys = append(keys, s.collKey(collectionID), s.membersKey(collectionID))
	}

	return s.watch(ctx, "move document", func(tx *redis.Tx) error {
		doc, err := s.loadDocument(ctx, tx, documentID)
		if err != nil {
			return err
		}
		if doc.CollectionID == collectionID {
			return nil
		}
		if collectionID != "" {
			n, err := tx.Exists(ctx, s.collKey(collectionID)).Result()
			if err != nil {
				return err
			}
			if n == 0 {
				return apperrors.NewCollectionNotFoundError(collectionID)
			}
		}

		previous := doc.CollectionID
		doc.CollectionID = collectionID
		data, err := encodeDocument(doc)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if previous != "" {
				pipe.LRem(ctx, s.membersKey(previous), 0, documentID)
			}
			if collectionID != "" {
				pipe.LRem(ctx, s.membersKey(collectionID), 0, documentID)
				pipe.RPush(ctx, s.membersKey(collectionID), documentID)
			}
			pipe.Set(ctx, s.docKey(documentID), data, 0)
			return nil
		})
		return err
	}, keys...)
}

// PersistDocumentTerms overwrites the term list of one document.
func (s *RedisStore) PersistDocumentTerms(ctx context.Context, documentID string, terms []model.TermStat) error {
	return s.PersistTerms(ctx, map[string][]model.TermStat{documentID: terms})
}

// PersistTerms overwrites several term lists in one transaction.
func (s *RedisStore) PersistTerms(ctx context.Context, updates map[string][]model.TermStat) error {
	if len(updates) == 0 {
		return nil
	}
	keys := make([]string, 0, len(updates))
	for id := range updates {
		keys = append(keys, s.docKey(id))
	}

	return s.watch(ctx, "persist terms", func(tx *redis.Tx) error {
		encoded := make(map[string][]byte, len(updates))
		for id, terms := range updates {
			doc, err := s.loadDocument(ctx, tx, id)
			if err != nil {
				return err
			}
			doc.Terms = terms
			data, err := encodeDocument(doc)
			if err != nil {
				return err
			}
			encoded[id] = data
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for id, data := range encoded {
				pipe.Set(ctx, s.docKey(id), data, 0)
			}
			return nil
		})
		return err
	}, keys...)
}

// CreateCollection stores a new collection. Names are unique per owner.
func (s *RedisStore) CreateCollection(ctx context.Context, collection model.Collection) error {
	data, err := encodeCollection(collection)
	if err != nil {
		return apperrors.NewStorageUnavailableError("encode collection", err)
	}
	ownerKey := s.ownerKey(collection.OwnerID)

	return s.watch(ctx, "create collection", func(tx *redis.Tx) error {
		taken, err := tx.HExists(ctx, ownerKey, collection.Name).Result()
		if err != nil {
			return err
		}
		if taken {
			return apperrors.NewCollectionAlreadyExistsError(collection.OwnerID, collection.Name)
		}
		n, err := tx.Exists(ctx, s.collKey(collection.ID)).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return apperrors.NewValidationError("id", fmt.Sprintf("collection '%s' already exists", collection.ID))
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.collKey(collection.ID), data, 0)
			pipe.HSet(ctx, ownerKey, collection.Name, collection.ID)
			pipe.SAdd(ctx, s.allCollectionsKey(), collection.ID)
			return nil
		})
		return err
	}, ownerKey, s.collKey(collection.ID))
}

// Collection fetches a single collection with its members.
func (s *RedisStore) Collection(ctx context.Context, collectionID string) (model.Collection, error) {
	return s.loadCollection(ctx, s.rdb, collectionID)
}

// ListCollections returns the collections of ownerID, or all of them when ownerID is empty, oldest first.
func (s *RedisStore) ListCollections(ctx context.Context, ownerID string) ([]model.Collection, error) {
	var (
		ids []string
		err error
	)
	if ownerID == "" {
		ids, err = s.rdb.SMembers(ctx, s.allCollectionsKey()).Result()
	} else {
		ids, err = s.rdb.HVals(ctx, s.ownerKey(ownerID)).Result()
	}
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError("list collections", err)
	}

	out := make([]model.Collection, 0, len(ids))
	for _, id := range ids {
		c, err := s.loadCollection(ctx, s.rdb, id)
		if errors.Is(err, apperrors.ErrCollectionNotFound) {
			continue // deleted concurrently
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sortCollections(out)
	return out, nil
}

// DeleteCollection removes the collection and every listed member document.
func (s *RedisStore) DeleteCollection(ctx context.Context, collectionID string) error {
	return s.watch(ctx, "delete collection", func(tx *redis.Tx) error {
		collection, err := s.loadCollection(ctx, tx, collectionID)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range collection.DocumentIDs {
				pipe.Del(ctx, s.docKey(id))
			}
			pipe.Del(ctx, s.collKey(collectionID), s.membersKey(collectionID))
			pipe.HDel(ctx, s.ownerKey(collection.OwnerID), collection.Name)
			pipe.SRem(ctx, s.allCollectionsKey(), collectionID)
			return nil
		})
		return err
	}, s.collKey(collectionID), s.membersKey(collectionID))
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return wrapBackend("redis ping", s.rdb.Ping(ctx).Err())
}

// Close closes the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
