package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/gcbaptista/go-doc-stats/config"
	apperrors "github.com/gcbaptista/go-doc-stats/internal/errors"
	"github.com/gcbaptista/go-doc-stats/internal/logger"
	"github.com/gcbaptista/go-doc-stats/model"
)

// PostgreSQL error codes handled by the store.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

const collectionNameConstraint = "collections_owner_id_name_key"

// schema is applied by Migrate. Documents carry a join sequence so members keep their join order.
var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS document_join_seq`,
	`CREATE TABLE IF NOT EXISTS collections (
		id         TEXT PRIMARY KEY,
		owner_id   TEXT NOT NULL,
		name       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT collections_owner_id_name_key UNIQUE (owner_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id            TEXT PRIMARY KEY,
		collection_id TEXT REFERENCES collections(id) ON DELETE CASCADE,
		owner_id      TEXT NOT NULL DEFAULT '',
		filename      TEXT NOT NULL,
		content       TEXT NOT NULL,
		token_count   INTEGER NOT NULL,
		terms         JSONB NOT NULL DEFAULT '[]',
		created_at    TIMESTAMPTZ NOT NULL,
		join_seq      BIGINT NOT NULL DEFAULT nextval('document_join_seq')
	)`,
	`CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents (collection_id, join_seq)`,
}

// PostgresStore keeps documents and collections in PostgreSQL with term lists as JSONB.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenPostgresStore opens a connection pool, verifies it and applies the schema.
func OpenPostgresStore(ctx context.Context, cfg config.PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError("open postgres", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, apperrors.NewStorageUnavailableError("ping postgres", err)
	}

	s := NewPostgresStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info("connected to postgres", "host", cfg.Host, "database", cfg.Database)
	return s, nil
}

// NewPostgresStore wraps an existing pool without touching the schema.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, logger: logger.WithComponent("postgres-store")}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.inTx(ctx, "migrate", func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("applying schema: %w", err)
			}
		}
		return nil
	})
}

// inTx runs fn in a transaction, rolling back when fn fails.
func (s *PostgresStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageUnavailableError(op, fmt.Errorf("beginning transaction: %w", err))
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "op", op, "error", rbErr)
		}
		return wrapBackend(op, err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageUnavailableError(op, fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

// queryer is the read side shared by the pool and transactions.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

const documentColumns = `id, COALESCE(collection_id, ''), owner_id, filename, content, token_count, terms, created_at`

func scanDocument(row rowScanner) (model.Document, error) {
	var (
		doc   model.Document
		terms []byte
	)
	if err := row.Scan(&doc.ID, &doc.CollectionID, &doc.OwnerID, &doc.Filename, &doc.Content,
		&doc.TokenCount, &terms, &doc.CreatedAt); err != nil {
		return model.Document{}, err
	}
	decoded, err := decodeTerms(terms)
	if err != nil {
		return model.Document{}, err
	}
	doc.Terms = decoded
	return doc, nil
}

// nullableCollection maps a detached document to a NULL foreign key.
func nullableCollection(collectionID string) sql.NullString {
	return sql.NullString{String: collectionID, Valid: collectionID != ""}
}

func pqCode(err error) (pq.ErrorCode, string) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code, pqErr.Constraint
	}
	return "", ""
}

func (s *PostgresStore) loadDocument(ctx context.Context, q queryer, documentID string) (model.Document, error) {
	row := q.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, documentID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, apperrors.NewDocumentNotFoundError(documentID)
	}
	if err != nil {
		return model.Document{}, apperrors.NewStorageUnavailableError("get document", err)
	}
	return doc, nil
}

func (s *PostgresStore) loadCollection(ctx context.Context, q queryer, collectionID string) (model.Collection, error) {
	var c model.Collection
	err := q.QueryRowContext(ctx,
		`SELECT id, owner_id, name, created_at FROM collections WHERE id = $1`, collectionID,
	).Scan(&c.ID, &c.OwnerID, &c.Name, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Collection{}, apperrors.NewCollectionNotFoundError(collectionID)
	}
	if err != nil {
		return model.Collection{}, apperrors.NewStorageUnavailableError("get collection", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id FROM documents WHERE collection_id = $1 ORDER BY join_seq`, collectionID)
	if err != nil {
		return model.Collection{}, apperrors.NewStorageUnavailableError("list collection members", err)
	}
	defer rows.Close()

	c.DocumentIDs = []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return model.Collection{}, apperrors.NewStorageUnavailableError("scan collection member", err)
		}
		c.DocumentIDs = append(c.DocumentIDs, id)
	}
	if err := rows.Err(); err != nil {
		return model.Collection{}, apperrors.NewStorageUnavailableError("list collection members", err)
	}
	return c, nil
}

// Document fetches a single document.
func (s *PostgresStore) Document(ctx context.Context, documentID string) (model.Document, error) {
	return s.loadDocument(ctx, s.db, documentID)
}

// DocumentsInCollection returns the collection's documents in join order.
func (s *PostgresStore) DocumentsInCollection(ctx context.Context, collectionID string) ([]model.Document, error) {
	var docs []model.Document
	err := s.inTx(ctx, "fetch collection documents", func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM collections WHERE id = $1)`, collectionID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return apperrors.NewCollectionNotFoundError(collectionID)
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT `+documentColumns+` FROM documents WHERE collection_id = $1 ORDER BY join_seq`, collectionID)
		if err != nil {
			return err
		}
		defer rows.Close()

		docs = make([]model.Document, 0)
		for rows.Next() {
			doc, err := scanDocument(rows)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// InsertDocument stores a new document as the last member of its collection.
func (s *PostgresStore) InsertDocument(ctx context.Context, doc model.Document) error {
	terms, err := encodeTerms(doc.Terms)
	if err != nil {
		return apperrors.NewStorageUnavailableError("encode terms", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, collection_id, owner_id, filename, content, token_count, terms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID, nullableCollection(doc.CollectionID), doc.OwnerID, doc.Filename, doc.Content,
		doc.TokenCount, terms, doc.CreatedAt)
	switch code, _ := pqCode(err); {
	case err == nil:
		return nil
	case code == pqUniqueViolation:
		return apperrors.NewValidationError("id", fmt.Sprintf("document '%s' already exists", doc.ID))
	case code == pqForeignKeyViolation:
		return apperrors.NewCollectionNotFoundError(doc.CollectionID)
	default:
		return apperrors.NewStorageUnavailableError("insert document", err)
	}
}

// DeleteDocument removes a document.
func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, documentID)
	if err != nil {
		return apperrors.NewStorageUnavailableError("delete document", err)
	}
	return requireAffected(res, apperrors.NewDocumentNotFoundError(documentID))
}

// SetDocumentCollection moves a document to the end of collectionID, or detaches it when collectionID is empty.
func (s *PostgresStore) SetDocumentCollection(ctx context.Context, documentID, collectionID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET collection_id = $2, join_seq = nextval('document_join_seq')
		 WHERE id = $1 AND collection_id IS DISTINCT FROM $2`,
		documentID, nullableCollection(collectionID))
	if code, _ := pqCode(err); code == pqForeignKeyViolation {
		return apperrors.NewCollectionNotFoundError(collectionID)
	}
	if err != nil {
		return apperrors.NewStorageUnavailableError("move document", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	// Nothing changed, either because the document is missing or already there.
	_, err = s.loadDocument(ctx, s.db, documentID)
	return err
}

// PersistDocumentTerms overwrites the term list of one document.
func (s *PostgresStore) PersistDocumentTerms(ctx context.Context, documentID string, terms []model.TermStat) error {
	return s.PersistTerms(ctx, map[string][]model.TermStat{documentID: terms})
}

// PersistTerms overwrites several term lists in one transaction.
func (s *PostgresStore) PersistTerms(ctx context.Context, updates map[string][]model.TermStat) error {
	if len(updates) == 0 {
		return nil
	}
	ids := make([]string, 0, len(updates))
	encoded := make(map[string][]byte, len(updates))
	for id, terms := range updates {
		data, err := encodeTerms(terms)
		if err != nil {
			return apperrors.NewStorageUnavailableError("encode terms", err)
		}
		ids = append(ids, id)
		encoded[id] = data
	}

	return s.inTx(ctx, "persist terms", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM documents WHERE id = ANY($1) FOR UPDATE`, pq.Array(ids))
		if err != nil {
			return err
		}
		found := make(map[string]struct{}, len(ids))
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			found[id] = struct{}{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range ids {
			if _, ok := found[id]; !ok {
				return apperrors.NewDocumentNotFoundError(id)
			}
		}

		stmt, err := tx.PrepareContext(ctx, `UPDATE documents SET terms = $2 WHERE id = $1`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for id, data := range encoded {
			if _, err := stmt.ExecContext(ctx, id, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateCollection stores a new collection. Names are unique per owner.
func (s *PostgresStore) CreateCollection(ctx context.Context, collection model.Collection) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (id, owner_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		collection.ID, collection.OwnerID, collection.Name, collection.CreatedAt)
	if err == nil {
		return nil
	}
	if code, constraint := pqCode(err); code == pqUniqueViolation {
		if constraint == collectionNameConstraint {
			return apperrors.NewCollectionAlreadyExistsError(collection.OwnerID, collection.Name)
		}
		return apperrors.NewValidationError("id", fmt.Sprintf("collection '%s' already exists", collection.ID))
	}
	return apperrors.NewStorageUnavailableError("create collection", err)
}

// Collection fetches a single collection with its members.
func (s *PostgresStore) Collection(ctx context.Context, collectionID string) (model.Collection, error) {
	return s.loadCollection(ctx, s.db, collectionID)
}

// ListCollections returns the collections of ownerID, or all of them when ownerID is empty, oldest first.
func (s *PostgresStore) ListCollections(ctx context.Context, ownerID string) ([]model.Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.owner_id, c.name, c.created_at,
		        COALESCE(array_agg(d.id ORDER BY d.join_seq) FILTER (WHERE d.id IS NOT NULL), '{}')
		   FROM collections c
		   LEFT JOIN documents d ON d.collection_id = c.id
		  WHERE $1::text = '' OR c.owner_id = $1
		  GROUP BY c.id
		  ORDER BY c.created_at, c.id`, ownerID)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError("list collections", err)
	}
	defer rows.Close()

	out := make([]model.Collection, 0)
	for rows.Next() {
		var (
			c       model.Collection
			members pq.StringArray
		)
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.CreatedAt, &members); err != nil {
			return nil, apperrors.NewStorageUnavailableError("scan collection", err)
		}
		c.DocumentIDs = []string(members)
		if c.DocumentIDs == nil {
			c.DocumentIDs = []string{}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageUnavailableError("list collections", err)
	}
	return out, nil
}

// DeleteCollection removes the collection; its documents go with it through the cascade.
func (s *PostgresStore) DeleteCollection(ctx context.Context, collectionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE id = $1`, collectionID)
	if err != nil {
		return apperrors.NewStorageUnavailableError("delete collection", err)
	}
	return requireAffected(res, apperrors.NewCollectionNotFoundError(collectionID))
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return wrapBackend("ping postgres", s.db.PingContext(ctx))
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewStorageUnavailableError("rows affected", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
