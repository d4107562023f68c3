package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/docsentry/docsentry/pkg/models"
	"github.com/docsentry/docsentry/pkg/storage"
)

// Store implements storage.Store backed by PostgreSQL. It reads the CMS
// collection/document mirror tables; docsentry never mutates them outside
// of EnsureSchema.
type Store struct {
	db     *sql.DB
	config storage.Config
}

// New creates a PostgreSQL-backed store.
func New(config storage.Config) (*Store, error) {
	db, err := sql.Open("postgres", config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.PostgresMaxConns)
	db.SetMaxIdleConns(config.PostgresMinConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), config.PostgresTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &Store{db: db, config: config}, nil
}

// NewWithDB wraps an existing database handle. Used by tests.
func NewWithDB(db *sql.DB, config storage.Config) *Store {
	return &Store{db: db, config: config}
}

// EnsureSchema creates the mirror tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	id        BIGINT PRIMARY KEY,
	name      TEXT NOT NULL,
	parent_id BIGINT REFERENCES collections(id)
);

CREATE TABLE IF NOT EXISTS view_restrictions (
	id            BIGINT PRIMARY KEY,
	collection_id BIGINT NOT NULL REFERENCES collections(id),
	active        BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS documents (
	id            BIGINT PRIMARY KEY,
	collection_id BIGINT NOT NULL REFERENCES collections(id),
	title         TEXT NOT NULL,
	file_key      TEXT NOT NULL,
	url           TEXT NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection_id);
CREATE INDEX IF NOT EXISTS idx_restrictions_collection ON view_restrictions(collection_id);
`

// GetCollection returns the collection with the given ID.
func (s *Store) GetCollection(ctx context.Context, id int64) (*models.Collection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, parent_id FROM collections WHERE id = $1`, id)

	var c models.Collection
	if err := row.Scan(&c.ID, &c.Name, &c.ParentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, &storage.NotFoundError{Kind: "collection", ID: id}
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return &c, nil
}

// AncestorsOf returns the chain from the collection up to the root,
// inclusive, ordered leaf first. Uses a recursive CTE so the walk is a
// single round-trip regardless of tree depth.
func (s *Store) AncestorsOf(ctx context.Context, id int64) ([]*models.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE chain AS (
			SELECT id, name, parent_id, 0 AS depth
			FROM collections WHERE id = $1
			UNION ALL
			SELECT c.id, c.name, c.parent_id, chain.depth + 1
			FROM collections c
			JOIN chain ON c.id = chain.parent_id
		)
		SELECT id, name, parent_id FROM chain ORDER BY depth`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query ancestor chain: %w", err)
	}
	defer rows.Close()

	var chain []*models.Collection
	for rows.Next() {
		var c models.Collection
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		chain = append(chain, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ancestor chain: %w", err)
	}
	if len(chain) == 0 {
		return nil, &storage.NotFoundError{Kind: "collection", ID: id}
	}
	return chain, nil
}

// ListCollections returns every known collection.
func (s *Store) ListCollections(ctx context.Context) ([]*models.Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, parent_id FROM collections ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var collections []*models.Collection
	for rows.Next() {
		var c models.Collection
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		collections = append(collections, &c)
	}
	return collections, rows.Err()
}

// HasActiveRestriction reports whether the collection itself carries an
// active view restriction.
func (s *Store) HasActiveRestriction(ctx context.Context, collectionID int64) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM view_restrictions WHERE collection_id = $1 AND active)`,
		collectionID)

	var restricted bool
	if err := row.Scan(&restricted); err != nil {
		return false, fmt.Errorf("failed to query restriction: %w", err)
	}
	return restricted, nil
}

// GetDocument returns the document with the given ID.
func (s *Store) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, collection_id, title, file_key, url, updated_at FROM documents WHERE id = $1`, id)

	var d models.Document
	if err := row.Scan(&d.ID, &d.CollectionID, &d.Title, &d.FileKey, &d.URL, &d.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, &storage.NotFoundError{Kind: "document", ID: id}
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &d, nil
}

// ListDocumentsByCollection returns the direct members of a collection.
func (s *Store) ListDocumentsByCollection(ctx context.Context, collectionID int64) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collection_id, title, file_key, url, updated_at
		 FROM documents WHERE collection_id = $1 ORDER BY id`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var documents []*models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.CollectionID, &d.Title, &d.FileKey, &d.URL, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		documents = append(documents, &d)
	}
	return documents, rows.Err()
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for health probes.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
