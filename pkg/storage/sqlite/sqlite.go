package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/docsentry/docsentry/pkg/models"
	"github.com/docsentry/docsentry/pkg/storage"
)

// Store implements storage.Store backed by a local SQLite file. Intended for
// single-node deployments and development; the postgres backend is the
// production path.
type Store struct {
	db *sql.DB
}

// New opens (and creates if missing) the SQLite database at path.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite handles a single writer; keep the pool tiny.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return &Store{db: db}, nil
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
	id        INTEGER PRIMARY KEY,
	name      TEXT NOT NULL,
	parent_id INTEGER REFERENCES collections(id)
);

CREATE TABLE IF NOT EXISTS view_restrictions (
	id            INTEGER PRIMARY KEY,
	collection_id INTEGER NOT NULL REFERENCES collections(id),
	active        INTEGER NOT NULL DEFAULT 1,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS documents (
	id            INTEGER PRIMARY KEY,
	collection_id INTEGER NOT NULL REFERENCES collections(id),
	title         TEXT NOT NULL,
	file_key      TEXT NOT NULL,
	url           TEXT NOT NULL,
	updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection_id);
CREATE INDEX IF NOT EXISTS idx_restrictions_collection ON view_restrictions(collection_id);
`

// GetCollection returns the collection with the given ID.
func (s *Store) GetCollection(ctx context.Context, id int64) (*models.Collection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, parent_id FROM collections WHERE id = ?`, id)

	var c models.Collection
	if err := row.Scan(&c.ID, &c.Name, &c.ParentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, &storage.NotFoundError{Kind: "collection", ID: id}
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return &c, nil
}

// AncestorsOf walks parent pointers one row at a time. Collection trees are
// shallow, so the per-hop round-trip is acceptable here; the postgres
// backend does this in one query.
func (s *Store) AncestorsOf(ctx context.Context, id int64) ([]*models.Collection, error) {
	var chain []*models.Collection

	current := &id
	for current != nil {
		c, err := s.GetCollection(ctx, *current)
		if err != nil {
			if len(chain) > 0 {
				return nil, fmt.Errorf("broken ancestor chain at collection %d: %w", *current, err)
			}
			return nil, err
		}
		chain = append(chain, c)
		current = c.ParentID
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
		`SELECT EXISTS (SELECT 1 FROM view_restrictions WHERE collection_id = ? AND active)`,
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
		`SELECT id, collection_id, title, file_key, url, updated_at FROM documents WHERE id = ?`, id)

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
		 FROM documents WHERE collection_id = ? ORDER BY id`, collectionID)
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
		return fmt.Errorf("sqlite health check failed: %w", err)
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
