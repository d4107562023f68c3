package storage

import (
	"context"
	"time"

	"github.com/docsentry/docsentry/pkg/models"
)

// Store is the read surface over the CMS collection/document mirror. All
// queries are point-in-time reads; docsentry never writes CMS rows.
type Store interface {
	// GetCollection returns the collection with the given ID.
	GetCollection(ctx context.Context, id int64) (*models.Collection, error)

	// AncestorsOf returns the ancestor chain of a collection, inclusive of
	// the collection itself, ordered leaf to root.
	AncestorsOf(ctx context.Context, id int64) ([]*models.Collection, error)

	// ListCollections returns every known collection.
	ListCollections(ctx context.Context) ([]*models.Collection, error)

	// HasActiveRestriction reports whether the collection itself carries an
	// active view restriction. Inheritance is the resolver's job, not the
	// store's.
	HasActiveRestriction(ctx context.Context, collectionID int64) (bool, error)

	// GetDocument returns the document with the given ID.
	GetDocument(ctx context.Context, id int64) (*models.Document, error)

	// ListDocumentsByCollection returns the documents that are direct
	// members of the collection.
	ListDocumentsByCollection(ctx context.Context, collectionID int64) ([]*models.Document, error)

	// HealthCheck verifies connectivity to the underlying database.
	HealthCheck(ctx context.Context) error

	// Close releases the underlying database handle.
	Close() error
}

// NotFoundError is returned by Get* methods when no row matches.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return e.Kind + " not found"
}

// Config for the store and the storage-adjacent backends.
type Config struct {
	Type string // "postgres" or "sqlite"

	// PostgreSQL config
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration

	// SQLite config
	SQLitePath string

	// S3 config (the bucket whose object ACLs are managed)
	S3Backend      string // storage backend identifier reported by the CMS
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// Redis config (visibility cache)
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Cache config
	CacheEnabled bool
	CacheTTL     time.Duration
	L1CacheSize  int // entries
}

// S3BackendID is the storage backend identifier the CMS reports when its
// default file storage is S3. The configuration gate compares against this.
const S3BackendID = "s3"

// S3InUse reports whether the CMS default file storage is the S3 backend.
// Unset configuration counts as "not S3", never as an error.
func (c Config) S3InUse() bool {
	return c.S3Backend == S3BackendID
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             "sqlite",
		SQLitePath:       "/tmp/docsentry.db",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     true,
		CacheTTL:         5 * time.Minute,
		L1CacheSize:      4096,
	}
}
