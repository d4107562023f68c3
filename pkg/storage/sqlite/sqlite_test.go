package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/docsentry/docsentry/pkg/storage"
)

// setupStore creates a file-backed store in a temp dir with a small
// collection tree:
//
//	root(1) -> reports(2) -> quarterly(3)
//	root(1) -> public(4)
//
// reports(2) carries an active restriction; public(4) an inactive one.
func setupStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "docsentry.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	stmts := []string{
		`INSERT INTO collections (id, name, parent_id) VALUES (1, 'root', NULL)`,
		`INSERT INTO collections (id, name, parent_id) VALUES (2, 'reports', 1)`,
		`INSERT INTO collections (id, name, parent_id) VALUES (3, 'quarterly', 2)`,
		`INSERT INTO collections (id, name, parent_id) VALUES (4, 'public', 1)`,
		`INSERT INTO view_restrictions (id, collection_id, active) VALUES (1, 2, 1)`,
		`INSERT INTO view_restrictions (id, collection_id, active) VALUES (2, 4, 0)`,
		`INSERT INTO documents (id, collection_id, title, file_key, url)
		 VALUES (10, 3, 'Q1 report', 'documents/10/q1.pdf', 'https://example.com/documents/10/q1.pdf')`,
		`INSERT INTO documents (id, collection_id, title, file_key, url)
		 VALUES (11, 3, 'Q2 report', 'documents/11/q2.pdf', 'https://example.com/documents/11/q2.pdf')`,
		`INSERT INTO documents (id, collection_id, title, file_key, url)
		 VALUES (12, 4, 'Brochure', 'documents/12/brochure.pdf', 'https://example.com/documents/12/brochure.pdf')`,
	}
	for _, stmt := range stmts {
		if _, err := store.DB().ExecContext(ctx, stmt); err != nil {
			t.Fatalf("fixture insert failed: %v", err)
		}
	}
	return store
}

func TestGetCollection(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	c, err := store.GetCollection(ctx, 2)
	if err != nil {
		t.Fatalf("GetCollection() error = %v, want nil", err)
	}
	if c.Name != "reports" {
		t.Errorf("Name = %q, want %q", c.Name, "reports")
	}
	if c.ParentID == nil || *c.ParentID != 1 {
		t.Errorf("ParentID = %v, want 1", c.ParentID)
	}

	root, err := store.GetCollection(ctx, 1)
	if err != nil {
		t.Fatalf("GetCollection() error = %v, want nil", err)
	}
	if !root.IsRoot() {
		t.Error("IsRoot() = false for the root collection")
	}
}

func TestGetCollectionNotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.GetCollection(context.Background(), 404)
	var notFound *storage.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("GetCollection() error = %v, want *storage.NotFoundError", err)
	}
	if notFound.Kind != "collection" || notFound.ID != 404 {
		t.Errorf("NotFoundError = %+v, want collection/404", notFound)
	}
}

func TestAncestorsOf(t *testing.T) {
	store := setupStore(t)

	chain, err := store.AncestorsOf(context.Background(), 3)
	if err != nil {
		t.Fatalf("AncestorsOf() error = %v, want nil", err)
	}

	wantIDs := []int64{3, 2, 1}
	if len(chain) != len(wantIDs) {
		t.Fatalf("got chain of %d, want %d", len(chain), len(wantIDs))
	}
	for i, want := range wantIDs {
		if chain[i].ID != want {
			t.Errorf("chain[%d].ID = %d, want %d", i, chain[i].ID, want)
		}
	}
}

func TestAncestorsOfRoot(t *testing.T) {
	store := setupStore(t)

	chain, err := store.AncestorsOf(context.Background(), 1)
	if err != nil {
		t.Fatalf("AncestorsOf() error = %v, want nil", err)
	}
	if len(chain) != 1 || chain[0].ID != 1 {
		t.Errorf("chain = %v, want just the root", chain)
	}
}

func TestHasActiveRestriction(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	tests := []struct {
		name         string
		collectionID int64
		want         bool
	}{
		{name: "active restriction", collectionID: 2, want: true},
		{name: "inactive restriction does not count", collectionID: 4, want: false},
		{name: "no restriction row", collectionID: 1, want: false},
		{name: "restriction is not inherited by the store", collectionID: 3, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.HasActiveRestriction(ctx, tt.collectionID)
			if err != nil {
				t.Fatalf("HasActiveRestriction() error = %v, want nil", err)
			}
			if got != tt.want {
				t.Errorf("HasActiveRestriction(%d) = %v, want %v", tt.collectionID, got, tt.want)
			}
		})
	}
}

func TestGetDocument(t *testing.T) {
	store := setupStore(t)

	doc, err := store.GetDocument(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetDocument() error = %v, want nil", err)
	}
	if doc.FileKey != "documents/10/q1.pdf" {
		t.Errorf("FileKey = %q, want %q", doc.FileKey, "documents/10/q1.pdf")
	}
	if doc.CollectionID != 3 {
		t.Errorf("CollectionID = %d, want 3", doc.CollectionID)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.GetDocument(context.Background(), 404)
	var notFound *storage.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("GetDocument() error = %v, want *storage.NotFoundError", err)
	}
}

func TestListDocumentsByCollection(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	docs, err := store.ListDocumentsByCollection(ctx, 3)
	if err != nil {
		t.Fatalf("ListDocumentsByCollection() error = %v, want nil", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}

	empty, err := store.ListDocumentsByCollection(ctx, 1)
	if err != nil {
		t.Fatalf("ListDocumentsByCollection() error = %v, want nil", err)
	}
	if len(empty) != 0 {
		t.Errorf("got %d documents for an empty collection, want 0", len(empty))
	}
}

func TestListCollections(t *testing.T) {
	store := setupStore(t)

	collections, err := store.ListCollections(context.Background())
	if err != nil {
		t.Fatalf("ListCollections() error = %v, want nil", err)
	}
	if len(collections) != 4 {
		t.Errorf("got %d collections, want 4", len(collections))
	}
}

func TestHealthCheck(t *testing.T) {
	store := setupStore(t)

	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}
}
