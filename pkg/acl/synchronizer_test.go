package acl

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/docsentry/docsentry/pkg/models"
	"github.com/docsentry/docsentry/pkg/observability"
	"github.com/docsentry/docsentry/pkg/storage"
	"github.com/docsentry/docsentry/pkg/visibility"
)

// fakeObjectACLAPI records ACL writes and can fail after a set number of
// successful calls.
type fakeObjectACLAPI struct {
	mu        sync.Mutex
	calls     []putCall
	failAfter int // -1 never fails
	headErr   error
}

type putCall struct {
	bucket string
	key    string
	acl    types.ObjectCannedACL
}

func newFakeObjectACLAPI() *fakeObjectACLAPI {
	return &fakeObjectACLAPI{failAfter: -1}
}

func (f *fakeObjectACLAPI) PutObjectAcl(ctx context.Context, params *s3.PutObjectAclInput, optFns ...func(*s3.Options)) (*s3.PutObjectAclOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter >= 0 && len(f.calls) >= f.failAfter {
		return nil, errors.New("access denied")
	}
	f.calls = append(f.calls, putCall{
		bucket: *params.Bucket,
		key:    *params.Key,
		acl:    params.ACL,
	})
	return &s3.PutObjectAclOutput{}, nil
}

func (f *fakeObjectACLAPI) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

// aclStore is a minimal storage.Store serving one collection's documents.
type aclStore struct {
	collection *models.Collection
	restricted bool
	documents  []*models.Document
}

func (s *aclStore) GetCollection(ctx context.Context, id int64) (*models.Collection, error) {
	if s.collection == nil || s.collection.ID != id {
		return nil, &storage.NotFoundError{Kind: "collection", ID: id}
	}
	return s.collection, nil
}

func (s *aclStore) AncestorsOf(ctx context.Context, id int64) ([]*models.Collection, error) {
	c, err := s.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	return []*models.Collection{c}, nil
}

func (s *aclStore) ListCollections(ctx context.Context) ([]*models.Collection, error) {
	return []*models.Collection{s.collection}, nil
}

func (s *aclStore) HasActiveRestriction(ctx context.Context, collectionID int64) (bool, error) {
	return s.restricted, nil
}

func (s *aclStore) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	for _, d := range s.documents {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, &storage.NotFoundError{Kind: "document", ID: id}
}

func (s *aclStore) ListDocumentsByCollection(ctx context.Context, collectionID int64) ([]*models.Document, error) {
	return s.documents, nil
}

func (s *aclStore) HealthCheck(ctx context.Context) error { return nil }
func (s *aclStore) Close() error                          { return nil }

func newSynchronizerFixture(restricted bool, docCount int) (*Synchronizer, *fakeObjectACLAPI, *aclStore) {
	store := &aclStore{
		collection: &models.Collection{ID: 1, Name: "reports"},
		restricted: restricted,
	}
	for i := 0; i < docCount; i++ {
		store.documents = append(store.documents, &models.Document{
			ID:           int64(10 + i),
			CollectionID: 1,
			FileKey:      "documents/report.pdf",
			URL:          "https://example.com/documents/report.pdf",
		})
	}

	client := newFakeObjectACLAPI()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	resolver := visibility.NewResolver(store, nil, nil, logger)
	syncer := NewSynchronizer(client, "documents", store, resolver, nil, logger)
	return syncer, client, store
}

func TestCannedACL(t *testing.T) {
	if got := cannedACL(true); got != types.ObjectCannedACLPrivate {
		t.Errorf("cannedACL(true) = %q, want %q", got, types.ObjectCannedACLPrivate)
	}
	if got := cannedACL(false); got != types.ObjectCannedACLPublicRead {
		t.Errorf("cannedACL(false) = %q, want %q", got, types.ObjectCannedACLPublicRead)
	}
}

func TestSyncDocument(t *testing.T) {
	syncer, client, store := newSynchronizerFixture(false, 1)

	err := syncer.SyncDocument(context.Background(), store.documents[0], true)
	if err != nil {
		t.Fatalf("SyncDocument() error = %v, want nil", err)
	}

	if len(client.calls) != 1 {
		t.Fatalf("got %d ACL writes, want 1", len(client.calls))
	}
	call := client.calls[0]
	if call.bucket != "documents" {
		t.Errorf("bucket = %q, want %q", call.bucket, "documents")
	}
	if call.key != "documents/report.pdf" {
		t.Errorf("key = %q, want %q", call.key, "documents/report.pdf")
	}
	if call.acl != types.ObjectCannedACLPrivate {
		t.Errorf("acl = %q, want %q", call.acl, types.ObjectCannedACLPrivate)
	}
}

func TestSyncDocumentByVisibility(t *testing.T) {
	tests := []struct {
		name       string
		restricted bool
		wantACL    types.ObjectCannedACL
	}{
		{name: "restricted", restricted: true, wantACL: types.ObjectCannedACLPrivate},
		{name: "public", restricted: false, wantACL: types.ObjectCannedACLPublicRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer, client, store := newSynchronizerFixture(tt.restricted, 1)

			err := syncer.SyncDocumentByVisibility(context.Background(), store.documents[0])
			if err != nil {
				t.Fatalf("SyncDocumentByVisibility() error = %v, want nil", err)
			}
			if len(client.calls) != 1 {
				t.Fatalf("got %d ACL writes, want 1", len(client.calls))
			}
			if client.calls[0].acl != tt.wantACL {
				t.Errorf("acl = %q, want %q", client.calls[0].acl, tt.wantACL)
			}
		})
	}
}

func TestSyncCollectionWritesEveryDocument(t *testing.T) {
	syncer, client, store := newSynchronizerFixture(true, 5)

	err := syncer.SyncCollection(context.Background(), store.collection)
	if err != nil {
		t.Fatalf("SyncCollection() error = %v, want nil", err)
	}
	if len(client.calls) != 5 {
		t.Errorf("got %d ACL writes, want 5", len(client.calls))
	}
}

func TestSyncCollectionAbortsOnFirstFailure(t *testing.T) {
	syncer, client, store := newSynchronizerFixture(true, 5)
	client.failAfter = 2

	err := syncer.SyncCollection(context.Background(), store.collection)
	if err == nil {
		t.Fatal("SyncCollection() error = nil, want write failure")
	}

	// The first two writes stand; nothing is rolled back and nothing after
	// the failure is attempted.
	if len(client.calls) != 2 {
		t.Errorf("got %d ACL writes before abort, want 2", len(client.calls))
	}
}

func TestSyncCollectionEmpty(t *testing.T) {
	syncer, client, store := newSynchronizerFixture(true, 0)

	err := syncer.SyncCollection(context.Background(), store.collection)
	if err != nil {
		t.Fatalf("SyncCollection() on empty collection error = %v, want nil", err)
	}
	if len(client.calls) != 0 {
		t.Errorf("got %d ACL writes for empty collection, want 0", len(client.calls))
	}
}

func TestHealthCheck(t *testing.T) {
	syncer, client, _ := newSynchronizerFixture(false, 0)

	if err := syncer.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v, want nil", err)
	}

	client.headErr = errors.New("bucket unreachable")
	if err := syncer.HealthCheck(context.Background()); err == nil {
		t.Fatal("HealthCheck() error = nil, want bucket error")
	}
}
