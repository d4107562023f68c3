// Package acl keeps S3 object ACLs aligned with collection visibility.
//
// Writes are synchronous and sequential: one PutObjectAcl per document, no
// retries, no rollback. A failure mid-collection leaves earlier documents
// updated and propagates the error to the caller, so the triggering save
// fails loudly instead of leaving ACLs silently inconsistent.
package acl

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/docsentry/docsentry/pkg/models"
	"github.com/docsentry/docsentry/pkg/observability"
	"github.com/docsentry/docsentry/pkg/storage"
	"github.com/docsentry/docsentry/pkg/visibility"
)

var tracer = otel.Tracer("github.com/docsentry/docsentry/pkg/acl")

// Synchronizer sets document object ACLs to match resolved visibility.
type Synchronizer struct {
	client   ObjectACLAPI
	bucket   string
	store    storage.Store
	resolver *visibility.Resolver
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// NewSynchronizer creates a synchronizer. metrics may be nil.
func NewSynchronizer(client ObjectACLAPI, bucket string, store storage.Store, resolver *visibility.Resolver, metrics *observability.Metrics, logger *observability.Logger) *Synchronizer {
	return &Synchronizer{
		client:   client,
		bucket:   bucket,
		store:    store,
		resolver: resolver,
		metrics:  metrics,
		logger:   logger,
	}
}

// SyncDocument writes the ACL for a single document to match restricted.
func (s *Synchronizer) SyncDocument(ctx context.Context, doc *models.Document, restricted bool) error {
	acl := cannedACL(restricted)

	ctx, span := tracer.Start(ctx, "ACL.SyncDocument",
		trace.WithAttributes(
			attribute.Int64("document.id", doc.ID),
			attribute.String("s3.bucket", s.bucket),
			attribute.String("s3.key", doc.FileKey),
			attribute.String("s3.acl", aclName(acl)),
		),
	)
	defer span.End()

	start := time.Now()
	_, err := s.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(doc.FileKey),
		ACL:    acl,
	})
	if s.metrics != nil {
		s.metrics.RecordACLUpdate(aclName(acl), err, time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to set object acl")
		return fmt.Errorf("failed to set acl on object %q: %w", doc.FileKey, err)
	}

	span.SetStatus(codes.Ok, "object acl updated")
	return nil
}

// SyncDocumentByVisibility resolves the visibility of the document's
// collection and writes the matching ACL.
func (s *Synchronizer) SyncDocumentByVisibility(ctx context.Context, doc *models.Document) error {
	restricted, err := s.resolver.IsRestricted(ctx, doc.CollectionID)
	if err != nil {
		return err
	}
	return s.SyncDocument(ctx, doc, restricted)
}

// SyncCollection resolves the collection's visibility once and writes the
// matching ACL on every direct member document, sequentially. The first
// write failure aborts and propagates; documents already written stay
// written.
func (s *Synchronizer) SyncCollection(ctx context.Context, collection *models.Collection) error {
	ctx, span := tracer.Start(ctx, "ACL.SyncCollection",
		trace.WithAttributes(attribute.Int64("collection.id", collection.ID)),
	)
	defer span.End()

	restricted, err := s.resolver.IsRestricted(ctx, collection.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve visibility")
		return err
	}
	span.SetAttributes(attribute.Bool("collection.restricted", restricted))

	documents, err := s.store.ListDocumentsByCollection(ctx, collection.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list documents")
		return err
	}
	span.SetAttributes(attribute.Int("document.count", len(documents)))

	for _, doc := range documents {
		if err := s.SyncDocument(ctx, doc, restricted); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "acl sync aborted")
			return err
		}
	}

	if s.logger != nil {
		s.logger.WithFields(map[string]interface{}{
			"collection_id": collection.ID,
			"documents":     len(documents),
			"restricted":    restricted,
		}).Info("Collection ACLs synchronized")
	}

	span.SetStatus(codes.Ok, "collection acls synchronized")
	return nil
}

// HealthCheck verifies bucket reachability.
func (s *Synchronizer) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}
