package signals

import (
	"context"

	"github.com/docsentry/docsentry/pkg/acl"
	"github.com/docsentry/docsentry/pkg/frontendcache"
	"github.com/docsentry/docsentry/pkg/observability"
	"github.com/docsentry/docsentry/pkg/storage"
	"github.com/docsentry/docsentry/pkg/visibility"
)

// Handler names, used for metrics labels and registry diagnostics.
const (
	HandlerUpdateACLsOnCollectionSaved = "update_document_acls_when_collection_saved"
	HandlerUpdateACLsOnDocumentSaved   = "update_document_acls_when_document_saved"
	HandlerPurgeOnCollectionSaved      = "purge_documents_when_collection_saved_with_restrictions"
	HandlerPurgeOnDocumentSaved        = "purge_document_when_saved"
)

// Handlers owns the save-event handlers that keep S3 ACLs and frontend
// caches aligned with collection visibility.
type Handlers struct {
	cfg          storage.Config
	store        storage.Store
	resolver     *visibility.Resolver
	synchronizer *acl.Synchronizer
	purger       *frontendcache.Purger
	metrics      *observability.Metrics
	logger       *observability.Logger
}

// NewHandlers wires the handler set. metrics may be nil.
func NewHandlers(
	cfg storage.Config,
	store storage.Store,
	resolver *visibility.Resolver,
	synchronizer *acl.Synchronizer,
	purger *frontendcache.Purger,
	metrics *observability.Metrics,
	logger *observability.Logger,
) *Handlers {
	return &Handlers{
		cfg:          cfg,
		store:        store,
		resolver:     resolver,
		synchronizer: synchronizer,
		purger:       purger,
		metrics:      metrics,
		logger:       logger,
	}
}

// Connect attaches every handler to the registry, gated by the
// configuration preconditions. Order matters: the visibility cache is
// dropped before any handler resolves visibility, and ACL writes happen
// before purges so a purged URL never re-caches a stale ACL decision.
func (h *Handlers) Connect(registry *Registry) {
	registry.Connect(EventCollectionSaved, "invalidate_visibility_cache", h.InvalidateVisibilityWhenCollectionSaved)

	registry.Connect(EventCollectionSaved, HandlerUpdateACLsOnCollectionSaved,
		SkipIfS3StorageNotUsed(h.cfg, HandlerUpdateACLsOnCollectionSaved, h.metrics,
			h.UpdateDocumentACLsWhenCollectionSaved))

	registry.Connect(EventCollectionSaved, HandlerPurgeOnCollectionSaved,
		SkipIfS3StorageNotUsed(h.cfg, HandlerPurgeOnCollectionSaved, h.metrics,
			SkipIfFrontendCacheNotConfigured(h.purger, HandlerPurgeOnCollectionSaved, h.metrics,
				h.PurgeDocumentsWhenCollectionSavedWithRestrictions)))

	registry.Connect(EventDocumentSaved, HandlerUpdateACLsOnDocumentSaved,
		SkipIfS3StorageNotUsed(h.cfg, HandlerUpdateACLsOnDocumentSaved, h.metrics,
			h.UpdateDocumentACLsWhenDocumentSaved))

	registry.Connect(EventDocumentSaved, HandlerPurgeOnDocumentSaved,
		SkipIfS3StorageNotUsed(h.cfg, HandlerPurgeOnDocumentSaved, h.metrics,
			SkipIfFrontendCacheNotConfigured(h.purger, HandlerPurgeOnDocumentSaved, h.metrics,
				h.PurgeDocumentWhenSaved)))
}

// InvalidateVisibilityWhenCollectionSaved drops memoized visibility results,
// since a saved collection may have gained or lost a restriction that
// affects an unknown set of descendants.
func (h *Handlers) InvalidateVisibilityWhenCollectionSaved(ctx context.Context, event Event) error {
	h.resolver.Invalidate(ctx)
	return nil
}

// UpdateDocumentACLsWhenCollectionSaved sets every member document's object
// ACL to private iff the collection resolves restricted, else public.
func (h *Handlers) UpdateDocumentACLsWhenCollectionSaved(ctx context.Context, event Event) error {
	collection, err := h.store.GetCollection(ctx, event.CollectionID)
	if err != nil {
		return err
	}
	return h.synchronizer.SyncCollection(ctx, collection)
}

// UpdateDocumentACLsWhenDocumentSaved sets the saved document's object ACL
// to match its collection's resolved visibility.
func (h *Handlers) UpdateDocumentACLsWhenDocumentSaved(ctx context.Context, event Event) error {
	document, err := h.store.GetDocument(ctx, event.DocumentID)
	if err != nil {
		return err
	}
	return h.synchronizer.SyncDocumentByVisibility(ctx, document)
}

// PurgeDocumentsWhenCollectionSavedWithRestrictions purges every member
// document's URL from the frontend caches when the collection resolves
// restricted. Public collections need no purge: their content stays
// cacheable.
func (h *Handlers) PurgeDocumentsWhenCollectionSavedWithRestrictions(ctx context.Context, event Event) error {
	restricted, err := h.resolver.IsRestricted(ctx, event.CollectionID)
	if err != nil {
		return err
	}
	if !restricted {
		return nil
	}

	documents, err := h.store.ListDocumentsByCollection(ctx, event.CollectionID)
	if err != nil {
		return err
	}
	return h.purger.PurgeDocuments(ctx, documents)
}

// PurgeDocumentWhenSaved purges the saved document's own URL: a re-upload
// changes the content behind it, restricted or not.
func (h *Handlers) PurgeDocumentWhenSaved(ctx context.Context, event Event) error {
	document, err := h.store.GetDocument(ctx, event.DocumentID)
	if err != nil {
		return err
	}
	return h.purger.PurgeURL(ctx, document.URL)
}
