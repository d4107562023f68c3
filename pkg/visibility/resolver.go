// Package visibility resolves whether a collection is privately restricted.
//
// A collection is restricted when it, or any of its ancestors, carries an
// active view restriction; restrictions are inherited downward, matching
// the CMS permission semantics. Resolution is a pure query over the store;
// the optional cache layer only memoizes results.
package visibility

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/docsentry/docsentry/pkg/observability"
	"github.com/docsentry/docsentry/pkg/storage"
)

var tracer = otel.Tracer("github.com/docsentry/docsentry/pkg/visibility")

// Resolver answers "is this collection restricted?" by walking the
// collection's ancestor chain toward the root.
type Resolver struct {
	store   storage.Store
	cache   *Cache // nil when caching is disabled
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewResolver creates a resolver. cache and metrics may be nil.
func NewResolver(store storage.Store, cache *Cache, metrics *observability.Metrics, logger *observability.Logger) *Resolver {
	return &Resolver{
		store:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// IsRestricted reports whether the collection or any of its ancestors has an
// active view restriction. Returns true as soon as one is found; false when
// the root is reached without one.
func (r *Resolver) IsRestricted(ctx context.Context, collectionID int64) (bool, error) {
	ctx, span := tracer.Start(ctx, "Visibility.IsRestricted",
		trace.WithAttributes(attribute.Int64("collection.id", collectionID)),
	)
	defer span.End()

	if r.cache != nil {
		if restricted, ok := r.cache.Get(ctx, collectionID); ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return restricted, nil
		}
		span.SetAttributes(attribute.Bool("cache.hit", false))
	}

	restricted, err := r.resolve(ctx, collectionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve visibility")
		return false, err
	}

	span.SetAttributes(attribute.Bool("collection.restricted", restricted))

	if r.cache != nil {
		r.cache.Set(ctx, collectionID, restricted)
	}

	return restricted, nil
}

// resolve walks the ancestor chain, leaf to root, checking each node for an
// active restriction.
func (r *Resolver) resolve(ctx context.Context, collectionID int64) (bool, error) {
	chain, err := r.store.AncestorsOf(ctx, collectionID)
	if err != nil {
		return false, err
	}

	for _, c := range chain {
		restricted, err := r.store.HasActiveRestriction(ctx, c.ID)
		if err != nil {
			return false, err
		}
		if restricted {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops all memoized visibility results. Called when a collection
// is saved, since a restriction change affects an unknown set of
// descendants.
func (r *Resolver) Invalidate(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx); err != nil && r.logger != nil {
		r.logger.WithError(err).Warn("Failed to invalidate visibility cache")
	}
}
