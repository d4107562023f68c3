// Package reconciler audits every stored document's ACL against resolved
// collection visibility. The save-event handlers keep ACLs current; the
// reconciler repairs drift from missed events or out-of-band bucket edits.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docsentry/docsentry/pkg/acl"
	"github.com/docsentry/docsentry/pkg/observability"
	"github.com/docsentry/docsentry/pkg/storage"
	"github.com/docsentry/docsentry/pkg/visibility"
)

// Reconciler performs full ACL sweeps.
type Reconciler struct {
	store        storage.Store
	resolver     *visibility.Resolver
	synchronizer *acl.Synchronizer
	metrics      *observability.Metrics
	logger       *observability.Logger

	// Collections processed concurrently. Documents within a collection
	// stay sequential, matching the save-path behavior.
	parallelism int
}

// New creates a reconciler. metrics may be nil; parallelism <= 0 defaults
// to 4.
func New(store storage.Store, resolver *visibility.Resolver, synchronizer *acl.Synchronizer, metrics *observability.Metrics, logger *observability.Logger, parallelism int) *Reconciler {
	if parallelism <= 0 {
		parallelism = 4
	}
	return &Reconciler{
		store:        store,
		resolver:     resolver,
		synchronizer: synchronizer,
		metrics:      metrics,
		logger:       logger,
		parallelism:  parallelism,
	}
}

// Sweep re-syncs every document's ACL. Collections are processed with
// bounded parallelism; the first failure cancels the sweep and propagates.
func (r *Reconciler) Sweep(ctx context.Context) error {
	start := time.Now()

	collections, err := r.store.ListCollections(ctx)
	if err != nil {
		r.recordSweep("error", start)
		return fmt.Errorf("failed to list collections: %w", err)
	}

	// Restriction state may have changed since the last sweep; start from
	// the store, not from memoized results.
	r.resolver.Invalidate(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)

	for _, collection := range collections {
		collection := collection
		g.Go(func() error {
			return r.sweepCollection(ctx, collection.ID)
		})
	}

	if err := g.Wait(); err != nil {
		r.recordSweep("error", start)
		return err
	}

	r.recordSweep("success", start)
	if r.logger != nil {
		r.logger.WithFields(map[string]interface{}{
			"collections": len(collections),
			"duration":    time.Since(start).String(),
		}).Info("Reconciliation sweep complete")
	}
	return nil
}

func (r *Reconciler) sweepCollection(ctx context.Context, collectionID int64) error {
	restricted, err := r.resolver.IsRestricted(ctx, collectionID)
	if err != nil {
		return err
	}

	documents, err := r.store.ListDocumentsByCollection(ctx, collectionID)
	if err != nil {
		return err
	}

	for _, doc := range documents {
		err := r.synchronizer.SyncDocument(ctx, doc, restricted)
		r.recordDocument(err)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) recordSweep(status string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.ReconcileSweepsTotal.WithLabelValues(status).Inc()
	r.metrics.ReconcileSweepDuration.Observe(time.Since(start).Seconds())
}

func (r *Reconciler) recordDocument(err error) {
	if r.metrics == nil {
		return
	}
	status := "synced"
	if err != nil {
		status = "error"
	}
	r.metrics.ReconcileDocumentsTotal.WithLabelValues(status).Inc()
}
