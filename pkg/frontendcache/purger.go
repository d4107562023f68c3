package frontendcache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/docsentry/docsentry/pkg/models"
	"github.com/docsentry/docsentry/pkg/observability"
)

var tracer = otel.Tracer("github.com/docsentry/docsentry/pkg/frontendcache")

// Purger fans purge requests out across the configured backends: one
// request per document URL per backend, issued sequentially. The first
// failure propagates; earlier purges are not rolled back.
type Purger struct {
	mu       sync.RWMutex
	backends []Backend
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// NewPurger creates a purger over the given backends. metrics may be nil.
func NewPurger(backends []Backend, metrics *observability.Metrics, logger *observability.Logger) *Purger {
	return &Purger{
		backends: backends,
		metrics:  metrics,
		logger:   logger,
	}
}

// Configured reports whether at least one backend is available. The purge
// gate skips handlers entirely when this is false.
func (p *Purger) Configured() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.backends) > 0
}

// SetBackends replaces the backend set. Used by the config hot-reload path.
func (p *Purger) SetBackends(backends []Backend) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backends = backends
}

// PurgeURL purges one URL against every backend.
func (p *Purger) PurgeURL(ctx context.Context, rawURL string) error {
	ctx, span := tracer.Start(ctx, "FrontendCache.PurgeURL",
		trace.WithAttributes(attribute.String("purge.url", rawURL)),
	)
	defer span.End()

	p.mu.RLock()
	backends := p.backends
	p.mu.RUnlock()

	for _, backend := range backends {
		start := time.Now()
		err := backend.PurgeURL(ctx, rawURL)
		if p.metrics != nil {
			p.metrics.RecordPurgeRequest(backend.Name(), err, time.Since(start))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "purge failed")
			return err
		}
	}

	span.SetStatus(codes.Ok, "url purged")
	return nil
}

// PurgeDocuments purges every document's URL against every backend.
func (p *Purger) PurgeDocuments(ctx context.Context, documents []*models.Document) error {
	ctx, span := tracer.Start(ctx, "FrontendCache.PurgeDocuments",
		trace.WithAttributes(attribute.Int("document.count", len(documents))),
	)
	defer span.End()

	for _, doc := range documents {
		if err := p.PurgeURL(ctx, doc.URL); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "document purge aborted")
			return err
		}
	}

	if p.logger != nil && len(documents) > 0 {
		p.logger.WithField("documents", len(documents)).Info("Document URLs purged from frontend cache")
	}

	span.SetStatus(codes.Ok, "documents purged")
	return nil
}
