// Package signals dispatches CMS save events to their handlers.
//
// The registry mirrors the CMS's model-saved signals: handlers are connected
// to an event type and run synchronously, in registration order, on the
// event dispatch path. A handler error stops the dispatch and propagates to
// the caller, so the triggering save fails loudly.
package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/docsentry/docsentry/pkg/observability"
)

// EventType identifies the kind of save event.
type EventType string

const (
	EventCollectionSaved EventType = "collection.saved"
	EventDocumentSaved   EventType = "document.saved"
)

// Event is one CMS model-saved notification. CollectionID is set for
// collection events, DocumentID for document events.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	CollectionID int64     `json:"collection_id,omitempty"`
	DocumentID   int64     `json:"document_id,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

// Handler processes one event. Handlers must be idempotent: re-dispatching
// an event against unchanged persisted state yields the same outcome.
type Handler func(ctx context.Context, event Event) error

type registration struct {
	name    string
	handler Handler
}

// Registry maps event types to ordered handler lists.
type Registry struct {
	handlers map[EventType][]registration
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// NewRegistry creates an empty registry. metrics may be nil.
func NewRegistry(metrics *observability.Metrics, logger *observability.Logger) *Registry {
	return &Registry{
		handlers: make(map[EventType][]registration),
		metrics:  metrics,
		logger:   logger,
	}
}

// Connect attaches a named handler to an event type. Handlers run in
// connection order. Not safe for concurrent use with Send; connect
// everything during startup.
func (r *Registry) Connect(eventType EventType, name string, handler Handler) {
	r.handlers[eventType] = append(r.handlers[eventType], registration{
		name:    name,
		handler: handler,
	})
}

// Send dispatches an event to every connected handler, synchronously and in
// order. The first handler error aborts the dispatch and is returned;
// handlers that already ran are not rolled back.
func (r *Registry) Send(ctx context.Context, event Event) error {
	if r.metrics != nil {
		r.metrics.EventsReceivedTotal.WithLabelValues(string(event.Type)).Inc()
	}

	for _, reg := range r.handlers[event.Type] {
		start := time.Now()
		err := reg.handler(ctx, event)
		if r.metrics != nil {
			r.metrics.HandlerDuration.WithLabelValues(reg.name).Observe(time.Since(start).Seconds())
		}
		if err != nil {
			if r.metrics != nil {
				r.metrics.HandlerErrorsTotal.WithLabelValues(reg.name).Inc()
			}
			if r.logger != nil {
				r.logger.WithError(err).WithFields(map[string]interface{}{
					"handler":    reg.name,
					"event_type": string(event.Type),
					"event_id":   event.ID,
				}).Error("Save-event handler failed")
			}
			return fmt.Errorf("handler %s failed: %w", reg.name, err)
		}
	}
	return nil
}
