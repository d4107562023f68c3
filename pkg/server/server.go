// Package server exposes the HTTP event-ingest API. The CMS posts
// model-saved notifications here; each request is dispatched synchronously
// through the signal registry and the response reflects the outcome, so a
// failed ACL write or purge fails the request loudly.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docsentry/docsentry/pkg/httputil"
	"github.com/docsentry/docsentry/pkg/observability"
	"github.com/docsentry/docsentry/pkg/signals"
	"github.com/docsentry/docsentry/pkg/storage"
)

// Server routes save events into the signal registry.
type Server struct {
	router   *mux.Router
	registry *signals.Registry
	metrics  *observability.Metrics
	logger   *observability.Logger
	token    string
}

// New creates the event-ingest server. token empty disables auth; metrics
// may be nil.
func New(registry *signals.Registry, metrics *observability.Metrics, logger *observability.Logger, token string) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		registry: registry,
		metrics:  metrics,
		logger:   logger,
		token:    token,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.requestIDMiddleware)
	api.Use(s.loggingMiddleware)
	api.Use(s.recoveryMiddleware)
	if s.token != "" {
		api.Use(s.tokenAuthMiddleware)
	}

	api.HandleFunc("/events/collection-saved", s.collectionSaved).Methods("POST")
	api.HandleFunc("/events/document-saved", s.documentSaved).Methods("POST")
}

// Handler returns the root handler, wrapped for tracing.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "docsentry.events")
}

// saveEventRequest is the body the CMS posts on a model save.
type saveEventRequest struct {
	ID int64 `json:"id"`
}

func (s *Server) collectionSaved(w http.ResponseWriter, r *http.Request) {
	s.handleSaveEvent(w, r, signals.EventCollectionSaved)
}

func (s *Server) documentSaved(w http.ResponseWriter, r *http.Request) {
	s.handleSaveEvent(w, r, signals.EventDocumentSaved)
}

func (s *Server) handleSaveEvent(w http.ResponseWriter, r *http.Request, eventType signals.EventType) {
	var req saveEventRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ID <= 0 {
		httputil.WriteBadRequest(w, "id must be a positive integer")
		return
	}

	event := signals.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		ReceivedAt: time.Now().UTC(),
	}
	switch eventType {
	case signals.EventCollectionSaved:
		event.CollectionID = req.ID
	case signals.EventDocumentSaved:
		event.DocumentID = req.ID
	}

	ctx := observability.WithEventID(r.Context(), event.ID)

	if err := s.registry.Send(ctx, event); err != nil {
		var notFound *storage.NotFoundError
		if errors.As(err, &notFound) {
			httputil.WriteNotFoundError(w, notFound.Error())
			return
		}
		// A backend write failed mid-dispatch. Earlier side effects stand;
		// the CMS sees the save's follow-up work fail.
		httputil.WriteError(w, http.StatusBadGateway, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"status":   "processed",
		"event_id": event.ID,
	})
}

// HealthRouter builds the sidecar router served on the health port:
// liveness, readiness and metrics.
func HealthRouter(checker *observability.HealthChecker, metricsHandler http.Handler) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", checker.Liveness).Methods("GET")
	r.HandleFunc("/readyz", checker.Readiness).Methods("GET")
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods("GET")
	}
	return r
}
