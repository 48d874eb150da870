package routes

import (
	"net/http"

	"github.com/scribeflow/scribeflow/backend/internal/api/handlers"
	"github.com/scribeflow/scribeflow/backend/internal/api/middleware"
	"github.com/scribeflow/scribeflow/backend/internal/infrastructure/observability"
)

// Router holds all route handlers

type Router struct {
	mux *http.ServeMux

	enhancementHandler *handlers.EnhancementHandler

	modelHandler *handlers.ModelHandler

	sseHandler *handlers.SSEHandler

	cacheMiddleware *middleware.CacheMiddleware
	metrics         *observability.Metrics
}

// NewRouter creates a new router

func NewRouter(
	enhancementHandler *handlers.EnhancementHandler,
	modelHandler *handlers.ModelHandler,
	sseHandler *handlers.SSEHandler,
	cacheMiddleware *middleware.CacheMiddleware,
	metrics *observability.Metrics,
) *Router {

	return &Router{
		mux: http.NewServeMux(),

		enhancementHandler: enhancementHandler,

		modelHandler: modelHandler,

		sseHandler: sseHandler,

		cacheMiddleware: cacheMiddleware,
		metrics:         metrics,
	}

}

// SetupRoutes configures all application routes

func (r *Router) SetupRoutes() http.Handler {

	// Health check endpoint

	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {

		w.WriteHeader(http.StatusOK)

		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}

	})

	// Enhancement endpoints

	r.mux.HandleFunc("POST /api/enhancements", r.enhancementHandler.CreateEnhancement)

	// stream must be registered before {id} so it wins pattern precedence
	if r.sseHandler != nil {
		r.mux.HandleFunc("GET /api/enhancements/stream", r.sseHandler.StreamJobUpdates)
	}

	r.mux.HandleFunc("GET /api/enhancements/{id}", r.enhancementHandler.GetEnhancement)

	// Model catalog endpoints

	r.mux.HandleFunc("GET /api/models", r.modelHandler.ListModels)

	r.mux.HandleFunc("GET /api/models/validate", r.modelHandler.ValidateModel)

	// Apply middleware in reverse order (last middleware wraps first)
	// CORS must be outermost so cached responses also get CORS headers.

	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)

	// Apply cache middleware if available
	if r.cacheMiddleware != nil {
		handler = r.cacheMiddleware.Middleware(handler)
	}

	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)

	// Apply HTTP performance optimizations (compression, ETag, cache headers)
	handler = middleware.ResponseOptimization(handler)

	// CORS wraps everything so headers are set even on cache HITs
	handler = middleware.CORSMiddleware(handler)

	return handler
}
